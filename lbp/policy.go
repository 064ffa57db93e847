// Package lbp implements a datacenter-aware load balancing policy for a
// cluster-aware database client.
//
// The policy decides which nodes the client keeps connections to, and at
// which distance, and builds the list of coordinators for each request.
//
// Local datacenter: the policy has a local datacenter only if its
// LocalDCResolver reports one. Without it, the policy is datacenter-agnostic:
// every non-ignored node is LOCAL and query plans may contain nodes from any
// datacenter.
//
// Remote nodes: with a local datacenter and MaxNodesPerRemoteDC > 0, up to
// MaxNodesPerRemoteDC live nodes of each other datacenter are REMOTE so that
// the connection layer keeps pools to them, the rest are IGNORED. Query plans
// only contain live nodes of the local datacenter.
//
// A Policy is safe for concurrent use once Init has returned.
package lbp

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/scylladb/dc-aware-lbp-golang/errs"
	"github.com/scylladb/dc-aware-lbp-golang/logx"
	"github.com/scylladb/dc-aware-lbp-golang/metadata"
	"github.com/scylladb/dc-aware-lbp-golang/metrics"
	"github.com/scylladb/dc-aware-lbp-golang/nodeset"
)

// PolicyState is the lifecycle stage of a Policy.
type PolicyState int32

const (
	PolicyUninitialized PolicyState = iota
	PolicyReady
	PolicyClosed
)

func (s PolicyState) String() string {
	switch s {
	case PolicyUninitialized:
		return "UNINITIALIZED"
	case PolicyReady:
		return "READY"
	case PolicyClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("PolicyState(%d)", int32(s))
	}
}

// policyState is written once by Init and never modified afterwards,
// apart from the membership of liveNodes.
type policyState struct {
	localDC   string
	liveNodes nodeset.NodeSet
	evaluator DistanceEvaluator
	reporter  DistanceReporter

	// remoteSlots serializes the admission of nodes competing for the remote slots of a
	// datacenter.
	remoteSlots *xsync.MapOf[string, *sync.Mutex]
}

// Policy is the load balancing policy.
type Policy struct {
	cfg     Config
	logger  logx.Logger
	metrics *metrics.Collector

	initMu    sync.Mutex
	lifecycle atomic.Int32
	state     atomic.Pointer[policyState]
}

// NewPolicy creates a policy, it has to be initialized with Init before use.
func NewPolicy(opts ...Option) (*Policy, error) {
	cfg := NewDefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Policy{
		cfg:     cfg,
		logger:  cfg.Logger.Named("lbp").With(logx.A("policy", cfg.LogPrefix())),
		metrics: cfg.Metrics,
	}, nil
}

// State returns the lifecycle stage of the policy.
func (p *Policy) State() PolicyState {
	return PolicyState(p.lifecycle.Load())
}

// LocalDatacenter returns the local datacenter discovered by Init, or an empty string when
// the policy is datacenter-agnostic or not initialized yet.
func (p *Policy) LocalDatacenter() string {
	if st := p.state.Load(); st != nil {
		return st.localDC
	}
	return ""
}

// LiveNodes returns the nodes currently considered live, nil before Init.
func (p *Policy) LiveNodes() nodeset.NodeSet {
	if st := p.state.Load(); st != nil {
		return st.liveNodes
	}
	return nil
}

// Init discovers the local datacenter, assigns a distance to every known node and
// seeds the live set with the non-ignored nodes that are not DOWN.
//
// Nodes in UNKNOWN state are considered live: if they turn out to be unreachable,
// the connection layer reports them DOWN later.
func (p *Policy) Init(nodes map[string]metadata.Node, reporter DistanceReporter) error {
	if reporter == nil {
		reporter = SetNodeDistance
	}
	p.initMu.Lock()
	defer p.initMu.Unlock()
	switch p.State() {
	case PolicyReady:
		return errs.ErrPolicyAlreadyInitialized
	case PolicyClosed:
		return errs.ErrPolicyClosed
	}

	localDC, err := p.cfg.LocalDCResolver.DiscoverLocalDC(nodes)
	if err != nil {
		return fmt.Errorf("failed to discover local datacenter: %w", err)
	}

	st := &policyState{
		localDC:     localDC,
		liveNodes:   p.newLiveNodes(localDC),
		reporter:    reporter,
		remoteSlots: xsync.NewMapOf[string, *sync.Mutex](),
	}
	st.evaluator = p.cfg.DistanceEvaluatorFactory(localDC, nodes)
	if st.evaluator == nil {
		st.evaluator = NoopDistanceEvaluator{}
	}
	if localDC == "" {
		p.logger.Info("no local datacenter, all nodes are considered local")
	} else {
		p.logger.Info("local datacenter resolved",
			logx.A("localDC", localDC),
			logx.A("maxNodesPerRemoteDC", p.cfg.MaxNodesPerRemoteDC),
		)
	}

	// Seeding in identity order makes the remote slots assignment reproducible.
	ordered := make([]metadata.Node, 0, len(nodes))
	for _, n := range nodes {
		ordered = append(ordered, n)
	}
	SortByIdentity(ordered)
	for _, node := range ordered {
		p.admit(st, node, true)
	}

	p.state.Store(st)
	p.lifecycle.Store(int32(PolicyReady))
	return nil
}

func (p *Policy) newLiveNodes(localDC string) nodeset.NodeSet {
	switch {
	case localDC == "":
		p.logger.Debug("tracking live nodes of all datacenters as local")
		return nodeset.NewDcAgnostic()
	case p.cfg.MaxNodesPerRemoteDC <= 0:
		p.logger.Debug("remote failover disabled, tracking live nodes of the local datacenter only")
		return nodeset.NewSingleDc(localDC)
	default:
		p.logger.Debug("tracking live nodes per datacenter")
		return nodeset.NewMultiDc()
	}
}

// ready returns the state of a policy that accepts events and requests.
func (p *Policy) ready() *policyState {
	if p.State() != PolicyReady {
		return nil
	}
	return p.state.Load()
}

// NewQueryPlan returns the coordinators to try for a request, built from the live nodes
// of the local datacenter, or of all datacenters when there is no local one.
// The plan is empty when no node is live, or when the policy is not ready.
func (p *Policy) NewQueryPlan(_ Request, _ Session) *QueryPlan {
	st := p.ready()
	if st == nil {
		return newQueryPlan(nil)
	}
	plan := p.cfg.PlanBuilder.Build(st.liveNodes.DC(st.localDC))
	p.metrics.QueryPlanBuilt(len(plan))
	return newQueryPlan(plan)
}

// OnAdd handles a node joining the cluster. The distance is reported so that the connection
// layer opens a pool; the node enters the live set later, when it comes UP.
func (p *Policy) OnAdd(node metadata.Node) {
	st := p.ready()
	if st == nil {
		return
	}
	p.metrics.NodeEvent(metrics.EventAdded)
	distance := p.computeNodeDistance(st, node)
	p.report(st, node, distance)
	p.logger.Debug("node was added, setting distance", nodeAttr(node), logx.A("distance", distance.String()))
}

// OnUp handles a node becoming reachable. Duplicate events are harmless.
func (p *Policy) OnUp(node metadata.Node) {
	st := p.ready()
	if st == nil {
		return
	}
	p.metrics.NodeEvent(metrics.EventUp)
	if distance, added := p.admit(st, node, false); added {
		p.logger.Debug("node came back UP, added to live set", nodeAttr(node), logx.A("distance", distance.String()))
	}
}

// OnDown handles a node becoming unreachable.
func (p *Policy) OnDown(node metadata.Node) {
	st := p.ready()
	if st == nil {
		return
	}
	p.metrics.NodeEvent(metrics.EventDown)
	if p.removeLive(st, node) {
		p.logger.Debug("node went DOWN, removed from live set", nodeAttr(node))
	}
}

// OnRemove handles a node leaving the cluster.
func (p *Policy) OnRemove(node metadata.Node) {
	st := p.ready()
	if st == nil {
		return
	}
	p.metrics.NodeEvent(metrics.EventRemoved)
	if p.removeLive(st, node) {
		p.logger.Debug("node was removed, removed from live set", nodeAttr(node))
	}
}

// Close makes the policy ignore further events and return empty query plans.
func (p *Policy) Close() {
	p.initMu.Lock()
	defer p.initMu.Unlock()
	if PolicyState(p.lifecycle.Swap(int32(PolicyClosed))) != PolicyClosed {
		p.logger.Debug("policy closed")
	}
}

func (p *Policy) report(st *policyState, node metadata.Node, distance metadata.Distance) {
	st.reporter(node, distance)
	p.metrics.DistanceReported(distance)
}

func (p *Policy) addLive(st *policyState, node metadata.Node) bool {
	if !st.liveNodes.Add(node) {
		return false
	}
	p.metrics.LiveNodeAdded(node.Datacenter())
	return true
}

func (p *Policy) removeLive(st *policyState, node metadata.Node) bool {
	if !st.liveNodes.Remove(node) {
		return false
	}
	p.metrics.LiveNodeRemoved(node.Datacenter())
	return true
}

func nodeAttr(node metadata.Node) logx.Attr {
	return logx.A("node", node.HostID())
}
