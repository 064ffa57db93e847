package nodeshealth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/scylladb/dc-aware-lbp-golang/errs"
	"github.com/scylladb/dc-aware-lbp-golang/logx"
	"github.com/scylladb/dc-aware-lbp-golang/metadata"
)

// Listener receives reachability changes. *lbp.Policy implements it.
//
// Listeners are called with the tracker lock held and must not call back into the tracker.
type Listener interface {
	OnUp(node metadata.Node)
	OnDown(node metadata.Node)
}

// ProbeFunc checks whether a DOWN node is reachable again.
type ProbeFunc func(ctx context.Context, node metadata.Node, status NodeHealthStatus) bool

// Config configures a Tracker.
type Config struct {
	Scoring HealthScoring
	// ProbeConcurrency caps how many probes run simultaneously.
	ProbeConcurrency int
	// ProbePeriod is how often DOWN nodes are probed by the background worker, <0 disables it.
	ProbePeriod time.Duration
	// ProbeTimeout bounds a single probe round.
	ProbeTimeout time.Duration
}

const (
	// DefaultProbeConcurrency controls how many probes run in parallel by default.
	DefaultProbeConcurrency = 4
	// DefaultProbePeriod controls how often DOWN nodes are probed by default.
	DefaultProbePeriod = 5 * time.Second
	// DefaultProbeTimeout bounds a probe round by default.
	DefaultProbeTimeout = 2 * time.Second
)

// DefaultConfig returns the default configuration for Tracker.
func DefaultConfig() Config {
	return Config{
		Scoring:          DefaultHealthScoring,
		ProbeConcurrency: DefaultProbeConcurrency,
		ProbePeriod:      DefaultProbePeriod,
		ProbeTimeout:     DefaultProbeTimeout,
	}
}

// Validate reports every invalid setting at once.
func (cfg Config) Validate() error {
	err := cfg.Scoring.Validate()
	if cfg.ProbeConcurrency <= 0 {
		err = multierr.Append(err, fmt.Errorf(
			"node health config: ProbeConcurrency must be > 0 (got %d)", cfg.ProbeConcurrency))
	}
	if cfg.ProbePeriod == 0 {
		err = multierr.Append(err, errors.New(
			"node health config: ProbePeriod cannot be zero (set >0 to enable or <0 to disable)"))
	}
	if cfg.ProbeTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf(
			"node health config: ProbeTimeout must be > 0 (got %s)", cfg.ProbeTimeout))
	}
	return err
}

// NodeHealthStatus captures the current health data for a node.
type NodeHealthStatus struct {
	score   uint64
	down    bool
	updated time.Time
}

// Updated returns the timestamp of the latest status update.
func (n NodeHealthStatus) Updated() time.Time { return n.updated }

// Down reports whether the tracker considers the node unreachable.
func (n NodeHealthStatus) Down() bool { return n.down }

// Score returns the accumulated error score for the node.
func (n NodeHealthStatus) Score() uint64 { return n.score }

type trackedNode struct {
	node   metadata.Node
	status NodeHealthStatus
}

// Tracker keeps error scores of the nodes the client has pools to.
type Tracker struct {
	mu       sync.Mutex
	cfg      Config
	listener Listener
	probe    ProbeFunc
	logger   logx.Logger
	nodes    map[string]*trackedNode

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewTracker creates a tracker notifying listener. probe may be nil, DOWN nodes then only come
// back through MarkUp.
func NewTracker(cfg Config, listener Listener, probe ProbeFunc, logger logx.Logger) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if listener == nil {
		return nil, errors.New("node health: listener must be provided")
	}
	if logger == nil {
		logger = logx.Noop{}
	}
	return &Tracker{
		cfg:      cfg,
		listener: listener,
		probe:    probe,
		logger:   logger.Named("nodeshealth"),
		nodes:    make(map[string]*trackedNode),
	}, nil
}

// Track starts tracking a node. Nodes reported DOWN by the driver start DOWN.
func (t *Tracker) Track(node metadata.Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.nodes[node.HostID()]; ok {
		return
	}
	t.nodes[node.HostID()] = &trackedNode{
		node: node,
		status: NodeHealthStatus{
			down:    node.State() == metadata.NodeStateDown,
			updated: time.Now().UTC(),
		},
	}
}

// Untrack stops tracking a node.
func (t *Tracker) Untrack(node metadata.Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.nodes, node.HostID())
}

// NodeStatus returns the health status of the node with the given host id.
func (t *Tracker) NodeStatus(hostID string) (NodeHealthStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tn, ok := t.nodes[hostID]
	if !ok {
		return NodeHealthStatus{}, false
	}
	return tn.status, true
}

// DownNodes returns the nodes currently considered DOWN, sorted by host id.
func (t *Tracker) DownNodes() []metadata.Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []metadata.Node
	for _, tn := range t.nodes {
		if tn.status.down {
			out = append(out, tn.node)
		}
	}
	slices.SortFunc(out, func(a, b metadata.Node) int {
		switch {
		case a.HostID() < b.HostID():
			return -1
		case a.HostID() > b.HostID():
			return 1
		}
		return 0
	})
	return out
}

// ReportNodeError adds the weight of err to the node score and marks it DOWN when the score
// crosses the cut-off.
func (t *Tracker) ReportNodeError(node metadata.Node, err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	tn, ok := t.nodes[node.HostID()]
	if !ok {
		return fmt.Errorf("report error for %s: %w", node.HostID(), errs.ErrUnknownNode)
	}
	if t.cfg.Scoring.applyError(&tn.status, err, time.Now().UTC()) {
		t.logger.Warn("node marked DOWN after connection errors",
			logx.A("node", node.HostID()),
			logx.A("score", tn.status.score),
			logx.Error(err),
		)
		t.notifyDown(tn)
	}
	return nil
}

// MarkDown forces a node DOWN, e.g. when its pool lost its last connection.
func (t *Tracker) MarkDown(node metadata.Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	tn, ok := t.nodes[node.HostID()]
	if !ok {
		return fmt.Errorf("mark %s down: %w", node.HostID(), errs.ErrUnknownNode)
	}
	if t.cfg.Scoring.markDown(&tn.status, time.Now().UTC()) {
		t.notifyDown(tn)
	}
	return nil
}

// MarkUp brings a node back UP, e.g. when a connection to it was established.
func (t *Tracker) MarkUp(node metadata.Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	tn, ok := t.nodes[node.HostID()]
	if !ok {
		return fmt.Errorf("mark %s up: %w", node.HostID(), errs.ErrUnknownNode)
	}
	if t.cfg.Scoring.markUp(&tn.status, time.Now().UTC()) {
		t.notifyUp(tn)
	}
	return nil
}

func (t *Tracker) notifyDown(tn *trackedNode) {
	if s, ok := tn.node.(metadata.StateSetter); ok {
		s.SetState(metadata.NodeStateDown)
	}
	t.listener.OnDown(tn.node)
}

func (t *Tracker) notifyUp(tn *trackedNode) {
	if s, ok := tn.node.(metadata.StateSetter); ok {
		s.SetState(metadata.NodeStateUp)
	}
	t.listener.OnUp(tn.node)
}

// ProbeDownNodes probes every DOWN node, at most ProbeConcurrency at a time, and brings back UP
// the ones that answered. It returns the nodes that came back.
func (t *Tracker) ProbeDownNodes(ctx context.Context) []metadata.Node {
	if t.probe == nil {
		return nil
	}

	type candidate struct {
		node   metadata.Node
		status NodeHealthStatus
	}
	t.mu.Lock()
	var candidates []candidate
	for _, tn := range t.nodes {
		if tn.status.down {
			candidates = append(candidates, candidate{node: tn.node, status: tn.status})
		}
	}
	t.mu.Unlock()
	if len(candidates) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.ProbeTimeout)
	defer cancel()

	workCh := make(chan candidate, len(candidates))
	for _, c := range candidates {
		workCh <- c
	}
	close(workCh)

	var (
		wg        sync.WaitGroup
		reachedMu sync.Mutex
		reached   []metadata.Node
	)
	for i := 0; i < t.cfg.ProbeConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range workCh {
				if ctx.Err() != nil {
					return
				}
				if t.probe(ctx, c.node, c.status) {
					reachedMu.Lock()
					reached = append(reached, c.node)
					reachedMu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	t.mu.Lock()
	defer t.mu.Unlock()
	var released []metadata.Node
	now := time.Now().UTC()
	for _, n := range reached {
		// The node may have been untracked while the probe was running.
		tn, ok := t.nodes[n.HostID()]
		if !ok || !t.cfg.Scoring.markUp(&tn.status, now) {
			continue
		}
		t.logger.Info("node is reachable again", logx.A("node", n.HostID()))
		t.notifyUp(tn)
		released = append(released, n)
	}
	return released
}

// Start launches the background prober. It is a no-op without a probe or with a
// negative ProbePeriod.
func (t *Tracker) Start(ctx context.Context) {
	if t.probe == nil || t.cfg.ProbePeriod <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done != nil {
		return
	}
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(t.cfg.ProbePeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.ProbeDownNodes(ctx)
			}
		}
	}(t.done)
}

// Stop stops the background prober and waits for it to exit.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	t.stopOnce.Do(func() {
		cancel()
		<-done
	})
}
