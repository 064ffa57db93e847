package lbp

import (
	"cmp"
	"slices"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/scylladb/dc-aware-lbp-golang/errs"
	"github.com/scylladb/dc-aware-lbp-golang/metadata"
)

// QueryPlan is the ordered list of coordinators to try for one request.
// It is not safe for concurrent use, every request gets its own plan.
type QueryPlan struct {
	nodes []metadata.Node
	next  int
}

func newQueryPlan(nodes []metadata.Node) *QueryPlan {
	return &QueryPlan{nodes: nodes}
}

// Next returns the next node to try, or nil once the plan is exhausted.
func (p *QueryPlan) Next() metadata.Node {
	if p.next >= len(p.nodes) {
		return nil
	}
	n := p.nodes[p.next]
	p.next++
	return n
}

// NextOrErr is like Next, but reports exhaustion with errs.ErrQueryPlanExhausted.
func (p *QueryPlan) NextOrErr() (metadata.Node, error) {
	n := p.Next()
	if n == nil {
		return nil, errs.ErrQueryPlanExhausted
	}
	return n, nil
}

// Len returns the total number of nodes in the plan.
func (p *QueryPlan) Len() int {
	return len(p.nodes)
}

// Nodes returns a copy of all nodes in the plan, including already consumed ones.
func (p *QueryPlan) Nodes() []metadata.Node {
	return slices.Clone(p.nodes)
}

// PlanBuilder turns the live nodes of the local datacenter into a query plan.
// Implementations must be safe for concurrent use and must not modify live.
type PlanBuilder interface {
	Build(live []metadata.Node) []metadata.Node
}

// PlanBuilderFunc adapts a function to PlanBuilder.
type PlanBuilderFunc func(live []metadata.Node) []metadata.Node

// Build implements PlanBuilder.
func (f PlanBuilderFunc) Build(live []metadata.Node) []metadata.Node {
	return f(live)
}

// SingleCandidatePlanBuilder returns the first live node in identity order as the only
// coordinator. The same live set always yields the same coordinator.
type SingleCandidatePlanBuilder struct{}

// Build implements PlanBuilder.
func (SingleCandidatePlanBuilder) Build(live []metadata.Node) []metadata.Node {
	if len(live) == 0 {
		return nil
	}
	first := live[0]
	for _, n := range live[1:] {
		if compareIdentity(n, first) < 0 {
			first = n
		}
	}
	return []metadata.Node{first}
}

// RoundRobinPlanBuilder returns every live node, in identity order rotated by one
// position on each plan, so that consecutive requests start on different coordinators
// and fail over to the rest.
type RoundRobinPlanBuilder struct {
	next atomic.Uint64
}

// NewRoundRobinPlanBuilder creates a RoundRobinPlanBuilder.
func NewRoundRobinPlanBuilder() *RoundRobinPlanBuilder {
	return &RoundRobinPlanBuilder{}
}

// Build implements PlanBuilder.
func (b *RoundRobinPlanBuilder) Build(live []metadata.Node) []metadata.Node {
	if len(live) == 0 {
		return nil
	}
	sorted := slices.Clone(live)
	SortByIdentity(sorted)
	start := int((b.next.Add(1) - 1) % uint64(len(sorted)))
	out := make([]metadata.Node, 0, len(sorted))
	out = append(out, sorted[start:]...)
	return append(out, sorted[:start]...)
}

var (
	_ PlanBuilder = SingleCandidatePlanBuilder{}
	_ PlanBuilder = &RoundRobinPlanBuilder{}
)

// SortByIdentity sorts nodes in the cluster-wide total order used for query plans:
// by the xxhash of the host id, then by the host id itself.
func SortByIdentity(nodes []metadata.Node) {
	slices.SortFunc(nodes, compareIdentity)
}

func compareIdentity(a, b metadata.Node) int {
	idA, idB := a.HostID(), b.HostID()
	if c := cmp.Compare(xxhash.Sum64String(idA), xxhash.Sum64String(idB)); c != 0 {
		return c
	}
	return cmp.Compare(idA, idB)
}
