package lbp

import (
	"slices"

	"github.com/scylladb/dc-aware-lbp-golang/metadata"
)

// LocalDCResolver discovers the local datacenter once, at policy initialization.
//
// An empty datacenter means none is known and disables datacenter awareness.
// Implementations that cannot operate without a local datacenter return an error
// wrapping errs.ErrNoLocalDatacenter. See package rt for scope based resolvers.
type LocalDCResolver interface {
	DiscoverLocalDC(nodes map[string]metadata.Node) (string, error)
}

// LocalDCResolverFunc adapts a function to LocalDCResolver.
type LocalDCResolverFunc func(nodes map[string]metadata.Node) (string, error)

// DiscoverLocalDC implements LocalDCResolver.
func (f LocalDCResolverFunc) DiscoverLocalDC(nodes map[string]metadata.Node) (string, error) {
	return f(nodes)
}

// DistanceEvaluator overrides the distance the policy would assign to a node.
//
// It returns ok set to false to defer to the policy. Evaluators may be dynamic:
// the policy asks every time a distance is needed and applies the latest verdict.
type DistanceEvaluator interface {
	EvaluateDistance(node metadata.Node, localDC string) (distance metadata.Distance, ok bool)
}

// DistanceEvaluatorFunc adapts a function to DistanceEvaluator.
type DistanceEvaluatorFunc func(node metadata.Node, localDC string) (metadata.Distance, bool)

// EvaluateDistance implements DistanceEvaluator.
func (f DistanceEvaluatorFunc) EvaluateDistance(node metadata.Node, localDC string) (metadata.Distance, bool) {
	return f(node, localDC)
}

// NoopDistanceEvaluator never has a verdict.
type NoopDistanceEvaluator struct{}

// EvaluateDistance implements DistanceEvaluator.
func (NoopDistanceEvaluator) EvaluateDistance(metadata.Node, string) (metadata.Distance, bool) {
	return metadata.DistanceIgnored, false
}

// StaticDistanceEvaluator pins the distance of individual nodes, keyed by host id.
type StaticDistanceEvaluator map[string]metadata.Distance

// EvaluateDistance implements DistanceEvaluator.
func (s StaticDistanceEvaluator) EvaluateDistance(node metadata.Node, _ string) (metadata.Distance, bool) {
	d, ok := s[node.HostID()]
	return d, ok
}

// IgnoreDatacenters returns an evaluator that ignores every node of the given datacenters.
func IgnoreDatacenters(dcs ...string) DistanceEvaluator {
	dcs = slices.Clone(dcs)
	return DistanceEvaluatorFunc(func(node metadata.Node, _ string) (metadata.Distance, bool) {
		if slices.Contains(dcs, node.Datacenter()) {
			return metadata.DistanceIgnored, true
		}
		return metadata.DistanceIgnored, false
	})
}

// ChainDistanceEvaluators asks each evaluator in turn and returns the first verdict.
func ChainDistanceEvaluators(evaluators ...DistanceEvaluator) DistanceEvaluator {
	evaluators = slices.Clone(evaluators)
	return DistanceEvaluatorFunc(func(node metadata.Node, localDC string) (metadata.Distance, bool) {
		for _, e := range evaluators {
			if d, ok := e.EvaluateDistance(node, localDC); ok {
				return d, true
			}
		}
		return metadata.DistanceIgnored, false
	})
}

var (
	_ DistanceEvaluator = NoopDistanceEvaluator{}
	_ DistanceEvaluator = StaticDistanceEvaluator{}
	_ LocalDCResolver   = LocalDCResolverFunc(nil)
)

// DistanceEvaluatorFactory creates the evaluator of a policy once the local datacenter is known.
type DistanceEvaluatorFactory func(localDC string, nodes map[string]metadata.Node) DistanceEvaluator

// DistanceReporter receives distance verdicts, the connection pool manager opens or
// closes pools accordingly.
type DistanceReporter func(node metadata.Node, distance metadata.Distance)

// SetNodeDistance is a DistanceReporter that records the distance on nodes
// implementing metadata.DistanceSetter.
func SetNodeDistance(node metadata.Node, distance metadata.Distance) {
	if s, ok := node.(metadata.DistanceSetter); ok {
		s.SetDistance(distance)
	}
}

// Request and Session are opaque to the policy.
type (
	Request = any
	Session = any
)
