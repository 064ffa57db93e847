// Package rt defines routing scopes that decide which datacenter, if any, is
// local to the client.
//
// Scopes can be chained with fallbacks, e.g. DC -> Inferred -> Cluster: a
// scope that cannot decide hands over to its fallback. ClusterScope is the
// terminal scope, it disables datacenter awareness altogether.
package rt

import (
	"fmt"
	"slices"

	"github.com/scylladb/dc-aware-lbp-golang/errs"
	"github.com/scylladb/dc-aware-lbp-golang/metadata"
)

// Scope describes a locality target and how to fall back when it cannot be resolved.
//
// Implementations should be immutable and safe to share across goroutines.
type Scope interface {
	// Name returns a short, human-readable scope name (e.g. "Datacenter", "Cluster").
	Name() string

	// String returns a descriptive representation of the scope including its parameters.
	String() string

	// Fallback returns the next scope to try when the current scope cannot be resolved,
	// or nil if there is none.
	Fallback() Scope

	// LocalDatacenter resolves the local datacenter against the nodes known at startup.
	// ok is false when the scope cannot decide and the fallback has to be consulted.
	// An empty datacenter with ok set to true means datacenter awareness is disabled.
	LocalDatacenter(nodes map[string]metadata.Node) (dc string, ok bool)
}

// ResolveLocalDatacenter walks the scope chain and returns the first resolved datacenter.
// It returns an empty string if no scope in the chain resolves.
func ResolveLocalDatacenter(scope Scope, nodes map[string]metadata.Node) string {
	for ; scope != nil; scope = scope.Fallback() {
		if dc, ok := scope.LocalDatacenter(nodes); ok {
			return dc
		}
	}
	return ""
}

// DCScope targets a configured datacenter.
//
// Without a fallback the configured datacenter is used unconditionally. With a
// fallback it is used only if at least one known node belongs to it.
type DCScope struct {
	datacenter string
	fallback   Scope
}

// NewDCScope constructs a DCScope for the given datacenter. The optional
// fallback is consulted when no known node belongs to the datacenter.
func NewDCScope(datacenter string, fallback Scope) *DCScope {
	return &DCScope{
		datacenter: datacenter,
		fallback:   fallback,
	}
}

// Name implements Scope.
func (d DCScope) Name() string {
	return "Datacenter"
}

// String implements Scope.
func (d DCScope) String() string {
	return fmt.Sprintf("%s(dc=%s)", d.Name(), d.datacenter)
}

// Fallback implements Scope.
func (d DCScope) Fallback() Scope {
	return d.fallback
}

// LocalDatacenter implements Scope.
func (d DCScope) LocalDatacenter(nodes map[string]metadata.Node) (string, bool) {
	if d.datacenter == "" {
		return "", false
	}
	if d.fallback == nil {
		return d.datacenter, true
	}
	for _, n := range nodes {
		if n.Datacenter() == d.datacenter {
			return d.datacenter, true
		}
	}
	return "", false
}

var _ Scope = &DCScope{}

// InferredScope inspects the cluster: if every known node that reports a
// datacenter reports the same one, that datacenter is local.
type InferredScope struct {
	fallback Scope
}

// NewInferredScope constructs an InferredScope with an optional fallback.
func NewInferredScope(fallback Scope) *InferredScope {
	return &InferredScope{fallback: fallback}
}

// Name implements Scope.
func (i InferredScope) Name() string {
	return "Inferred"
}

// String implements Scope.
func (i InferredScope) String() string {
	return "Inferred()"
}

// Fallback implements Scope.
func (i InferredScope) Fallback() Scope {
	return i.fallback
}

// LocalDatacenter implements Scope.
func (i InferredScope) LocalDatacenter(nodes map[string]metadata.Node) (string, bool) {
	var dcs []string
	for _, n := range nodes {
		if dc := n.Datacenter(); dc != "" && !slices.Contains(dcs, dc) {
			dcs = append(dcs, dc)
		}
	}
	if len(dcs) != 1 {
		return "", false
	}
	return dcs[0], true
}

var _ Scope = &InferredScope{}

// ClusterScope targets the entire cluster, regardless of datacenter.
//
// This is usually the terminal fallback, it resolves to no local datacenter.
type ClusterScope struct{}

// NewClusterScope constructs a ClusterScope.
func NewClusterScope() *ClusterScope {
	return &ClusterScope{}
}

// Name implements Scope.
func (w ClusterScope) Name() string {
	return "Cluster"
}

// String implements Scope.
func (w ClusterScope) String() string {
	return "Cluster()"
}

// Fallback implements Scope. ClusterScope has no fallback and returns nil.
func (w ClusterScope) Fallback() Scope {
	return nil
}

// LocalDatacenter implements Scope, it always resolves to no local datacenter.
func (w ClusterScope) LocalDatacenter(map[string]metadata.Node) (string, bool) {
	return "", true
}

var _ Scope = &ClusterScope{}

// Resolver discovers the local datacenter by walking a scope chain.
type Resolver struct {
	scope    Scope
	required bool
}

// NewResolver creates a Resolver that reports no local datacenter when the chain does not resolve.
func NewResolver(scope Scope) *Resolver {
	if scope == nil {
		panic("scope can't be nil")
	}
	return &Resolver{scope: scope}
}

// Required creates a Resolver that fails with errs.ErrNoLocalDatacenter when the chain does not
// resolve to a datacenter.
func Required(scope Scope) *Resolver {
	r := NewResolver(scope)
	r.required = true
	return r
}

// Scope returns the head of the scope chain.
func (r *Resolver) Scope() Scope {
	return r.scope
}

// DiscoverLocalDC returns the local datacenter, or an empty string if there is none.
func (r *Resolver) DiscoverLocalDC(nodes map[string]metadata.Node) (string, error) {
	dc := ResolveLocalDatacenter(r.scope, nodes)
	if dc == "" && r.required {
		return "", fmt.Errorf("scope %s: %w", r.scope, errs.ErrNoLocalDatacenter)
	}
	return dc, nil
}

func (r *Resolver) String() string {
	s := "Resolver("
	if r.required {
		s = "Required("
	}
	for scope := r.scope; scope != nil; scope = scope.Fallback() {
		if scope != r.scope {
			s += " -> "
		}
		s += scope.String()
	}
	return s + ")"
}
