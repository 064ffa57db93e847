// Package nodeset keeps the live nodes of a load balancing policy, partitioned by datacenter.
//
// All implementations are safe for concurrent use. Writers of a partition are
// serialized by a mutex and publish an immutable snapshot, readers never block.
package nodeset

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/scylladb/dc-aware-lbp-golang/metadata"
)

// NodeSet is a registry of live nodes, queryable by datacenter.
type NodeSet interface {
	// Add adds the node, returns true if it was not present yet.
	Add(node metadata.Node) bool
	// Remove removes the node, returns true if it was present.
	Remove(node metadata.Node) bool
	// DC returns the live nodes relevant to the given datacenter, in insertion order.
	// The returned slice is a copy and can be modified by the caller.
	DC(dc string) []metadata.Node
	// Datacenters returns the sorted names of the datacenters that have live nodes.
	Datacenters() []string
	// Len returns the number of live nodes.
	Len() int
}

// partition is an insertion ordered set of nodes keyed by host id.
type partition struct {
	mu    sync.Mutex
	nodes atomic.Pointer[[]metadata.Node]
}

func newPartition() *partition {
	p := &partition{}
	empty := make([]metadata.Node, 0)
	p.nodes.Store(&empty)
	return p
}

func (p *partition) add(node metadata.Node) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	current := p.load()
	if indexOf(current, node) >= 0 {
		return false
	}
	updated := make([]metadata.Node, len(current), len(current)+1)
	copy(updated, current)
	updated = append(updated, node)
	p.nodes.Store(&updated)
	return true
}

func (p *partition) remove(node metadata.Node) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	current := p.load()
	idx := indexOf(current, node)
	if idx < 0 {
		return false
	}
	updated := make([]metadata.Node, 0, len(current)-1)
	updated = append(updated, current[:idx]...)
	updated = append(updated, current[idx+1:]...)
	p.nodes.Store(&updated)
	return true
}

// load returns the current nodes, the slice must not be modified.
func (p *partition) load() []metadata.Node {
	return *p.nodes.Load()
}

func (p *partition) snapshot() []metadata.Node {
	return slices.Clone(p.load())
}

func (p *partition) size() int {
	return len(p.load())
}

func indexOf(nodes []metadata.Node, node metadata.Node) int {
	id := node.HostID()
	return slices.IndexFunc(nodes, func(n metadata.Node) bool {
		return n.HostID() == id
	})
}
