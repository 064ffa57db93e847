package nodeset

import (
	"slices"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/scylladb/dc-aware-lbp-golang/metadata"
)

// MultiDc keeps one partition per datacenter, local and remote alike.
//
// It stores whatever is added: capping the number of remote nodes per
// datacenter is up to the policy deciding node distances.
type MultiDc struct {
	dcs *xsync.MapOf[string, *partition]
}

// NewMultiDc creates an empty MultiDc set.
func NewMultiDc() *MultiDc {
	return &MultiDc{dcs: xsync.NewMapOf[string, *partition]()}
}

// Add implements NodeSet.
func (s *MultiDc) Add(node metadata.Node) bool {
	p, _ := s.dcs.LoadOrCompute(node.Datacenter(), newPartition)
	return p.add(node)
}

// Remove implements NodeSet.
func (s *MultiDc) Remove(node metadata.Node) bool {
	p, ok := s.dcs.Load(node.Datacenter())
	if !ok {
		return false
	}
	return p.remove(node)
}

// DC implements NodeSet.
func (s *MultiDc) DC(dc string) []metadata.Node {
	p, ok := s.dcs.Load(dc)
	if !ok {
		return []metadata.Node{}
	}
	return p.snapshot()
}

// Datacenters implements NodeSet.
func (s *MultiDc) Datacenters() []string {
	var dcs []string
	s.dcs.Range(func(dc string, p *partition) bool {
		if p.size() > 0 {
			dcs = append(dcs, dc)
		}
		return true
	})
	slices.Sort(dcs)
	return dcs
}

// Len implements NodeSet.
func (s *MultiDc) Len() int {
	total := 0
	s.dcs.Range(func(_ string, p *partition) bool {
		total += p.size()
		return true
	})
	return total
}

var _ NodeSet = &MultiDc{}
