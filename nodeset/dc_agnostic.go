package nodeset

import (
	"slices"

	"github.com/scylladb/dc-aware-lbp-golang/metadata"
)

// DcAgnostic is a flat NodeSet used when no local datacenter is known.
// Every live node is returned regardless of the requested datacenter.
type DcAgnostic struct {
	nodes *partition
}

// NewDcAgnostic creates an empty DcAgnostic set.
func NewDcAgnostic() *DcAgnostic {
	return &DcAgnostic{nodes: newPartition()}
}

// Add implements NodeSet.
func (s *DcAgnostic) Add(node metadata.Node) bool {
	return s.nodes.add(node)
}

// Remove implements NodeSet.
func (s *DcAgnostic) Remove(node metadata.Node) bool {
	return s.nodes.remove(node)
}

// DC implements NodeSet, the datacenter is ignored.
func (s *DcAgnostic) DC(string) []metadata.Node {
	return s.nodes.snapshot()
}

// Datacenters implements NodeSet.
func (s *DcAgnostic) Datacenters() []string {
	var dcs []string
	for _, n := range s.nodes.load() {
		if !slices.Contains(dcs, n.Datacenter()) {
			dcs = append(dcs, n.Datacenter())
		}
	}
	slices.Sort(dcs)
	return dcs
}

// Len implements NodeSet.
func (s *DcAgnostic) Len() int {
	return s.nodes.size()
}

var _ NodeSet = &DcAgnostic{}
