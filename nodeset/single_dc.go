package nodeset

import "github.com/scylladb/dc-aware-lbp-golang/metadata"

// SingleDc tracks only the nodes of the local datacenter.
// It is used when remote failover is disabled.
type SingleDc struct {
	localDC string
	nodes   *partition
}

// NewSingleDc creates an empty SingleDc set for the given local datacenter.
func NewSingleDc(localDC string) *SingleDc {
	return &SingleDc{
		localDC: localDC,
		nodes:   newPartition(),
	}
}

// Add implements NodeSet. Nodes outside the local datacenter are never added.
func (s *SingleDc) Add(node metadata.Node) bool {
	if node.Datacenter() != s.localDC {
		return false
	}
	return s.nodes.add(node)
}

// Remove implements NodeSet.
func (s *SingleDc) Remove(node metadata.Node) bool {
	if node.Datacenter() != s.localDC {
		return false
	}
	return s.nodes.remove(node)
}

// DC implements NodeSet. Only the local datacenter has live nodes.
func (s *SingleDc) DC(dc string) []metadata.Node {
	if dc != s.localDC {
		return []metadata.Node{}
	}
	return s.nodes.snapshot()
}

// Datacenters implements NodeSet.
func (s *SingleDc) Datacenters() []string {
	if s.nodes.size() == 0 {
		return nil
	}
	return []string{s.localDC}
}

// Len implements NodeSet.
func (s *SingleDc) Len() int {
	return s.nodes.size()
}

var _ NodeSet = &SingleDc{}
