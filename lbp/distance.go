package lbp

import (
	"sync"

	"github.com/scylladb/dc-aware-lbp-golang/metadata"
)

// ComputeNodeDistance returns the distance the policy assigns to the node right now.
// It returns IGNORED when the policy is not ready.
func (p *Policy) ComputeNodeDistance(node metadata.Node) metadata.Distance {
	st := p.ready()
	if st == nil {
		return metadata.DistanceIgnored
	}
	return p.computeNodeDistance(st, node)
}

// computeNodeDistance is called when a node is added. Nodes entering the live set go
// through admit instead.
func (p *Policy) computeNodeDistance(st *policyState, node metadata.Node) metadata.Distance {
	// The evaluator is asked every time, it may change its verdict between two calls.
	if distance, ok := st.evaluator.EvaluateDistance(node, st.localDC); ok {
		return distance
	}
	return p.topologyDistance(st, node)
}

// admit assigns a distance to a node seen at initialization or coming back UP, reports it,
// and inserts the node into the live set unless it is IGNORED. For remote nodes the slots scan
// and the insertion happen under the lock of the node datacenter, so concurrent events never
// put more than MaxNodesPerRemoteDC nodes of a datacenter in the live set.
//
// At initialization the distance is always reported and DOWN nodes are not inserted. Otherwise
// the distance is reported only when it changed.
func (p *Policy) admit(st *policyState, node metadata.Node, seeding bool) (metadata.Distance, bool) {
	distance, ok := st.evaluator.EvaluateDistance(node, st.localDC)
	if !ok {
		if p.competesForRemoteSlot(st, node) {
			mu, _ := st.remoteSlots.LoadOrCompute(node.Datacenter(), newSlotLock)
			mu.Lock()
			defer mu.Unlock()
		}
		distance = p.topologyDistance(st, node)
	}

	if seeding || node.Distance() != distance {
		p.report(st, node, distance)
	}
	if distance == metadata.DistanceIgnored {
		return distance, false
	}
	if seeding && node.State() == metadata.NodeStateDown {
		return distance, false
	}
	return distance, p.addLive(st, node)
}

func newSlotLock() *sync.Mutex {
	return &sync.Mutex{}
}

func (p *Policy) competesForRemoteSlot(st *policyState, node metadata.Node) bool {
	return st.localDC != "" && node.Datacenter() != st.localDC && p.cfg.MaxNodesPerRemoteDC > 0
}

func (p *Policy) topologyDistance(st *policyState, node metadata.Node) metadata.Distance {
	if st.localDC == "" {
		return metadata.DistanceLocal
	}
	if node.Datacenter() == st.localDC {
		return metadata.DistanceLocal
	}
	// A remote node is REMOTE if it holds one of the first MaxNodesPerRemoteDC slots of its
	// datacenter, or if there is still a free slot.
	if p.cfg.MaxNodesPerRemoteDC > 0 {
		remote := st.liveNodes.DC(node.Datacenter())
		for i := 0; i < p.cfg.MaxNodesPerRemoteDC; i++ {
			if i == len(remote) || remote[i].HostID() == node.HostID() {
				return metadata.DistanceRemote
			}
		}
	}
	return metadata.DistanceIgnored
}
