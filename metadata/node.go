// Package metadata describes cluster members as seen by the load balancing policy.
//
// The policy never creates or destroys nodes: the driver owns them and hands
// them over through the Node interface. BasicNode is a ready-made,
// goroutine-safe implementation for drivers that do not carry their own node type.
package metadata

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Distance is a priority classification of a node.
type Distance int32

const (
	// DistanceLocal marks preferred nodes, they are the only candidates of query plans.
	DistanceLocal Distance = iota
	// DistanceRemote marks failover-eligible nodes from non-local datacenters.
	DistanceRemote
	// DistanceIgnored marks nodes that are never used as coordinators and get no connection pool.
	DistanceIgnored
)

func (d Distance) String() string {
	switch d {
	case DistanceLocal:
		return "LOCAL"
	case DistanceRemote:
		return "REMOTE"
	case DistanceIgnored:
		return "IGNORED"
	default:
		return fmt.Sprintf("Distance(%d)", int32(d))
	}
}

// ParseDistance parses a case-insensitive distance name.
func ParseDistance(s string) (Distance, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOCAL":
		return DistanceLocal, nil
	case "REMOTE":
		return DistanceRemote, nil
	case "IGNORED":
		return DistanceIgnored, nil
	default:
		return DistanceIgnored, fmt.Errorf("unknown distance %q, supported: LOCAL, REMOTE, IGNORED", s)
	}
}

// NodeState is the last known reachability of a node.
type NodeState int32

const (
	// NodeStateUnknown is the state of a node no connection attempt was made to yet.
	NodeStateUnknown NodeState = iota
	// NodeStateUp marks a reachable node.
	NodeStateUp
	// NodeStateDown marks an unreachable node.
	NodeStateDown
)

func (s NodeState) String() string {
	switch s {
	case NodeStateUnknown:
		return "UNKNOWN"
	case NodeStateUp:
		return "UP"
	case NodeStateDown:
		return "DOWN"
	default:
		return fmt.Sprintf("NodeState(%d)", int32(s))
	}
}

// ParseNodeState parses a case-insensitive state name.
func ParseNodeState(s string) (NodeState, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "UNKNOWN", "":
		return NodeStateUnknown, nil
	case "UP":
		return NodeStateUp, nil
	case "DOWN":
		return NodeStateDown, nil
	default:
		return NodeStateUnknown, fmt.Errorf("unknown node state %q, supported: UP, DOWN, UNKNOWN", s)
	}
}

// Node is a cluster member.
//
// Implementations must be safe for concurrent use, HostID must be stable and
// unique within the cluster.
type Node interface {
	// HostID returns the unique identity of the node.
	HostID() string
	// Datacenter returns the datacenter label of the node, empty when unknown.
	Datacenter() string
	// State returns the current reachability of the node.
	State() NodeState
	// Distance returns the distance that was last assigned to the node.
	Distance() Distance
}

// StateSetter is implemented by nodes whose reachability can be updated by the client.
type StateSetter interface {
	SetState(NodeState)
}

// DistanceSetter is implemented by nodes that record the distance assigned to them.
type DistanceSetter interface {
	SetDistance(Distance)
}

// BasicNode is a goroutine-safe Node.
type BasicNode struct {
	hostID     string
	datacenter string
	state      atomic.Int32
	distance   atomic.Int32
}

// NewBasicNode creates a node, its distance starts as DistanceIgnored until a policy assigns one.
func NewBasicNode(hostID, datacenter string, state NodeState) *BasicNode {
	n := &BasicNode{
		hostID:     hostID,
		datacenter: datacenter,
	}
	n.state.Store(int32(state))
	n.distance.Store(int32(DistanceIgnored))
	return n
}

// HostID implements Node.
func (n *BasicNode) HostID() string { return n.hostID }

// Datacenter implements Node.
func (n *BasicNode) Datacenter() string { return n.datacenter }

// State implements Node.
func (n *BasicNode) State() NodeState { return NodeState(n.state.Load()) }

// Distance implements Node.
func (n *BasicNode) Distance() Distance { return Distance(n.distance.Load()) }

// SetState implements StateSetter.
func (n *BasicNode) SetState(state NodeState) { n.state.Store(int32(state)) }

// SetDistance implements DistanceSetter.
func (n *BasicNode) SetDistance(distance Distance) { n.distance.Store(int32(distance)) }

func (n *BasicNode) String() string {
	dc := n.datacenter
	if dc == "" {
		dc = "<unknown>"
	}
	return fmt.Sprintf("Node(%s, dc=%s, %s, %s)", n.hostID, dc, n.State(), n.Distance())
}

var (
	_ Node           = &BasicNode{}
	_ StateSetter    = &BasicNode{}
	_ DistanceSetter = &BasicNode{}
)

// NodesByID indexes nodes by their host id.
func NodesByID(nodes ...Node) map[string]Node {
	out := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		out[n.HostID()] = n
	}
	return out
}
