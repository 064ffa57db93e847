// Package sim replays topology events from a scenario file against a load balancing policy.
package sim

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"

	"github.com/scylladb/dc-aware-lbp-golang/lbp"
	"github.com/scylladb/dc-aware-lbp-golang/metadata"
	"github.com/scylladb/dc-aware-lbp-golang/rt"
)

// Event kinds.
const (
	EventAdd    = "add"
	EventUp     = "up"
	EventDown   = "down"
	EventRemove = "remove"
	// EventPlan builds one more query plan without touching the topology.
	EventPlan = "plan"
	// EventError reports a connection error for the node to the reachability tracker.
	EventError = "error"
	// EventProbe probes the nodes the tracker considers DOWN, the ones listed as reachable answer.
	EventProbe = "probe"
)

// Connection error classes of error events.
const (
	ErrorRefused = "refused"
	ErrorReset   = "reset"
	ErrorTimeout = "timeout"
	ErrorTLS     = "tls"
	ErrorDNS     = "dns"
	ErrorOther   = "other"
)

// Plan builders.
const (
	PlanBuilderSingle     = "single"
	PlanBuilderRoundRobin = "round_robin"
)

// Scenario is a cluster topology and the sequence of events it goes through.
type Scenario struct {
	Name string `toml:"name"`
	// LocalDatacenter configures the local datacenter statically, exclusive with Scope.
	LocalDatacenter string `toml:"local_dc"`
	// Scope is a local datacenter discovery chain, e.g. ["dc:dc1", "inferred", "cluster"].
	Scope []string `toml:"scope"`
	// RequireLocalDC fails initialization when no local datacenter is discovered.
	RequireLocalDC      bool     `toml:"require_local_dc"`
	MaxNodesPerRemoteDC int      `toml:"max_nodes_per_remote_dc"`
	PlanBuilder         string   `toml:"plan_builder"`
	IgnoredDatacenters  []string `toml:"ignored_datacenters"`

	Nodes  []NodeSpec  `toml:"nodes"`
	Events []EventSpec `toml:"events"`
}

// NodeSpec describes a cluster node.
type NodeSpec struct {
	ID         string `toml:"id"`
	Datacenter string `toml:"dc"`
	// State is the initial state: up, down or unknown (default).
	State string `toml:"state"`
	// Joins keeps the node out of the initial topology, it enters the cluster with an add event.
	Joins bool `toml:"joins"`
}

// EventSpec is a topology event.
type EventSpec struct {
	Kind string `toml:"kind"`
	Node string `toml:"node"`
	// Error is the connection error class of an error event, other by default.
	Error string `toml:"error"`
	// Reachable lists the nodes answering a probe event.
	Reachable []string `toml:"reachable"`
}

func (e EventSpec) String() string {
	switch {
	case e.Kind == EventError:
		return fmt.Sprintf("%s %s (%s)", e.Kind, e.Node, e.errorClass())
	case e.Kind == EventProbe:
		return fmt.Sprintf("%s [%s]", e.Kind, strings.Join(e.Reachable, ","))
	case e.Node == "":
		return e.Kind
	}
	return e.Kind + " " + e.Node
}

func (e EventSpec) errorClass() string {
	if e.Error == "" {
		return ErrorOther
	}
	return e.Error
}

// connectionErrors holds an error of each class, as the connection layer would see it.
var connectionErrors = map[string]error{
	ErrorRefused: &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)},
	ErrorReset:   &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", syscall.ECONNRESET)},
	ErrorTimeout: &net.OpError{Op: "read", Net: "tcp", Err: os.ErrDeadlineExceeded},
	ErrorTLS:     &tls.CertificateVerificationError{Err: errors.New("certificate signed by unknown authority")},
	ErrorDNS:     &net.DNSError{Err: "no such host", IsNotFound: true},
	ErrorOther:   errors.New("request failed"),
}

// Load decodes a scenario file and validates it.
func Load(path string) (*Scenario, error) {
	var sc Scenario
	md, err := toml.DecodeFile(path, &sc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode scenario: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("unknown scenario keys: %s", strings.Join(keys, ", "))
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate reports every problem of the scenario at once.
func (sc *Scenario) Validate() error {
	var err error
	if sc.MaxNodesPerRemoteDC < 0 {
		err = multierr.Append(err, fmt.Errorf("max_nodes_per_remote_dc must be >= 0 (got %d)", sc.MaxNodesPerRemoteDC))
	}
	if sc.LocalDatacenter != "" && len(sc.Scope) > 0 {
		err = multierr.Append(err, errors.New("local_dc and scope are mutually exclusive"))
	}
	if _, scopeErr := parseScope(sc.Scope); scopeErr != nil {
		err = multierr.Append(err, scopeErr)
	}
	switch sc.PlanBuilder {
	case "", PlanBuilderSingle, PlanBuilderRoundRobin:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown plan_builder %q", sc.PlanBuilder))
	}

	known := make(map[string]bool, len(sc.Nodes))
	for i, n := range sc.Nodes {
		if n.ID == "" {
			err = multierr.Append(err, fmt.Errorf("nodes[%d]: id is required", i))
			continue
		}
		if known[n.ID] {
			err = multierr.Append(err, fmt.Errorf("nodes[%d]: duplicate id %q", i, n.ID))
		}
		known[n.ID] = true
		if _, stateErr := metadata.ParseNodeState(n.State); stateErr != nil {
			err = multierr.Append(err, fmt.Errorf("nodes[%d]: %w", i, stateErr))
		}
	}

	for i, e := range sc.Events {
		switch e.Kind {
		case EventPlan:
			continue
		case EventProbe:
			for _, id := range e.Reachable {
				if !known[id] {
					err = multierr.Append(err, fmt.Errorf("events[%d]: unknown reachable node %q", i, id))
				}
			}
			continue
		case EventError:
			if _, ok := connectionErrors[e.errorClass()]; !ok {
				err = multierr.Append(err, fmt.Errorf("events[%d]: unknown error class %q", i, e.Error))
			}
		case EventAdd, EventUp, EventDown, EventRemove:
		default:
			err = multierr.Append(err, fmt.Errorf("events[%d]: unknown kind %q", i, e.Kind))
			continue
		}
		if !known[e.Node] {
			err = multierr.Append(err, fmt.Errorf("events[%d]: unknown node %q", i, e.Node))
		}
	}
	return err
}

// Options returns the policy configuration described by the scenario.
func (sc *Scenario) Options() ([]lbp.Option, error) {
	var opts []lbp.Option
	if sc.MaxNodesPerRemoteDC > 0 {
		opts = append(opts, lbp.WithMaxNodesPerRemoteDC(sc.MaxNodesPerRemoteDC))
	}

	scope, err := parseScope(sc.Scope)
	if err != nil {
		return nil, err
	}
	if sc.LocalDatacenter != "" {
		scope = rt.NewDCScope(sc.LocalDatacenter, nil)
	}
	switch {
	case scope != nil && sc.RequireLocalDC:
		opts = append(opts, lbp.WithLocalDCResolver(rt.Required(scope)))
	case scope != nil:
		opts = append(opts, lbp.WithRoutingScope(scope))
	case sc.RequireLocalDC:
		opts = append(opts, lbp.WithLocalDCResolver(rt.Required(rt.NewInferredScope(nil))))
	}

	if sc.PlanBuilder == PlanBuilderRoundRobin {
		opts = append(opts, lbp.WithPlanBuilder(lbp.NewRoundRobinPlanBuilder()))
	}
	if len(sc.IgnoredDatacenters) > 0 {
		opts = append(opts, lbp.WithDistanceEvaluator(lbp.IgnoreDatacenters(sc.IgnoredDatacenters...)))
	}
	return opts, nil
}

// parseScope builds a scope chain, nil for an empty chain.
func parseScope(entries []string) (rt.Scope, error) {
	var fallback rt.Scope
	for i := len(entries) - 1; i >= 0; i-- {
		entry := strings.TrimSpace(entries[i])
		switch {
		case entry == "cluster":
			if i != len(entries)-1 {
				return nil, errors.New("scope: cluster must be the last entry")
			}
			fallback = rt.NewClusterScope()
		case entry == "inferred":
			fallback = rt.NewInferredScope(fallback)
		case strings.HasPrefix(entry, "dc:") && len(entry) > len("dc:"):
			fallback = rt.NewDCScope(strings.TrimPrefix(entry, "dc:"), fallback)
		default:
			return nil, fmt.Errorf("scope: unknown entry %q", entries[i])
		}
	}
	return fallback, nil
}
