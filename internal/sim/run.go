package sim

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/scylladb/dc-aware-lbp-golang/lbp"
	"github.com/scylladb/dc-aware-lbp-golang/logx"
	"github.com/scylladb/dc-aware-lbp-golang/metadata"
	"github.com/scylladb/dc-aware-lbp-golang/nodeshealth"
)

// Report is the policy view after initialization and after every event.
type Report struct {
	Scenario        string
	LocalDatacenter string
	Steps           []Step
}

// Step is the policy view after one event.
type Step struct {
	Event     string
	Distances []NodeDistance
	Live      []DatacenterNodes
	Plan      []string

	// Unreachable lists the nodes the reachability tracker considers DOWN.
	Unreachable []string
}

// NodeDistance is the distance last reported for a cluster member.
type NodeDistance struct {
	Node       string
	Datacenter string
	State      metadata.NodeState
	Distance   metadata.Distance
}

// DatacenterNodes lists the live nodes of a datacenter, in insertion order.
type DatacenterNodes struct {
	Datacenter string
	Nodes      []string
}

// Run initializes a policy with the scenario topology and replays its events. Connection
// errors and probes go through a reachability tracker notifying the policy, and so do the
// up and down events of tracked nodes. opts are applied after the scenario configuration.
func Run(ctx context.Context, sc *Scenario, logger logx.Logger, opts ...lbp.Option) (*Report, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logx.Noop{}
	}
	scenarioOpts, err := sc.Options()
	if err != nil {
		return nil, err
	}
	scenarioOpts = append(scenarioOpts, lbp.WithLogger(logger))
	policy, err := lbp.NewPolicy(append(scenarioOpts, opts...)...)
	if err != nil {
		return nil, err
	}
	defer policy.Close()

	var reachable map[string]bool
	probe := func(_ context.Context, n metadata.Node, _ nodeshealth.NodeHealthStatus) bool {
		return reachable[n.HostID()]
	}
	tracker, err := nodeshealth.NewTracker(nodeshealth.DefaultConfig(), policy, probe, logger)
	if err != nil {
		return nil, err
	}

	declared := make(map[string]*metadata.BasicNode, len(sc.Nodes))
	members := make(map[string]metadata.Node, len(sc.Nodes))
	for _, spec := range sc.Nodes {
		state, _ := metadata.ParseNodeState(spec.State)
		n := metadata.NewBasicNode(spec.ID, spec.Datacenter, state)
		declared[spec.ID] = n
		if !spec.Joins {
			members[spec.ID] = n
		}
	}

	if err := policy.Init(members, nil); err != nil {
		return nil, fmt.Errorf("scenario %q: %w", sc.Name, err)
	}
	for _, n := range members {
		tracker.Track(n)
	}
	report := &Report{
		Scenario:        sc.Name,
		LocalDatacenter: policy.LocalDatacenter(),
	}
	report.Steps = append(report.Steps, observe("init", policy, tracker, members))

	for i, e := range sc.Events {
		n := declared[e.Node]
		switch e.Kind {
		case EventAdd:
			members[n.HostID()] = n
			tracker.Track(n)
			policy.OnAdd(n)
		case EventUp:
			if status, tracked := tracker.NodeStatus(n.HostID()); tracked && status.Down() {
				_ = tracker.MarkUp(n)
			} else {
				n.SetState(metadata.NodeStateUp)
				policy.OnUp(n)
			}
		case EventDown:
			if tracker.MarkDown(n) != nil {
				n.SetState(metadata.NodeStateDown)
				policy.OnDown(n)
			}
		case EventRemove:
			delete(members, n.HostID())
			tracker.Untrack(n)
			policy.OnRemove(n)
		case EventError:
			if err := tracker.ReportNodeError(n, connectionErrors[e.errorClass()]); err != nil {
				return nil, fmt.Errorf("events[%d] (%s): %w", i, e, err)
			}
		case EventProbe:
			reachable = make(map[string]bool, len(e.Reachable))
			for _, id := range e.Reachable {
				reachable[id] = true
			}
			tracker.ProbeDownNodes(ctx)
		}
		report.Steps = append(report.Steps, observe(e.String(), policy, tracker, members))
	}
	return report, nil
}

func observe(event string, policy *lbp.Policy, tracker *nodeshealth.Tracker, members map[string]metadata.Node) Step {
	step := Step{Event: event}
	for _, n := range tracker.DownNodes() {
		step.Unreachable = append(step.Unreachable, n.HostID())
	}

	for _, n := range members {
		step.Distances = append(step.Distances, NodeDistance{
			Node:       n.HostID(),
			Datacenter: n.Datacenter(),
			State:      n.State(),
			Distance:   n.Distance(),
		})
	}
	slices.SortFunc(step.Distances, func(a, b NodeDistance) int {
		return strings.Compare(a.Node, b.Node)
	})

	var live []metadata.Node
	if set := policy.LiveNodes(); set != nil {
		if policy.LocalDatacenter() == "" {
			live = set.DC("")
		} else {
			for _, dc := range set.Datacenters() {
				live = append(live, set.DC(dc)...)
			}
		}
	}
	for _, n := range live {
		i := slices.IndexFunc(step.Live, func(d DatacenterNodes) bool { return d.Datacenter == n.Datacenter() })
		if i < 0 {
			step.Live = append(step.Live, DatacenterNodes{Datacenter: n.Datacenter()})
			i = len(step.Live) - 1
		}
		step.Live[i].Nodes = append(step.Live[i].Nodes, n.HostID())
	}
	slices.SortFunc(step.Live, func(a, b DatacenterNodes) int {
		return strings.Compare(a.Datacenter, b.Datacenter)
	})

	plan := policy.NewQueryPlan(nil, nil)
	step.Plan = make([]string, 0, plan.Len())
	for n := plan.Next(); n != nil; n = plan.Next() {
		step.Plan = append(step.Plan, n.HostID())
	}
	return step
}

// WriteText renders the report in a human readable form.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder
	if r.Scenario != "" {
		fmt.Fprintf(&b, "scenario: %s\n", r.Scenario)
	}
	fmt.Fprintf(&b, "local datacenter: %s\n", orNone(r.LocalDatacenter))
	for i, s := range r.Steps {
		fmt.Fprintf(&b, "[%d] %s\n", i, s.Event)
		b.WriteString("    distances:")
		for _, d := range s.Distances {
			fmt.Fprintf(&b, " %s/%s=%s", d.Node, orNone(d.Datacenter), d.Distance)
		}
		b.WriteString("\n    live:")
		for _, l := range s.Live {
			fmt.Fprintf(&b, " %s=[%s]", orNone(l.Datacenter), strings.Join(l.Nodes, ","))
		}
		fmt.Fprintf(&b, "\n    plan: [%s]\n", strings.Join(s.Plan, ","))
		if len(s.Unreachable) > 0 {
			fmt.Fprintf(&b, "    unreachable: [%s]\n", strings.Join(s.Unreachable, ","))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func orNone(s string) string {
	if s == "" {
		return "<none>"
	}
	return s
}
