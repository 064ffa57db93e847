package sim

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/multierr"

	"github.com/scylladb/dc-aware-lbp-golang/errs"
	"github.com/scylladb/dc-aware-lbp-golang/nodeshealth"
	"github.com/scylladb/dc-aware-lbp-golang/logx"
	"github.com/scylladb/dc-aware-lbp-golang/metadata"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func distances(s Step) map[string]metadata.Distance {
	out := make(map[string]metadata.Distance, len(s.Distances))
	for _, d := range s.Distances {
		out[d.Node] = d.Distance
	}
	return out
}

func TestRunFailoverScenario(t *testing.T) {
	t.Parallel()

	sc, err := Load("testdata/failover.toml")
	if err != nil {
		t.Fatal(err)
	}
	report, err := Run(context.Background(), sc, logx.Noop{})
	if err != nil {
		t.Fatal(err)
	}
	if report.LocalDatacenter != "dc1" {
		t.Fatalf("local datacenter = %q, want dc1", report.LocalDatacenter)
	}
	if len(report.Steps) != len(sc.Events)+1 {
		t.Fatalf("expected %d steps, got %d", len(sc.Events)+1, len(report.Steps))
	}

	const (
		local   = metadata.DistanceLocal
		remote  = metadata.DistanceRemote
		ignored = metadata.DistanceIgnored
	)
	wantDistances := []map[string]metadata.Distance{
		{"a": local, "b": remote, "d": remote},
		{"a": local, "b": remote, "c": ignored, "d": remote},
		{"a": local, "b": remote, "c": ignored, "d": remote},
		{"a": local, "b": remote, "c": remote, "d": remote},
		{"a": local, "b": ignored, "c": remote, "d": remote},
		{"a": local, "b": ignored, "c": remote, "d": remote, "e": local},
		{"a": local, "b": ignored, "c": remote, "d": remote, "e": local},
		{"a": local, "b": ignored, "c": remote, "d": remote, "e": local},
		{"b": ignored, "c": remote, "d": remote, "e": local},
	}
	wantLive := [][]DatacenterNodes{
		{{"dc1", []string{"a"}}, {"dc2", []string{"b"}}, {"dc3", []string{"d"}}},
		{{"dc1", []string{"a"}}, {"dc2", []string{"b"}}, {"dc3", []string{"d"}}},
		{{"dc1", []string{"a"}}, {"dc3", []string{"d"}}},
		{{"dc1", []string{"a"}}, {"dc2", []string{"c"}}, {"dc3", []string{"d"}}},
		{{"dc1", []string{"a"}}, {"dc2", []string{"c"}}, {"dc3", []string{"d"}}},
		{{"dc1", []string{"a"}}, {"dc2", []string{"c"}}, {"dc3", []string{"d"}}},
		{{"dc1", []string{"a", "e"}}, {"dc2", []string{"c"}}, {"dc3", []string{"d"}}},
		{{"dc1", []string{"a", "e"}}, {"dc2", []string{"c"}}, {"dc3", []string{"d"}}},
		{{"dc1", []string{"e"}}, {"dc2", []string{"c"}}, {"dc3", []string{"d"}}},
	}
	for i, step := range report.Steps {
		if diff := cmp.Diff(wantDistances[i], distances(step)); diff != "" {
			t.Fatalf("step %d (%s) distances mismatch (-want +got):\n%s", i, step.Event, diff)
		}
		if diff := cmp.Diff(wantLive[i], step.Live); diff != "" {
			t.Fatalf("step %d (%s) live nodes mismatch (-want +got):\n%s", i, step.Event, diff)
		}
		if len(step.Plan) != 1 {
			t.Fatalf("step %d (%s): expected a single candidate, got %v", i, step.Event, step.Plan)
		}
		if !slices.Contains(wantLive[i][0].Nodes, step.Plan[0]) {
			t.Fatalf("step %d (%s): planned %s, not a live local node", i, step.Event, step.Plan[0])
		}
	}
	if got := report.Steps[len(report.Steps)-1].Plan; got[0] != "e" {
		t.Fatalf("expected e to be the last candidate left, got %v", got)
	}
}

func TestRunDatacenterAgnostic(t *testing.T) {
	t.Parallel()

	path := writeScenario(t, `
plan_builder = "round_robin"

[[nodes]]
id = "a"
dc = "dc1"

[[nodes]]
id = "b"
dc = "dc2"

[[nodes]]
id = "c"
state = "down"

[[events]]
kind = "plan"

[[events]]
kind = "up"
node = "c"
`)
	sc, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	report, err := Run(context.Background(), sc, logx.Noop{})
	if err != nil {
		t.Fatal(err)
	}
	if report.LocalDatacenter != "" {
		t.Fatalf("expected no local datacenter, got %q", report.LocalDatacenter)
	}
	for _, d := range report.Steps[0].Distances {
		if d.Distance != metadata.DistanceLocal {
			t.Fatalf("node %s: distance %s, want LOCAL", d.Node, d.Distance)
		}
	}
	first, second := report.Steps[0].Plan, report.Steps[1].Plan
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("expected plans over a and b, got %v and %v", first, second)
	}
	if first[0] == second[0] {
		t.Fatalf("round robin must rotate the first candidate, got %v then %v", first, second)
	}
	if got := report.Steps[2].Plan; len(got) != 3 {
		t.Fatalf("c must be planned once UP, got %v", got)
	}
	want := []DatacenterNodes{{"", []string{"c"}}, {"dc1", []string{"a"}}, {"dc2", []string{"b"}}}
	if diff := cmp.Diff(want, report.Steps[2].Live); diff != "" {
		t.Fatalf("live nodes mismatch (-want +got):\n%s", diff)
	}
}

func TestRunScopeAndIgnoredDatacenters(t *testing.T) {
	t.Parallel()

	sc := &Scenario{
		Scope:               []string{"dc:dc9", "inferred", "cluster"},
		MaxNodesPerRemoteDC: 2,
		IgnoredDatacenters:  []string{"dc3"},
		Nodes: []NodeSpec{
			{ID: "a", Datacenter: "dc2", State: "up"},
			{ID: "b", Datacenter: "dc2", State: "up"},
		},
	}
	report, err := Run(context.Background(), sc, logx.Noop{})
	if err != nil {
		t.Fatal(err)
	}
	if report.LocalDatacenter != "dc2" {
		t.Fatalf("expected dc9 to be skipped and dc2 inferred, got %q", report.LocalDatacenter)
	}

	sc.Nodes = append(sc.Nodes, NodeSpec{ID: "x", Datacenter: "dc3", State: "up"}, NodeSpec{ID: "y", Datacenter: "dc4", State: "up"})
	report, err = Run(context.Background(), sc, logx.Noop{})
	if err != nil {
		t.Fatal(err)
	}
	if report.LocalDatacenter != "" {
		t.Fatalf("expected the chain to fall through to cluster, got %q", report.LocalDatacenter)
	}
	got := distances(report.Steps[0])
	if got["x"] != metadata.DistanceIgnored || got["y"] != metadata.DistanceLocal {
		t.Fatalf("unexpected distances: %v", got)
	}
}

func TestRunRequiredLocalDatacenter(t *testing.T) {
	t.Parallel()

	sc := &Scenario{
		RequireLocalDC: true,
		Nodes: []NodeSpec{
			{ID: "a", Datacenter: "dc1"},
			{ID: "b", Datacenter: "dc2"},
		},
	}
	if _, err := Run(context.Background(), sc, logx.Noop{}); !errors.Is(err, errs.ErrNoLocalDatacenter) {
		t.Fatalf("got %v, want ErrNoLocalDatacenter", err)
	}
	sc.Nodes = sc.Nodes[:1]
	if _, err := Run(context.Background(), sc, logx.Noop{}); err != nil {
		t.Fatalf("a single datacenter must be inferred: %v", err)
	}
}

func TestRunReachabilityEvents(t *testing.T) {
	t.Parallel()

	path := writeScenario(t, `
local_dc = "dc1"
max_nodes_per_remote_dc = 1

[[nodes]]
id = "a"
dc = "dc1"
state = "up"

[[nodes]]
id = "b"
dc = "dc1"
state = "up"

[[nodes]]
id = "c"
dc = "dc2"
state = "up"

[[events]]
kind = "error"
node = "b"
error = "timeout"

[[events]]
kind = "error"
node = "b"
error = "refused"

[[events]]
kind = "probe"

[[events]]
kind = "probe"
reachable = ["b"]

[[events]]
kind = "error"
node = "c"
error = "tls"

[[events]]
kind = "down"
node = "a"

[[events]]
kind = "up"
node = "a"
`)
	sc, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	report, err := Run(context.Background(), sc, logx.Noop{})
	if err != nil {
		t.Fatal(err)
	}

	liveIn := func(s Step, dc string) []string {
		for _, l := range s.Live {
			if l.Datacenter == dc {
				ids := slices.Clone(l.Nodes)
				slices.Sort(ids)
				return ids
			}
		}
		return nil
	}
	cases := []struct {
		event       string
		dc1         []string
		dc2         []string
		unreachable []string
	}{
		{"init", []string{"a", "b"}, []string{"c"}, nil},
		{"error b (timeout)", []string{"a", "b"}, []string{"c"}, nil},
		{"error b (refused)", []string{"a"}, []string{"c"}, []string{"b"}},
		{"probe []", []string{"a"}, []string{"c"}, []string{"b"}},
		{"probe [b]", []string{"a", "b"}, []string{"c"}, nil},
		{"error c (tls)", []string{"a", "b"}, nil, []string{"c"}},
		{"down a", []string{"b"}, nil, []string{"a", "c"}},
		{"up a", []string{"a", "b"}, nil, []string{"c"}},
	}
	if len(report.Steps) != len(cases) {
		t.Fatalf("expected %d steps, got %d", len(cases), len(report.Steps))
	}
	for i, tc := range cases {
		step := report.Steps[i]
		if step.Event != tc.event {
			t.Fatalf("step %d: event %q, want %q", i, step.Event, tc.event)
		}
		if diff := cmp.Diff(tc.dc1, liveIn(step, "dc1")); diff != "" {
			t.Fatalf("step %d (%s) dc1 mismatch (-want +got):\n%s", i, step.Event, diff)
		}
		if diff := cmp.Diff(tc.dc2, liveIn(step, "dc2")); diff != "" {
			t.Fatalf("step %d (%s) dc2 mismatch (-want +got):\n%s", i, step.Event, diff)
		}
		if diff := cmp.Diff(tc.unreachable, step.Unreachable); diff != "" {
			t.Fatalf("step %d (%s) unreachable mismatch (-want +got):\n%s", i, step.Event, diff)
		}
	}

	states := make(map[string]metadata.NodeState)
	for _, d := range report.Steps[2].Distances {
		states[d.Node] = d.State
	}
	if states["b"] != metadata.NodeStateDown {
		t.Fatalf("b state = %s after crossing the error cut-off, want DOWN", states["b"])
	}
}

func TestRunErrorOnNonMember(t *testing.T) {
	t.Parallel()

	sc := &Scenario{
		Nodes: []NodeSpec{
			{ID: "a", Datacenter: "dc1"},
			{ID: "b", Datacenter: "dc1", Joins: true},
		},
		Events: []EventSpec{{Kind: EventError, Node: "b", Error: ErrorReset}},
	}
	if _, err := Run(context.Background(), sc, nil); !errors.Is(err, errs.ErrUnknownNode) {
		t.Fatalf("got %v, want ErrUnknownNode", err)
	}
}

func TestConnectionErrorClasses(t *testing.T) {
	t.Parallel()

	want := map[string]uint64{
		ErrorRefused: nodeshealth.DefaultErrorWeights.NetConnectionRefused,
		ErrorReset:   nodeshealth.DefaultErrorWeights.NetConnectionReset,
		ErrorTimeout: nodeshealth.DefaultErrorWeights.Timeout,
		ErrorTLS:     nodeshealth.DefaultErrorWeights.TLSCritical,
		ErrorDNS:     nodeshealth.DefaultErrorWeights.NotFound,
		ErrorOther:   nodeshealth.DefaultErrorWeights.Default,
	}
	for class, err := range connectionErrors {
		if got := nodeshealth.DefaultErrorWeightFunc(err); got != want[class] {
			t.Fatalf("%s: weight %d, want %d", class, got, want[class])
		}
	}
}

func TestScenarioValidate(t *testing.T) {
	t.Parallel()

	sc := &Scenario{
		LocalDatacenter:     "dc1",
		Scope:               []string{"cluster", "inferred"},
		MaxNodesPerRemoteDC: -1,
		PlanBuilder:         "random",
		Nodes: []NodeSpec{
			{ID: "a", State: "sleeping"},
			{ID: "a"},
			{},
		},
		Events: []EventSpec{
			{Kind: "up", Node: "zz"},
			{Kind: "reboot", Node: "a"},
			{Kind: EventPlan},
			{Kind: EventError, Node: "a", Error: "melted"},
			{Kind: EventProbe, Reachable: []string{"a", "ghost"}},
		},
	}
	problems := multierr.Errors(sc.Validate())
	if len(problems) != 11 {
		t.Fatalf("expected 11 problems, got %d: %v", len(problems), problems)
	}
	if _, err := Run(context.Background(), sc, logx.Noop{}); err == nil {
		t.Fatal("Run must reject an invalid scenario")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	path := writeScenario(t, `
local_dc = "dc1"
max_remote = 3
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "max_remote") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
	if _, err := Load(writeScenario(t, "local_dc = ")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestReportWriteText(t *testing.T) {
	t.Parallel()

	report := &Report{
		Scenario: "demo",
		Steps: []Step{{
			Event: "init",
			Distances: []NodeDistance{
				{Node: "a", Datacenter: "dc1", Distance: metadata.DistanceLocal},
				{Node: "b", Distance: metadata.DistanceLocal},
			},
			Live: []DatacenterNodes{{"", []string{"b"}}, {"dc1", []string{"a"}}},
			Plan: []string{"a"},
		}},
	}
	var b strings.Builder
	if err := report.WriteText(&b); err != nil {
		t.Fatal(err)
	}
	want := `scenario: demo
local datacenter: <none>
[0] init
    distances: a/dc1=LOCAL b/<none>=LOCAL
    live: <none>=[b] dc1=[a]
    plan: [a]
`
	if diff := cmp.Diff(want, b.String()); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}
}
