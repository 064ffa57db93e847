// Package metrics exposes load balancing policy activity as Prometheus metrics.
//
// A nil *Collector is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/scylladb/dc-aware-lbp-golang/metadata"
)

// Node events counted by Collector.NodeEvent.
const (
	EventAdded   = "added"
	EventUp      = "up"
	EventDown    = "down"
	EventRemoved = "removed"
)

const subsystem = "lbp"

// Collector holds the policy metrics.
type Collector struct {
	distanceReports *prometheus.CounterVec
	liveNodes       *prometheus.GaugeVec
	nodeEvents      *prometheus.CounterVec
	queryPlans      *prometheus.CounterVec
}

// NewCollector creates the policy metrics under the given namespace and registers them with reg.
// A nil reg leaves the metrics unregistered.
func NewCollector(namespace string, reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		distanceReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, subsystem, "distance_reports_total"),
			Help: "Node distances reported to the connection pool manager",
		}, []string{"distance"}),
		liveNodes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: prometheus.BuildFQName(namespace, subsystem, "live_nodes"),
			Help: "Nodes currently considered live, by datacenter",
		}, []string{"datacenter"}),
		nodeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, subsystem, "node_events_total"),
			Help: "Topology events handled by the policy",
		}, []string{"event"}),
		queryPlans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, subsystem, "query_plans_total"),
			Help: "Query plans built, by result",
		}, []string{"result"}),
	}
	if reg != nil {
		for _, m := range c.collectors() {
			if err := reg.Register(m); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{c.distanceReports, c.liveNodes, c.nodeEvents, c.queryPlans}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.collectors() {
		m.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, m := range c.collectors() {
		m.Collect(ch)
	}
}

var _ prometheus.Collector = &Collector{}

// DistanceReported counts a distance verdict sent to the pool manager.
func (c *Collector) DistanceReported(d metadata.Distance) {
	if c == nil {
		return
	}
	c.distanceReports.WithLabelValues(d.String()).Inc()
}

// LiveNodeAdded accounts a node entering the live set.
func (c *Collector) LiveNodeAdded(dc string) {
	if c == nil {
		return
	}
	c.liveNodes.WithLabelValues(dc).Inc()
}

// LiveNodeRemoved accounts a node leaving the live set.
func (c *Collector) LiveNodeRemoved(dc string) {
	if c == nil {
		return
	}
	c.liveNodes.WithLabelValues(dc).Dec()
}

// NodeEvent counts a topology event.
func (c *Collector) NodeEvent(event string) {
	if c == nil {
		return
	}
	c.nodeEvents.WithLabelValues(event).Inc()
}

// QueryPlanBuilt counts a query plan by whether it had any candidate.
func (c *Collector) QueryPlanBuilt(candidates int) {
	if c == nil {
		return
	}
	result := "non_empty"
	if candidates == 0 {
		result = "empty"
	}
	c.queryPlans.WithLabelValues(result).Inc()
}
