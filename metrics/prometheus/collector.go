// Package prometheus exposes engine counters as a Prometheus collector.
// The engine keeps plain atomics internally; this bridge turns each
// snapshot entry into a const counter at scrape time, so registering it
// costs the engine nothing between scrapes.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector adapts a snapshot function, typically Engine.MetricsSnapshot,
// to the prometheus.Collector interface.
type Collector struct {
	namespace string
	snapshot  func() map[string]uint64
}

// NewCollector returns a collector publishing every snapshot entry as
// <namespace>_<name>_total.
func NewCollector(namespace string, snapshot func() map[string]uint64) *Collector {
	return &Collector{namespace: namespace, snapshot: snapshot}
}

// Describe implements prometheus.Collector. The metric set depends on
// the snapshot, so descriptions are derived from a live collect.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for name, value := range c.snapshot() {
		desc := prometheus.NewDesc(
			prometheus.BuildFQName(c.namespace, "", name+"_total"),
			"Engine counter "+name+".",
			nil, nil,
		)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(value))
	}
}
