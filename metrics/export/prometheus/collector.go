// Package prometheus exposes the auth outcome counters as a Prometheus
// collector.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	auth "github.com/kanenguyen264/library-management-sub001"
)

// Snapshotter is the part of the auth service the collector reads.
type Snapshotter interface {
	MetricsSnapshot() auth.MetricsSnapshot
}

// Collector adapts the counter snapshot to the Prometheus scrape model.
// Register it once per service instance.
type Collector struct {
	source Snapshotter
	descs  map[auth.MetricID]*prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector builds a collector over the service's counters.
func NewCollector(source Snapshotter) *Collector {
	defs := auth.MetricDefs()
	descs := make(map[auth.MetricID]*prometheus.Desc, len(defs))
	for _, def := range defs {
		descs[def.ID] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	return &Collector{source: source, descs: descs}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range c.descs {
		ch <- desc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.MetricsSnapshot()
	for id, desc := range c.descs {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(snap.Counters[id]))
	}
}
