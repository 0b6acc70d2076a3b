// Package metrics exposes hotswap container counters as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"hotswap"
)

// Source reports container counters. Every *hotswap.Value satisfies it.
type Source interface {
	Stats() hotswap.Stats
}

// Collector implements prometheus.Collector over one container. Metrics are
// emitted as const metrics straight from Stats, so a Collector adds no
// overhead to the container's hot paths. The container label distinguishes
// multiple registered containers.
type Collector struct {
	src Source

	loads    *prometheus.Desc
	stores   *prometheus.Desc
	swaps    *prometheus.Desc
	retries  *prometheus.Desc
	recycled *prometheus.Desc
	live     *prometheus.Desc
}

// NewCollector returns a Collector for src, labeled container=name.
func NewCollector(name string, src Source) *Collector {
	labels := prometheus.Labels{"container": name}
	return &Collector{
		src: src,
		loads: prometheus.NewDesc(
			"hotswap_loads_total", "Completed Load calls.", nil, labels),
		stores: prometheus.NewDesc(
			"hotswap_stores_total", "Completed Store calls.", nil, labels),
		swaps: prometheus.NewDesc(
			"hotswap_swaps_total", "Completed Swap calls.", nil, labels),
		retries: prometheus.NewDesc(
			"hotswap_load_retries_total", "Spin iterations inside borrow races.", nil, labels),
		recycled: prometheus.NewDesc(
			"hotswap_payloads_recycled_total", "Payload nodes reclaimed and pooled.", nil, labels),
		live: prometheus.NewDesc(
			"hotswap_live_payloads", "Payloads kept alive by the slot or snapshot handles.", nil, labels),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.loads
	ch <- c.stores
	ch <- c.swaps
	ch <- c.retries
	ch <- c.recycled
	ch <- c.live
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Stats()
	ch <- prometheus.MustNewConstMetric(c.loads, prometheus.CounterValue, float64(st.Loads))
	ch <- prometheus.MustNewConstMetric(c.stores, prometheus.CounterValue, float64(st.Stores))
	ch <- prometheus.MustNewConstMetric(c.swaps, prometheus.CounterValue, float64(st.Swaps))
	ch <- prometheus.MustNewConstMetric(c.retries, prometheus.CounterValue, float64(st.Retries))
	ch <- prometheus.MustNewConstMetric(c.recycled, prometheus.CounterValue, float64(st.Recycled))
	ch <- prometheus.MustNewConstMetric(c.live, prometheus.GaugeValue, float64(st.LivePayloads))
}
