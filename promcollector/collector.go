package promcollector

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/kpool"
)

const namespace = "kpool"

var poolLabels = []string{"pool", "serial"}

const (
	descItems = iota
	descOutstanding
	descCached
	descPages
	descIdlePages
	descHighWater
	descHardLimit
	descWaiters
	descItemSize
	descPageSize
	descGets
	descPuts
	descFailures
	descLimitFailures
	descPageAllocs
	descPageFrees
	descCount
)

var descriptors = [descCount]*prometheus.Desc{
	descItems: prometheus.NewDesc(
		namespace+"_items",
		"Items held in pages owned by the pool.",
		poolLabels, nil,
	),
	descOutstanding: prometheus.NewDesc(
		namespace+"_outstanding_items",
		"Items handed out and not yet returned.",
		poolLabels, nil,
	),
	descCached: prometheus.NewDesc(
		namespace+"_cached_items",
		"Items parked in the per-CPU cache.",
		poolLabels, nil,
	),
	descPages: prometheus.NewDesc(
		namespace+"_pages",
		"Pages owned by the pool.",
		poolLabels, nil,
	),
	descIdlePages: prometheus.NewDesc(
		namespace+"_idle_pages",
		"Pages with no outstanding items.",
		poolLabels, nil,
	),
	descHighWater: prometheus.NewDesc(
		namespace+"_pages_high_water",
		"Largest number of pages ever owned at once.",
		poolLabels, nil,
	),
	descHardLimit: prometheus.NewDesc(
		namespace+"_hard_limit_items",
		"Maximum number of outstanding items.",
		poolLabels, nil,
	),
	descWaiters: prometheus.NewDesc(
		namespace+"_waiters",
		"Queued requests waiting for an item.",
		poolLabels, nil,
	),
	descItemSize: prometheus.NewDesc(
		namespace+"_item_size_bytes",
		"Effective item size after rounding.",
		poolLabels, nil,
	),
	descPageSize: prometheus.NewDesc(
		namespace+"_page_size_bytes",
		"Size of one pool page.",
		poolLabels, nil,
	),
	descGets: prometheus.NewDesc(
		namespace+"_gets_total",
		"Successful item allocations from pages.",
		poolLabels, nil,
	),
	descPuts: prometheus.NewDesc(
		namespace+"_puts_total",
		"Items returned to pages.",
		poolLabels, nil,
	),
	descFailures: prometheus.NewDesc(
		namespace+"_get_failures_total",
		"Failed item allocations.",
		poolLabels, nil,
	),
	descLimitFailures: prometheus.NewDesc(
		namespace+"_hard_limit_failures_total",
		"Allocations rejected by the hard limit.",
		poolLabels, nil,
	),
	descPageAllocs: prometheus.NewDesc(
		namespace+"_page_allocs_total",
		"Pages obtained from the page source.",
		poolLabels, nil,
	),
	descPageFrees: prometheus.NewDesc(
		namespace+"_page_frees_total",
		"Pages returned to the page source.",
		poolLabels, nil,
	),
}

// Collector exports the stats of every pool in a registry on each scrape.
type Collector struct {
	reg *kpool.Registry
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a Collector over reg. A nil reg means
// kpool.DefaultRegistry.
func NewCollector(reg *kpool.Registry) *Collector {
	if reg == nil {
		reg = kpool.DefaultRegistry
	}
	return &Collector{reg: reg}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range descriptors {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, st := range c.reg.Snapshot() {
		labels := []string{st.Name, strconv.FormatUint(uint64(st.Serial), 10)}

		gauge := func(idx int, v float64) {
			ch <- prometheus.MustNewConstMetric(descriptors[idx], prometheus.GaugeValue, v, labels...)
		}
		counter := func(idx int, v uint64) {
			ch <- prometheus.MustNewConstMetric(descriptors[idx], prometheus.CounterValue, float64(v), labels...)
		}

		gauge(descItems, float64(st.NItems))
		gauge(descOutstanding, float64(st.NOut))
		gauge(descCached, float64(st.NCached))
		gauge(descPages, float64(st.NPages))
		gauge(descIdlePages, float64(st.NIdle))
		gauge(descHighWater, float64(st.HiWat))
		gauge(descHardLimit, float64(st.HardLimit))
		gauge(descWaiters, float64(st.NWaiters))
		gauge(descItemSize, float64(st.Size))
		gauge(descPageSize, float64(st.PageSize))
		counter(descGets, st.NGet)
		counter(descPuts, st.NPut)
		counter(descFailures, st.NFail)
		counter(descLimitFailures, st.NLimitFail)
		counter(descPageAllocs, st.NPageAlloc)
		counter(descPageFrees, st.NPageFree)
	}
}
