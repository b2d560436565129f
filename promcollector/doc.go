// Package promcollector exports kpool statistics to Prometheus.
//
// Collector is a pull-model prometheus.Collector that snapshots a
// kpool.Registry on every scrape:
//
//	prometheus.MustRegister(promcollector.NewCollector(kpool.DefaultRegistry))
//
// MetricsCollector plugs into kpool.WithMetrics and records slow-path events
// (page traffic, failed gets, wait latency, corruption) as they happen.
package promcollector
