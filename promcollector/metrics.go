package promcollector

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/kpool"
)

// MetricsCollector is a kpool.MetricsCollector backed by Prometheus vectors.
type MetricsCollector struct {
	PageAllocs  *prometheus.CounterVec
	PageFrees   *prometheus.CounterVec
	GetFailures *prometheus.CounterVec
	Corruptions *prometheus.CounterVec
	WaitLatency *prometheus.HistogramVec
}

var _ kpool.MetricsCollector = (*MetricsCollector)(nil)

// NewMetricsCollector creates the vectors and registers them with r.
// A nil r means prometheus.DefaultRegisterer.
func NewMetricsCollector(r prometheus.Registerer) *MetricsCollector {
	if r == nil {
		r = prometheus.DefaultRegisterer
	}

	m := &MetricsCollector{
		PageAllocs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "page_alloc_attempts_total",
				Help:      "Page allocation attempts by result.",
			},
			[]string{"pool", "result"},
		),
		PageFrees: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_released_total",
				Help:      "Pages released to the page source.",
			},
			[]string{"pool"},
		),
		GetFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "get_rejections_total",
				Help:      "Failed gets by reason.",
			},
			[]string{"pool", "reason"},
		),
		Corruptions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "corruptions_total",
				Help:      "Integrity failures detected before a pool aborted.",
			},
			[]string{"pool", "kind"},
		),
		WaitLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "wait_duration_seconds",
				Help:      "Time blocking gets spent queued.",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"pool", "result"},
		),
	}

	r.MustRegister(m.PageAllocs, m.PageFrees, m.GetFailures, m.Corruptions, m.WaitLatency)
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordPageAlloc implements kpool.MetricsCollector.
func (m *MetricsCollector) RecordPageAlloc(pool string, err error) {
	m.PageAllocs.WithLabelValues(pool, result(err)).Inc()
}

// RecordPageFree implements kpool.MetricsCollector.
func (m *MetricsCollector) RecordPageFree(pool string, n int) {
	m.PageFrees.WithLabelValues(pool).Add(float64(n))
}

// RecordGetFailure implements kpool.MetricsCollector.
func (m *MetricsCollector) RecordGetFailure(pool string, err error) {
	reason := "exhausted"
	if errors.Is(err, kpool.ErrLimitExceeded) {
		reason = "hard_limit"
	}
	m.GetFailures.WithLabelValues(pool, reason).Inc()
}

// RecordWait implements kpool.MetricsCollector.
func (m *MetricsCollector) RecordWait(pool string, d time.Duration, err error) {
	m.WaitLatency.WithLabelValues(pool, result(err)).Observe(d.Seconds())
}

// RecordCorruption implements kpool.MetricsCollector.
func (m *MetricsCollector) RecordCorruption(pool string, kind kpool.CorruptionKind) {
	m.Corruptions.WithLabelValues(pool, kind.String()).Inc()
}
