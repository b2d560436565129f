package kpool

import (
	"errors"
	"sync/atomic"
	"time"
)

// MetricsCollector receives slow-path pool events. The fast paths (cached
// and free-list gets and puts) are only visible through Stats.
// Implement this interface to integrate with monitoring systems like Prometheus;
// see package promcollector.
type MetricsCollector interface {
	// RecordPageAlloc is called after each attempt to obtain a page.
	RecordPageAlloc(pool string, err error)

	// RecordPageFree is called when n pages are returned to the page source.
	RecordPageFree(pool string, n int)

	// RecordGetFailure is called when Get fails with exhaustion or the hard limit.
	RecordGetFailure(pool string, err error)

	// RecordWait is called when a blocking Get that had to queue completes.
	// err is nil if an item was delivered.
	RecordWait(pool string, duration time.Duration, err error)

	// RecordCorruption is called right before a pool panics.
	RecordCorruption(pool string, kind CorruptionKind)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordPageAlloc(string, error)           {}
func (NoopMetricsCollector) RecordPageFree(string, int)              {}
func (NoopMetricsCollector) RecordGetFailure(string, error)          {}
func (NoopMetricsCollector) RecordWait(string, time.Duration, error) {}
func (NoopMetricsCollector) RecordCorruption(string, CorruptionKind) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	PageAllocCount  atomic.Int64
	PageAllocErrors atomic.Int64
	PageFreeCount   atomic.Int64
	ExhaustedCount  atomic.Int64
	LimitCount      atomic.Int64
	WaitCount       atomic.Int64
	WaitErrors      atomic.Int64
	WaitTotalNanos  atomic.Int64
	CorruptionCount atomic.Int64
}

// RecordPageAlloc implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPageAlloc(_ string, err error) {
	if err != nil {
		b.PageAllocErrors.Add(1)
		return
	}
	b.PageAllocCount.Add(1)
}

// RecordPageFree implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPageFree(_ string, n int) {
	b.PageFreeCount.Add(int64(n))
}

// RecordGetFailure implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGetFailure(_ string, err error) {
	if errors.Is(err, ErrLimitExceeded) {
		b.LimitCount.Add(1)
		return
	}
	b.ExhaustedCount.Add(1)
}

// RecordWait implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWait(_ string, duration time.Duration, err error) {
	b.WaitCount.Add(1)
	b.WaitTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.WaitErrors.Add(1)
	}
}

// RecordCorruption implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCorruption(string, CorruptionKind) {
	b.CorruptionCount.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		PageAllocCount:  b.PageAllocCount.Load(),
		PageAllocErrors: b.PageAllocErrors.Load(),
		PageFreeCount:   b.PageFreeCount.Load(),
		ExhaustedCount:  b.ExhaustedCount.Load(),
		LimitCount:      b.LimitCount.Load(),
		WaitCount:       b.WaitCount.Load(),
		WaitErrors:      b.WaitErrors.Load(),
		WaitAvgNanos:    b.getAvgWaitNanos(),
		CorruptionCount: b.CorruptionCount.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgWaitNanos() int64 {
	count := b.WaitCount.Load()
	if count == 0 {
		return 0
	}
	return b.WaitTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	PageAllocCount  int64
	PageAllocErrors int64
	PageFreeCount   int64
	ExhaustedCount  int64
	LimitCount      int64
	WaitCount       int64
	WaitErrors      int64
	WaitAvgNanos    int64
	CorruptionCount int64
}
