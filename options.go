package kpool

import (
	"time"
)

// IPL is the interrupt priority ceiling a pool is declared to be used at.
// It is recorded and reported but does not change locking in Go, where
// every pool lock is an ordinary mutex.
type IPL uint8

const (
	IPLNone IPL = iota
	IPLSoftClock
	IPLSoftNet
	IPLBio
	IPLNet
	IPLTTY
	IPLVM
	IPLAudio
	IPLClock
	IPLHigh
)

// Flags control a single Get.
type Flags uint8

const (
	// NoWait fails immediately when no item can be produced.
	NoWait Flags = 0
	// Wait blocks until an item is available or the context ends. The hard
	// limit still fails immediately.
	Wait Flags = 1 << iota
	// Zero clears the item before it is returned.
	Zero
)

const (
	defaultAlign    = 8
	defaultMaxPages = 8
	defaultWaitFree = time.Second
	defaultBatch    = 8
)

type options struct {
	align      int
	ipl        IPL
	source     PageSource
	pageSize   int
	offPage    bool
	cacheBatch int
	debug      bool
	registry   *Registry
	logger     *Logger
	metrics    MetricsCollector
	clock      Clock
	rand       Rand
	waitFree   time.Duration
}

// Option configures a pool at creation.
type Option func(*options)

// WithAlignment sets the item alignment. It must be a power of two; the
// default is 8.
func WithAlignment(align int) Option {
	return func(o *options) {
		o.align = align
	}
}

// WithIPL records the priority ceiling the pool is used at.
func WithIPL(ipl IPL) Option {
	return func(o *options) {
		o.ipl = ipl
	}
}

// WithPageSource sets the page backend. With an explicit backend the page
// size is never smaller than the backend's page size. If nil is passed,
// the heap backend is used.
func WithPageSource(src PageSource) Option {
	return func(o *options) {
		o.source = src
	}
}

// WithPageSize overrides the computed page size. It must be a power of two
// large enough for one item.
func WithPageSize(n int) Option {
	return func(o *options) {
		o.pageSize = n
	}
}

// WithOffPageHeaders forces page headers to be kept off-page even when they
// would fit in the page's trailing space.
func WithOffPageHeaders() Option {
	return func(o *options) {
		o.offPage = true
	}
}

// WithCache enables the per-CPU item cache with the given initial batch
// size. A batch of 0 selects the default of 8.
//
// The batch size adapts at runtime: list lock contention grows it, quiet
// periods shrink it back toward the initial value.
func WithCache(batch int) Option {
	return func(o *options) {
		if batch <= 0 {
			batch = defaultBatch
		}
		o.cacheBatch = batch
	}
}

// WithDebug enables expensive integrity checks: free items are poisoned and
// verified on reuse, and every Put scans the page free list for double frees.
func WithDebug() Option {
	return func(o *options) {
		o.debug = true
	}
}

// WithRegistry registers the pool in reg instead of DefaultRegistry.
func WithRegistry(reg *Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithLogger sets the logger. If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics sets the collector for slow-path events.
func WithMetrics(m MetricsCollector) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithClock replaces the monotonic clock used for page idle ages.
func WithClock(c Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithRand replaces the randomness source for page and cache secrets.
func WithRand(r Rand) Option {
	return func(o *options) {
		o.rand = r
	}
}

// WithWaitFree sets how long an idle page must sit before Put may return
// it to the page source. The default is one second.
func WithWaitFree(d time.Duration) Option {
	return func(o *options) {
		o.waitFree = d
	}
}
