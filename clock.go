package kpool

import (
	"math/rand/v2"
	"sync/atomic"
	"time"
)

// Clock is a monotonic tick source in nanoseconds.
type Clock interface {
	Nanotime() int64
}

// Rand supplies the per-pool and per-page secrets.
type Rand interface {
	Uint64() uint64
}

type monoClock struct {
	start time.Time
}

func (c monoClock) Nanotime() int64 {
	return int64(time.Since(c.start))
}

var defaultClock Clock = monoClock{start: time.Now()}

type runtimeRand struct{}

func (runtimeRand) Uint64() uint64 { return rand.Uint64() }

// ManualClock is a Clock advanced by hand, for tests and simulations.
type ManualClock struct {
	now atomic.Int64
}

// Nanotime implements Clock.
func (c *ManualClock) Nanotime() int64 { return c.now.Load() }

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) { c.now.Add(int64(d)) }
