package kpool

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/kpool/resource"
)

const (
	defaultReclaimInterval = time.Second
	defaultWaitGC          = 8 * time.Second
)

// Reclaim returns every empty page to the page source, stopping at the low
// watermark. It returns the number of pages freed.
func (p *Pool) Reclaim() int {
	var pages []*pageHeader

	p.mu.Lock()
	for ph := p.empty.first(); ph != nil && p.aboveFloor(); ph = p.empty.first() {
		p.removePage(ph)
		pages = append(pages, ph)
	}
	npages := p.npages
	p.mu.Unlock()

	if len(pages) > 0 {
		p.releasePages(context.Background(), "reclaim", pages, npages)
	}
	return len(pages)
}

// gc is one background pass over the pool: the cache gives back an idle
// batch, then at most one page idle for longer than wait is freed. A pool
// whose lock is busy is skipped.
func (p *Pool) gc(ctx context.Context, wait time.Duration, ctrl *resource.Controller) int {
	now := p.clock.Nanotime()
	if p.cache != nil {
		if _, cerr := p.cache.gc(now, wait); cerr != nil {
			p.fatal(cerr)
		}
	}

	if !p.mu.TryLock() {
		return 0
	}
	var freeph *pageHeader
	if !p.destroyed && p.nidle > p.minPages && p.aboveFloor() {
		if ph := p.empty.first(); ph != nil && now-ph.lastIdle > int64(wait) && ctrl.AllowReclaim() {
			p.removePage(ph)
			freeph = ph
		}
	}
	npages := p.npages
	p.mu.Unlock()

	freed := 0
	if freeph != nil {
		p.releasePages(ctx, "gc", []*pageHeader{freeph}, npages)
		freed = 1
	}
	if p.pending.Load() > 0 {
		p.pump()
	}
	return freed
}

// ReclaimAll runs Reclaim on every registered pool and returns the total
// number of pages freed.
func (r *Registry) ReclaimAll(ctx context.Context) (int, error) {
	var freed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	r.Walk(func(p *Pool) bool {
		if gctx.Err() != nil {
			return false
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			freed.Add(int64(p.Reclaim()))
			return nil
		})
		return true
	})

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return int(freed.Load()), err
}

// Reclaimer periodically returns idle cache batches and idle pages of every
// pool in a registry.
type Reclaimer struct {
	reg      *Registry
	interval time.Duration
	waitGC   time.Duration
	ctrl     *resource.Controller
	log      *Logger
}

// ReclaimerOption configures a Reclaimer.
type ReclaimerOption func(*Reclaimer)

// WithReclaimInterval sets the time between passes. The default is one
// second.
func WithReclaimInterval(d time.Duration) ReclaimerOption {
	return func(r *Reclaimer) {
		r.interval = d
	}
}

// WithReclaimWait sets how long a page or cache batch must sit idle before
// a pass frees it. The default is eight seconds.
func WithReclaimWait(d time.Duration) ReclaimerOption {
	return func(r *Reclaimer) {
		r.waitGC = d
	}
}

// WithReclaimController paces page frees with ctrl's reclaim rate and runs
// each pass in one of its background slots.
func WithReclaimController(ctrl *resource.Controller) ReclaimerOption {
	return func(r *Reclaimer) {
		r.ctrl = ctrl
	}
}

// WithReclaimLogger sets the logger for pass summaries.
func WithReclaimLogger(l *Logger) ReclaimerOption {
	return func(r *Reclaimer) {
		r.log = l
	}
}

// NewReclaimer creates a reclaimer for reg. A nil reg selects
// DefaultRegistry.
func NewReclaimer(reg *Registry, opts ...ReclaimerOption) *Reclaimer {
	if reg == nil {
		reg = DefaultRegistry
	}
	r := &Reclaimer{
		reg:      reg,
		interval: defaultReclaimInterval,
		waitGC:   defaultWaitGC,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.interval <= 0 {
		r.interval = defaultReclaimInterval
	}
	if r.log == nil {
		r.log = NoopLogger()
	}
	return r
}

// Run makes a pass every interval until ctx ends. Each pass waits for a
// background slot of the controller.
func (r *Reclaimer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.ctrl.AcquireBackground(ctx); err != nil {
				return err
			}
			r.pass(ctx)
			r.ctrl.ReleaseBackground()
		}
	}
}

// RunOnce makes a single pass and returns the number of pages freed. The
// pass is skipped when the controller has no free background slot.
func (r *Reclaimer) RunOnce(ctx context.Context) int {
	if !r.ctrl.TryAcquireBackground() {
		return 0
	}
	defer r.ctrl.ReleaseBackground()

	return r.pass(ctx)
}

func (r *Reclaimer) pass(ctx context.Context) int {
	freed, pools := 0, 0
	r.reg.Walk(func(p *Pool) bool {
		if ctx.Err() != nil {
			return false
		}
		freed += p.gc(ctx, r.waitGC, r.ctrl)
		pools++
		return true
	})

	if freed > 0 {
		r.log.DebugContext(ctx, "reclaim pass", "pools", pools, "freed", freed)
	}
	return freed
}
