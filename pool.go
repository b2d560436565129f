package kpool

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/kpool/internal/mem"
	"github.com/hupe1980/kpool/pagesource"
)

// PageSource is the backend pools draw pages from.
type PageSource = pagesource.Source

// WaitPolicy tells a PageSource whether it may block.
type WaitPolicy = pagesource.WaitPolicy

// Pool is a fixed-size object allocator.
//
// Items are carved from pages obtained from a PageSource. Each page keeps
// its own free list; pages move between the empty, partial and full lists
// as items are handed out and returned. A Pool is safe for concurrent use.
type Pool struct {
	name      string
	serial    uint32
	ipl       IPL
	reqSize   int
	size      int
	align     int
	pgsize    int
	hdrOffset int
	offPage   bool
	debug     bool

	itemsPerPage int
	maxColors    int

	src      PageSource
	registry *Registry
	log      *Logger
	metrics  MetricsCollector
	clock    Clock
	rand     Rand
	waitFree time.Duration

	colorSeq atomic.Uint64
	pageSeq  atomic.Uint64

	// mu guards the page lists, every page free list and the counters.
	mu      sync.Mutex
	empty   pageList
	partial pageList
	full    pageList
	cur     *pageHeader

	// idxMu guards index. It is taken after mu, never before.
	idxMu sync.RWMutex
	index headerIndex

	nitems     int
	nout       int
	npages     int
	nidle      int
	hiwat      int
	nget       uint64
	nput       uint64
	nfail      uint64
	nlimitfail uint64
	npagealloc uint64
	npagefree  uint64

	minItems  int
	minPages  int
	maxPages  int
	hardLimit int
	limitWarn *limitWarning

	growing     chan struct{}
	growWait    WaitPolicy
	growWaiters atomic.Int32

	destroyed bool

	// reqMu guards the waiter queue only; it is released before mu is taken.
	reqMu      sync.Mutex
	requests   []*request
	requesting int
	pending    atomic.Int64

	cache *poolCache
}

type limitWarning struct {
	msg       string
	sometimes *rate.Sometimes
}

// New creates a pool of items of itemSize bytes and registers it.
func New(name string, itemSize int, opts ...Option) (*Pool, error) {
	o := options{
		align:    defaultAlign,
		registry: DefaultRegistry,
		waitFree: defaultWaitFree,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if itemSize <= 0 {
		return nil, configError("item size %d", itemSize)
	}
	if !mem.IsPowerOfTwo(o.align) {
		return nil, configError("alignment %d is not a power of two", o.align)
	}
	if o.registry == nil {
		o.registry = DefaultRegistry
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metrics == nil {
		o.metrics = NoopMetricsCollector{}
	}
	if o.clock == nil {
		o.clock = defaultClock
	}
	if o.rand == nil {
		o.rand = runtimeRand{}
	}

	p := &Pool{
		name:      name,
		ipl:       o.ipl,
		reqSize:   itemSize,
		align:     o.align,
		debug:     o.debug,
		src:       o.source,
		metrics:   o.metrics,
		clock:     o.clock,
		rand:      o.rand,
		waitFree:  o.waitFree,
		maxPages:  defaultMaxPages,
		hardLimit: math.MaxInt,
	}
	if err := p.layout(o); err != nil {
		return nil, err
	}
	if p.offPage {
		p.index = newTreeIndex()
	} else {
		p.index = newMaskIndex(p.pgsize)
	}
	if o.cacheBatch > 0 {
		p.cache = newPoolCache(p, o.cacheBatch)
	}

	p.registry = o.registry
	p.serial = o.registry.register(p)
	p.log = o.logger.WithPool(name, p.serial)

	return p, nil
}

// layout computes item size, page size, slots per page, header placement
// and the number of colors.
func (p *Pool) layout(o options) error {
	size := max(p.reqSize, linkSize)
	size = (size + p.align - 1) &^ (p.align - 1)
	p.size = size

	pgsize := mem.NextPowerOfTwo(8 * size)
	switch {
	case o.pageSize != 0:
		if !mem.IsPowerOfTwo(o.pageSize) || o.pageSize < size {
			return configError("page size %d for item size %d", o.pageSize, size)
		}
		pgsize = o.pageSize
	case p.src == nil:
		if native := pagesource.NativePageSize(); pgsize > native {
			pgsize = max(native, mem.NextPowerOfTwo(size))
		}
	default:
		pgsize = max(pgsize, p.src.PageSize())
	}
	if p.src == nil {
		p.src = pagesource.NewHeap()
	}
	p.pgsize = pgsize

	items := pgsize / size
	off := pgsize
	p.offPage = true
	if !o.offPage {
		if pgsize-size*items > trailerSize {
			off = pgsize - trailerSize
			p.offPage = false
		} else if trailerSize*2 >= size && pgsize-trailerSize >= size {
			off = pgsize - trailerSize
			items = off / size
			p.offPage = false
		}
	}
	if items == 0 {
		return configError("item size %d does not fit page size %d", size, pgsize)
	}

	p.hdrOffset = off
	p.itemsPerPage = items
	p.maxColors = (off-items*size)/p.align + 1
	return nil
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Serial returns the registry serial number of the pool.
func (p *Pool) Serial() uint32 { return p.serial }

// IPL returns the priority ceiling the pool was created with.
func (p *Pool) IPL() IPL { return p.ipl }

// ItemSize returns the slot size: the requested size rounded up to the
// alignment and to the minimum link size. Items returned by Get have the
// requested length and a capacity of ItemSize.
func (p *Pool) ItemSize() int { return p.size }

// PageSize returns the page size.
func (p *Pool) PageSize() int { return p.pgsize }

// ItemsPerPage returns the number of slots per page.
func (p *Pool) ItemsPerPage() int { return p.itemsPerPage }

// Destroy releases every page and unregisters the pool. It fails with
// ErrBusy, leaving the pool untouched, while items are outstanding or
// requests are queued.
func (p *Pool) Destroy() error {
	ctx := context.Background()

	if p.pending.Load() > 0 {
		p.log.LogDestroy(ctx, 0, ErrBusy)
		return ErrBusy
	}

	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return ErrDestroyed
	}
	nout := p.nout
	p.mu.Unlock()

	if p.cache != nil {
		nout += p.cache.outstanding()
	}
	if nout != 0 {
		p.log.LogDestroy(ctx, 0, ErrBusy)
		return ErrBusy
	}

	if p.cache != nil {
		if cerr := p.cache.drain(); cerr != nil {
			p.fatal(cerr)
		}
	}

	p.mu.Lock()
	if p.nout != 0 {
		p.mu.Unlock()
		p.log.LogDestroy(ctx, 0, ErrBusy)
		return ErrBusy
	}
	p.destroyed = true
	pages := make([]*pageHeader, 0, p.empty.len())
	for ph := p.empty.first(); ph != nil; ph = p.empty.first() {
		p.removePage(ph)
		pages = append(pages, ph)
	}
	p.mu.Unlock()

	p.releasePages(ctx, "destroy", pages, 0)
	p.registry.unregister(p)
	p.log.LogDestroy(ctx, len(pages), nil)
	return nil
}

// fatal reports a corruption and aborts the caller. No pool lock may be
// held.
func (p *Pool) fatal(err *CorruptionError) {
	p.log.LogCorruption(context.Background(), err)
	p.metrics.RecordCorruption(p.name, err.Kind)
	panic(err)
}
