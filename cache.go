package kpool

import (
	"encoding/binary"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/cpu"

	"github.com/hupe1980/kpool/internal/mem"
)

// cpuSlot caches items for one P. Items sit in two batches: active is
// served first, prev is swapped in when active runs dry.
type cpuSlot struct {
	mu     sync.Mutex
	active [][]byte
	prev   [][]byte

	nget   uint64
	nfail  uint64
	nput   uint64
	nlget  uint64
	nlfail uint64
	nlput  uint64
	// nout is the slot's share of outstanding items. It goes negative when
	// items are returned on a different P than they were taken from and is
	// folded into poolCache.nout whenever the list lock is taken.
	nout int64

	_ cpu.CacheLinePad
}

// poolCache is the per-CPU item cache of a pool. Full batches overflow to
// a shared list under mu.
//
// A cached item carries secret0^addr in word 0 and secret1^below in word 1,
// where below is the address of the item under it in its batch (0 for the
// bottom item).
type poolCache struct {
	p       *Pool
	slots   []cpuSlot
	secret0 uint64
	secret1 uint64
	initial int
	batch   atomic.Int64

	mu             sync.Mutex
	lists          [][][]byte
	nitems         int
	nout           int64
	tick           int64
	ngc            uint64
	contentionPrev uint64

	contention atomic.Uint64
}

func newPoolCache(p *Pool, batch int) *poolCache {
	c := &poolCache{
		p:       p,
		slots:   make([]cpuSlot, runtime.GOMAXPROCS(0)),
		secret0: p.rand.Uint64(),
		secret1: p.rand.Uint64(),
		initial: batch,
		tick:    p.clock.Nanotime(),
	}
	c.batch.Store(int64(batch))
	return c
}

func (c *poolCache) slot() *cpuSlot {
	return &c.slots[currentP()%len(c.slots)]
}

// lock takes the list lock, counting contended acquisitions.
func (c *poolCache) lock() {
	if !c.mu.TryLock() {
		c.contention.Add(1)
		c.mu.Lock()
	}
}

func (c *poolCache) tagItem(it []byte, below []byte) {
	var b uint64
	if below != nil {
		b = uint64(mem.Addr(below))
	}
	binary.NativeEndian.PutUint64(it[0:], c.secret0^uint64(mem.Addr(it)))
	binary.NativeEndian.PutUint64(it[8:], c.secret1^b)
}

func (c *poolCache) checkItem(it []byte, below []byte) *CorruptionError {
	addr := mem.Addr(it)
	if got, want := binary.NativeEndian.Uint64(it[0:]), c.secret0^uint64(addr); got != want {
		return c.p.corruption(CacheTagMismatch, 0, addr, 0, want, got, nil)
	}
	var b uint64
	if below != nil {
		b = uint64(mem.Addr(below))
	}
	if got, want := binary.NativeEndian.Uint64(it[8:]), c.secret1^b; got != want {
		return c.p.corruption(CacheTagMismatch, 0, addr, 8, want, got, nil)
	}
	return nil
}

func scrubLink(it []byte) {
	clear(it[:linkSize])
}

// get pops an item from the caller's slot, refilling from the overflow list
// when both batches are empty. It returns nil on a miss.
func (c *poolCache) get() ([]byte, *CorruptionError) {
	s := c.slot()
	s.mu.Lock()

	if len(s.active) == 0 {
		switch {
		case len(s.prev) > 0:
			s.active, s.prev = s.prev, s.active
		default:
			l := c.takeList(s)
			if l == nil {
				s.nfail++
				s.mu.Unlock()
				return nil, nil
			}
			s.active = l
		}
	}

	n := len(s.active)
	it := s.active[n-1]
	var below []byte
	if n > 1 {
		below = s.active[n-2]
	}
	if cerr := c.checkItem(it, below); cerr != nil {
		s.mu.Unlock()
		return nil, cerr
	}
	s.active[n-1] = nil
	s.active = s.active[:n-1]
	scrubLink(it)
	s.nget++
	s.nout++
	s.mu.Unlock()

	return it[:c.p.reqSize], nil
}

// put caches item on the caller's slot. The address must belong to a live
// page of the pool and must not be free already.
func (c *poolCache) put(item []byte) *CorruptionError {
	p := c.p
	addr := mem.Addr(item)

	p.idxMu.RLock()
	ph, i, cerr := p.lookupItemLocked(addr)
	if cerr == nil {
		switch w0 := ph.SlotWord(i, 0); w0 {
		case ph.tag(i), c.secret0 ^ uint64(addr):
			cerr = p.corruption(DoubleFree, ph.Base(), addr, 0, 0, w0, nil)
		}
	}
	var it []byte
	if cerr == nil {
		it = ph.Slot(i)
	}
	p.idxMu.RUnlock()
	if cerr != nil {
		return cerr
	}

	batch := int(c.batch.Load())
	s := c.slot()
	s.mu.Lock()
	if len(s.active) >= batch {
		if len(s.prev) > 0 {
			c.putList(s, s.prev)
		}
		s.prev = s.active
		s.active = make([][]byte, 0, batch)
	}
	var below []byte
	if n := len(s.active); n > 0 {
		below = s.active[n-1]
	}
	c.tagItem(it, below)
	s.active = append(s.active, it)
	s.nput++
	s.nout--
	s.mu.Unlock()

	return nil
}

// fold moves the slot's outstanding delta into the pool-wide count. Called
// with s.mu and c.mu held.
func (c *poolCache) fold(s *cpuSlot) {
	c.nout += s.nout
	s.nout = 0
}

// takeList pops the newest overflow batch. Called with s.mu held.
func (c *poolCache) takeList(s *cpuSlot) [][]byte {
	c.lock()
	defer c.mu.Unlock()

	c.fold(s)
	n := len(c.lists)
	if n == 0 {
		s.nlfail++
		return nil
	}
	l := c.lists[n-1]
	c.lists[n-1] = nil
	c.lists = c.lists[:n-1]
	c.nitems -= len(l)
	c.tick = c.p.clock.Nanotime()
	s.nlget++
	return l
}

// putList pushes a batch onto the overflow list. Called with s.mu held.
func (c *poolCache) putList(s *cpuSlot, l [][]byte) {
	c.lock()
	defer c.mu.Unlock()

	c.fold(s)
	c.lists = append(c.lists, l)
	c.nitems += len(l)
	c.tick = c.p.clock.Nanotime()
	s.nlput++
}

// gc hands the oldest overflow batch back to the pool once the list has
// been idle longer than wait, and adapts the batch size to list lock
// contention. A busy list is left alone.
func (c *poolCache) gc(now int64, wait time.Duration) (int, *CorruptionError) {
	if !c.mu.TryLock() {
		c.contention.Add(1)
		return 0, nil
	}

	var l [][]byte
	if len(c.lists) > 0 && now-c.tick > int64(wait) {
		l = c.lists[0]
		c.lists[0] = nil
		c.lists = c.lists[1:]
		c.nitems -= len(l)
		c.nout += int64(len(l))
		c.tick = now
		c.ngc++
	}

	contention := c.contention.Load()
	delta := contention - c.contentionPrev
	c.contentionPrev = contention
	switch batch := c.batch.Load(); {
	case delta > 8 && len(c.slots)*16 <= c.nitems:
		c.batch.Add(8)
	case delta == 0 && batch > int64(c.initial):
		c.batch.Add(-1)
	}
	c.mu.Unlock()

	if len(l) == 0 {
		return 0, nil
	}
	return len(l), c.returnItems([][][]byte{l})
}

// returnItems verifies and scrubs cached batches and pushes their items
// back onto the page free lists. The items must already be accounted in
// c.nout.
func (c *poolCache) returnItems(batches [][][]byte) *CorruptionError {
	p := c.p
	n := 0
	for _, l := range batches {
		for j, it := range l {
			var below []byte
			if j > 0 {
				below = l[j-1]
			}
			if cerr := c.checkItem(it, below); cerr != nil {
				return cerr
			}
		}
		for _, it := range l {
			scrubLink(it)
		}
		n += len(l)
	}
	if n == 0 {
		return nil
	}

	p.mu.Lock()
	for _, l := range batches {
		for _, it := range l {
			if cerr := p.doPut(mem.Addr(it)); cerr != nil {
				p.mu.Unlock()
				return cerr
			}
		}
	}
	p.mu.Unlock()

	if p.pending.Load() > 0 {
		p.pump()
	}
	return nil
}

// drain empties every slot and the overflow list back into the pool.
func (c *poolCache) drain() *CorruptionError {
	var batches [][][]byte
	for i := range c.slots {
		s := &c.slots[i]
		s.mu.Lock()
		c.lock()
		c.fold(s)
		for _, l := range [][][]byte{s.prev, s.active} {
			if len(l) > 0 {
				batches = append(batches, l)
				c.nout += int64(len(l))
			}
		}
		c.mu.Unlock()
		s.active, s.prev = nil, nil
		s.mu.Unlock()
	}

	c.lock()
	for _, l := range c.lists {
		batches = append(batches, l)
		c.nout += int64(len(l))
	}
	c.lists = nil
	c.nitems = 0
	c.mu.Unlock()

	return c.returnItems(batches)
}

// outstanding returns the cache's contribution to the exact outstanding
// item count. It is zero or negative while items sit in the cache.
func (c *poolCache) outstanding() int {
	var n int64
	for i := range c.slots {
		s := &c.slots[i]
		s.mu.Lock()
		n += s.nout
		s.mu.Unlock()
	}
	c.mu.Lock()
	n += c.nout
	c.mu.Unlock()
	return int(n)
}

func (c *poolCache) stats() *CacheStats {
	cs := &CacheStats{
		Batch: int(c.batch.Load()),
		CPUs:  make([]CPUCacheStats, len(c.slots)),
	}
	for i := range c.slots {
		s := &c.slots[i]
		s.mu.Lock()
		cs.CPUs[i] = CPUCacheStats{
			NGet:      s.nget,
			NFail:     s.nfail,
			NPut:      s.nput,
			NListGet:  s.nlget,
			NListFail: s.nlfail,
			NListPut:  s.nlput,
			NOut:      s.nout,
			NCached:   len(s.active) + len(s.prev),
		}
		s.mu.Unlock()
		cs.NItems += cs.CPUs[i].NCached
	}
	c.mu.Lock()
	cs.NItems += c.nitems
	cs.NLists = len(c.lists)
	cs.NGC = c.ngc
	c.mu.Unlock()
	cs.Contention = c.contention.Load()
	return cs
}
