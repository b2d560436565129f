package kpool

import (
	"context"
	"errors"

	"github.com/hupe1980/kpool/internal/arena"
	"github.com/hupe1980/kpool/internal/mem"
	"github.com/hupe1980/kpool/pagesource"
)

// Get returns an item of the pool's requested size.
//
// With NoWait, Get fails with ErrResourceExhausted when no free item exists
// and the page source cannot supply a page. With Wait it queues behind
// earlier waiters until an item is returned or ctx ends. Get fails with
// ErrLimitExceeded as soon as the hard limit is reached, whatever the flags.
//
// Get panics with a *CorruptionError when it finds a damaged free list.
func (p *Pool) Get(ctx context.Context, flags Flags) ([]byte, error) {
	if p.cache != nil {
		item, cerr := p.cache.get()
		if cerr != nil {
			p.fatal(cerr)
		}
		if item != nil {
			if flags&Zero != 0 {
				clear(item[:cap(item)])
			}
			return item, nil
		}
	}

	item, err := p.get(ctx, flags)
	if err != nil {
		return nil, err
	}
	if flags&Zero != 0 {
		clear(item[:cap(item)])
	}
	return item, nil
}

func (p *Pool) get(ctx context.Context, flags Flags) ([]byte, error) {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return nil, ErrDestroyed
	}
	if p.nout >= p.hardLimit {
		p.nlimitfail++
		p.nfail++
		warn, limit := p.limitWarn, p.hardLimit
		p.mu.Unlock()
		p.warnHardLimit(ctx, warn, limit)
		p.metrics.RecordGetFailure(p.name, ErrLimitExceeded)
		return nil, ErrLimitExceeded
	}

	// Wait callers queue rather than block in the page source.
	item, err := p.doGet(ctx, pagesource.NoWait)
	if err == nil {
		p.mu.Unlock()
		return item, nil
	}
	var cerr *CorruptionError
	if errors.As(err, &cerr) {
		p.mu.Unlock()
		p.fatal(cerr)
	}
	if flags&Wait == 0 || ctx.Err() != nil {
		p.nfail++
		p.mu.Unlock()
		p.metrics.RecordGetFailure(p.name, err)
		return nil, err
	}
	p.mu.Unlock()

	return p.getWait(ctx)
}

// doGet takes one item off the current page. It is called with p.mu held
// and returns with it held, but drops it while a page is allocated; nout is
// raised first so the hard limit accounts for the item during that window.
func (p *Pool) doGet(ctx context.Context, wait WaitPolicy) ([]byte, error) {
	p.nout++

	for p.cur == nil {
		if err := p.grow(ctx, wait); err != nil {
			p.nout--
			return nil, err
		}
	}

	ph := p.cur
	i := ph.head
	if i < 0 {
		p.nout--
		return nil, p.corruption(HeaderMismatch, ph.Base(), 0, 0, uint64(ph.Count()), uint64(ph.nmissing), nil)
	}
	next, cerr := p.checkFree(ph, i)
	if cerr != nil {
		p.nout--
		return nil, cerr
	}
	if next < 0 && ph.nmissing+1 != ph.Count() {
		p.nout--
		return nil, p.corruption(LinkOutOfRange, ph.Base(), ph.Addr(i), arena.WordSize, uint64(ph.Count()-ph.nmissing), 1, nil)
	}

	ph.head = next
	ph.SetSlotWord(i, 0, 0)
	ph.SetSlotWord(i, 1, 0)

	if ph.nmissing == 0 {
		// First item out of an empty page.
		p.nidle--
		movePage(ph, &p.partial)
	}
	ph.nmissing++
	if ph.head < 0 {
		movePage(ph, &p.full)
		p.updateCurPage()
	}
	p.nget++

	return ph.Slot(i)[:p.reqSize], nil
}

// grow adds one page to the pool or waits for a concurrent grower to do so.
// Called with p.mu held; the lock is dropped while the page source runs.
//
// Only one page is allocated at a time. A caller that may block waits for
// any in-flight allocation, and every caller waits for a non-blocking one;
// a non-blocking caller never waits behind a blocking allocation and
// instead makes its own non-blocking attempt. Blocking allocations are made
// only by waiter growers (see growForWaiter).
func (p *Pool) grow(ctx context.Context, wait WaitPolicy) error {
	if p.growing != nil && (wait == pagesource.WaitOK || p.growWait == pagesource.NoWait) {
		done := p.growing
		p.growWaiters.Add(1)
		p.mu.Unlock()

		var err error
		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}

		p.growWaiters.Add(-1)
		p.mu.Lock()
		return err
	}

	leader := p.growing == nil
	if leader {
		p.growing = make(chan struct{})
		p.growWait = wait
	}
	p.mu.Unlock()

	ph, err := p.allocPage(ctx, wait)

	p.mu.Lock()
	if leader {
		close(p.growing)
		p.growing = nil
	}
	if err != nil {
		return err
	}
	p.insertPage(ph)
	return nil
}

// updateCurPage prefers the most recently filled partial page, then the
// most recently emptied page.
func (p *Pool) updateCurPage() {
	ph := p.partial.last()
	if ph == nil {
		ph = p.empty.last()
	}
	p.cur = ph
}

func (p *Pool) insertPage(ph *pageHeader) {
	ph.lastIdle = p.clock.Nanotime()
	p.empty.pushTail(ph)

	p.idxMu.Lock()
	p.index.insert(ph)
	p.idxMu.Unlock()

	p.nitems += p.itemsPerPage
	p.nidle++
	p.npagealloc++
	p.npages++
	if p.npages > p.hiwat {
		p.hiwat = p.npages
	}
	if p.cur == nil {
		p.cur = ph
	}
}

// removePage detaches an empty page. The caller frees it after releasing
// p.mu.
func (p *Pool) removePage(ph *pageHeader) {
	p.empty.remove(ph)

	p.idxMu.Lock()
	p.index.remove(ph)
	p.idxMu.Unlock()

	p.nidle--
	p.nitems -= p.itemsPerPage
	p.npages--
	p.npagefree++
	if p.cur == ph {
		p.updateCurPage()
	}
}

// aboveFloor reports whether one more page may be freed without dropping
// below the low watermark.
func (p *Pool) aboveFloor() bool {
	return p.npages > p.minPages && p.nitems-p.itemsPerPage >= p.minItems
}

// Put returns an item obtained from Get.
//
// Put panics with a *CorruptionError when item does not belong to the pool,
// does not start on a slot boundary or is already free.
func (p *Pool) Put(item []byte) {
	if p.cache != nil && p.pending.Load() == 0 {
		if cerr := p.cache.put(item); cerr != nil {
			p.fatal(cerr)
		}
		return
	}
	p.put(item)
}

func (p *Pool) put(item []byte) {
	var freeph *pageHeader

	p.mu.Lock()
	if cerr := p.doPut(mem.Addr(item)); cerr != nil {
		p.mu.Unlock()
		p.fatal(cerr)
	}
	if p.nidle > p.maxPages && p.aboveFloor() {
		if ph := p.empty.first(); ph != nil && p.clock.Nanotime()-ph.lastIdle > int64(p.waitFree) {
			freeph = ph
			p.removePage(ph)
		}
	}
	npages := p.npages
	p.mu.Unlock()

	if freeph != nil {
		p.releasePages(context.Background(), "put", []*pageHeader{freeph}, npages)
	}
	if p.pending.Load() > 0 {
		p.pump()
	}
}

// doPut pushes the item at addr back onto its page. Called with p.mu held.
func (p *Pool) doPut(addr uintptr) *CorruptionError {
	ph, i, cerr := p.lookupItem(addr)
	if cerr != nil {
		return cerr
	}
	if cerr := p.checkDoubleFree(ph, i); cerr != nil {
		return cerr
	}

	if p.debug {
		ph.Fill(i, linkSize, poisonPattern)
	}
	ph.pushFree(i)

	if ph.nmissing == ph.Count() {
		movePage(ph, &p.partial)
	}
	ph.nmissing--
	p.nput++
	p.nout--

	if ph.nmissing == 0 {
		p.nidle++
		ph.lastIdle = p.clock.Nanotime()
		movePage(ph, &p.empty)
		p.updateCurPage()
	} else if p.cur == nil {
		p.cur = ph
	}
	return nil
}

// checkDoubleFree rejects a put of a slot that is already free. The cheap
// check trusts a valid tag and link; debug pools walk the whole free list.
func (p *Pool) checkDoubleFree(ph *pageHeader, i int) *CorruptionError {
	if ph.nmissing == 0 {
		return p.corruption(DoubleFree, ph.Base(), ph.Addr(i), 0, 0, 0, nil)
	}
	if p.debug {
		for j, n := ph.head, 0; j >= 0; n++ {
			if j == i || n >= ph.Count() {
				return p.corruption(DoubleFree, ph.Base(), ph.Addr(i), 0, 0, 0, nil)
			}
			next, cerr := p.checkFree(ph, j)
			if cerr != nil {
				return cerr
			}
			j = next
		}
		return nil
	}
	if ph.SlotWord(i, 0) == ph.tag(i) && ph.SlotWord(i, 1)^ph.cookie <= uint64(ph.Count()) {
		return p.corruption(DoubleFree, ph.Base(), ph.Addr(i), 0, 0, ph.tag(i), nil)
	}
	return nil
}
