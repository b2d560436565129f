package kpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/kpool/internal/arena"
)

const (
	// linkSize is the free-slot link record: tag word + encoded successor.
	linkSize = 2 * arena.WordSize
	// trailerSize is the in-page header trailer: salted base + page id.
	trailerSize = 2 * arena.WordSize

	poisonPattern = 0xdeafbead
)

// pageHeader is the bookkeeping for one page. Its free list is threaded
// through the free slots themselves: word 0 of a free slot holds
// magic^slotAddr, word 1 holds (next+1)^cookie with 0 terminating the list.
type pageHeader struct {
	arena.Arena

	id       uint64
	magic    uint64
	cookie   uint64
	head     int
	nmissing int
	lastIdle int64

	list       *pageList
	prev, next *pageHeader
}

var pageHeaderPool = sync.Pool{
	New: func() any { return new(pageHeader) },
}

func (ph *pageHeader) tag(i int) uint64 {
	return ph.magic ^ uint64(ph.Addr(i))
}

func (ph *pageHeader) pushFree(i int) {
	ph.SetSlotWord(i, 0, ph.tag(i))
	ph.SetSlotWord(i, 1, uint64(ph.head+1)^ph.cookie)
	ph.head = i
}

// pageList is an intrusive doubly linked list of pages. Insertion is always
// at the tail, so the head is the page that has been on the list longest.
type pageList struct {
	head, tail *pageHeader
	n          int
}

func (l *pageList) pushTail(ph *pageHeader) {
	ph.list = l
	ph.prev = l.tail
	ph.next = nil
	if l.tail != nil {
		l.tail.next = ph
	} else {
		l.head = ph
	}
	l.tail = ph
	l.n++
}

func (l *pageList) remove(ph *pageHeader) {
	if ph.prev != nil {
		ph.prev.next = ph.next
	} else {
		l.head = ph.next
	}
	if ph.next != nil {
		ph.next.prev = ph.prev
	} else {
		l.tail = ph.prev
	}
	ph.prev, ph.next, ph.list = nil, nil, nil
	l.n--
}

func (l *pageList) first() *pageHeader { return l.head }

func (l *pageList) last() *pageHeader { return l.tail }

func (l *pageList) len() int { return l.n }

func (l *pageList) each(fn func(*pageHeader) bool) {
	for ph := l.head; ph != nil; ph = ph.next {
		if !fn(ph) {
			return
		}
	}
}

func movePage(ph *pageHeader, to *pageList) {
	ph.list.remove(ph)
	to.pushTail(ph)
}

// allocPage obtains and formats a new page. It must be called without p.mu.
func (p *Pool) allocPage(ctx context.Context, wait WaitPolicy) (*pageHeader, error) {
	page, err := p.src.Alloc(ctx, p.pgsize, p.pgsize, wait)
	if err != nil && ctx.Err() != nil {
		return nil, err
	}
	p.metrics.RecordPageAlloc(p.name, err)
	if err != nil {
		p.log.LogPageAlloc(ctx, p.pgsize, 0, err)
		return nil, fmt.Errorf("%w: %w", ErrResourceExhausted, err)
	}

	color := p.align * int((p.colorSeq.Add(1)-1)%uint64(p.maxColors))
	a, err := arena.New(page, color, p.size, p.itemsPerPage)
	if err != nil {
		p.src.Free(page)
		return nil, err
	}

	ph := pageHeaderPool.Get().(*pageHeader)
	*ph = pageHeader{
		Arena:  a,
		id:     p.pageSeq.Add(1),
		magic:  p.rand.Uint64(),
		cookie: p.rand.Uint64(),
		head:   -1,
	}
	if !p.offPage {
		ph.SetWord(p.hdrOffset, ph.magic^uint64(ph.Base()))
		ph.SetWord(p.hdrOffset+arena.WordSize, ph.id)
	}
	for i := p.itemsPerPage - 1; i >= 0; i-- {
		if p.debug {
			ph.Fill(i, linkSize, poisonPattern)
		}
		ph.pushFree(i)
	}

	p.log.LogPageAlloc(ctx, p.pgsize, 1, nil)
	return ph, nil
}

// freePage verifies every free slot of a page that has already been removed
// from the pool and hands its memory back to the page source. It must be
// called without p.mu. A corrupted page is not freed.
func (p *Pool) freePage(ph *pageHeader) *CorruptionError {
	seen := 0
	for i := ph.head; i >= 0; seen++ {
		if seen >= ph.Count() {
			return p.corruption(LinkOutOfRange, ph.Base(), ph.Addr(i), arena.WordSize, uint64(ph.Count()), uint64(seen+1), nil)
		}
		next, cerr := p.checkFree(ph, i)
		if cerr != nil {
			return cerr
		}
		i = next
	}
	if seen != ph.Count() {
		return p.corruption(HeaderMismatch, ph.Base(), 0, 0, uint64(ph.Count()), uint64(seen), nil)
	}
	if !p.offPage {
		want := ph.magic ^ uint64(ph.Base())
		if got := ph.Word(p.hdrOffset); got != want {
			return p.corruption(HeaderMismatch, ph.Base(), 0, p.hdrOffset, want, got, nil)
		}
	}

	p.src.Free(ph.Bytes())
	*ph = pageHeader{}
	pageHeaderPool.Put(ph)
	return nil
}

// checkFree validates free slot i of ph and returns its successor index
// (-1 at the end of the list).
func (p *Pool) checkFree(ph *pageHeader, i int) (int, *CorruptionError) {
	want := ph.tag(i)
	if got := ph.SlotWord(i, 0); got != want {
		return -1, p.corruption(TagMismatch, ph.Base(), ph.Addr(i), 0, want, got, nil)
	}
	link := ph.SlotWord(i, 1) ^ ph.cookie
	if link > uint64(ph.Count()) {
		return -1, p.corruption(LinkOutOfRange, ph.Base(), ph.Addr(i), arena.WordSize, uint64(ph.Count()), link, nil)
	}
	if p.debug {
		if off, got := ph.CheckFill(i, linkSize, poisonPattern); off >= 0 {
			return -1, p.corruption(PoisonModified, ph.Base(), ph.Addr(i), off, poisonPattern, uint64(got), nil)
		}
	}
	return int(link) - 1, nil
}

// releasePages frees pages already detached from the pool. It must be
// called without p.mu.
func (p *Pool) releasePages(ctx context.Context, reason string, pages []*pageHeader, npages int) {
	freed := 0
	for _, ph := range pages {
		if cerr := p.freePage(ph); cerr != nil {
			p.metrics.RecordPageFree(p.name, freed)
			p.fatal(cerr)
		}
		freed++
	}
	p.metrics.RecordPageFree(p.name, freed)
	p.log.LogReclaim(ctx, reason, freed, npages)
}
