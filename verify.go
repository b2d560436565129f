package kpool

import (
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// Verify walks every page of the pool and checks the free lists and the
// counters against each other. It reports every violation found, each
// matching ErrCorruption, and never panics. Items held by the per-CPU cache
// count as outstanding from the page point of view.
func (p *Pool) Verify() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s: %s", ErrCorruption, p.name, fmt.Sprintf(format, args...)))
	}

	free := 0
	check := func(name string, l *pageList, state func(ph *pageHeader) bool) {
		l.each(func(ph *pageHeader) bool {
			if ph.list != l {
				fail("page %#x on %s list has a stale list pointer", ph.Base(), name)
			}
			if !state(ph) {
				fail("page %#x on %s list has %d of %d items out", ph.Base(), name, ph.nmissing, ph.Count())
			}

			seen := bitset.New(uint(ph.Count()))
			nfree := 0
			for i := ph.head; i >= 0; {
				if seen.Test(uint(i)) {
					fail("page %#x free list cycles at slot %d", ph.Base(), i)
					break
				}
				seen.Set(uint(i))
				next, cerr := p.checkFree(ph, i)
				if cerr != nil {
					errs = append(errs, cerr)
					break
				}
				nfree++
				i = next
			}
			if nfree+ph.nmissing != ph.Count() {
				fail("page %#x has %d free and %d out of %d slots", ph.Base(), nfree, ph.nmissing, ph.Count())
			}
			if !p.offPage {
				if got, want := ph.Word(p.hdrOffset), ph.magic^uint64(ph.Base()); got != want {
					fail("page %#x trailer %#x, want %#x", ph.Base(), got, want)
				}
			}
			free += nfree
			return true
		})
	}
	check("empty", &p.empty, func(ph *pageHeader) bool { return ph.nmissing == 0 })
	check("partial", &p.partial, func(ph *pageHeader) bool { return ph.nmissing > 0 && ph.nmissing < ph.Count() })
	check("full", &p.full, func(ph *pageHeader) bool { return ph.nmissing == ph.Count() })

	npages := p.empty.len() + p.partial.len() + p.full.len()
	if npages != p.npages {
		fail("%d pages on lists, npages %d", npages, p.npages)
	}
	p.idxMu.RLock()
	if n := p.index.len(); n != p.npages {
		fail("%d pages indexed, npages %d", n, p.npages)
	}
	p.idxMu.RUnlock()
	if p.nitems != p.npages*p.itemsPerPage {
		fail("nitems %d, want %d", p.nitems, p.npages*p.itemsPerPage)
	}
	if p.nidle != p.empty.len() {
		fail("nidle %d, %d empty pages", p.nidle, p.empty.len())
	}
	if p.nout+free != p.nitems {
		fail("nout %d + free %d != nitems %d", p.nout, free, p.nitems)
	}
	if p.cur != nil && (p.cur.head < 0 || p.cur.list == &p.full) {
		fail("current page %#x has no free slot", p.cur.Base())
	}
	if p.cur == nil && p.npages > p.full.len() {
		fail("no current page with %d non-full pages", p.npages-p.full.len())
	}
	if p.hardLimit < p.nout {
		fail("hard limit %d below nout %d", p.hardLimit, p.nout)
	}

	return errors.Join(errs...)
}
