package kpool

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/kpool/pagesource"
)

// SetLowWatermark sets the number of items the pool keeps allocated even
// when they are all free. Pages are added right away to reach it when the
// page source allows; a shortfall is not an error and is made up as the
// pool grows.
func (p *Pool) SetLowWatermark(n int) error {
	if n < 0 {
		return configError("low watermark %d", n)
	}

	p.mu.Lock()
	p.minItems = n
	if n == 0 {
		p.minPages = 0
	} else {
		p.minPages = (n-1)/p.itemsPerPage + 1
	}
	short := n - p.nitems
	p.mu.Unlock()

	if short > 0 {
		_ = p.Prime(short)
	}
	return nil
}

// SetHighWatermark sets the number of items above which idle pages are
// returned to the page source.
func (p *Pool) SetHighWatermark(n int) error {
	if n < 0 {
		return configError("high watermark %d", n)
	}

	p.mu.Lock()
	if n == 0 {
		p.maxPages = 0
	} else {
		p.maxPages = (n-1)/p.itemsPerPage + 1
	}
	p.mu.Unlock()
	return nil
}

// SetHardLimit caps the number of items handed out of the free lists.
// Gets beyond the limit fail with ErrLimitExceeded and log warning at most
// once per rateCap; a non-positive rateCap logs every failure.
//
// A limit below the current number of outstanding items is rejected with
// ErrConfiguration and the previous limit stays in effect.
func (p *Pool) SetHardLimit(n int, warning string, rateCap time.Duration) error {
	if n < 0 {
		return configError("hard limit %d", n)
	}

	w := &limitWarning{msg: warning}
	if rateCap > 0 {
		w.sometimes = &rate.Sometimes{Interval: rateCap}
	} else {
		w.sometimes = &rate.Sometimes{Every: 1}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if n < p.nout {
		return configError("hard limit %d below %d outstanding items", n, p.nout)
	}
	p.hardLimit = n
	p.limitWarn = w
	return nil
}

func (p *Pool) warnHardLimit(ctx context.Context, w *limitWarning, limit int) {
	if w == nil || w.msg == "" {
		return
	}
	w.sometimes.Do(func() {
		p.log.LogHardLimit(ctx, w.msg, limit)
	})
}

// Prime adds enough empty pages to hold n more items. Pages are requested
// without waiting; if the page source runs dry the pages obtained so far
// are kept and ErrResourceExhausted is returned.
func (p *Pool) Prime(n int) error {
	if n <= 0 {
		return nil
	}

	ctx := context.Background()
	want := (n + p.itemsPerPage - 1) / p.itemsPerPage
	pages := make([]*pageHeader, 0, want)

	var err error
	for range want {
		var ph *pageHeader
		ph, err = p.allocPage(ctx, pagesource.NoWait)
		if err != nil {
			break
		}
		pages = append(pages, ph)
	}

	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		p.releasePages(ctx, "destroyed", pages, 0)
		return ErrDestroyed
	}
	for _, ph := range pages {
		p.insertPage(ph)
	}
	p.mu.Unlock()

	if err == nil && p.pending.Load() > 0 {
		p.pump()
	}
	return err
}
