package kpool

import (
	"context"
	"errors"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/kpool/pagesource"
)

// RequestFunc receives an item handed out by the waiter queue. It runs
// without any pool lock held and may call Get or Put on the same pool.
type RequestFunc func(p *Pool, cookie any, item []byte)

type request struct {
	fn     RequestFunc
	cookie any
	item   []byte
}

// RequestAsync queues fn to receive an item. Requests are served in arrival
// order as items become available; fn may run before RequestAsync returns.
// Queued requests keep Destroy from succeeding.
func (p *Pool) RequestAsync(fn RequestFunc, cookie any) {
	p.enqueue(&request{fn: fn, cookie: cookie})
}

func (p *Pool) enqueue(r *request) {
	p.reqMu.Lock()
	p.requests = append(p.requests, r)
	p.pending.Add(1)
	cerr := p.runQueue()
	p.reqMu.Unlock()

	if cerr != nil {
		p.fatal(cerr)
	}
}

// pump serves queued requests.
func (p *Pool) pump() {
	p.reqMu.Lock()
	cerr := p.runQueue()
	p.reqMu.Unlock()

	if cerr != nil {
		p.fatal(cerr)
	}
}

// runQueue is called with reqMu held and returns with it held. Only one
// goroutine serves the queue at a time; a call made while another is active
// only bumps requesting, which makes the active server take another pass.
func (p *Pool) runQueue() *CorruptionError {
	p.requesting++
	if p.requesting > 1 {
		return nil
	}

	var (
		batch []*request
		cerr  *CorruptionError
	)
	for {
		p.requesting = 1

		batch = append(batch, p.requests...)
		clear(p.requests)
		p.requests = p.requests[:0]

		if len(batch) > 0 && cerr == nil {
			p.reqMu.Unlock()

			var n int
			n, cerr = p.fill(batch)
			for _, r := range batch[:n] {
				item := r.item
				r.item = nil
				r.fn(p, r.cookie, item)
			}
			clear(batch[:n])
			batch = batch[n:]

			p.reqMu.Lock()
		}

		p.requesting--
		if p.requesting == 0 {
			break
		}
	}

	if len(batch) > 0 {
		p.requests = append(batch, p.requests...)
	}
	return cerr
}

// fill hands items to the head of batch until the pool runs dry or reaches
// its hard limit. It returns how many requests were served.
func (p *Pool) fill(batch []*request) (int, *CorruptionError) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var (
		n    int
		cerr *CorruptionError
	)
	for _, r := range batch {
		if p.destroyed || p.nout >= p.hardLimit {
			break
		}
		item, err := p.doGet(context.Background(), pagesource.NoWait)
		if err != nil {
			errors.As(err, &cerr)
			break
		}
		r.item = item
		n++
	}
	p.pending.Add(-int64(n))
	return n, cerr
}

// cancelRequest withdraws r if it is still queued.
func (p *Pool) cancelRequest(r *request) bool {
	p.reqMu.Lock()
	defer p.reqMu.Unlock()

	i := slices.Index(p.requests, r)
	if i < 0 {
		return false
	}
	p.requests = slices.Delete(p.requests, i, i+1)
	p.pending.Add(-1)
	return true
}

// waiter parks a blocking Get on the request queue.
type waiter struct {
	mu        sync.Mutex
	ch        chan []byte
	abandoned bool
	served    context.CancelFunc
}

func (w *waiter) deliver(p *Pool, _ any, item []byte) {
	if w.served != nil {
		w.served()
	}
	w.mu.Lock()
	if w.abandoned {
		w.mu.Unlock()
		p.Put(item)
		return
	}
	w.ch <- item
	w.mu.Unlock()
}

// getWait queues the caller behind earlier waiters while a grower tries to
// add a page with a blocking allocation. Whichever comes first, a page or a
// Put, serves the queue. If ctx ends first the request is withdrawn; one
// already taken by the queue server has its item put back when it is served.
func (p *Pool) getWait(ctx context.Context) ([]byte, error) {
	start := time.Now()
	gctx, served := context.WithCancel(ctx)
	w := &waiter{ch: make(chan []byte, 1), served: served}
	r := &request{fn: w.deliver}
	p.enqueue(r)

	grown := make(chan struct{})
	if gctx.Err() == nil {
		go func() {
			defer close(grown)
			p.growForWaiter(gctx)
		}()
	} else {
		close(grown)
	}

	var item []byte
	select {
	case item = <-w.ch:
	case <-ctx.Done():
	}
	// The grower is gone before the request can leave the queue, so it never
	// inserts a page into a pool that Destroy has already accepted.
	served()
	<-grown

	if item != nil {
		p.metrics.RecordWait(p.name, time.Since(start), nil)
		return item, nil
	}

	w.mu.Lock()
	select {
	case item := <-w.ch:
		w.mu.Unlock()
		p.metrics.RecordWait(p.name, time.Since(start), nil)
		return item, nil
	default:
	}
	w.abandoned = true
	w.mu.Unlock()

	p.cancelRequest(r)

	p.mu.Lock()
	p.nfail++
	p.mu.Unlock()

	err := ctx.Err()
	p.metrics.RecordWait(p.name, time.Since(start), err)
	return nil, err
}

// growForWaiter adds pages with blocking allocations until ctx ends, which
// happens once its waiter is served. It gives up when the page source fails
// outright or the hard limit leaves nothing to grow for; the waiter then
// depends on Put alone.
func (p *Pool) growForWaiter(ctx context.Context) {
	for ctx.Err() == nil {
		p.mu.Lock()
		if p.destroyed || p.nout >= p.hardLimit {
			p.mu.Unlock()
			return
		}
		if p.cur != nil {
			// Free items exist; another queue server may be handing them out.
			p.mu.Unlock()
			p.pump()
			runtime.Gosched()
			continue
		}
		err := p.grow(ctx, pagesource.WaitOK)
		p.mu.Unlock()
		if err != nil {
			return
		}
		p.pump()
	}
}
