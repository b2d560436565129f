// Package kpool provides fixed-size object pools carved from pages.
//
// A Pool hands out items of one size. Items are slices into pages obtained
// from a page source; each page threads a free list through its free
// items, and pages move between empty, partial and full lists as items come
// and go. Idle pages are handed back to the page source when the pool has
// more than it needs.
//
// # Quick Start
//
//	p, _ := kpool.New("mbufs", 256)
//	defer p.Destroy()
//
//	item, _ := p.Get(ctx, kpool.NoWait)
//	// use item
//	p.Put(item)
//
// Blocking gets queue in arrival order behind earlier waiters and are
// served by the next Put or the next page the source can supply:
//
//	item, err := p.Get(ctx, kpool.Wait|kpool.Zero)
//
// # Limits
//
//	p.SetLowWatermark(1024)                        // keep at least 1024 items
//	p.SetHighWatermark(4096)                       // free idle pages above 4096
//	p.SetHardLimit(8192, "mbuf limit", time.Minute) // fail gets beyond 8192
//
// ErrLimitExceeded is returned immediately, even with Wait.
//
// # Page Sources
//
// Pages come from the Go heap by default. pagesource.NewMmap maps anonymous
// memory instead, and pagesource.WithBudget caps the bytes a source may
// hand out:
//
//	src := pagesource.WithBudget(pagesource.NewMmap(), 64<<20)
//	p, _ := kpool.New("bufs", 2048, kpool.WithPageSource(src))
//
// # Per-CPU Cache
//
// WithCache puts a cache in front of the free lists. Gets and puts are then
// served from a batch owned by the current P and only touch the pool lock
// when batches move between the cache and the pages.
//
// # Integrity
//
// Free items carry tags derived from per-page and per-pool secrets. A Put
// of a foreign, misaligned or already free item, or a free item found
// modified, is reported as a *CorruptionError. Pools do not try to continue
// after corruption: the error is logged, counted and raised with panic.
// WithDebug adds poisoning of free items and a full free-list scan on every
// Put.
//
// # Reclamation
//
// Put frees one idle page inline when the pool is above its high watermark.
// A Reclaimer walks a Registry in the background and frees pages that have
// been idle for a while; Pool.Reclaim and Registry.ReclaimAll free every
// idle page down to the low watermark.
//
// # Introspection
//
// Every pool is registered under a serial number. Registry.Introspect and
// Registry.Snapshot return Stats; package promcollector exports them to
// Prometheus and package statdump writes them to blob storage.
package kpool
