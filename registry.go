package kpool

import (
	"math"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// Registry tracks live pools by serial number.
type Registry struct {
	mu      sync.RWMutex
	pools   map[uint32]*Pool
	serials *roaring.Bitmap
	next    uint32
}

// DefaultRegistry is used by pools created without WithRegistry.
var DefaultRegistry = NewRegistry()

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		pools:   make(map[uint32]*Pool),
		serials: roaring.New(),
	}
}

// register assigns the next serial to p. Serials start at 1 and are never
// reused.
func (r *Registry) register(p *Pool) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.next == math.MaxUint32 {
		panic("kpool: registry serial numbers exhausted")
	}
	r.next++
	r.pools[r.next] = p
	r.serials.Add(r.next)
	return r.next
}

func (r *Registry) unregister(p *Pool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pools[p.serial] == p {
		delete(r.pools, p.serial)
		r.serials.Remove(p.serial)
	}
}

// Lookup returns the pool with the given serial.
func (r *Registry) Lookup(serial uint32) (*Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pools[serial]
	return p, ok
}

// Introspect returns the stats of the pool with the given serial, or
// ErrNotFound.
func (r *Registry) Introspect(serial uint32) (Stats, error) {
	p, ok := r.Lookup(serial)
	if !ok {
		return Stats{}, ErrNotFound
	}
	return p.Stats(), nil
}

// Len returns the number of live pools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.pools)
}

// Serials returns the live serials in ascending order.
func (r *Registry) Serials() []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.serials.ToArray()
}

// list returns the live pools in serial order.
func (r *Registry) list() []*Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Pool, 0, len(r.pools))
	it := r.serials.Iterator()
	for it.HasNext() {
		out = append(out, r.pools[it.Next()])
	}
	return out
}

// Walk calls fn for each live pool in serial order until fn returns false.
// fn runs without the registry lock and may create or destroy pools; pools
// registered during the walk are not visited.
func (r *Registry) Walk(fn func(p *Pool) bool) {
	for _, p := range r.list() {
		if !fn(p) {
			return
		}
	}
}

// Snapshot returns the stats of every live pool in serial order.
func (r *Registry) Snapshot() []Stats {
	pools := r.list()
	out := make([]Stats, 0, len(pools))
	for _, p := range pools {
		out = append(out, p.Stats())
	}
	return out
}
