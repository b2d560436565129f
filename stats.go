package kpool

// Stats is a point-in-time view of a pool.
type Stats struct {
	Name         string `json:"name" yaml:"name"`
	Serial       uint32 `json:"serial" yaml:"serial"`
	IPL          IPL    `json:"ipl" yaml:"ipl"`
	Size         int    `json:"size" yaml:"size"`
	PageSize     int    `json:"pageSize" yaml:"pageSize"`
	ItemsPerPage int    `json:"itemsPerPage" yaml:"itemsPerPage"`
	Align        int    `json:"align" yaml:"align"`
	MaxColors    int    `json:"maxColors" yaml:"maxColors"`
	OffPage      bool   `json:"offPage" yaml:"offPage"`

	NItems     int    `json:"nitems" yaml:"nitems"`
	NOut       int    `json:"nout" yaml:"nout"`
	NCached    int    `json:"ncached" yaml:"ncached"`
	NGet       uint64 `json:"nget" yaml:"nget"`
	NPut       uint64 `json:"nput" yaml:"nput"`
	NFail      uint64 `json:"nfail" yaml:"nfail"`
	NLimitFail uint64 `json:"nlimitfail" yaml:"nlimitfail"`
	NPageAlloc uint64 `json:"npagealloc" yaml:"npagealloc"`
	NPageFree  uint64 `json:"npagefree" yaml:"npagefree"`
	NPages     int    `json:"npages" yaml:"npages"`
	NIdle      int    `json:"nidle" yaml:"nidle"`
	HiWat      int    `json:"hiwat" yaml:"hiwat"`
	MinPages   int    `json:"minpages" yaml:"minpages"`
	MaxPages   int    `json:"maxpages" yaml:"maxpages"`
	MinItems   int    `json:"minitems" yaml:"minitems"`
	HardLimit  int    `json:"hardlimit" yaml:"hardlimit"`
	NWaiters   int64  `json:"nwaiters" yaml:"nwaiters"`

	Cache *CacheStats `json:"cache,omitempty" yaml:"cache,omitempty"`
}

// CacheStats describes the per-CPU cache of a pool.
type CacheStats struct {
	Batch      int             `json:"batch" yaml:"batch"`
	NItems     int             `json:"nitems" yaml:"nitems"`
	NLists     int             `json:"nlists" yaml:"nlists"`
	NGC        uint64          `json:"ngc" yaml:"ngc"`
	Contention uint64          `json:"contention" yaml:"contention"`
	CPUs       []CPUCacheStats `json:"cpus" yaml:"cpus"`
}

// CPUCacheStats holds the counters of one cache slot.
type CPUCacheStats struct {
	NGet      uint64 `json:"nget" yaml:"nget"`
	NFail     uint64 `json:"nfail" yaml:"nfail"`
	NPut      uint64 `json:"nput" yaml:"nput"`
	NListGet  uint64 `json:"nlget" yaml:"nlget"`
	NListFail uint64 `json:"nlfail" yaml:"nlfail"`
	NListPut  uint64 `json:"nlput" yaml:"nlput"`
	NOut      int64  `json:"nout" yaml:"nout"`
	NCached   int    `json:"ncached" yaml:"ncached"`
}

// Stats returns the pool's counters. NOut is exact: it includes items that
// are cached per CPU as not outstanding.
func (p *Pool) Stats() Stats {
	var cs *CacheStats
	cacheOut := 0
	if p.cache != nil {
		cs = p.cache.stats()
		cacheOut = p.cache.outstanding()
	}

	p.mu.Lock()
	st := Stats{
		Name:         p.name,
		Serial:       p.serial,
		IPL:          p.ipl,
		Size:         p.size,
		PageSize:     p.pgsize,
		ItemsPerPage: p.itemsPerPage,
		Align:        p.align,
		MaxColors:    p.maxColors,
		OffPage:      p.offPage,
		NItems:       p.nitems,
		NOut:         p.nout + cacheOut,
		NGet:         p.nget,
		NPut:         p.nput,
		NFail:        p.nfail,
		NLimitFail:   p.nlimitfail,
		NPageAlloc:   p.npagealloc,
		NPageFree:    p.npagefree,
		NPages:       p.npages,
		NIdle:        p.nidle,
		HiWat:        p.hiwat,
		MinPages:     p.minPages,
		MaxPages:     p.maxPages,
		MinItems:     p.minItems,
		HardLimit:    p.hardLimit,
		Cache:        cs,
	}
	p.mu.Unlock()

	if cs != nil {
		st.NCached = cs.NItems
	}
	st.NWaiters = p.pending.Load()
	return st
}
