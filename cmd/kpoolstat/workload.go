package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/kpool"
	"github.com/hupe1980/kpool/pagesource"
)

// Workload describes the pools to create and how workers use them.
type Workload struct {
	Pools []PoolSpec `yaml:"pools"`
}

// PoolSpec describes one pool.
type PoolSpec struct {
	Name      string `yaml:"name"`
	Size      int    `yaml:"size"`
	Align     int    `yaml:"align"`
	PageSize  int    `yaml:"pageSize"`
	Source    string `yaml:"source"` // heap (default) or mmap
	Budget    int64  `yaml:"budget"` // page memory limit in bytes; 0 is unlimited
	Cache     bool   `yaml:"cache"`
	Batch     int    `yaml:"batch"`
	Debug     bool   `yaml:"debug"`
	OffPage   bool   `yaml:"offPage"`
	LowWater  int    `yaml:"lowWater"`
	HighWater int    `yaml:"highWater"`
	HardLimit int    `yaml:"hardLimit"`
	Warning   string `yaml:"warning"`

	// Hold is the most items one worker keeps from this pool at a time.
	Hold int `yaml:"hold"`
}

func loadWorkload(path string) (*Workload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workload file %s: %w", path, err)
	}
	return parseWorkload(data)
}

func parseWorkload(data []byte) (*Workload, error) {
	var w Workload
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to parse workload: %w", err)
	}
	if len(w.Pools) == 0 {
		return nil, fmt.Errorf("workload defines no pools")
	}
	seen := make(map[string]bool, len(w.Pools))
	for i := range w.Pools {
		ps := &w.Pools[i]
		if ps.Name == "" || ps.Size <= 0 {
			return nil, fmt.Errorf("pool %d: name and a positive size are required", i)
		}
		if seen[ps.Name] {
			return nil, fmt.Errorf("pool %q defined twice", ps.Name)
		}
		seen[ps.Name] = true
		if ps.Hold <= 0 {
			ps.Hold = 64
		}
	}
	return &w, nil
}

func (ps *PoolSpec) options() ([]kpool.Option, error) {
	var src pagesource.Source
	switch ps.Source {
	case "", "heap":
		src = pagesource.NewHeap()
	case "mmap":
		src = pagesource.NewMmap()
	default:
		return nil, fmt.Errorf("pool %q: unknown page source %q", ps.Name, ps.Source)
	}
	if ps.Budget > 0 {
		src = pagesource.WithBudget(src, ps.Budget)
	}

	opts := []kpool.Option{kpool.WithPageSource(src)}
	if ps.Align > 0 {
		opts = append(opts, kpool.WithAlignment(ps.Align))
	}
	if ps.PageSize > 0 {
		opts = append(opts, kpool.WithPageSize(ps.PageSize))
	}
	if ps.Cache {
		opts = append(opts, kpool.WithCache(ps.Batch))
	}
	if ps.Debug {
		opts = append(opts, kpool.WithDebug())
	}
	if ps.OffPage {
		opts = append(opts, kpool.WithOffPageHeaders())
	}
	return opts, nil
}

// buildPools creates every pool in w. On error the pools built so far are
// destroyed.
func buildPools(w *Workload, extra ...kpool.Option) (_ []*kpool.Pool, err error) {
	pools := make([]*kpool.Pool, 0, len(w.Pools))
	defer func() {
		if err != nil {
			destroyPools(pools)
		}
	}()

	for i := range w.Pools {
		ps := &w.Pools[i]
		opts, err := ps.options()
		if err != nil {
			return nil, err
		}
		p, err := kpool.New(ps.Name, ps.Size, append(opts, extra...)...)
		if err != nil {
			return nil, fmt.Errorf("pool %q: %w", ps.Name, err)
		}
		pools = append(pools, p)

		if ps.HighWater > 0 {
			if err := p.SetHighWatermark(ps.HighWater); err != nil {
				return nil, fmt.Errorf("pool %q: %w", ps.Name, err)
			}
		}
		if ps.HardLimit > 0 {
			if err := p.SetHardLimit(ps.HardLimit, ps.Warning, 0); err != nil {
				return nil, fmt.Errorf("pool %q: %w", ps.Name, err)
			}
		}
		if ps.LowWater > 0 {
			if err := p.SetLowWatermark(ps.LowWater); err != nil {
				return nil, fmt.Errorf("pool %q: %w", ps.Name, err)
			}
		}
	}
	return pools, nil
}

func destroyPools(pools []*kpool.Pool) {
	for _, p := range pools {
		_ = p.Destroy()
	}
}
