package pagesource

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/kpool/internal/mem"
	"github.com/hupe1980/kpool/internal/mmap"
)

// Mmap allocates every page as its own anonymous mapping. Alignments larger
// than the native page size are met by over-mapping and slicing.
type Mmap struct {
	pageSize int

	mu   sync.Mutex
	maps map[uintptr]*mmap.Mapping
}

// NewMmap returns an mmap-backed Source.
func NewMmap() *Mmap {
	return &Mmap{
		pageSize: NativePageSize(),
		maps:     make(map[uintptr]*mmap.Mapping),
	}
}

// Alloc implements Source. Mapping failures are reported as ErrExhausted.
func (m *Mmap) Alloc(ctx context.Context, size, align int, _ WaitPolicy) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if size <= 0 || !mem.IsPowerOfTwo(align) {
		return nil, fmt.Errorf("%w: size=%d align=%d", ErrInvalidRequest, size, align)
	}

	mapSize := size
	if align > m.pageSize {
		mapSize += align
	}

	mapping, err := mmap.MapAnon(mapSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExhausted, err)
	}

	data := mapping.Bytes()
	off := 0
	if rem := int(mem.Addr(data) & uintptr(align-1)); rem != 0 {
		off = align - rem
	}
	page := data[off : off+size : off+size]

	m.mu.Lock()
	m.maps[mem.Addr(page)] = mapping
	m.mu.Unlock()

	return page, nil
}

// Free implements Source. Unknown pages are ignored.
func (m *Mmap) Free(page []byte) {
	addr := mem.Addr(page)

	m.mu.Lock()
	mapping, ok := m.maps[addr]
	delete(m.maps, addr)
	m.mu.Unlock()

	if ok {
		_ = mapping.Close()
	}
}

// PageSize implements Source.
func (m *Mmap) PageSize() int { return m.pageSize }

// Mappings returns the number of live mappings.
func (m *Mmap) Mappings() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.maps)
}
