package pagesource

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/kpool/internal/mem"
)

// Heap allocates pages on the Go heap. Free drops the page and leaves the
// memory to the garbage collector.
type Heap struct {
	pageSize int
	inUse    atomic.Int64
}

// NewHeap returns a heap Source using the native page size.
func NewHeap() *Heap {
	return &Heap{pageSize: NativePageSize()}
}

// Alloc implements Source. The heap never blocks, so wait is ignored.
func (h *Heap) Alloc(ctx context.Context, size, align int, _ WaitPolicy) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if size <= 0 || !mem.IsPowerOfTwo(align) {
		return nil, fmt.Errorf("%w: size=%d align=%d", ErrInvalidRequest, size, align)
	}
	h.inUse.Add(int64(size))
	return mem.AllocAligned(size, align), nil
}

// Free implements Source.
func (h *Heap) Free(page []byte) {
	h.inUse.Add(-int64(len(page)))
}

// PageSize implements Source.
func (h *Heap) PageSize() int { return h.pageSize }

// InUse returns the bytes currently handed out.
func (h *Heap) InUse() int64 { return h.inUse.Load() }
