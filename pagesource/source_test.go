package pagesource

import (
	"context"
	"testing"
	"time"

	"github.com/hupe1980/kpool/internal/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeap_Alloc(t *testing.T) {
	h := NewHeap()
	assert.Equal(t, NativePageSize(), h.PageSize())

	for _, size := range []int{512, 4096, 16384} {
		page, err := h.Alloc(context.Background(), size, size, NoWait)
		require.NoError(t, err)
		assert.Len(t, page, size)
		assert.Equal(t, uintptr(0), mem.Addr(page)%uintptr(size))
		h.Free(page)
	}
	assert.Equal(t, int64(0), h.InUse())

	_, err := h.Alloc(context.Background(), 512, 24, NoWait)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.Alloc(ctx, 512, 512, WaitOK)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMmap_Alloc(t *testing.T) {
	m := NewMmap()
	native := m.PageSize()

	small, err := m.Alloc(context.Background(), 512, 512, NoWait)
	require.NoError(t, err)
	assert.Len(t, small, 512)
	assert.Equal(t, uintptr(0), mem.Addr(small)%512)

	big, err := m.Alloc(context.Background(), 4*native, 4*native, NoWait)
	require.NoError(t, err)
	assert.Len(t, big, 4*native)
	assert.Equal(t, uintptr(0), mem.Addr(big)%uintptr(4*native))

	// Mapped memory is zeroed and writable.
	assert.Equal(t, byte(0), big[len(big)-1])
	big[len(big)-1] = 1

	assert.Equal(t, 2, m.Mappings())
	m.Free(small)
	m.Free(big)
	assert.Equal(t, 0, m.Mappings())

	// Freeing an unknown page is a no-op.
	m.Free(make([]byte, 16))
}

func TestBudgeted_NoWait(t *testing.T) {
	b := WithBudget(NewHeap(), 1024)

	p1, err := b.Alloc(context.Background(), 512, 512, NoWait)
	require.NoError(t, err)
	p2, err := b.Alloc(context.Background(), 512, 512, NoWait)
	require.NoError(t, err)

	_, err = b.Alloc(context.Background(), 512, 512, NoWait)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, int64(1024), b.Controller().MemoryUsage())

	b.Free(p1)
	b.Free(p2)
	assert.Equal(t, int64(0), b.Controller().MemoryUsage())
}

func TestBudgeted_WaitOK(t *testing.T) {
	b := WithBudget(NewHeap(), 512)

	page, err := b.Alloc(context.Background(), 512, 512, WaitOK)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = b.Alloc(ctx, 512, 512, WaitOK)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got := make(chan []byte, 1)
	go func() {
		p, err := b.Alloc(context.Background(), 512, 512, WaitOK)
		assert.NoError(t, err)
		got <- p
	}()

	b.Free(page)
	select {
	case p := <-got:
		assert.Len(t, p, 512)
	case <-time.After(5 * time.Second):
		t.Fatal("blocked allocation was not released by Free")
	}

	// A page larger than the whole budget can never be satisfied.
	_, err = b.Alloc(context.Background(), 1024, 1024, WaitOK)
	assert.ErrorIs(t, err, ErrExhausted)
}
