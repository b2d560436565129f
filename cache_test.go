package kpool

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// singleP pins the cache to one slot so tests see every cached item.
func singleP(t *testing.T) {
	t.Helper()

	prev := runtime.GOMAXPROCS(1)
	t.Cleanup(func() { runtime.GOMAXPROCS(prev) })
}

func TestCache_GetPut(t *testing.T) {
	singleP(t)
	m := &BasicMetricsCollector{}
	p := newTestPool(t, 64, WithCache(4), WithMetrics(m))

	items := getN(t, p, 10)
	putAll(p, items)

	st := p.Stats()
	require.NotNil(t, st.Cache)
	assert.Equal(t, 0, st.NOut)
	assert.Equal(t, 10, st.NCached)
	assert.Equal(t, 1, st.Cache.NLists)
	assert.Equal(t, 4, st.Cache.Batch)
	assert.Equal(t, uint64(10), st.Cache.CPUs[0].NPut)
	require.NoError(t, p.Verify())

	// Served from the cache in LIFO order without touching the pages.
	again := getN(t, p, 10)
	for i, item := range again {
		assert.Same(t, &items[9-i][0], &item[0])
		assert.Len(t, item, 64)
	}
	st = p.Stats()
	assert.Equal(t, uint64(10), st.NGet)
	assert.Equal(t, 10, st.NOut)
	assert.Equal(t, 0, st.NCached)

	assert.ErrorIs(t, p.Destroy(), ErrBusy)

	putAll(p, again)
	require.NoError(t, p.Destroy())
	assert.Equal(t, int64(2), m.GetStats().PageFreeCount)
}

func TestCache_ZeroFlag(t *testing.T) {
	singleP(t)
	p := newTestPool(t, 64, WithCache(0))

	item, err := p.Get(context.Background(), NoWait)
	require.NoError(t, err)
	for i := range item {
		item[i] = 0xaa
	}
	p.Put(item)

	again, err := p.Get(context.Background(), NoWait|Zero)
	require.NoError(t, err)
	assert.Same(t, &item[0], &again[0])
	assert.Equal(t, make([]byte, 64), again)
	p.Put(again)
}

func TestCache_Corruption(t *testing.T) {
	singleP(t)

	t.Run("tag overwritten", func(t *testing.T) {
		p := newTestPool(t, 64, WithCache(4))
		item, err := p.Get(context.Background(), NoWait)
		require.NoError(t, err)
		p.Put(item)

		item[3] ^= 0x10
		cerr := catchCorruption(t, func() { _, _ = p.Get(context.Background(), NoWait) })
		assert.Equal(t, CacheTagMismatch, cerr.Kind)
	})

	t.Run("double free", func(t *testing.T) {
		p := newTestPool(t, 64, WithCache(4))
		items := getN(t, p, 2)
		p.Put(items[0])

		cerr := catchCorruption(t, func() { p.Put(items[0]) })
		assert.Equal(t, DoubleFree, cerr.Kind)
		p.Put(items[1])
	})

	t.Run("foreign item", func(t *testing.T) {
		p := newTestPool(t, 64, WithCache(4))
		cerr := catchCorruption(t, func() { p.Put(make([]byte, 64)) })
		assert.Equal(t, ForeignItem, cerr.Kind)
	})
}

func TestCache_GC(t *testing.T) {
	singleP(t)
	clk := &ManualClock{}
	reg := NewRegistry()
	p := newTestPool(t, 64, WithCache(2), WithClock(clk), WithRegistry(reg))

	putAll(p, getN(t, p, 6))
	st := p.Stats()
	assert.Equal(t, 6, st.NCached)
	assert.Equal(t, 1, st.Cache.NLists)

	r := NewReclaimer(reg, WithReclaimWait(time.Second))
	r.RunOnce(context.Background())
	assert.Equal(t, 6, p.Stats().NCached)

	clk.Advance(2 * time.Second)
	r.RunOnce(context.Background())

	st = p.Stats()
	assert.Equal(t, 4, st.NCached)
	assert.Equal(t, 0, st.Cache.NLists)
	assert.Equal(t, uint64(1), st.Cache.NGC)
	assert.Equal(t, 0, st.NOut)
	assert.Equal(t, uint64(2), st.NPut)
	require.NoError(t, p.Verify())

	require.NoError(t, p.Destroy())
}

func TestCache_BatchAdapts(t *testing.T) {
	singleP(t)
	p := newTestPool(t, 64, WithCache(2))
	c := p.cache

	putAll(p, getN(t, p, 40))
	require.GreaterOrEqual(t, p.Stats().Cache.NItems, 36)

	c.contention.Add(9)
	_, cerr := c.gc(p.clock.Nanotime(), time.Hour)
	require.Nil(t, cerr)
	assert.Equal(t, 10, p.Stats().Cache.Batch)

	_, cerr = c.gc(p.clock.Nanotime(), time.Hour)
	require.Nil(t, cerr)
	assert.Equal(t, 9, p.Stats().Cache.Batch)

	require.NoError(t, p.Destroy())
}

func TestCache_WaitersBypassCache(t *testing.T) {
	singleP(t)
	src := &testSource{pageSize: 512, limit: 1}
	p := newTestPool(t, 64, WithCache(4), WithPageSource(src))
	items := getN(t, p, 8)

	got := make(chan []byte, 1)
	go func() {
		item, err := p.Get(context.Background(), Wait)
		assert.NoError(t, err)
		got <- item
	}()
	require.Eventually(t, func() bool { return p.pending.Load() == 1 }, time.Second, time.Millisecond)

	p.Put(items[0])
	select {
	case item := <-got:
		assert.Same(t, &items[0][0], &item[0])
		items[0] = item
	case <-time.After(time.Second):
		t.Fatal("waiter not served")
	}

	putAll(p, items)
	require.NoError(t, p.Destroy())
}
