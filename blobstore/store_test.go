package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/kpool/internal/fs"
)

func TestStores(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemoryStore() },
		"local":  func(t *testing.T) Store { return NewLocalStore(t.TempDir()) },
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)

			_, err := store.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			names, err := store.List(ctx, "")
			require.NoError(t, err)
			assert.Empty(t, names)

			data := []byte("pool statistics")
			require.NoError(t, store.Put(ctx, "dumps/b.kpd", data))
			require.NoError(t, store.Put(ctx, "dumps/a.kpd", []byte("first")))
			require.NoError(t, store.Put(ctx, "other", []byte("x")))

			// Mutating the caller's slice must not change the stored blob.
			data[0] = 'P'
			got, err := store.Get(ctx, "dumps/b.kpd")
			require.NoError(t, err)
			assert.Equal(t, "pool statistics", string(got))

			names, err = store.List(ctx, "dumps/")
			require.NoError(t, err)
			assert.Equal(t, []string{"dumps/a.kpd", "dumps/b.kpd"}, names)

			require.NoError(t, store.Put(ctx, "dumps/a.kpd", []byte("second")))
			got, err = store.Get(ctx, "dumps/a.kpd")
			require.NoError(t, err)
			assert.Equal(t, "second", string(got))

			require.NoError(t, store.Delete(ctx, "dumps/a.kpd"))
			require.NoError(t, store.Delete(ctx, "dumps/a.kpd"))
			_, err = store.Get(ctx, "dumps/a.kpd")
			assert.ErrorIs(t, err, ErrNotFound)

			names, err = store.List(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, []string{"dumps/b.kpd", "other"}, names)
		})
	}
}

func TestLocalStore_SkipsTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "a", []byte("a")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-b-123"), []byte("partial"), 0o600))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names)
}

func TestLocalStore_MissingRoot(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "nope"))

	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestMemoryStore_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewMemoryStore()
	assert.ErrorIs(t, store.Put(ctx, "a", nil), context.Canceled)
	_, err := store.Get(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalStore_FailedPutLeavesNoTrace(t *testing.T) {
	tests := []struct {
		name  string
		fault fs.Fault
	}{
		{name: "write", fault: fs.Fault{FailAfterBytes: 2}},
		{name: "sync", fault: fs.Fault{FailAfterBytes: -1, FailOnSync: true}},
		{name: "close", fault: fs.Fault{FailAfterBytes: -1, FailOnClose: true}},
		{name: "rename", fault: fs.Fault{FailAfterBytes: -1, FailOnRename: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			ffs := fs.NewFaultyFS(nil)
			ffs.AddRule("broken", tt.fault)
			store := &LocalStore{root: dir, fs: ffs}
			ctx := context.Background()

			require.NoError(t, store.Put(ctx, "ok.kpd", []byte("fine")))
			err := store.Put(ctx, "broken.kpd", []byte("payload"))
			assert.ErrorIs(t, err, fs.ErrInjected)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "ok.kpd", entries[0].Name())
		})
	}
}
