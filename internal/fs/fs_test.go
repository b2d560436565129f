package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFaultyFS(t *testing.T) {
	dir := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("limited", Fault{FailAfterBytes: 4})
	ffs.AddRule("nosync", Fault{FailAfterBytes: -1, FailOnSync: true, FailOnRename: true})

	t.Run("write limit", func(t *testing.T) {
		f, err := ffs.OpenFile(filepath.Join(dir, "limited.bin"), os.O_CREATE|os.O_WRONLY, 0o600)
		require.NoError(t, err)
		defer f.Close()

		_, err = f.Write([]byte("abc"))
		require.NoError(t, err)
		_, err = f.Write([]byte("de"))
		assert.ErrorIs(t, err, ErrInjected)
	})

	t.Run("sync and rename", func(t *testing.T) {
		name := filepath.Join(dir, "nosync.bin")
		f, err := ffs.OpenFile(name, os.O_CREATE|os.O_WRONLY, 0o600)
		require.NoError(t, err)
		_, err = f.Write([]byte("data"))
		require.NoError(t, err)
		assert.ErrorIs(t, f.Sync(), ErrInjected)
		require.NoError(t, f.Close())

		assert.ErrorIs(t, ffs.Rename(name, filepath.Join(dir, "other")), ErrInjected)
	})

	t.Run("unmatched files pass through", func(t *testing.T) {
		name := filepath.Join(dir, "plain.bin")
		f, err := ffs.OpenFile(name, os.O_CREATE|os.O_WRONLY, 0o600)
		require.NoError(t, err)
		_, err = f.Write([]byte("hello"))
		require.NoError(t, err)
		require.NoError(t, f.Sync())
		require.NoError(t, f.Close())

		require.NoError(t, ffs.Rename(name, filepath.Join(dir, "renamed.bin")))
		data, err := ffs.ReadFile(filepath.Join(dir, "renamed.bin"))
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
	})
}
