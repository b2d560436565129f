package statdump

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/kpool"
	"github.com/hupe1980/kpool/blobstore"
)

func newRegistry(t *testing.T) *kpool.Registry {
	t.Helper()

	reg := kpool.NewRegistry()
	for _, name := range []string{"mbuf", "vnode", "proc"} {
		p, err := kpool.New(name, 64, kpool.WithRegistry(reg))
		require.NoError(t, err)
		require.NoError(t, p.Prime(16))
	}
	return reg
}

func TestEncodeDecode(t *testing.T) {
	reg := newRegistry(t)
	want := NewDumper(reg, blobstore.NewMemoryStore(), WithHost("test")).Snapshot()

	for _, c := range []Compression{CompressionNone, CompressionZSTD, CompressionLZ4} {
		t.Run(c.String(), func(t *testing.T) {
			data, err := Encode(want, c)
			require.NoError(t, err)

			got, err := Decode(data)
			require.NoError(t, err)
			assert.True(t, want.Taken.Equal(got.Taken))
			assert.Equal(t, want.Host, got.Host)
			assert.Equal(t, want.Pools, got.Pools)
		})
	}
}

func TestEncode_Magic(t *testing.T) {
	d := &Dump{Host: "h"}

	data, err := Encode(d, CompressionNone)
	require.NoError(t, err)
	assert.Equal(t, "KPDN", string(data[:4]))

	data, err = Encode(d, CompressionZSTD)
	require.NoError(t, err)
	assert.Equal(t, "KPDZ", string(data[:4]))

	_, err = Encode(d, Compression(9))
	assert.Error(t, err)
}

func TestDecode_Errors(t *testing.T) {
	data, err := Encode(&Dump{Host: "h"}, CompressionNone)
	require.NoError(t, err)

	_, err = Decode(data[:8])
	assert.ErrorIs(t, err, ErrBadMagic)

	bad := append([]byte("XXXX"), data[4:]...)
	_, err = Decode(bad)
	assert.ErrorIs(t, err, ErrBadMagic)

	flipped := append([]byte(nil), data...)
	flipped[len(flipped)-2] ^= 0x01
	_, err = Decode(flipped)
	assert.ErrorIs(t, err, ErrChecksum)

	truncated := data[:len(data)-3]
	_, err = Decode(truncated)
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestDecode_OversizedHeader(t *testing.T) {
	header := func(magic string, size uint32, body []byte) []byte {
		out := make([]byte, headerSize, headerSize+len(body))
		copy(out, magic)
		binary.LittleEndian.PutUint32(out[4:], size)
		return append(out, body...)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"lz4 header only", header("KPDL", math.MaxUint32, nil)},
		{"zstd header only", header("KPDZ", math.MaxUint32, nil)},
		{"none header only", header("KPDN", math.MaxUint32, nil)},
		{"lz4 above block ratio", header("KPDL", 1024, []byte{0x10, 'x'})},
		{"one past the cap", header("KPDL", MaxPayloadSize+1, make([]byte, 1<<20))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			assert.ErrorIs(t, err, ErrChecksum)
		})
	}
}

func TestParseCompression(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionZSTD, CompressionLZ4} {
		got, err := ParseCompression(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseCompression("gzip")
	assert.Error(t, err)
}

func TestDumper_Retention(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	reg := newRegistry(t)
	d := NewDumper(reg, store, WithPrefix("/stats/"), WithRetention(2))

	// Blobs outside the dump namespace are left alone.
	require.NoError(t, store.Put(ctx, "stats/notes.txt", []byte("x")))

	var written []string
	for range 4 {
		name, err := d.DumpOnce(ctx)
		require.NoError(t, err)
		written = append(written, name)
	}
	assert.IsIncreasing(t, written)

	names, err := List(ctx, store, "stats")
	require.NoError(t, err)
	assert.Equal(t, written[2:], names)

	_, err = store.Get(ctx, "stats/notes.txt")
	require.NoError(t, err)

	latest, err := Latest(ctx, store, "stats")
	require.NoError(t, err)
	require.Len(t, latest.Pools, 3)
	assert.Equal(t, "mbuf", latest.Pools[0].Name)
	assert.Equal(t, 16, latest.Pools[0].NItems)
}

func TestLatest_Empty(t *testing.T) {
	_, err := Latest(context.Background(), blobstore.NewMemoryStore(), "dumps")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestDumper_Run(t *testing.T) {
	store := blobstore.NewMemoryStore()
	d := NewDumper(newRegistry(t), store, WithInterval(time.Millisecond), WithCompression(CompressionLZ4))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		names, err := List(context.Background(), store, "dumps")
		return err == nil && len(names) >= 2
	}, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
