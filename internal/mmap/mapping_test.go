package mmap

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapAnon(t *testing.T) {
	size := 4 * os.Getpagesize()

	m, err := MapAnon(size)
	require.NoError(t, err)

	data := m.Bytes()
	require.Len(t, data, size)
	assert.Equal(t, size, m.Size())

	// Anonymous memory is zero-filled and writable.
	assert.Equal(t, byte(0), data[0])
	assert.Equal(t, byte(0), data[size-1])
	data[0] = 0xAB
	data[size-1] = 0xCD
	assert.Equal(t, byte(0xAB), m.Bytes()[0])

	require.NoError(t, m.Close())
	assert.Nil(t, m.Bytes())

	// Close is idempotent.
	require.NoError(t, m.Close())
}

func TestMapAnon_InvalidSize(t *testing.T) {
	_, err := MapAnon(0)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = MapAnon(-1)
	assert.ErrorIs(t, err, ErrInvalidSize)
}
