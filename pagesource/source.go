package pagesource

import (
	"context"
	"errors"
	"os"
)

// WaitPolicy tells a Source whether it may block.
type WaitPolicy int

const (
	// NoWait requires the Source to fail instead of blocking.
	NoWait WaitPolicy = iota
	// WaitOK allows the Source to block until memory is available.
	WaitOK
)

func (w WaitPolicy) String() string {
	if w == WaitOK {
		return "wait"
	}
	return "nowait"
}

var (
	// ErrExhausted is returned when a Source has no memory left.
	ErrExhausted = errors.New("pagesource: exhausted")
	// ErrInvalidRequest is returned for a non-positive size or an alignment
	// that is not a power of two.
	ErrInvalidRequest = errors.New("pagesource: invalid request")
)

// Source is a page backend.
type Source interface {
	// Alloc returns a zeroed slice of exactly size bytes whose first byte is
	// aligned to align.
	Alloc(ctx context.Context, size, align int, wait WaitPolicy) ([]byte, error)
	// Free returns a page obtained from Alloc.
	Free(page []byte)
	// PageSize is the backend's native page size.
	PageSize() int
}

// NativePageSize is the operating system page size.
func NativePageSize() int {
	return os.Getpagesize()
}
