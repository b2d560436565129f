package kpool

import (
	"errors"
	"fmt"
)

var (
	// ErrResourceExhausted is returned when the page source cannot supply a page.
	ErrResourceExhausted = errors.New("kpool: resource exhausted")

	// ErrLimitExceeded is returned by Get when the pool's hard limit is reached.
	// It is returned immediately, whether or not the caller asked to wait.
	ErrLimitExceeded = errors.New("kpool: hard limit exceeded")

	// ErrConfiguration is returned for invalid pool parameters and rejected
	// watermark or limit changes.
	ErrConfiguration = errors.New("kpool: invalid configuration")

	// ErrBusy is returned by Destroy while items are outstanding or requests
	// are queued.
	ErrBusy = errors.New("kpool: pool busy")

	// ErrDestroyed is returned when operating on a destroyed pool.
	ErrDestroyed = errors.New("kpool: pool destroyed")

	// ErrNotFound is returned when no pool has the requested serial.
	ErrNotFound = errors.New("kpool: pool not found")

	// ErrCorruption is matched by every *CorruptionError.
	ErrCorruption = errors.New("kpool: corruption detected")
)

// CorruptionKind classifies a detected integrity failure.
type CorruptionKind int

const (
	// TagMismatch means a free item's tag no longer matches its page salt.
	TagMismatch CorruptionKind = iota + 1
	// DoubleFree means an item was returned while already free.
	DoubleFree
	// ForeignItem means the address does not belong to any page of the pool.
	ForeignItem
	// MisalignedItem means the address is inside a page but not an item start.
	MisalignedItem
	// HeaderMismatch means a page header disagrees with its page.
	HeaderMismatch
	// LinkOutOfRange means a free-list link points outside its page.
	LinkOutOfRange
	// PoisonModified means a free item was written to after it was returned.
	PoisonModified
	// CacheTagMismatch means a cached item's tag no longer matches the pool secrets.
	CacheTagMismatch
)

func (k CorruptionKind) String() string {
	switch k {
	case TagMismatch:
		return "tag mismatch"
	case DoubleFree:
		return "double free"
	case ForeignItem:
		return "foreign item"
	case MisalignedItem:
		return "misaligned item"
	case HeaderMismatch:
		return "header mismatch"
	case LinkOutOfRange:
		return "link out of range"
	case PoisonModified:
		return "modified after free"
	case CacheTagMismatch:
		return "cache tag mismatch"
	default:
		return fmt.Sprintf("corruption(%d)", int(k))
	}
}

// CorruptionError carries the diagnostics of a detected integrity failure.
// Pools panic with a *CorruptionError; it is never returned from Get or Put.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type CorruptionError struct {
	Pool     string
	Serial   uint32
	Kind     CorruptionKind
	Page     uintptr
	Item     uintptr
	Offset   int
	Expected uint64
	Observed uint64
	cause    error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("kpool: %s: %s: page %#x item %#x offset %d: expected %#x, observed %#x",
		e.Pool, e.Kind, e.Page, e.Item, e.Offset, e.Expected, e.Observed)
}

// Is matches ErrCorruption.
func (e *CorruptionError) Is(target error) bool { return target == ErrCorruption }

func (e *CorruptionError) Unwrap() error { return e.cause }

func (p *Pool) corruption(kind CorruptionKind, page, item uintptr, off int, expected, observed uint64, cause error) *CorruptionError {
	return &CorruptionError{
		Pool:     p.name,
		Serial:   p.serial,
		Kind:     kind,
		Page:     page,
		Item:     item,
		Offset:   off,
		Expected: expected,
		Observed: observed,
		cause:    cause,
	}
}

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
