package arena

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/kpool/internal/mem"
)

// WordSize is the size of one metadata word.
const WordSize = 8

var (
	// ErrOutOfRange is returned when an address lies outside the slot area.
	ErrOutOfRange = errors.New("arena: address out of range")
	// ErrMisaligned is returned when an address is inside the slot area but
	// not on a slot boundary.
	ErrMisaligned = errors.New("arena: address not on a slot boundary")
	// ErrGeometry is returned when slots do not fit the page.
	ErrGeometry = errors.New("arena: slots do not fit the page")
)

// Arena is the slot layout of one page.
type Arena struct {
	mem    []byte
	base   uintptr
	start  int
	stride int
	count  int
}

// New lays out count slots of stride bytes starting at offset start.
func New(page []byte, start, stride, count int) (Arena, error) {
	if stride < 2*WordSize || count <= 0 || start < 0 || start+stride*count > len(page) {
		return Arena{}, fmt.Errorf("%w: page=%d start=%d stride=%d count=%d",
			ErrGeometry, len(page), start, stride, count)
	}
	return Arena{
		mem:    page,
		base:   mem.Addr(page),
		start:  start,
		stride: stride,
		count:  count,
	}, nil
}

// Bytes returns the whole page.
func (a *Arena) Bytes() []byte { return a.mem }

// Base returns the address of the first byte of the page.
func (a *Arena) Base() uintptr { return a.base }

// Len returns the page size.
func (a *Arena) Len() int { return len(a.mem) }

// Start returns the color offset of slot 0.
func (a *Arena) Start() int { return a.start }

// Stride returns the slot size.
func (a *Arena) Stride() int { return a.stride }

// Count returns the number of slots.
func (a *Arena) Count() int { return a.count }

// Contains reports whether addr lies inside the page.
func (a *Arena) Contains(addr uintptr) bool {
	return addr >= a.base && addr-a.base < uintptr(len(a.mem))
}

// Offset returns the page offset of slot i.
func (a *Arena) Offset(i int) int {
	return a.start + i*a.stride
}

// Addr returns the address of slot i.
func (a *Arena) Addr(i int) uintptr {
	return a.base + uintptr(a.Offset(i))
}

// Slot returns slot i. The result is capacity-limited so appends cannot
// spill into the next slot.
func (a *Arena) Slot(i int) []byte {
	off := a.Offset(i)
	return a.mem[off : off+a.stride : off+a.stride]
}

// Index converts an item address back to its slot index.
func (a *Arena) Index(addr uintptr) (int, error) {
	if !a.Contains(addr) {
		return -1, ErrOutOfRange
	}
	rel := addr - a.base
	if rel < uintptr(a.start) {
		return -1, ErrMisaligned
	}
	rel -= uintptr(a.start)
	if rel%uintptr(a.stride) != 0 {
		return -1, ErrMisaligned
	}
	i := int(rel / uintptr(a.stride))
	if i >= a.count {
		return -1, ErrOutOfRange
	}
	return i, nil
}

// Word reads the metadata word at page offset off.
func (a *Arena) Word(off int) uint64 {
	return binary.NativeEndian.Uint64(a.mem[off : off+WordSize])
}

// SetWord writes the metadata word at page offset off.
func (a *Arena) SetWord(off int, v uint64) {
	binary.NativeEndian.PutUint64(a.mem[off:off+WordSize], v)
}

// SlotWord reads word w of slot i.
func (a *Arena) SlotWord(i, w int) uint64 {
	return a.Word(a.Offset(i) + w*WordSize)
}

// SetSlotWord writes word w of slot i.
func (a *Arena) SetSlotWord(i, w int, v uint64) {
	a.SetWord(a.Offset(i)+w*WordSize, v)
}

// Fill writes the 32-bit pattern over slot i from byte from to the end of
// the slot. A trailing remainder shorter than 4 bytes is left untouched.
func (a *Arena) Fill(i, from int, pattern uint32) {
	s := a.Slot(i)
	for off := from; off+4 <= len(s); off += 4 {
		binary.NativeEndian.PutUint32(s[off:], pattern)
	}
}

// CheckFill returns the slot offset of the first 32-bit word of slot i,
// at or after from, that differs from pattern, or -1 if all match.
func (a *Arena) CheckFill(i, from int, pattern uint32) (int, uint32) {
	s := a.Slot(i)
	for off := from; off+4 <= len(s); off += 4 {
		if v := binary.NativeEndian.Uint32(s[off:]); v != pattern {
			return off, v
		}
	}
	return -1, 0
}

// Clear zeroes slot i.
func (a *Arena) Clear(i int) {
	clear(a.Slot(i))
}
