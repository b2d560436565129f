package mem

import (
	"math/bits"
	"unsafe"
)

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// NextPowerOfTwo returns the smallest power of two >= n (1 for n <= 1).
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// Addr returns the address of the first byte of b.
func Addr(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b))) //nolint:gosec // address is only compared, never dereferenced
}

// AllocAligned allocates a byte slice of the given size whose first byte sits
// on an align boundary. align must be a power of two.
//
// The returned slice has len == cap == size; the underlying array may be
// larger and is kept alive by the returned slice.
func AllocAligned(size, align int) []byte {
	if size <= 0 {
		return nil
	}
	if align <= 1 {
		return make([]byte, size)
	}

	buf := make([]byte, size)
	if Addr(buf)&uintptr(align-1) == 0 {
		return buf
	}

	// Allocate size + alignment to ensure we can find an aligned offset
	buf = make([]byte, size+align)
	addr := Addr(buf)
	offset := int((uintptr(align) - (addr & uintptr(align-1))) & uintptr(align-1))

	return buf[offset : offset+size : offset+size]
}
