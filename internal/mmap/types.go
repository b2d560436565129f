package mmap

import "errors"

// ErrInvalidSize is returned for a non-positive mapping size.
var ErrInvalidSize = errors.New("mmap: invalid size")
