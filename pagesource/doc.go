// Package pagesource provides the page backends pools draw their memory from.
//
// A Source hands out page-sized, page-aligned byte slices. Three
// implementations are included:
//
//   - Heap: pages allocated on the Go heap (the default)
//   - Mmap: pages backed by anonymous memory mappings, outside the Go heap
//   - Budgeted: wraps another Source and charges every page against a
//     resource.Controller memory limit
//
// # Wait Policy
//
// Alloc takes a WaitPolicy. With NoWait a backend must fail fast with
// ErrExhausted when it cannot satisfy the request. With WaitOK it may block
// until memory is available or the context ends.
package pagesource
