// Package mmap provides anonymous memory mappings used as off-heap page
// storage.
//
// # Overview
//
// Pages backed by anonymous mappings live outside the Go heap, so large
// pools do not add to GC scan work and their memory is returned to the
// operating system as soon as a page is unmapped.
//
// # Usage
//
//	m, err := mmap.MapAnon(1 << 16)
//	if err != nil { ... }
//	defer m.Close()
//
//	page := m.Bytes()
//
// The slice returned by Bytes is valid only until Close; touching it after
// that faults.
package mmap
