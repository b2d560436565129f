package kpool

import (
	_ "unsafe" // for go:linkname
)

//go:linkname runtime_procPin runtime.procPin
func runtime_procPin() int

//go:linkname runtime_procUnpin runtime.procUnpin
func runtime_procUnpin()

// currentP returns the id of the P running the caller. The goroutine may
// migrate as soon as it returns, so the id only selects a cache slot.
func currentP() int {
	pid := runtime_procPin()
	runtime_procUnpin()
	return pid
}
