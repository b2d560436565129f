// Package mem provides aligned heap allocation for page backends.
//
// # Aligned Allocation
//
// Pool pages must start on a page-size boundary so that an item address can
// be masked down to its page base. AllocAligned first tries a plain
// allocation, since the Go allocator already aligns power-of-two size
// classes, and falls back to over-allocating and slicing.
package mem
