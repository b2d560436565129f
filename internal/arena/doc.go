// Package arena describes the slot geometry of a single pool page.
//
// An Arena owns one page of raw memory and slices it into count equal slots
// of stride bytes each, starting at a color offset. Items are addressed by
// index; an address handed back by a caller is converted to an index with
// Index, which rejects anything that is not exactly the start of a slot.
//
//	+-------+--------+--------+-----+--------+-------+---------+
//	| color | slot 0 | slot 1 | ... | slot n | slack | trailer |
//	+-------+--------+--------+-----+--------+-------+---------+
//	^ base                                          ^ header offset
//
// All multi-byte accesses go through Word and SetWord, which use the
// machine's native byte order on 8-byte words.
package arena
