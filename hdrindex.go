package kpool

import (
	"github.com/google/btree"
)

// headerIndex maps an item address to the header of the page holding it.
// The variant is fixed when the pool is created. All methods are called
// with p.idxMu held.
type headerIndex interface {
	insert(ph *pageHeader)
	remove(ph *pageHeader)
	// find returns the candidate page for addr, or nil.
	find(addr uintptr) *pageHeader
	len() int
}

// maskIndex serves pools whose header trailer lives inside the page. Pages
// are aligned to their size, so masking an item address yields the page
// base.
type maskIndex struct {
	mask  uintptr
	pages map[uintptr]*pageHeader
}

func newMaskIndex(pgsize int) *maskIndex {
	return &maskIndex{
		mask:  uintptr(pgsize - 1),
		pages: make(map[uintptr]*pageHeader),
	}
}

func (m *maskIndex) insert(ph *pageHeader) { m.pages[ph.Base()] = ph }

func (m *maskIndex) remove(ph *pageHeader) { delete(m.pages, ph.Base()) }

func (m *maskIndex) find(addr uintptr) *pageHeader { return m.pages[addr&^m.mask] }

func (m *maskIndex) len() int { return len(m.pages) }

// treeIndex serves pools with off-page headers. Headers are ordered by page
// base; the owner of an address is the nearest header at or below it.
type treeIndex struct {
	tree *btree.BTreeG[hdrEntry]
}

type hdrEntry struct {
	base uintptr
	ph   *pageHeader
}

func newTreeIndex() *treeIndex {
	return &treeIndex{
		tree: btree.NewG(8, func(a, b hdrEntry) bool { return a.base < b.base }),
	}
}

func (t *treeIndex) insert(ph *pageHeader) {
	t.tree.ReplaceOrInsert(hdrEntry{base: ph.Base(), ph: ph})
}

func (t *treeIndex) remove(ph *pageHeader) {
	t.tree.Delete(hdrEntry{base: ph.Base()})
}

func (t *treeIndex) find(addr uintptr) *pageHeader {
	var found *pageHeader
	t.tree.DescendLessOrEqual(hdrEntry{base: addr}, func(e hdrEntry) bool {
		found = e.ph
		return false
	})
	return found
}

func (t *treeIndex) len() int { return t.tree.Len() }

// lookupItem resolves addr to its page and slot index. Every way an address
// can fail to be a valid item of this pool is reported as corruption.
func (p *Pool) lookupItem(addr uintptr) (*pageHeader, int, *CorruptionError) {
	p.idxMu.RLock()
	defer p.idxMu.RUnlock()
	return p.lookupItemLocked(addr)
}

func (p *Pool) lookupItemLocked(addr uintptr) (*pageHeader, int, *CorruptionError) {
	ph := p.index.find(addr)
	if ph == nil || !ph.Contains(addr) {
		return nil, -1, p.corruption(ForeignItem, 0, addr, 0, 0, 0, nil)
	}
	if !p.offPage {
		want := ph.magic ^ uint64(ph.Base())
		if got := ph.Word(p.hdrOffset); got != want {
			return nil, -1, p.corruption(HeaderMismatch, ph.Base(), addr, p.hdrOffset, want, got, nil)
		}
	}
	i, err := ph.Index(addr)
	if err != nil {
		return nil, -1, p.corruption(MisalignedItem, ph.Base(), addr, int(addr-ph.Base()), 0, 0, err)
	}
	return ph, i, nil
}
