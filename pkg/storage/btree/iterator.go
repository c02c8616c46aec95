package btree

import (
	"storemy/pkg/primitives"
	"storemy/pkg/storage/page"
)

// Iterator walks the tree's leaves in key order, starting at the first
// key >= the bound it was constructed with. It holds a read latch on
// at most one leaf page at a time, released as soon as it advances past
// it or is closed.
type Iterator struct {
	t       *BTree
	pg      *page.Page
	pid     primitives.PageID
	leaf    *leafNode
	pos     int
	stopKey int64
	hasStop bool
	done    bool
}

// Seek returns an iterator positioned at the first key >= from. If the
// tree is empty the iterator is immediately Done.
func (t *BTree) Seek(from int64) *Iterator {
	it := &Iterator{t: t}
	if t.IsEmpty() {
		it.done = true
		return it
	}

	pid := t.findLeafReadOnly(from)
	if pid == primitives.InvalidPageID {
		it.done = true
		return it
	}
	it.loadLeaf(pid)
	it.pos = searchFirstGE(it.leaf, from)
	it.advancePastEmptyLeaves()
	return it
}

// SeekRange is like Seek but also bounds the scan above at to (inclusive).
func (t *BTree) SeekRange(from, to int64) *Iterator {
	it := t.Seek(from)
	it.stopKey = to
	it.hasStop = true
	if !it.done && it.leaf.keys[it.pos] > to {
		it.Close()
		it.done = true
	}
	return it
}

func (it *Iterator) loadLeaf(pid primitives.PageID) {
	pg, err := it.t.pool.FetchPage(pid)
	if err != nil {
		it.done = true
		return
	}
	pg.Latch.RLock()
	it.pg = pg
	it.pid = pid
	it.leaf = decodeLeaf(pg.Data())
	it.pos = 0
}

func (it *Iterator) releaseLeaf() {
	if it.pg == nil {
		return
	}
	it.pg.Latch.RUnlock()
	it.t.pool.UnpinPage(it.pid, false)
	it.pg = nil
	it.leaf = nil
}

// advancePastEmptyLeaves moves to the next leaf while the current one
// is exhausted at pos — a leaf can be empty only transiently during a
// concurrent merge, but the chain pointer is always valid.
func (it *Iterator) advancePastEmptyLeaves() {
	for !it.done && it.leaf != nil && it.pos >= len(it.leaf.keys) {
		next := it.leaf.nextLeaf
		it.releaseLeaf()
		if next == primitives.InvalidPageID {
			it.done = true
			return
		}
		it.loadLeaf(next)
	}
}

// Valid reports whether Key/Value return a usable entry.
func (it *Iterator) Valid() bool {
	if it.done || it.leaf == nil || it.pos >= len(it.leaf.keys) {
		return false
	}
	if it.hasStop && it.leaf.keys[it.pos] > it.stopKey {
		return false
	}
	return true
}

// Key and Value return the entry at the iterator's current position.
// Callers must check Valid first.
func (it *Iterator) Key() int64            { return it.leaf.keys[it.pos] }
func (it *Iterator) Value() primitives.RID { return it.leaf.values[it.pos] }

// Next advances the iterator by one entry, crossing leaf boundaries via
// the leaf chain as needed.
func (it *Iterator) Next() {
	if it.done || it.leaf == nil {
		return
	}
	it.pos++
	it.advancePastEmptyLeaves()
}

// Close releases any latch and pin the iterator still holds. Safe to
// call multiple times and on an already-exhausted iterator.
func (it *Iterator) Close() {
	it.releaseLeaf()
	it.done = true
}

func searchFirstGE(leaf *leafNode, key int64) int {
	lo, hi := 0, len(leaf.keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if leaf.keys[mid] < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
