package btree

import (
	"sync"
	"time"

	"storemy/pkg/buffer"
	"storemy/pkg/primitives"
	"storemy/pkg/storage/page"
)

// BTree is a disk-resident B+tree index over int64 keys mapping to
// primitives.RID, backed by a buffer.Pool. Every page touched during a
// descent is pinned (via the pool) and latched (via page.Page.Latch)
// for as long as crabbing requires, and never longer.
type BTree struct {
	pool *buffer.Pool

	// rootMu guards rootID itself — the "root pointer" hazard: a
	// concurrent split or merge of the root can change which page id is
	// the root between the time a descent reads rootID and the time it
	// latches that page, so every descent re-validates after latching.
	rootMu sync.RWMutex
	rootID primitives.PageID

	internalMaxSize int32
	leafMaxSize     int32
}

// New constructs an empty tree. The root page is allocated lazily on the
// first Insert.
func New(pool *buffer.Pool, internalMaxSize, leafMaxSize int32) *BTree {
	return &BTree{
		pool:            pool,
		rootID:          primitives.InvalidPageID,
		internalMaxSize: internalMaxSize,
		leafMaxSize:     leafMaxSize,
	}
}

func (t *BTree) currentRoot() primitives.PageID {
	t.rootMu.RLock()
	defer t.rootMu.RUnlock()
	return t.rootID
}

func (t *BTree) setRoot(pid primitives.PageID) {
	t.rootMu.Lock()
	t.rootID = pid
	t.rootMu.Unlock()
}

// IsEmpty reports whether the tree has no root page yet.
func (t *BTree) IsEmpty() bool {
	return t.currentRoot() == primitives.InvalidPageID
}

// latchedPage is one step of crabbing: the page, pinned in the buffer
// pool, with its latch already acquired in the mode the current
// operation needs.
type latchedPage struct {
	pid   primitives.PageID
	pg    *page.Page
	write bool
}

// GetValue performs a read-only point lookup, latching each page with a
// read latch and releasing the parent's latch as soon as the child is
// latched — reads never need to hold more than one latch at a time since
// they never mutate a node's occupancy.
func (t *BTree) GetValue(key int64) (primitives.RID, bool) {
	if t.IsEmpty() {
		return primitives.RID{}, false
	}

	pid := t.findLeafReadOnly(key)
	if pid == primitives.InvalidPageID {
		return primitives.RID{}, false
	}

	pg, err := t.pool.FetchPage(pid)
	if err != nil {
		return primitives.RID{}, false
	}
	pg.Latch.RLock()
	leaf := decodeLeaf(pg.Data())
	pg.Latch.RUnlock()
	t.pool.UnpinPage(pid, false)

	for i, k := range leaf.keys {
		if k == key {
			return leaf.values[i], true
		}
	}
	return primitives.RID{}, false
}

// findLeafReadOnly descends from the root to the leaf that would contain
// key, read-latching each child before releasing its parent, so at most
// two read latches are held at once. It returns the leaf's page id with
// no latch or pin held.
func (t *BTree) findLeafReadOnly(key int64) primitives.PageID {
	for {
		pid := t.currentRoot()
		if pid == primitives.InvalidPageID {
			return primitives.InvalidPageID
		}
		pg, err := t.pool.FetchPage(pid)
		if err != nil {
			return primitives.InvalidPageID
		}
		pg.Latch.RLock()
		if t.currentRoot() != pid {
			// Root changed out from under us; retry.
			pg.Latch.RUnlock()
			t.pool.UnpinPage(pid, false)
			time.Sleep(time.Millisecond)
			continue
		}

		cur := pid
		curPg := pg
		for pageIsLeaf(curPg.Data()) == false {
			node := decodeInternal(curPg.Data())
			childPID := childForKey(node, key)

			childPg, err := t.pool.FetchPage(childPID)
			if err != nil {
				curPg.Latch.RUnlock()
				t.pool.UnpinPage(cur, false)
				return primitives.InvalidPageID
			}
			childPg.Latch.RLock()
			curPg.Latch.RUnlock()
			t.pool.UnpinPage(cur, false)

			cur = childPID
			curPg = childPg
		}
		curPg.Latch.RUnlock()
		t.pool.UnpinPage(cur, false)
		return cur
	}
}

// childForKey returns which child pointer a descent following key should
// take: the last child whose separator key is <= key, i.e. children[i]
// covers keys in [keys[i-1], keys[i]).
func childForKey(n *internalNode, key int64) primitives.PageID {
	i := 0
	for i < len(n.keys) && key >= n.keys[i] {
		i++
	}
	return n.children[i]
}
