package btree

import (
	"encoding/binary"
	"sort"
	"time"

	"storemy/pkg/logging"
	"storemy/pkg/primitives"
)

// Insert adds (key, rid) to the tree. Returns false if key already
// exists — duplicate insert is a benign miss, not an error, per the
// engine's error taxonomy for expected non-exceptional outcomes.
func (t *BTree) Insert(key int64, rid primitives.RID) (bool, error) {
	if t.IsEmpty() {
		return t.startNewTree(key, rid)
	}

	stack, leafPID, leaf, err := t.descendForInsert(key)
	if err != nil {
		return false, err
	}
	defer t.releaseStack(stack)

	if idx := searchLeaf(leaf, key); idx >= 0 {
		return false, nil
	}

	insertIntoLeaf(leaf, key, rid)

	leafPg := stack[len(stack)-1].pg
	if leaf.size <= leaf.maxSize-1 {
		leaf.encode(leafPg.Data())
		leafPg.MarkDirty(true)
		return true, nil
	}

	t.splitLeafAndInsertParent(stack, leafPID, leaf)
	return true, nil
}

func (t *BTree) startNewTree(key int64, rid primitives.RID) (bool, error) {
	pg, err := t.pool.NewPage()
	if err != nil {
		return false, err
	}
	leaf := &leafNode{
		maxSize:  t.leafMaxSize,
		parentID: primitives.InvalidPageID,
		nextLeaf: primitives.InvalidPageID,
		keys:     []int64{key},
		values:   []primitives.RID{rid},
		size:     1,
	}
	pg.Latch.Lock()
	leaf.encode(pg.Data())
	pg.Latch.Unlock()
	pg.MarkDirty(true)

	pid := pg.ID()
	t.pool.UnpinPage(pid, true)
	t.setRoot(pid)
	logging.WithPage(pid).Debug("new tree root leaf created")
	return true, nil
}

// descendForInsert crabs down to the leaf that should contain key,
// releasing every ancestor whose occupancy proves the insert can never
// propagate a split up through it. The returned stack holds every page
// still latched (because it was not provably safe) in descent order,
// root first — insertIntoParent walks it from the end (the leaf's
// immediate parent) outward if the leaf itself must split.
func (t *BTree) descendForInsert(key int64) ([]latchedPage, primitives.PageID, *leafNode, error) {
	for {
		rootID := t.currentRoot()
		pg, err := t.pool.FetchPage(rootID)
		if err != nil {
			return nil, 0, nil, err
		}
		pg.Latch.Lock()
		if t.currentRoot() != rootID {
			pg.Latch.Unlock()
			t.pool.UnpinPage(rootID, false)
			time.Sleep(time.Millisecond)
			continue
		}

		stack := []latchedPage{{pid: rootID, pg: pg, write: true}}
		cur := rootID
		curPg := pg

		for !pageIsLeaf(curPg.Data()) {
			node := decodeInternal(curPg.Data())
			childPID := childForKey(node, key)

			childPg, err := t.pool.FetchPage(childPID)
			if err != nil {
				t.releaseStack(stack)
				return nil, 0, nil, err
			}
			childPg.Latch.Lock()

			childSize, childMax := peekSizeMax(childPg.Data())
			if isSafeForInsert(childSize, childMax) {
				t.releaseStack(stack)
				stack = stack[:0]
			}
			stack = append(stack, latchedPage{pid: childPID, pg: childPg, write: true})
			cur = childPID
			curPg = childPg
		}

		leaf := decodeLeaf(curPg.Data())
		return stack, cur, leaf, nil
	}
}

// peekSizeMax reads just the size/maxSize header fields shared by every
// node layout, without decoding the (differently shaped) key/child or
// key/value body — used when crabbing only needs the safety predicate,
// not the full node.
func peekSizeMax(data []byte) (int32, int32) {
	size := int32(binary.LittleEndian.Uint32(data[1:5]))
	maxSize := int32(binary.LittleEndian.Uint32(data[5:9]))
	return size, maxSize
}

// releaseStack unlatches and unpins every page in the stack, in reverse
// (child-to-root) order, leaf last released first.
func (t *BTree) releaseStack(stack []latchedPage) {
	for i := len(stack) - 1; i >= 0; i-- {
		lp := stack[i]
		lp.pg.Latch.Unlock()
		t.pool.UnpinPage(lp.pid, lp.pg.IsDirty())
	}
}

func searchLeaf(leaf *leafNode, key int64) int {
	for i, k := range leaf.keys {
		if k == key {
			return i
		}
	}
	return -1
}

func insertIntoLeaf(leaf *leafNode, key int64, rid primitives.RID) {
	idx := sort.Search(len(leaf.keys), func(i int) bool { return leaf.keys[i] >= key })
	leaf.keys = append(leaf.keys, 0)
	leaf.values = append(leaf.values, primitives.RID{})
	copy(leaf.keys[idx+1:], leaf.keys[idx:])
	copy(leaf.values[idx+1:], leaf.values[idx:])
	leaf.keys[idx] = key
	leaf.values[idx] = rid
	leaf.size++
}

