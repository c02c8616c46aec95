package btree

import (
	"storemy/pkg/storage/page"
	"time"

	"storemy/pkg/logging"
	"storemy/pkg/primitives"
)

// Remove deletes key from the tree. Returns false if key was not present
// — a benign miss, not an error.
func (t *BTree) Remove(key int64) (bool, error) {
	if t.IsEmpty() {
		return false, nil
	}

	stack, leafPID, leaf, err := t.descendForDelete(key)
	if err != nil {
		return false, err
	}
	defer t.releaseStack(stack)

	idx := searchLeaf(leaf, key)
	if idx < 0 {
		return false, nil
	}
	removeAt(leaf, idx)

	leafPg := stack[len(stack)-1].pg
	leaf.encode(leafPg.Data())
	leafPg.MarkDirty(true)

	if len(stack) == 1 {
		// Either the leaf is the root, or every ancestor was released
		// because the leaf was safe; adjustRootIfLeaf acts only once the
		// tree is empty.
		t.adjustRootIfLeaf(leafPID, leaf)
		return true, nil
	}

	minSize := (leaf.maxSize + 1) / 2
	if leaf.size >= minSize {
		return true, nil
	}
	t.fixUnderflow(stack[:len(stack)-1], leafPID, leaf.parentID)
	return true, nil
}

func removeAt(leaf *leafNode, idx int) {
	leaf.keys = append(leaf.keys[:idx], leaf.keys[idx+1:]...)
	leaf.values = append(leaf.values[:idx], leaf.values[idx+1:]...)
	leaf.size--
}

// descendForDelete mirrors descendForInsert but with the delete-side
// safety predicate: an ancestor is released once its child is provably
// safe from underflow propagation.
func (t *BTree) descendForDelete(key int64) ([]latchedPage, primitives.PageID, *leafNode, error) {
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
			if isSafeForDelete(childSize, childMax) {
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

// fixUnderflow merges or redistributes nodePID with a sibling, given its
// parent is ancestors' last entry. If a merge empties the parent below
// its own minimum, the fix propagates one level up through ancestors.
//
// The parent's write latch (held via ancestors) keeps any other writer
// from reaching these siblings through the same parent, but a reader
// doing a leaf-chain scan can still reach a sibling leaf directly via
// nextLeaf without ever latching the parent, so siblings are latched
// individually here too before their contents are mutated.
func (t *BTree) fixUnderflow(ancestors []latchedPage, nodePID primitives.PageID, parentID primitives.PageID) {
	parentPg := ancestors[len(ancestors)-1].pg
	parent := decodeInternal(parentPg.Data())

	childIdx := -1
	for i, c := range parent.children {
		if c == nodePID {
			childIdx = i
			break
		}
	}
	if childIdx < 0 {
		return
	}

	if pageIsLeaf(t.mustFetchData(nodePID)) {
		t.fixLeafUnderflow(ancestors, parent, parentPg, childIdx, nodePID)
	} else {
		t.fixInternalUnderflow(ancestors, parent, parentPg, childIdx, nodePID)
	}
}

// mustFetchData returns the data of a page the caller already holds
// pinned, fetching it once more and unpinning right away; the caller's
// own pin keeps the frame resident. Used only to branch on leaf vs
// internal.
func (t *BTree) mustFetchData(pid primitives.PageID) []byte {
	pg, err := t.pool.FetchPage(pid)
	if err != nil {
		return []byte{0}
	}
	data := pg.Data()
	t.pool.UnpinPage(pid, false)
	return data
}

func (t *BTree) fixLeafUnderflow(ancestors []latchedPage, parent *internalNode, parentPg *page.Page, childIdx int, nodePID primitives.PageID) {
	nodePg, err := t.pool.FetchPage(nodePID)
	if err != nil {
		return
	}
	node := decodeLeaf(nodePg.Data())
	minSize := (node.maxSize + 1) / 2

	if childIdx > 0 {
		leftPID := parent.children[childIdx-1]
		leftPg, _ := t.pool.FetchPage(leftPID)
		leftPg.Latch.Lock()
		left := decodeLeaf(leftPg.Data())

		if left.size > minSize {
			borrowed := left.keys[left.size-1]
			borrowedVal := left.values[left.size-1]
			left.keys = left.keys[:left.size-1]
			left.values = left.values[:left.size-1]
			left.size--

			node.keys = append([]int64{borrowed}, node.keys...)
			node.values = append([]primitives.RID{borrowedVal}, node.values...)
			node.size++

			left.encode(leftPg.Data())
			node.encode(nodePg.Data())
			leftPg.MarkDirty(true)
			nodePg.MarkDirty(true)
			parent.keys[childIdx-1] = node.keys[0]
			parent.encode(parentPg.Data())
			parentPg.MarkDirty(true)
			leftPg.Latch.Unlock()
			t.pool.UnpinPage(leftPID, true)
			t.pool.UnpinPage(nodePID, true)
			return
		}

		// Merge node into left sibling.
		left.keys = append(left.keys, node.keys...)
		left.values = append(left.values, node.values...)
		left.size = int32(len(left.keys))
		left.nextLeaf = node.nextLeaf
		left.encode(leftPg.Data())
		leftPg.MarkDirty(true)
		leftPg.Latch.Unlock()
			t.pool.UnpinPage(leftPID, true)
		t.pool.UnpinPage(nodePID, true)
		t.pool.DeletePage(nodePID)

		removeChildFromParent(parent, childIdx-1)
		logging.WithPage(leftPID).Debug("leaf merged", "absorbed", nodePID)
		t.afterParentShrink(ancestors, parent, parentPg)
		return
	}

	// No left sibling: borrow from or merge with the right sibling.
	if childIdx+1 < len(parent.children) {
		rightPID := parent.children[childIdx+1]
		rightPg, _ := t.pool.FetchPage(rightPID)
		rightPg.Latch.Lock()
		right := decodeLeaf(rightPg.Data())

		if right.size > minSize {
			borrowed := right.keys[0]
			borrowedVal := right.values[0]
			right.keys = right.keys[1:]
			right.values = right.values[1:]
			right.size--

			node.keys = append(node.keys, borrowed)
			node.values = append(node.values, borrowedVal)
			node.size++

			right.encode(rightPg.Data())
			node.encode(nodePg.Data())
			rightPg.MarkDirty(true)
			nodePg.MarkDirty(true)
			parent.keys[childIdx] = right.keys[0]
			parent.encode(parentPg.Data())
			parentPg.MarkDirty(true)
			rightPg.Latch.Unlock()
			t.pool.UnpinPage(rightPID, true)
			t.pool.UnpinPage(nodePID, true)
			return
		}

		node.keys = append(node.keys, right.keys...)
		node.values = append(node.values, right.values...)
		node.size = int32(len(node.keys))
		node.nextLeaf = right.nextLeaf
		node.encode(nodePg.Data())
		nodePg.MarkDirty(true)
		t.pool.UnpinPage(nodePID, true)
		rightPg.Latch.Unlock()
		t.pool.UnpinPage(rightPID, true)
		t.pool.DeletePage(rightPID)

		removeChildFromParent(parent, childIdx)
		logging.WithPage(nodePID).Debug("leaf merged", "absorbed", rightPID)
		t.afterParentShrink(ancestors, parent, parentPg)
		return
	}

	t.pool.UnpinPage(nodePID, false)
}

// afterParentShrink writes the parent back and, if it is now underflowed
// itself, recurses the fix one level up through ancestors (or adjusts
// the root if the parent has no ancestors above it).
func (t *BTree) afterParentShrink(ancestors []latchedPage, parent *internalNode, parentPg *page.Page) {
	parentPID := ancestors[len(ancestors)-1].pid
	parent.encode(parentPg.Data())
	parentPg.MarkDirty(true)

	if len(ancestors) == 1 {
		t.adjustRootIfInternal(parentPID, parent)
		return
	}

	minSize := (parent.maxSize + 1) / 2
	if parent.size >= minSize {
		return
	}
	t.fixUnderflow(ancestors[:len(ancestors)-1], parentPID, parent.parentID)
}

func (t *BTree) fixInternalUnderflow(ancestors []latchedPage, parent *internalNode, parentPg *page.Page, childIdx int, nodePID primitives.PageID) {
	nodePg, err := t.pool.FetchPage(nodePID)
	if err != nil {
		return
	}
	node := decodeInternal(nodePg.Data())
	minSize := (node.maxSize + 1) / 2

	if childIdx > 0 {
		leftPID := parent.children[childIdx-1]
		leftPg, _ := t.pool.FetchPage(leftPID)
		leftPg.Latch.Lock()
		left := decodeInternal(leftPg.Data())

		if left.size > minSize {
			borrowedKey := left.keys[left.size-1]
			borrowedChild := left.children[left.size]
			left.keys = left.keys[:left.size-1]
			left.children = left.children[:left.size]
			left.size--

			node.keys = append([]int64{parent.keys[childIdx-1]}, node.keys...)
			node.children = append([]primitives.PageID{borrowedChild}, node.children...)
			node.size++
			t.setChildParent(borrowedChild, nodePID)

			left.encode(leftPg.Data())
			node.encode(nodePg.Data())
			leftPg.MarkDirty(true)
			nodePg.MarkDirty(true)
			parent.keys[childIdx-1] = borrowedKey
			parent.encode(parentPg.Data())
			parentPg.MarkDirty(true)
			leftPg.Latch.Unlock()
			t.pool.UnpinPage(leftPID, true)
			t.pool.UnpinPage(nodePID, true)
			return
		}

		sep := parent.keys[childIdx-1]
		left.keys = append(left.keys, sep)
		left.keys = append(left.keys, node.keys...)
		left.children = append(left.children, node.children...)
		left.size = int32(len(left.keys))
		t.reparentChildren(node.children, leftPID)
		left.encode(leftPg.Data())
		leftPg.MarkDirty(true)
		leftPg.Latch.Unlock()
			t.pool.UnpinPage(leftPID, true)
		t.pool.UnpinPage(nodePID, true)
		t.pool.DeletePage(nodePID)

		removeChildFromParent(parent, childIdx-1)
		logging.WithPage(leftPID).Debug("internal node merged", "absorbed", nodePID)
		t.afterParentShrink(ancestors, parent, parentPg)
		return
	}

	if childIdx+1 < len(parent.children) {
		rightPID := parent.children[childIdx+1]
		rightPg, _ := t.pool.FetchPage(rightPID)
		rightPg.Latch.Lock()
		right := decodeInternal(rightPg.Data())

		if right.size > minSize {
			borrowedKey := right.keys[0]
			borrowedChild := right.children[0]
			right.keys = right.keys[1:]
			right.children = right.children[1:]
			right.size--
			t.setChildParent(borrowedChild, nodePID)

			node.keys = append(node.keys, parent.keys[childIdx])
			node.children = append(node.children, borrowedChild)
			node.size++

			right.encode(rightPg.Data())
			node.encode(nodePg.Data())
			rightPg.MarkDirty(true)
			nodePg.MarkDirty(true)
			parent.keys[childIdx] = borrowedKey
			parent.encode(parentPg.Data())
			parentPg.MarkDirty(true)
			rightPg.Latch.Unlock()
			t.pool.UnpinPage(rightPID, true)
			t.pool.UnpinPage(nodePID, true)
			return
		}

		sep := parent.keys[childIdx]
		node.keys = append(node.keys, sep)
		node.keys = append(node.keys, right.keys...)
		node.children = append(node.children, right.children...)
		node.size = int32(len(node.keys))
		t.reparentChildren(right.children, nodePID)
		node.encode(nodePg.Data())
		nodePg.MarkDirty(true)
		t.pool.UnpinPage(nodePID, true)
		rightPg.Latch.Unlock()
		t.pool.UnpinPage(rightPID, true)
		t.pool.DeletePage(rightPID)

		removeChildFromParent(parent, childIdx)
		logging.WithPage(nodePID).Debug("internal node merged", "absorbed", rightPID)
		t.afterParentShrink(ancestors, parent, parentPg)
		return
	}

	t.pool.UnpinPage(nodePID, false)
}

func removeChildFromParent(parent *internalNode, keyIdx int) {
	parent.keys = append(parent.keys[:keyIdx], parent.keys[keyIdx+1:]...)
	parent.children = append(parent.children[:keyIdx+1], parent.children[keyIdx+2:]...)
	parent.size = int32(len(parent.keys))
}

// adjustRootIfLeaf deallocates the root page if the whole tree just
// became empty.
func (t *BTree) adjustRootIfLeaf(pid primitives.PageID, leaf *leafNode) {
	if leaf.size > 0 {
		return
	}
	t.pool.DeletePage(pid)
	t.setRoot(primitives.InvalidPageID)
}

// adjustRootIfInternal promotes an internal root's sole remaining child
// to be the new root once the root itself has no keys left.
func (t *BTree) adjustRootIfInternal(pid primitives.PageID, node *internalNode) {
	if node.size > 0 {
		return
	}
	newRoot := node.children[0]
	t.setChildParent(newRoot, primitives.InvalidPageID)
	t.pool.DeletePage(pid)
	t.setRoot(newRoot)
	logging.WithPage(newRoot).Debug("root collapsed after merge")
}
