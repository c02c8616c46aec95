package btree

import (
	"sort"

	"storemy/pkg/logging"
	"storemy/pkg/primitives"
)

// splitLeafAndInsertParent splits an overflowing leaf in two and pushes
// the new right half's first key up into the ancestor chain still held
// in stack (stack's last entry is the leaf itself). Every ancestor in
// stack is already latched for write by descendForInsert, so this only
// needs to manage the pages it allocates fresh.
func (t *BTree) splitLeafAndInsertParent(stack []latchedPage, leafPID primitives.PageID, leaf *leafNode) {
	mid := leaf.size / 2

	right := &leafNode{
		maxSize:  leaf.maxSize,
		parentID: leaf.parentID,
		nextLeaf: leaf.nextLeaf,
		keys:     append([]int64{}, leaf.keys[mid:]...),
		values:   append([]primitives.RID{}, leaf.values[mid:]...),
	}
	right.size = int32(len(right.keys))

	leaf.keys = leaf.keys[:mid]
	leaf.values = leaf.values[:mid]
	leaf.size = mid

	rightPg, err := t.pool.NewPage()
	if err != nil {
		return
	}
	rightPID := rightPg.ID()
	leaf.nextLeaf = rightPID

	leafPg := stack[len(stack)-1].pg
	leaf.encode(leafPg.Data())
	leafPg.MarkDirty(true)

	rightPg.Latch.Lock()
	right.encode(rightPg.Data())
	rightPg.Latch.Unlock()
	rightPg.MarkDirty(true)
	t.pool.UnpinPage(rightPID, true)

	separator := right.keys[0]
	logging.WithPage(leafPID).Debug("leaf split", "new_right", rightPID, "separator", separator)

	t.insertIntoParent(stack[:len(stack)-1], leafPID, separator, rightPID, leaf.parentID)
}

// insertIntoParent pushes (separator, rightPID) into the parent of the
// node that just split (leftPID is the left half's page id, already
// linked as parent's existing child). ancestors is the remaining stack
// with the split node's own entry removed; its last element, if any, is
// the parent. If ancestors is empty, leftPID was the root and a fresh
// root is allocated above it.
func (t *BTree) insertIntoParent(ancestors []latchedPage, leftPID primitives.PageID, separator int64, rightPID primitives.PageID, parentID primitives.PageID) {
	if len(ancestors) == 0 {
		t.createNewRoot(leftPID, separator, rightPID)
		return
	}

	parentPg := ancestors[len(ancestors)-1].pg
	parent := decodeInternal(parentPg.Data())

	idx := sort.Search(len(parent.keys), func(i int) bool { return parent.keys[i] >= separator })
	parent.keys = append(parent.keys, 0)
	copy(parent.keys[idx+1:], parent.keys[idx:])
	parent.keys[idx] = separator

	childIdx := idx + 1
	parent.children = append(parent.children, primitives.InvalidPageID)
	copy(parent.children[childIdx+1:], parent.children[childIdx:])
	parent.children[childIdx] = rightPID
	parent.size++

	if parent.size <= parent.maxSize-1 {
		parent.encode(parentPg.Data())
		parentPg.MarkDirty(true)
		return
	}

	t.splitInternalAndInsertParent(ancestors, parent)
}

// splitInternalAndInsertParent splits an overflowing internal node: the
// middle key is promoted to the grandparent (removed from both halves,
// unlike a leaf split where the separator is copied, not moved).
func (t *BTree) splitInternalAndInsertParent(ancestors []latchedPage, node *internalNode) {
	mid := node.size / 2
	promoted := node.keys[mid]

	left := &internalNode{
		maxSize:  node.maxSize,
		parentID: node.parentID,
		keys:     append([]int64{}, node.keys[:mid]...),
		children: append([]primitives.PageID{}, node.children[:mid+1]...),
	}
	left.size = int32(len(left.keys))

	right := &internalNode{
		maxSize:  node.maxSize,
		parentID: node.parentID,
		keys:     append([]int64{}, node.keys[mid+1:]...),
		children: append([]primitives.PageID{}, node.children[mid+1:]...),
	}
	right.size = int32(len(right.keys))

	leftPg := ancestors[len(ancestors)-1].pg
	leftPID := ancestors[len(ancestors)-1].pid
	left.encode(leftPg.Data())
	leftPg.MarkDirty(true)

	rightPg, err := t.pool.NewPage()
	if err != nil {
		return
	}
	rightPID := rightPg.ID()
	rightPg.Latch.Lock()
	right.encode(rightPg.Data())
	rightPg.Latch.Unlock()
	t.reparentChildren(right.children, rightPID)
	rightPg.MarkDirty(true)
	t.pool.UnpinPage(rightPID, true)

	logging.WithPage(leftPID).Debug("internal node split", "new_right", rightPID, "promoted", promoted)

	t.insertIntoParent(ancestors[:len(ancestors)-1], leftPID, promoted, rightPID, node.parentID)
}

// reparentChildren updates every child page's stored parentID to newParent
// after it has been moved to a different node by a split.
func (t *BTree) reparentChildren(children []primitives.PageID, newParent primitives.PageID) {
	for _, cid := range children {
		pg, err := t.pool.FetchPage(cid)
		if err != nil {
			continue
		}
		pg.Latch.Lock()
		if pageIsLeaf(pg.Data()) {
			n := decodeLeaf(pg.Data())
			n.parentID = newParent
			n.encode(pg.Data())
		} else {
			n := decodeInternal(pg.Data())
			n.parentID = newParent
			n.encode(pg.Data())
		}
		pg.Latch.Unlock()
		t.pool.UnpinPage(cid, true)
	}
}

// createNewRoot allocates a fresh internal root page with exactly two
// children, used both when the tree's only leaf first splits and when a
// split propagates all the way through the previous root.
func (t *BTree) createNewRoot(leftPID primitives.PageID, separator int64, rightPID primitives.PageID) {
	pg, err := t.pool.NewPage()
	if err != nil {
		return
	}
	root := &internalNode{
		maxSize:  t.internalMaxSize,
		parentID: primitives.InvalidPageID,
		keys:     []int64{separator},
		children: []primitives.PageID{leftPID, rightPID},
		size:     1,
	}
	pg.Latch.Lock()
	root.encode(pg.Data())
	pg.Latch.Unlock()
	pg.MarkDirty(true)
	rootPID := pg.ID()
	t.pool.UnpinPage(rootPID, true)

	t.setChildParent(leftPID, rootPID)
	t.setChildParent(rightPID, rootPID)
	t.setRoot(rootPID)
	logging.WithPage(rootPID).Debug("new root created", "left", leftPID, "right", rightPID)
}

func (t *BTree) setChildParent(pid, parent primitives.PageID) {
	pg, err := t.pool.FetchPage(pid)
	if err != nil {
		return
	}
	pg.Latch.Lock()
	if pageIsLeaf(pg.Data()) {
		n := decodeLeaf(pg.Data())
		n.parentID = parent
		n.encode(pg.Data())
	} else {
		n := decodeInternal(pg.Data())
		n.parentID = parent
		n.encode(pg.Data())
	}
	pg.Latch.Unlock()
	t.pool.UnpinPage(pid, true)
}
