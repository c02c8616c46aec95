package btree

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"storemy/pkg/primitives"
)

// DebugString renders the tree as a depth-first (pre-order), indented text dump.
// It takes no latches beyond a single read-latch per page visited, and
// exists only for tests asserting tree shape after a sequence of
// inserts/removes — never called from production control flow.
func (t *BTree) DebugString() string {
	var b strings.Builder
	root := t.currentRoot()
	if root == primitives.InvalidPageID {
		return "<empty>"
	}
	t.dump(&b, root, 0)
	return b.String()
}

func (t *BTree) dump(b *strings.Builder, pid primitives.PageID, depth int) {
	pg, err := t.pool.FetchPage(pid)
	if err != nil {
		fmt.Fprintf(b, "%s<fetch error: %v>\n", strings.Repeat("  ", depth), err)
		return
	}
	pg.Latch.RLock()
	leaf := pageIsLeaf(pg.Data())
	var node *internalNode
	var lf *leafNode
	if leaf {
		lf = decodeLeaf(pg.Data())
	} else {
		node = decodeInternal(pg.Data())
	}
	pg.Latch.RUnlock()
	t.pool.UnpinPage(pid, false)

	indent := strings.Repeat("  ", depth)
	if leaf {
		fmt.Fprintf(b, "%sleaf(%d) keys=%v\n", indent, pid, lf.keys)
		return
	}
	fmt.Fprintf(b, "%sinternal(%d) keys=%v\n", indent, pid, node.keys)
	for _, c := range node.children {
		t.dump(b, c, depth+1)
	}
}

// VerifyIntegrity walks every reachable page and checks basic structural
// invariants (child's parent pointer agrees with its actual parent,
// every node's size is within [0, maxSize]), visiting sibling subtrees
// concurrently via errgroup and returning the first violation found.
func (t *BTree) VerifyIntegrity(ctx context.Context) error {
	root := t.currentRoot()
	if root == primitives.InvalidPageID {
		return nil
	}
	return t.verifyNode(ctx, root, primitives.InvalidPageID)
}

func (t *BTree) verifyNode(ctx context.Context, pid primitives.PageID, expectedParent primitives.PageID) error {
	pg, err := t.pool.FetchPage(pid)
	if err != nil {
		return err
	}
	pg.Latch.RLock()
	leaf := pageIsLeaf(pg.Data())
	var node *internalNode
	var lf *leafNode
	if leaf {
		lf = decodeLeaf(pg.Data())
	} else {
		node = decodeInternal(pg.Data())
	}
	pg.Latch.RUnlock()
	t.pool.UnpinPage(pid, false)

	if leaf {
		if expectedParent != primitives.InvalidPageID && lf.parentID != expectedParent {
			return fmt.Errorf("leaf %d: parent mismatch, got %d want %d", pid, lf.parentID, expectedParent)
		}
		if lf.size < 0 || lf.size > lf.maxSize {
			return fmt.Errorf("leaf %d: size %d out of bounds [0,%d]", pid, lf.size, lf.maxSize)
		}
		return nil
	}

	if expectedParent != primitives.InvalidPageID && node.parentID != expectedParent {
		return fmt.Errorf("internal %d: parent mismatch, got %d want %d", pid, node.parentID, expectedParent)
	}
	if node.size < 0 || node.size > node.maxSize {
		return fmt.Errorf("internal %d: size %d out of bounds [0,%d]", pid, node.size, node.maxSize)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, child := range node.children {
		child := child
		g.Go(func() error {
			return t.verifyNode(gctx, child, pid)
		})
	}
	return g.Wait()
}
