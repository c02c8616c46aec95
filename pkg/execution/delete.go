package execution

import (
	"context"

	"storemy/pkg/concurrency/lock"
	"storemy/pkg/concurrency/transaction"
	"storemy/pkg/primitives"
	"storemy/pkg/storage/btree"
	"storemy/pkg/storage/heap"
	"storemy/pkg/storage/tuple"
)

// Delete pulls rows from a child iterator, calls LockWrite on each RID
// (which upgrades the child's shared lock in place if it's still held),
// then removes the row from both the heap file and the index.
type Delete struct {
	ctx     context.Context
	child   Iterator
	file    *heap.File
	tree    *btree.BTree
	lockMgr *lock.Manager
	txn     *transaction.Transaction

	removed int64
	done    bool
}

func NewDelete(ctx context.Context, child Iterator, file *heap.File, tree *btree.BTree, lockMgr *lock.Manager, txn *transaction.Transaction) *Delete {
	return &Delete{ctx: ctx, child: child, file: file, tree: tree, lockMgr: lockMgr, txn: txn}
}

func (n *Delete) Init() error {
	return n.child.Init()
}

func (n *Delete) Next() (primitives.RID, *tuple.Tuple, bool, error) {
	if n.done {
		return primitives.RID{}, nil, false, nil
	}

	for {
		rid, t, ok, err := n.child.Next()
		if err != nil {
			return primitives.RID{}, nil, false, err
		}
		if !ok {
			n.done = true
			return primitives.RID{}, tuple.New(n.removed, nil), true, nil
		}

		if err := n.lockMgr.LockWrite(n.ctx, n.txn, rid); err != nil {
			return primitives.RID{}, nil, false, err
		}

		if _, err := n.tree.Remove(t.Key); err != nil {
			return primitives.RID{}, nil, false, err
		}
		if ok, err := n.file.Delete(rid); err != nil {
			return primitives.RID{}, nil, false, err
		} else if ok {
			n.removed++
		}
	}
}

func (n *Delete) Close() error {
	return n.child.Close()
}
