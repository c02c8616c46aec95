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

// Insert writes its rows into the heap file and its index. Each row goes
// into the heap first; an exclusive lock is then taken on the freshly
// minted RID before the row is added to the index. It runs to completion
// on the first Next call, the conventional shape for a one-shot DML node.
type Insert struct {
	ctx     context.Context
	file    *heap.File
	tree    *btree.BTree
	lockMgr *lock.Manager
	txn     *transaction.Transaction
	rows    []*tuple.Tuple

	done bool
}

func NewInsert(ctx context.Context, file *heap.File, tree *btree.BTree, lockMgr *lock.Manager, txn *transaction.Transaction, rows []*tuple.Tuple) *Insert {
	return &Insert{ctx: ctx, file: file, tree: tree, lockMgr: lockMgr, txn: txn, rows: rows}
}

func (n *Insert) Init() error { return nil }

// Next inserts every row and returns the count as a single synthetic
// result tuple, then reports exhaustion on the following call.
func (n *Insert) Next() (primitives.RID, *tuple.Tuple, bool, error) {
	if n.done {
		return primitives.RID{}, nil, false, nil
	}
	n.done = true

	var inserted int64
	for _, row := range n.rows {
		rid, err := n.file.Insert(row)
		if err != nil {
			return primitives.RID{}, nil, false, err
		}
		if err := n.lockMgr.LockWrite(n.ctx, n.txn, rid); err != nil {
			return primitives.RID{}, nil, false, err
		}
		if _, err := n.tree.Insert(row.Key, rid); err != nil {
			return primitives.RID{}, nil, false, err
		}
		inserted++
	}

	return primitives.RID{}, tuple.New(inserted, nil), true, nil
}

func (n *Insert) Close() error { return nil }
