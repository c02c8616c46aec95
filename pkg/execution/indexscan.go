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

// IndexScan returns tuples in key order over [from, to], using a
// btree.Iterator to find the matching RIDs and the heap file to fetch
// their payloads. Each RID goes through LockRead before its tuple is
// returned, same as SeqScan.
type IndexScan struct {
	ctx     context.Context
	tree    *btree.BTree
	file    *heap.File
	lockMgr *lock.Manager
	txn     *transaction.Transaction
	from    int64
	to      int64

	it *btree.Iterator
}

func NewIndexScan(ctx context.Context, tree *btree.BTree, file *heap.File, lockMgr *lock.Manager, txn *transaction.Transaction, from, to int64) *IndexScan {
	return &IndexScan{ctx: ctx, tree: tree, file: file, lockMgr: lockMgr, txn: txn, from: from, to: to}
}

func (s *IndexScan) Init() error {
	s.it = s.tree.SeekRange(s.from, s.to)
	return nil
}

func (s *IndexScan) Next() (primitives.RID, *tuple.Tuple, bool, error) {
	if !s.it.Valid() {
		return primitives.RID{}, nil, false, nil
	}
	rid := s.it.Value()
	s.it.Next()

	if err := s.lockMgr.LockRead(s.ctx, s.txn, rid); err != nil {
		return primitives.RID{}, nil, false, err
	}
	t, err := s.file.Get(rid)
	if err != nil {
		return primitives.RID{}, nil, false, err
	}
	if t == nil {
		return s.Next()
	}
	return rid, t, true, nil
}

func (s *IndexScan) Close() error {
	if s.it != nil {
		s.it.Close()
	}
	return nil
}
