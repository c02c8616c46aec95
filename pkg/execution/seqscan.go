package execution

import (
	"context"

	"storemy/pkg/concurrency/lock"
	"storemy/pkg/concurrency/transaction"
	"storemy/pkg/primitives"
	"storemy/pkg/storage/heap"
	"storemy/pkg/storage/tuple"
)

// SeqScan walks every tuple in a heap.File in storage order, calling
// LockRead on each RID before returning it. What that lock costs depends
// on txn's isolation level: READ_UNCOMMITTED takes nothing, READ_COMMITTED
// takes and releases a shared lock per row, and REPEATABLE_READ holds the
// shared lock for the rest of txn's lifetime.
type SeqScan struct {
	ctx    context.Context
	file   *heap.File
	lockMgr *lock.Manager
	txn    *transaction.Transaction

	it *heap.ScanIterator
}

func NewSeqScan(ctx context.Context, file *heap.File, lockMgr *lock.Manager, txn *transaction.Transaction) *SeqScan {
	return &SeqScan{ctx: ctx, file: file, lockMgr: lockMgr, txn: txn}
}

func (s *SeqScan) Init() error {
	s.it = s.file.Scan()
	return nil
}

func (s *SeqScan) Next() (primitives.RID, *tuple.Tuple, bool, error) {
	for {
		rid, t, ok := s.it.Next()
		if !ok {
			return primitives.RID{}, nil, false, nil
		}
		if err := s.lockMgr.LockRead(s.ctx, s.txn, rid); err != nil {
			return primitives.RID{}, nil, false, err
		}
		return rid, t, true, nil
	}
}

func (s *SeqScan) Close() error { return nil }
