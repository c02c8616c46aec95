package execution

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"storemy/pkg/buffer"
	"storemy/pkg/concurrency/lock"
	"storemy/pkg/concurrency/transaction"
	"storemy/pkg/storage/btree"
	"storemy/pkg/storage/disk"
	"storemy/pkg/storage/heap"
	"storemy/pkg/storage/tuple"
)

type testEnv struct {
	file    *heap.File
	tree    *btree.BTree
	lockMgr *lock.Manager
	txn     *transaction.Transaction
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exec.db")
	dm, err := disk.New(path)
	if err != nil {
		t.Fatalf("disk.New: %v", err)
	}
	t.Cleanup(func() { dm.Close() })

	pool := buffer.NewPool(256, dm)
	return &testEnv{
		file:    heap.NewFile(pool),
		tree:    btree.New(pool, 4, 4),
		lockMgr: lock.New(20*time.Millisecond, 5*time.Millisecond),
		txn:     transaction.New(transaction.ReadCommitted),
	}
}

func drain(t *testing.T, it Iterator) []*tuple.Tuple {
	t.Helper()
	if err := it.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var out []*tuple.Tuple
	for {
		_, tup, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		out = append(out, tup)
	}
	if err := it.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return out
}

func TestInsertThenSeqScan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rows := []*tuple.Tuple{
		tuple.New(1, []byte("a")),
		tuple.New(2, []byte("b")),
		tuple.New(3, []byte("c")),
	}
	ins := NewInsert(ctx, env.file, env.tree, env.lockMgr, env.txn, rows)
	results := drain(t, ins)
	if len(results) != 1 || results[0].Key != 3 {
		t.Fatalf("Insert result = %+v, want a single tuple with count 3", results)
	}

	scan := NewSeqScan(ctx, env.file, env.lockMgr, env.txn)
	seen := drain(t, scan)
	if len(seen) != 3 {
		t.Fatalf("SeqScan visited %d rows, want 3", len(seen))
	}
}

func TestIndexScanRespectsRange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var rows []*tuple.Tuple
	for i := int64(0); i < 20; i++ {
		rows = append(rows, tuple.New(i, []byte("row")))
	}
	drain(t, NewInsert(ctx, env.file, env.tree, env.lockMgr, env.txn, rows))

	scan := NewIndexScan(ctx, env.tree, env.file, env.lockMgr, env.txn, 5, 9)
	got := drain(t, scan)
	if len(got) != 5 {
		t.Fatalf("IndexScan[5,9] returned %d rows, want 5", len(got))
	}
	for i, tup := range got {
		if tup.Key != int64(5+i) {
			t.Fatalf("got key %d at position %d, want %d", tup.Key, i, 5+i)
		}
	}
}

func TestDeleteRemovesFromHeapAndIndex(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rows := []*tuple.Tuple{
		tuple.New(1, []byte("a")),
		tuple.New(2, []byte("b")),
	}
	drain(t, NewInsert(ctx, env.file, env.tree, env.lockMgr, env.txn, rows))

	child := NewIndexScan(ctx, env.tree, env.file, env.lockMgr, env.txn, 1, 1)
	del := NewDelete(ctx, child, env.file, env.tree, env.lockMgr, env.txn)
	results := drain(t, del)
	if len(results) != 1 || results[0].Key != 1 {
		t.Fatalf("Delete result = %+v, want a single tuple with count 1", results)
	}

	if _, found := env.tree.GetValue(1); found {
		t.Fatalf("key 1 should have been removed from the index")
	}

	remaining := drain(t, NewSeqScan(ctx, env.file, env.lockMgr, env.txn))
	if len(remaining) != 1 || remaining[0].Key != 2 {
		t.Fatalf("expected only key 2 to remain, got %+v", remaining)
	}
}

func TestLimitStopsEarlyWithoutDrainingChild(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var rows []*tuple.Tuple
	for i := int64(0); i < 10; i++ {
		rows = append(rows, tuple.New(i, []byte("row")))
	}
	drain(t, NewInsert(ctx, env.file, env.tree, env.lockMgr, env.txn, rows))

	scan := NewSeqScan(ctx, env.file, env.lockMgr, env.txn)
	limited := NewLimit(scan, 3)
	got := drain(t, limited)
	if len(got) != 3 {
		t.Fatalf("Limit(3) returned %d rows, want 3", len(got))
	}
}
