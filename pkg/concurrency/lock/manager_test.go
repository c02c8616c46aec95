package lock

import (
	"context"
	"testing"
	"time"

	"storemy/pkg/concurrency/transaction"
	"storemy/pkg/dberr"
	"storemy/pkg/primitives"
)

func newTestManager() *Manager {
	return New(20*time.Millisecond, 5*time.Millisecond)
}

func TestSharedLocksAreCompatible(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	rid := primitives.NewRID(1, 0)

	t1 := transaction.New(transaction.ReadCommitted)
	t2 := transaction.New(transaction.ReadCommitted)

	if err := m.LockShared(ctx, t1, rid); err != nil {
		t.Fatalf("t1 LockShared: %v", err)
	}
	if err := m.LockShared(ctx, t2, rid); err != nil {
		t.Fatalf("t2 LockShared: %v", err)
	}
}

func TestExclusiveBlocksUntilReleased(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	rid := primitives.NewRID(1, 0)

	t1 := transaction.New(transaction.ReadCommitted)
	t2 := transaction.New(transaction.ReadCommitted)

	if err := m.LockExclusive(ctx, t1, rid); err != nil {
		t.Fatalf("t1 LockExclusive: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- m.LockExclusive(ctx, t2, rid) }()

	select {
	case <-done:
		t.Fatalf("t2 should still be blocked on t1's exclusive lock")
	case <-time.After(30 * time.Millisecond):
	}

	m.Unlock(t1, rid)
	if err := <-done; err != nil {
		t.Fatalf("t2 LockExclusive after release: %v", err)
	}
}

func TestSharedLockUnderReadUncommittedAborts(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	rid := primitives.NewRID(1, 0)

	tx := transaction.New(transaction.ReadUncommitted)
	err := m.LockShared(ctx, tx, rid)
	if err == nil {
		t.Fatalf("expected an error acquiring a shared lock under ReadUncommitted")
	}
	abortErr, ok := err.(*dberr.TransactionAbortError)
	if !ok || abortErr.Reason != dberr.LockSharedOnReadUncommitted {
		t.Fatalf("got %v, want LockSharedOnReadUncommitted abort", err)
	}
	if tx.State() != transaction.Aborted {
		t.Fatalf("expected transaction to be aborted")
	}
}

func TestLockingWhileShrinkingAborts(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	rid1 := primitives.NewRID(1, 0)
	rid2 := primitives.NewRID(2, 0)

	tx := transaction.New(transaction.RepeatableRead)
	if err := m.LockShared(ctx, tx, rid1); err != nil {
		t.Fatalf("LockShared rid1: %v", err)
	}
	m.Unlock(tx, rid1) // flips tx to Shrinking under RepeatableRead

	err := m.LockShared(ctx, tx, rid2)
	if err == nil {
		t.Fatalf("expected locking a new resource while Shrinking to abort")
	}
	abortErr, ok := err.(*dberr.TransactionAbortError)
	if !ok || abortErr.Reason != dberr.LockOnShrinking {
		t.Fatalf("got %v, want LockOnShrinking abort", err)
	}
}

func TestReadCommittedUnlockStaysGrowing(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	rid := primitives.NewRID(1, 0)

	tx := transaction.New(transaction.ReadCommitted)
	if err := m.LockShared(ctx, tx, rid); err != nil {
		t.Fatalf("LockShared: %v", err)
	}
	m.Unlock(tx, rid)

	if tx.State() != transaction.Growing {
		t.Fatalf("got state %v, want Growing to survive an RC unlock", tx.State())
	}
	if err := m.LockShared(ctx, tx, rid); err != nil {
		t.Fatalf("expected a later LockShared under RC to succeed, got %v", err)
	}
}

func TestLockReadDispatchesByIsolation(t *testing.T) {
	ctx := context.Background()

	ruTx := transaction.New(transaction.ReadUncommitted)
	ruMgr := newTestManager()
	ridRU := primitives.NewRID(1, 0)
	if err := ruMgr.LockRead(ctx, ruTx, ridRU); err != nil {
		t.Fatalf("ReadUncommitted LockRead: %v", err)
	}
	if ruTx.HasSharedLock(ridRU) {
		t.Fatalf("ReadUncommitted LockRead should take no lock at all")
	}

	rcMgr := newTestManager()
	rcTx := transaction.New(transaction.ReadCommitted)
	ridRC := primitives.NewRID(2, 0)
	if err := rcMgr.LockRead(ctx, rcTx, ridRC); err != nil {
		t.Fatalf("ReadCommitted LockRead: %v", err)
	}
	if rcTx.HasSharedLock(ridRC) {
		t.Fatalf("ReadCommitted LockRead should release the lock immediately")
	}
	if rcTx.State() != transaction.Growing {
		t.Fatalf("got state %v, want Growing after an RC LockRead", rcTx.State())
	}

	rrMgr := newTestManager()
	rrTx := transaction.New(transaction.RepeatableRead)
	ridRR := primitives.NewRID(3, 0)
	if err := rrMgr.LockRead(ctx, rrTx, ridRR); err != nil {
		t.Fatalf("RepeatableRead LockRead: %v", err)
	}
	if !rrTx.HasSharedLock(ridRR) {
		t.Fatalf("RepeatableRead LockRead should hold its shared lock")
	}
}

func TestLockWriteUpgradesExistingSharedLock(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	rid := primitives.NewRID(1, 0)

	tx := transaction.New(transaction.RepeatableRead)
	if err := m.LockShared(ctx, tx, rid); err != nil {
		t.Fatalf("LockShared: %v", err)
	}
	if err := m.LockWrite(ctx, tx, rid); err != nil {
		t.Fatalf("LockWrite: %v", err)
	}
	if !tx.HasExclusiveLock(rid) || tx.HasSharedLock(rid) {
		t.Fatalf("expected LockWrite to upgrade the existing shared lock to exclusive only")
	}
}

func TestUpgradeSharedToExclusive(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	rid := primitives.NewRID(1, 0)

	tx := transaction.New(transaction.ReadCommitted)
	if err := m.LockShared(ctx, tx, rid); err != nil {
		t.Fatalf("LockShared: %v", err)
	}
	if err := m.LockUpgrade(ctx, tx, rid); err != nil {
		t.Fatalf("LockUpgrade: %v", err)
	}
	if !tx.HasExclusiveLock(rid) || tx.HasSharedLock(rid) {
		t.Fatalf("expected tx to hold exclusive only after upgrade")
	}
}

func TestConcurrentUpgradeConflictAbortsOne(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	rid := primitives.NewRID(1, 0)

	t1 := transaction.New(transaction.ReadCommitted)
	t2 := transaction.New(transaction.ReadCommitted)
	m.LockShared(ctx, t1, rid)
	m.LockShared(ctx, t2, rid)

	errs := make(chan error, 2)
	go func() { errs <- m.LockUpgrade(ctx, t1, rid) }()
	go func() { errs <- m.LockUpgrade(ctx, t2, rid) }()

	e1 := <-errs
	// The rejected upgrader still holds its shared lock; release it, as a
	// rollback would, so the surviving upgrade can be granted.
	for _, tx := range []*transaction.Transaction{t1, t2} {
		if tx.State() == transaction.Aborted {
			m.Unlock(tx, rid)
		}
	}
	e2 := <-errs

	aborts := 0
	for _, e := range []error{e1, e2} {
		if e != nil {
			aborts++
		}
	}
	if aborts == 0 {
		t.Fatalf("expected at least one concurrent upgrade to be rejected")
	}
}

func TestDeadlockDetectorAbortsYoungestInCycle(t *testing.T) {
	m := newTestManager()
	registry := transaction.NewRegistry()
	m.StartDeadlockDetector(registry)
	defer m.StopDeadlockDetector()

	ctx := context.Background()
	ridA := primitives.NewRID(1, 0)
	ridB := primitives.NewRID(2, 0)

	t1 := registry.Begin(transaction.ReadCommitted)
	t2 := registry.Begin(transaction.ReadCommitted)

	if err := m.LockExclusive(ctx, t1, ridA); err != nil {
		t.Fatalf("t1 lock ridA: %v", err)
	}
	if err := m.LockExclusive(ctx, t2, ridB); err != nil {
		t.Fatalf("t2 lock ridB: %v", err)
	}

	errs := make(chan error, 2)
	go func() { errs <- m.LockExclusive(ctx, t1, ridB) }()
	go func() { errs <- m.LockExclusive(ctx, t2, ridA) }()

	e1 := <-errs
	abortErr, ok := e1.(*dberr.TransactionAbortError)
	if !ok || abortErr.Reason != dberr.Deadlock || abortErr.TxnID != t2.ID() {
		t.Fatalf("got %v, want a deadlock abort of the younger transaction %v", e1, t2.ID())
	}
	// The detector only marks the victim aborted; its lock on ridB stays
	// held until released, as a rollback would, so t1 can proceed.
	m.Unlock(t2, ridB)
	e2 := <-errs
	if e2 != nil {
		t.Fatalf("t1 LockExclusive ridB after the victim released it: %v", e2)
	}

	aborted := 0
	for _, e := range []error{e1, e2} {
		if e != nil {
			aborted++
		}
	}
	if aborted == 0 {
		t.Fatalf("expected the deadlock detector to abort a cycle participant")
	}
}
