// Package lock implements the record-level lock manager: strict two-phase
// locking with isolation-level-aware admission, FIFO lock queues, and a
// background deadlock detector that aborts the youngest transaction in
// any wait-for cycle it finds.
package lock

import (
	"context"
	"sync"
	"time"

	"storemy/pkg/concurrency/transaction"
	"storemy/pkg/dberr"
	"storemy/pkg/logging"
	"storemy/pkg/primitives"
)

// Manager is the lock table plus the detector that polices it.
type Manager struct {
	tableMu sync.Mutex
	table   map[primitives.RID]*RequestQueue

	waitMu  sync.Mutex
	waitOn  map[primitives.TxnID]*RequestQueue

	detectInterval time.Duration
	pollInterval   time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Manager. Callers start the background detector with
// StartDeadlockDetector once the engine is otherwise ready.
func New(detectInterval, pollInterval time.Duration) *Manager {
	return &Manager{
		table:          make(map[primitives.RID]*RequestQueue),
		waitOn:         make(map[primitives.TxnID]*RequestQueue),
		detectInterval: detectInterval,
		pollInterval:   pollInterval,
	}
}

func (m *Manager) queueFor(rid primitives.RID) *RequestQueue {
	m.tableMu.Lock()
	defer m.tableMu.Unlock()
	q, ok := m.table[rid]
	if !ok {
		q = NewRequestQueue()
		m.table[rid] = q
	}
	return q
}

// checkAdmission enforces isolation-level and 2PL rules before a
// transaction is even enqueued. It may itself force an abort.
func (m *Manager) checkAdmission(txn *transaction.Transaction, mode Mode) error {
	if txn.State() == transaction.Aborted {
		return dberr.NewTransactionAbortError(txn.ID(), dberr.Deadlock)
	}
	if mode == Shared && txn.Isolation() == transaction.ReadUncommitted {
		txn.SetState(transaction.Aborted)
		return dberr.NewTransactionAbortError(txn.ID(), dberr.LockSharedOnReadUncommitted)
	}
	if txn.State() == transaction.Shrinking {
		txn.SetState(transaction.Aborted)
		return dberr.NewTransactionAbortError(txn.ID(), dberr.LockOnShrinking)
	}
	return nil
}

// LockShared acquires a shared lock on rid for txn, blocking until
// granted or the transaction is aborted (by a deadlock or by another
// admission rule violation observed while waiting).
func (m *Manager) LockShared(ctx context.Context, txn *transaction.Transaction, rid primitives.RID) error {
	return m.acquire(ctx, txn, rid, Shared)
}

// LockExclusive acquires an exclusive lock on rid for txn.
func (m *Manager) LockExclusive(ctx context.Context, txn *transaction.Transaction, rid primitives.RID) error {
	return m.acquire(ctx, txn, rid, Exclusive)
}

func (m *Manager) acquire(ctx context.Context, txn *transaction.Transaction, rid primitives.RID, mode Mode) error {
	if mode == Shared && txn.HasSharedLock(rid) {
		return nil
	}
	if txn.HasExclusiveLock(rid) {
		return nil // exclusive already subsumes a shared request
	}
	if err := m.checkAdmission(txn, mode); err != nil {
		return err
	}

	q := m.queueFor(rid)
	q.mu.Lock()
	req := &Request{TxnID: txn.ID(), Mode: mode}
	q.requests = append(q.requests, req)
	q.tryGrant()

	m.setWaitingOn(txn.ID(), q)
	for !req.Granted && txn.State() != transaction.Aborted {
		waitWithTimeout(q.cond, m.pollInterval)
		select {
		case <-ctx.Done():
			q.removeRequest(req)
			q.cond.Broadcast()
			q.mu.Unlock()
			m.clearWaitingOn(txn.ID())
			return ctx.Err()
		default:
		}
	}
	m.clearWaitingOn(txn.ID())

	if txn.State() == transaction.Aborted {
		q.removeRequest(req)
		q.cond.Broadcast()
		q.mu.Unlock()
		return dberr.NewTransactionAbortError(txn.ID(), dberr.Deadlock)
	}
	q.mu.Unlock()

	if mode == Shared {
		txn.AddSharedLock(rid)
		logging.WithLock(txn.ID(), rid).Info("shared lock granted")
	} else {
		txn.AddExclusiveLock(rid)
		logging.WithLock(txn.ID(), rid).Info("exclusive lock granted")
	}
	return nil
}

// LockUpgrade upgrades txn's existing shared lock on rid to exclusive.
// Only one transaction may upgrade a given resource at a time; a second
// concurrent attempt aborts with UpgradeConflict.
func (m *Manager) LockUpgrade(ctx context.Context, txn *transaction.Transaction, rid primitives.RID) error {
	if !txn.HasSharedLock(rid) {
		return dberr.New(dberr.CategoryUser, "NOT_LOCKED", "cannot upgrade a lock not held")
	}
	if err := m.checkAdmission(txn, Exclusive); err != nil {
		return err
	}

	q := m.queueFor(rid)
	q.mu.Lock()
	if q.upgrading != primitives.InvalidTxnID && q.upgrading != txn.ID() {
		q.mu.Unlock()
		txn.SetState(transaction.Aborted)
		return dberr.NewTransactionAbortError(txn.ID(), dberr.UpgradeConflict)
	}
	q.upgrading = txn.ID()
	q.removeByTxn(txn.ID())
	req := &Request{TxnID: txn.ID(), Mode: Exclusive}
	q.requests = append([]*Request{req}, q.requests...)
	q.tryGrant()

	m.setWaitingOn(txn.ID(), q)
	for !req.Granted && txn.State() != transaction.Aborted {
		waitWithTimeout(q.cond, m.pollInterval)
	}
	m.clearWaitingOn(txn.ID())
	q.upgrading = primitives.InvalidTxnID

	if txn.State() == transaction.Aborted {
		q.removeRequest(req)
		q.cond.Broadcast()
		q.mu.Unlock()
		return dberr.NewTransactionAbortError(txn.ID(), dberr.Deadlock)
	}
	q.mu.Unlock()

	txn.RemoveLock(rid)
	txn.AddExclusiveLock(rid)
	logging.WithLock(txn.ID(), rid).Info("lock upgraded to exclusive")
	return nil
}

// Unlock releases txn's lock on rid. Only under REPEATABLE_READ does the
// first Unlock call on a Growing transaction move it to Shrinking: that
// is the isolation level strict two-phase locking actually governs here.
// READ_COMMITTED's Unlock (used to release a read lock right after a
// tuple is materialized) must not end the growing phase, or a later
// LockShared in the same transaction would wrongly abort as
// lock-on-shrinking. READ_UNCOMMITTED has no 2PL state machine at all.
func (m *Manager) Unlock(txn *transaction.Transaction, rid primitives.RID) error {
	q := m.queueFor(rid)
	q.mu.Lock()
	q.removeByTxn(txn.ID())
	q.tryGrant()
	q.cond.Broadcast()
	q.mu.Unlock()

	txn.RemoveLock(rid)
	if txn.Isolation() == transaction.RepeatableRead && txn.State() == transaction.Growing {
		txn.SetState(transaction.Shrinking)
	}
	return nil
}

// LockRead acquires whatever read lock txn's isolation level requires
// before a tuple is materialized: READ_UNCOMMITTED takes no lock at all
// and reads dirty, READ_COMMITTED takes a shared lock and releases it
// immediately so later reads of the same row can see newer commits, and
// REPEATABLE_READ takes a shared lock and holds it for the transaction's
// lifetime.
func (m *Manager) LockRead(ctx context.Context, txn *transaction.Transaction, rid primitives.RID) error {
	if txn.HasExclusiveLock(rid) || txn.HasSharedLock(rid) {
		return nil
	}
	switch txn.Isolation() {
	case transaction.ReadUncommitted:
		return nil
	case transaction.ReadCommitted:
		if err := m.LockShared(ctx, txn, rid); err != nil {
			return err
		}
		return m.Unlock(txn, rid)
	default:
		return m.LockShared(ctx, txn, rid)
	}
}

// LockWrite acquires the exclusive lock a write needs, upgrading an
// already-held shared lock in place rather than releasing and
// reacquiring it.
func (m *Manager) LockWrite(ctx context.Context, txn *transaction.Transaction, rid primitives.RID) error {
	if txn.HasSharedLock(rid) {
		return m.LockUpgrade(ctx, txn, rid)
	}
	return m.LockExclusive(ctx, txn, rid)
}

func (q *RequestQueue) removeByTxn(tid primitives.TxnID) {
	out := q.requests[:0]
	for _, r := range q.requests {
		if r.TxnID != tid {
			out = append(out, r)
		}
	}
	q.requests = out
}

func (q *RequestQueue) removeRequest(target *Request) {
	out := q.requests[:0]
	for _, r := range q.requests {
		if r != target {
			out = append(out, r)
		}
	}
	q.requests = out
}

func (m *Manager) setWaitingOn(tid primitives.TxnID, q *RequestQueue) {
	m.waitMu.Lock()
	m.waitOn[tid] = q
	m.waitMu.Unlock()
}

func (m *Manager) clearWaitingOn(tid primitives.TxnID) {
	m.waitMu.Lock()
	delete(m.waitOn, tid)
	m.waitMu.Unlock()
}

// waitWithTimeout waits on cond but returns at least every d, so a
// blocked LockShared/LockExclusive call re-checks txn.State() soon after
// the detector marks it Aborted instead of only on the next Broadcast.
// Caller must hold cond.L.
func waitWithTimeout(cond *sync.Cond, d time.Duration) {
	timer := time.AfterFunc(d, cond.Broadcast)
	defer timer.Stop()
	cond.Wait()
}

// WaitForGraphSnapshot returns the current wait-for graph: an edge
// from A to B means A is waiting on a lock B already holds or has
// requested ahead of it. Used by tests to assert cycle discovery without
// racing the live detector goroutine.
func (m *Manager) WaitForGraphSnapshot() map[primitives.TxnID][]primitives.TxnID {
	return m.buildWaitForGraph()
}
