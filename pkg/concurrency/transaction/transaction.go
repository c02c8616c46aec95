// Package transaction defines the Transaction type the lock manager reads
// and mutates: its two-phase-locking state, isolation level, and the sets
// of record locks it currently holds.
package transaction

import (
	"sync"

	"github.com/google/uuid"

	"storemy/pkg/primitives"
)

// State is a transaction's two-phase-locking phase.
type State int

const (
	// Growing transactions may acquire new locks.
	Growing State = iota
	// Shrinking transactions may only release locks; the lock manager
	// aborts any new lock request made in this state.
	Shrinking
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Growing:
		return "GROWING"
	case Shrinking:
		return "SHRINKING"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// IsolationLevel controls which lock-admission rules apply to a
// transaction across the three standard levels.
type IsolationLevel int

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	RepeatableRead
)

// Transaction tracks one unit of work's record-lock state. The lock sets
// are keyed by RID so a caller releasing a transaction's locks can walk
// them directly instead of re-deriving which resources are held.
type Transaction struct {
	mu sync.Mutex

	id        primitives.TxnID
	externalID uuid.UUID
	isolation IsolationLevel
	state     State

	sharedLocks    map[primitives.RID]struct{}
	exclusiveLocks map[primitives.RID]struct{}
}

// New creates a transaction at isolation level iso, Growing, with a fresh
// monotonic id and an external correlation uuid for cross-process log
// correlation (the uuid plays no role in lock-table keying or the
// deadlock detector's victim selection, which both use the monotonic id).
func New(iso IsolationLevel) *Transaction {
	return &Transaction{
		id:             primitives.NextTxnID(),
		externalID:     uuid.New(),
		isolation:      iso,
		state:          Growing,
		sharedLocks:    make(map[primitives.RID]struct{}),
		exclusiveLocks: make(map[primitives.RID]struct{}),
	}
}

func (t *Transaction) ID() primitives.TxnID       { return t.id }
func (t *Transaction) ExternalID() uuid.UUID      { return t.externalID }
func (t *Transaction) Isolation() IsolationLevel  { return t.isolation }

func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) SetState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

func (t *Transaction) AddSharedLock(rid primitives.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sharedLocks[rid] = struct{}{}
}

func (t *Transaction) AddExclusiveLock(rid primitives.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.exclusiveLocks[rid] = struct{}{}
}

func (t *Transaction) RemoveLock(rid primitives.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sharedLocks, rid)
	delete(t.exclusiveLocks, rid)
}

func (t *Transaction) HasSharedLock(rid primitives.RID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sharedLocks[rid]
	return ok
}

func (t *Transaction) HasExclusiveLock(rid primitives.RID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.exclusiveLocks[rid]
	return ok
}

// SharedLockSet and ExclusiveLockSet return snapshots of the held-RID
// sets, used when a transaction aborts and every held lock must be
// released.
func (t *Transaction) SharedLockSet() []primitives.RID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]primitives.RID, 0, len(t.sharedLocks))
	for rid := range t.sharedLocks {
		out = append(out, rid)
	}
	return out
}

func (t *Transaction) ExclusiveLockSet() []primitives.RID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]primitives.RID, 0, len(t.exclusiveLocks))
	for rid := range t.exclusiveLocks {
		out = append(out, rid)
	}
	return out
}
