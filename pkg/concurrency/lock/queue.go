package lock

import (
	"sync"

	"storemy/pkg/primitives"
)

// Mode is the granularity of access a LockRequest asks for.
type Mode int

const (
	Shared Mode = iota
	Exclusive
)

func (m Mode) String() string {
	if m == Exclusive {
		return "EXCLUSIVE"
	}
	return "SHARED"
}

func compatible(held Mode, want Mode) bool {
	return held == Shared && want == Shared
}

// Request is one transaction's ask for a lock on a RID, tracked in its
// queue's arrival order.
type Request struct {
	TxnID   primitives.TxnID
	Mode    Mode
	Granted bool
}

// RequestQueue is the per-RID wait/grant list the lock manager keys its
// lock table on. Waiting is a condition variable broadcast on every state
// change (grant, release, abort) — every blocked LockShared/LockExclusive
// call parks on cond.Wait, woken by a broadcast or at the latest after the
// manager's poll interval, and re-checks whether its request was granted.
// Grants themselves are made by tryGrant, run by whoever changed the queue.
type RequestQueue struct {
	mu   sync.Mutex
	cond *sync.Cond

	requests []*Request

	// upgrading holds the id of the transaction currently mid-upgrade on
	// this queue, or primitives.InvalidTxnID if none. Only one upgrade
	// may be in flight per resource at a time.
	upgrading primitives.TxnID
}

func NewRequestQueue() *RequestQueue {
	q := &RequestQueue{upgrading: primitives.InvalidTxnID}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// tryGrant scans the queue front-to-back, granting every ungranted
// request compatible with every lock already granted on the queue
// (including granted requests behind it, as happens when an upgrade is
// placed at the front), and stopping at the first incompatible ungranted
// request. This gives FIFO ordering (an incompatible request blocks
// everyone behind it) while still letting a run of mutually-compatible
// Shared requests be granted together.
//
// Caller must hold q.mu.
func (q *RequestQueue) tryGrant() {
	heldMode := Shared
	anyHeld := false
	for _, req := range q.requests {
		if req.Granted {
			anyHeld = true
			if req.Mode == Exclusive {
				heldMode = Exclusive
			}
		}
	}

	for _, req := range q.requests {
		if req.Granted {
			continue
		}
		if !anyHeld || compatible(heldMode, req.Mode) {
			req.Granted = true
			heldMode = req.Mode
			anyHeld = true
			continue
		}
		return
	}
}

// blockers returns the txn ids req is waiting on: every transaction
// holding a granted lock incompatible with req, plus every ungranted
// request ahead of req in the queue. It takes q.mu itself; the deadlock
// detector uses blockersLocked, which does the same while the caller
// already holds q.mu.
func (q *RequestQueue) blockers(req *Request) []primitives.TxnID {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.blockersLocked(req)
}
