// Package primitives defines the identity types shared across the storage
// engine: page ids, frame ids, transaction ids, and record ids. None of
// these carry behavior beyond equality and string rendering; they exist so
// the buffer pool, B+tree, and lock manager can key maps on stable,
// type-safe identities instead of bare integers.
package primitives

import (
	"fmt"
	"sync/atomic"
)

// PageID identifies a page within the disk manager's address space.
// InvalidPageID is the sentinel for "no page".
type PageID int32

// InvalidPageID marks the absence of a page, e.g. an empty tree's root.
const InvalidPageID PageID = -1

func (p PageID) IsValid() bool {
	return p != InvalidPageID
}

func (p PageID) String() string {
	if p == InvalidPageID {
		return "PageID(invalid)"
	}
	return fmt.Sprintf("PageID(%d)", int32(p))
}

// FrameID identifies a slot in the buffer pool's frame array.
type FrameID int32

func (f FrameID) String() string {
	return fmt.Sprintf("FrameID(%d)", int32(f))
}

// SlotID identifies a tuple's position within a heap page.
type SlotID int32

// RID (record id) is the logical location of a tuple: the page holding it
// plus the slot within that page. It is opaque to the B+tree except as a
// value type, and is the key the lock manager locks on.
type RID struct {
	PageID PageID
	Slot   SlotID
}

func NewRID(pid PageID, slot SlotID) RID {
	return RID{PageID: pid, Slot: slot}
}

func (r RID) String() string {
	return fmt.Sprintf("RID(page=%d, slot=%d)", int32(r.PageID), int32(r.Slot))
}

// txnCounter backs the monotonic allocation of transaction ids.
var txnCounter int64

// TxnID identifies a transaction. Ids are monotonically increasing, which
// the deadlock detector relies on to pick the "youngest" victim in a cycle.
type TxnID int64

// InvalidTxnID marks the absence of an owning transaction.
const InvalidTxnID TxnID = -1

// NextTxnID allocates a fresh, strictly increasing transaction id.
func NextTxnID() TxnID {
	return TxnID(atomic.AddInt64(&txnCounter, 1))
}

func (t TxnID) String() string {
	return fmt.Sprintf("Txn(%d)", int64(t))
}
