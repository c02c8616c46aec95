// Package execution implements the engine's pull-based executor: simple
// iterators over heap.File and btree.BTree that take out record locks
// through a lock.Manager as they materialize each tuple, rather than
// locking a whole table or page up front.
package execution

import (
	"storemy/pkg/primitives"
	"storemy/pkg/storage/tuple"
)

// Iterator is the pull interface every executor node implements: Init
// prepares the underlying scan, Next returns one row at a time, Close
// releases whatever resources (page latches, lock-manager registrations)
// the node is still holding.
type Iterator interface {
	Init() error
	Next() (primitives.RID, *tuple.Tuple, bool, error)
	Close() error
}
