package transaction

import (
	"sync"

	"storemy/pkg/primitives"
)

// Registry is the process-wide table of live transactions, letting the
// lock manager's deadlock detector look up a victim by id and flip its
// state to Aborted without the caller threading a *Transaction through
// every call site.
type Registry struct {
	mu   sync.RWMutex
	byID map[primitives.TxnID]*Transaction
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[primitives.TxnID]*Transaction)}
}

// Begin creates and registers a new transaction.
func (r *Registry) Begin(iso IsolationLevel) *Transaction {
	t := New(iso)
	r.mu.Lock()
	r.byID[t.id] = t
	r.mu.Unlock()
	return t
}

// Lookup returns the transaction for id, if still registered.
func (r *Registry) Lookup(id primitives.TxnID) (*Transaction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	return t, ok
}

// Remove drops a finished (committed or aborted) transaction from the
// registry.
func (r *Registry) Remove(id primitives.TxnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}
