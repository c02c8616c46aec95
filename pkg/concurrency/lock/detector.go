package lock

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"storemy/pkg/concurrency/transaction"
	"storemy/pkg/logging"
	"storemy/pkg/primitives"
)

// detectorSem bounds the detector to a single cycle in flight, absorbing
// the case where Stop races a cycle already running rather than needing
// a dedicated mutex+flag for that one interaction.
var detectorSem = semaphore.NewWeighted(1)

// StartDeadlockDetector launches the background goroutine that rebuilds
// the wait-for graph every m.detectInterval and aborts the youngest
// transaction in any cycle it finds. registry is used to flip the victim
// to Aborted and to broadcast the queue it's parked on so it wakes
// immediately instead of waiting out its poll interval.
func (m *Manager) StartDeadlockDetector(registry *transaction.Registry) {
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go func() {
		defer close(m.doneCh)
		ticker := time.NewTicker(m.detectInterval)
		defer ticker.Stop()

		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.runDetectionCycle(registry)
			}
		}
	}()
}

func (m *Manager) runDetectionCycle(registry *transaction.Registry) {
	ctx := context.Background()
	if err := detectorSem.Acquire(ctx, 1); err != nil {
		return
	}
	defer detectorSem.Release(1)

	for {
		graph := m.buildWaitForGraph()
		victim, found := findCycleVictim(graph)
		if !found {
			return
		}

		logging.GetLogger().Warn("deadlock detected, aborting victim", "txn_id", victim)
		m.abortVictim(registry, victim)
	}
}

func (m *Manager) abortVictim(registry *transaction.Registry, victim primitives.TxnID) {
	txn, ok := registry.Lookup(victim)
	if !ok {
		return
	}
	txn.SetState(transaction.Aborted)

	m.waitMu.Lock()
	q := m.waitOn[victim]
	m.waitMu.Unlock()
	if q != nil {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}

// StopDeadlockDetector stops the background goroutine and waits for it to
// exit.
func (m *Manager) StopDeadlockDetector() {
	if m.stopCh == nil {
		return
	}
	close(m.stopCh)
	<-m.doneCh
}
