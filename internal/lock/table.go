// Package lock implements process-local single-flight coordination keyed
// by cache path. It collapses concurrent callers for the same key into
// one logical holder at a time and fans ownership out FIFO as each
// holder unlocks.
//
// Go schedules goroutines across real OS threads, so unlike a
// single-threaded event loop, Table must guard its map with a
// sync.Mutex to stay correct under genuine parallelism.
package lock

import "sync"

// entry tracks the FIFO waiter queue for one key. A key is present in the
// table iff some caller currently holds logical ownership of it.
type entry struct {
	waiters []chan struct{}
}

// Table is a single-flight lock table keyed by cache path. Each NewTable
// is independent; petra shares one Table across all of its Instances in
// the process.
type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewTable constructs an empty lock table.
func NewTable() *Table {
	return &Table{entries: make(map[string]*entry)}
}

// Lock acquires logical ownership of key, blocking the caller until it is
// the sole holder. The first caller for a key returns immediately; later
// callers are queued FIFO and released in arrival order as earlier
// holders call Unlock. Every Lock must be paired with exactly one Unlock.
func (t *Table) Lock(key string) {
	t.mu.Lock()
	e, exists := t.entries[key]
	if !exists {
		t.entries[key] = &entry{}
		t.mu.Unlock()
		return
	}

	ready := make(chan struct{})
	e.waiters = append(e.waiters, ready)
	t.mu.Unlock()

	<-ready
}

// Unlock releases ownership of key, handing it to the next FIFO waiter if
// one is queued, or removing the entry if none remain.
func (t *Table) Unlock(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, exists := t.entries[key]
	if !exists {
		// Unbalanced Unlock; nothing to do. The orchestrator is
		// responsible for pairing every Lock with one Unlock.
		return
	}

	if len(e.waiters) == 0 {
		delete(t.entries, key)
		return
	}

	next := e.waiters[0]
	e.waiters = e.waiters[1:]
	close(next)
}

// Len reports the number of keys currently held or queued. Exposed for
// tests verifying that a balanced sequence of Lock/Unlock calls leaves
// no entry for key.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
