package service

import "sync"

// lockTable serializes lifecycle operations per invoice id. Inventory
// decrements are atomic at the store level; this guards the multi-step
// read-compute-write sequences (payments, cancel, restore, update).
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

func (t *lockTable) lock(key string) func() {
	t.mu.Lock()
	entry, ok := t.locks[key]
	if !ok {
		entry = &sync.Mutex{}
		t.locks[key] = entry
	}
	t.mu.Unlock()

	entry.Lock()
	return entry.Unlock
}
