package record

import "sync"

type idKey struct {
	entity string
	oldID  string
}

// IDMap is the thread-safe (entity, oldId) -> newId mapping built during
// the tier pass. It is insert-only while the tier pass runs and
// read-only afterwards; the happens-before guarantee for the read-only
// phase comes from the tier barrier in internal/migrate, not from this
// type's locking.
type IDMap struct {
	mu sync.RWMutex
	m  map[idKey]string
}

// NewIDMap returns an empty map.
func NewIDMap() *IDMap {
	return &IDMap{m: make(map[idKey]string)}
}

// Set records that oldID for entity now maps to newID. In
// deterministic-id mode, the default, newID == oldID for every
// successfully imported record.
func (m *IDMap) Set(entity, oldID, newID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[idKey{entity, oldID}] = newID
}

// Get returns the mapped id for (entity, oldID) and whether it was found.
func (m *IDMap) Get(entity, oldID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.m[idKey{entity, oldID}]
	return id, ok
}

// Len returns the number of entries, mainly for tests.
func (m *IDMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m)
}
