package guard

import (
	"context"
	"sort"
	"sync"
)

// MemoryFlags is an in-process FlagStore.
type MemoryFlags struct {
	mu    sync.RWMutex
	users map[string]struct{}
}

// NewMemoryFlags returns an empty MemoryFlags.
func NewMemoryFlags() *MemoryFlags {
	return &MemoryFlags{users: make(map[string]struct{})}
}

// Flag adds userID to the set.
func (m *MemoryFlags) Flag(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = struct{}{}
	return nil
}

// Unflag removes userID and reports whether it was present.
func (m *MemoryFlags) Unflag(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.users[userID]
	delete(m.users, userID)
	return ok, nil
}

// UnflagAll empties the set and returns how many users were removed.
func (m *MemoryFlags) UnflagAll(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.users)
	m.users = make(map[string]struct{})
	return n, nil
}

// IsFlagged reports membership.
func (m *MemoryFlags) IsFlagged(_ context.Context, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[userID]
	return ok, nil
}

// List returns flagged users sorted.
func (m *MemoryFlags) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.users))
	for id := range m.users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
