package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/cory-johannsen/ascend/internal/game/account"
)

// MemoryStore is an in-process Store. Accounts are deep-copied on the way in
// and out.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*account.Account
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*account.Account)}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, id string) (*account.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return a.Clone(), nil
}

// Create implements Store.
func (m *MemoryStore) Create(_ context.Context, acct *account.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[acct.ID]; ok {
		return ErrAccountExists
	}
	m.accounts[acct.ID] = acct.Clone()
	return nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, acct *account.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.accounts[acct.ID]
	if !ok {
		return ErrAccountNotFound
	}
	if stored.Revision != acct.Revision {
		return ErrStaleAccount
	}
	acct.Revision++
	m.accounts[acct.ID] = acct.Clone()
	return nil
}

// Search implements Store.
func (m *MemoryStore) Search(_ context.Context, prefix string, limit int) ([]Summary, error) {
	m.mu.RLock()
	var out []Summary
	for id, a := range m.accounts {
		if strings.HasPrefix(id, prefix) {
			out = append(out, SummaryOf(a))
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return truncate(out, limit), nil
}

// Count implements Store.
func (m *MemoryStore) Count(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.accounts)), nil
}

// Top implements Store.
func (m *MemoryStore) Top(_ context.Context, limit int) ([]Summary, error) {
	m.mu.RLock()
	out := make([]Summary, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, SummaryOf(a))
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].MaxLevel != out[j].MaxLevel {
			return out[i].MaxLevel > out[j].MaxLevel
		}
		if out[i].Currency != out[j].Currency {
			return out[i].Currency > out[j].Currency
		}
		return out[i].ID < out[j].ID
	})
	return truncate(out, limit), nil
}

func truncate(s []Summary, limit int) []Summary {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}
