// Package storage defines the account persistence contract shared by the
// memory and PostgreSQL backends.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/cory-johannsen/ascend/internal/game/account"
)

// ErrAccountNotFound is returned when an account lookup yields no results.
var ErrAccountNotFound = errors.New("account not found")

// ErrAccountExists is returned when creating an account whose id is taken.
var ErrAccountExists = errors.New("account already exists")

// ErrStaleAccount is returned when saving an account that another writer
// changed after it was loaded.
var ErrStaleAccount = errors.New("account changed since it was loaded")

// Summary is the admin listing view of one account.
type Summary struct {
	ID           string    `json:"id"`
	Currency     int64     `json:"currency"`
	Level        int       `json:"level"`
	MaxLevel     int       `json:"maxLevel"`
	LastPlayedAt time.Time `json:"lastPlayedAt"`
}

// SummaryOf projects an account onto its listing view.
func SummaryOf(a *account.Account) Summary {
	return Summary{
		ID:           a.ID,
		Currency:     a.Currency,
		Level:        a.Entity.Level,
		MaxLevel:     a.Stats.MaxLevel,
		LastPlayedAt: a.LastPlayedAt,
	}
}

// Store persists accounts. Implementations must be safe for concurrent use
// and must never retain or hand out the caller's *account.Account.
type Store interface {
	// Load returns the stored account or ErrAccountNotFound.
	Load(ctx context.Context, id string) (*account.Account, error)
	// Create stores a new account or returns ErrAccountExists.
	Create(ctx context.Context, acct *account.Account) error
	// Save overwrites an existing account whose stored revision equals
	// acct.Revision and advances acct.Revision. It returns
	// ErrAccountNotFound or ErrStaleAccount otherwise.
	Save(ctx context.Context, acct *account.Account) error
	// Search lists accounts whose id starts with prefix, ordered by id.
	Search(ctx context.Context, prefix string, limit int) ([]Summary, error)
	// Count returns the number of stored accounts.
	Count(ctx context.Context) (int64, error)
	// Top lists accounts by descending max level, then balance.
	Top(ctx context.Context, limit int) ([]Summary, error)
}
