package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/ascend/internal/game/account"
	"github.com/cory-johannsen/ascend/internal/storage"
)

// AccountRepository stores each account as one JSONB document. Balance and
// level columns are denormalised copies kept for the admin queries. The
// revision column advances on every write and guards Save against
// overwriting a concurrent change.
type AccountRepository struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

// NewAccountRepository creates an AccountRepository backed by the given pool.
// Every call is bounded by timeout; zero disables the bound.
//
// Precondition: db must be a valid, open connection pool.
func NewAccountRepository(db *pgxpool.Pool, timeout time.Duration) *AccountRepository {
	return &AccountRepository{db: db, timeout: timeout}
}

func (r *AccountRepository) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

// Load implements storage.Store.
//
// Postcondition: Returns storage.ErrAccountNotFound when no row matches id.
func (r *AccountRepository) Load(ctx context.Context, id string) (*account.Account, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var (
		doc      []byte
		revision int64
	)
	err := r.db.QueryRow(ctx, `SELECT document, revision FROM accounts WHERE id = $1`, id).Scan(&doc, &revision)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrAccountNotFound
		}
		return nil, fmt.Errorf("querying account %s: %w", id, err)
	}

	var acct account.Account
	if err := json.Unmarshal(doc, &acct); err != nil {
		return nil, fmt.Errorf("decoding account %s: %w", id, err)
	}
	acct.Revision = revision
	return &acct, nil
}

// Create implements storage.Store.
//
// Postcondition: Returns storage.ErrAccountExists if the id is taken.
func (r *AccountRepository) Create(ctx context.Context, acct *account.Account) error {
	doc, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("encoding account %s: %w", acct.ID, err)
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()

	_, err = r.db.Exec(ctx,
		`INSERT INTO accounts (id, document, currency, level, max_level, created_at, last_played_at, revision)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		acct.ID, doc, acct.Currency, acct.Entity.Level, acct.Stats.MaxLevel, acct.CreatedAt, acct.LastPlayedAt, acct.Revision,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrAccountExists
		}
		return fmt.Errorf("inserting account %s: %w", acct.ID, err)
	}
	return nil
}

// Save implements storage.Store.
//
// Postcondition: Returns storage.ErrAccountNotFound if the row is missing and
// storage.ErrStaleAccount if its revision moved since acct was loaded.
func (r *AccountRepository) Save(ctx context.Context, acct *account.Account) error {
	doc, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("encoding account %s: %w", acct.ID, err)
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()

	tag, err := r.db.Exec(ctx,
		`UPDATE accounts
		 SET document = $2, currency = $3, level = $4, max_level = $5, last_played_at = $6,
		     revision = revision + 1
		 WHERE id = $1 AND revision = $7`,
		acct.ID, doc, acct.Currency, acct.Entity.Level, acct.Stats.MaxLevel, acct.LastPlayedAt, acct.Revision,
	)
	if err != nil {
		return fmt.Errorf("updating account %s: %w", acct.ID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, acct.ID).Scan(&exists); err != nil {
			return fmt.Errorf("checking account %s: %w", acct.ID, err)
		}
		if exists {
			return storage.ErrStaleAccount
		}
		return storage.ErrAccountNotFound
	}
	acct.Revision++
	return nil
}

// Credit adds amount to the stored balance and earned counter in a single
// statement, so it neither loses nor clobbers a concurrent Save.
//
// Precondition: amount > 0.
// Postcondition: Returns the new balance, or storage.ErrAccountNotFound.
func (r *AccountRepository) Credit(ctx context.Context, id string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("crediting %d: %w", amount, account.ErrNegativeAmount)
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var balance int64
	err := r.db.QueryRow(ctx,
		`UPDATE accounts
		 SET currency = currency + $2,
		     document = jsonb_set(
		         jsonb_set(document, '{currency}', to_jsonb(currency + $2)),
		         '{stats,earned}', to_jsonb(COALESCE((document #>> '{stats,earned}')::bigint, 0) + $2)),
		     revision = revision + 1
		 WHERE id = $1
		 RETURNING currency`,
		id, amount,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, storage.ErrAccountNotFound
		}
		return 0, fmt.Errorf("crediting account %s: %w", id, err)
	}
	return balance, nil
}

// Search implements storage.Store.
func (r *AccountRepository) Search(ctx context.Context, prefix string, limit int) ([]storage.Summary, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.summaries(ctx,
		`SELECT id, currency, level, max_level, last_played_at FROM accounts
		 WHERE starts_with(id, $1) ORDER BY id LIMIT $2`,
		prefix, limitOrAll(limit),
	)
}

// Count implements storage.Store.
func (r *AccountRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting accounts: %w", err)
	}
	return n, nil
}

// Top implements storage.Store.
func (r *AccountRepository) Top(ctx context.Context, limit int) ([]storage.Summary, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.summaries(ctx,
		`SELECT id, currency, level, max_level, last_played_at FROM accounts
		 ORDER BY max_level DESC, currency DESC, id LIMIT $1`,
		limitOrAll(limit),
	)
}

func (r *AccountRepository) summaries(ctx context.Context, query string, args ...any) ([]storage.Summary, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var out []storage.Summary
	for rows.Next() {
		var s storage.Summary
		if err := rows.Scan(&s.ID, &s.Currency, &s.Level, &s.MaxLevel, &s.LastPlayedAt); err != nil {
			return nil, fmt.Errorf("scanning account summary: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating account summaries: %w", err)
	}
	return out, nil
}

// limitOrAll maps a non-positive limit to NULL, which LIMIT treats as no limit.
func limitOrAll(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
