// Package postgres provides PostgreSQL persistence using pgx v5.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/ascend/internal/config"
)

// ErrSchemaOutdated is returned when the accounts table predates the latest
// migration.
var ErrSchemaOutdated = errors.New("accounts schema is outdated; run cmd/migrate")

// defaultQueryTimeout bounds pool calls when the config leaves it unset.
const defaultQueryTimeout = 2 * time.Second

// Pool owns the connection pool and the per-call timeout shared by the
// account repository and health checks.
type Pool struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPool connects to PostgreSQL and verifies the server answers.
//
// Precondition: cfg must contain valid database connection parameters.
// Postcondition: Returns a connected Pool or a non-nil error.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "ascend"

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	p := &Pool{pool: pool, timeout: timeout}
	if err := p.Health(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return p, nil
}

// Health pings the database within the pool's query timeout.
func (p *Pool) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.pool.Ping(ctx)
}

// CheckSchema verifies that every column the repository writes exists.
//
// Postcondition: Returns ErrSchemaOutdated when migrations are missing.
func (p *Pool) CheckSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	var ok bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM information_schema.columns
		     WHERE table_schema = current_schema() AND table_name = 'accounts' AND column_name = 'revision'
		 )`,
	).Scan(&ok)
	if err != nil {
		return fmt.Errorf("inspecting schema: %w", err)
	}
	if !ok {
		return ErrSchemaOutdated
	}
	return nil
}

// Accounts returns a repository bounded by the pool's query timeout.
func (p *Pool) Accounts() *AccountRepository {
	return NewAccountRepository(p.pool, p.timeout)
}

// Close releases all pool resources.
func (p *Pool) Close() {
	p.pool.Close()
}

// DB returns the underlying pgxpool.Pool.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}
