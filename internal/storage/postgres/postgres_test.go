package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/ascend/internal/storage/postgres"
	"github.com/cory-johannsen/ascend/internal/testutil"
)

func TestPool_SchemaCheckFollowsMigrations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(t)

	require.NoError(t, pc.Pool.Health(ctx))
	assert.ErrorIs(t, pc.Pool.CheckSchema(ctx), postgres.ErrSchemaOutdated)

	pc.ApplyMigrations(t)
	require.NoError(t, pc.Pool.CheckSchema(ctx))

	repo := pc.Pool.Accounts()
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPool_ZeroQueryTimeoutStillBounds(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	pc := testutil.NewPostgresContainer(t)
	cfg := pc.Config
	cfg.QueryTimeout = 0

	pool, err := postgres.NewPool(context.Background(), cfg)
	require.NoError(t, err)
	defer pool.Close()
	assert.NoError(t, pool.Health(context.Background()))
}
