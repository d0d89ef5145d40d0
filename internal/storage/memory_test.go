package storage_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/ascend/internal/game/account"
	"github.com/cory-johannsen/ascend/internal/storage"
)

var now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestMemoryStore_CreateLoadSave(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()

	_, err := s.Load(ctx, "u1")
	assert.ErrorIs(t, err, storage.ErrAccountNotFound)
	assert.ErrorIs(t, s.Save(ctx, account.New("u1", 0, now)), storage.ErrAccountNotFound)

	acct := account.New("u1", 100, now)
	require.NoError(t, s.Create(ctx, acct))
	assert.ErrorIs(t, s.Create(ctx, acct), storage.ErrAccountExists)

	acct.Currency = 999
	loaded, err := s.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), loaded.Currency, "store must not alias the caller's account")

	loaded.Currency = 500
	loaded.Entity.Abilities.Add("double_sell")
	require.NoError(t, s.Save(ctx, loaded))
	loaded.Entity.Abilities[0].Remaining = 0

	again, err := s.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), again.Currency)
	assert.Equal(t, 1, again.Entity.Abilities[0].Remaining)
}

func TestMemoryStore_SaveRejectsStaleCopy(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	require.NoError(t, s.Create(ctx, account.New("u1", 100, now)))

	first, err := s.Load(ctx, "u1")
	require.NoError(t, err)
	second, err := s.Load(ctx, "u1")
	require.NoError(t, err)

	first.Currency = 1
	require.NoError(t, s.Save(ctx, first))
	second.Currency = 2
	assert.ErrorIs(t, s.Save(ctx, second), storage.ErrStaleAccount)

	// The winner keeps writing from its advanced revision.
	first.Currency = 3
	require.NoError(t, s.Save(ctx, first))
	stored, err := s.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.Currency)
}

func TestMemoryStore_AdminQueries(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	for i, lvl := range []int{3, 9, 9, 1} {
		a := account.New(fmt.Sprintf("user-%d", i), int64(i*10), now)
		a.Stats.MaxLevel = lvl
		require.NoError(t, s.Create(ctx, a))
	}
	require.NoError(t, s.Create(ctx, account.New("other", 0, now)))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	found, err := s.Search(ctx, "user-", 3)
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Equal(t, "user-0", found[0].ID)

	top, err := s.Top(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "user-2", top[0].ID, "ties break on balance")
	assert.Equal(t, "user-1", top[1].ID)
}
