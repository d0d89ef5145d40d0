package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/ascend/internal/game/ability"
	"github.com/cory-johannsen/ascend/internal/game/account"
	"github.com/cory-johannsen/ascend/internal/game/modifier"
	"github.com/cory-johannsen/ascend/internal/storage"
	"github.com/cory-johannsen/ascend/internal/storage/postgres"
	"github.com/cory-johannsen/ascend/internal/testutil"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newRepo(t *testing.T) *postgres.AccountRepository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	pc := testutil.NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	return postgres.NewAccountRepository(pc.RawPool, 5*time.Second)
}

func sampleAccount(id string) *account.Account {
	a := account.New(id, 10000, now)
	a.Entity = account.Entity{
		Level:           4,
		Flavor:          modifier.Flavor{Name: "전설의", Tier: modifier.Legendary, BonusRate: 1.0},
		Role:            modifier.Role{Name: "용사", Tier: modifier.Legendary, BonusRate: 0.6},
		Investment:      1100,
		ObtainedFlavors: []string{"전설의"},
		CreatedAt:       now,
	}
	a.Entity.Abilities.Add(ability.PreventDestruction, ability.DoubleLevel)
	a.Stats.MaxLevel = 4
	a.RecordFlavor("전설의")
	return a
}

func TestAccountRepository_RoundTrip(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	_, err := repo.Load(ctx, "kakao-1")
	assert.ErrorIs(t, err, storage.ErrAccountNotFound)

	acct := sampleAccount("kakao-1")
	require.NoError(t, repo.Create(ctx, acct))
	assert.ErrorIs(t, repo.Create(ctx, acct), storage.ErrAccountExists)

	loaded, err := repo.Load(ctx, "kakao-1")
	require.NoError(t, err)
	assert.Equal(t, acct.Entity.Flavor.Name, loaded.Entity.Flavor.Name)
	assert.Equal(t, 1, loaded.Entity.Abilities.Count(ability.DoubleLevel))
	assert.Equal(t, []string{"전설의"}, loaded.Collection.Flavors)

	loaded.Currency = 42
	loaded.Entity.Abilities.Consume(ability.DoubleLevel)
	require.NoError(t, repo.Save(ctx, loaded))

	again, err := repo.Load(ctx, "kakao-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), again.Currency)
	assert.False(t, again.Entity.Abilities.Has(ability.DoubleLevel))

	assert.ErrorIs(t, repo.Save(ctx, sampleAccount("missing")), storage.ErrAccountNotFound)
}

func TestAccountRepository_SaveRejectsStaleCopy(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, sampleAccount("kakao-2")))

	first, err := repo.Load(ctx, "kakao-2")
	require.NoError(t, err)
	second, err := repo.Load(ctx, "kakao-2")
	require.NoError(t, err)

	first.Currency = 1
	require.NoError(t, repo.Save(ctx, first))
	assert.Equal(t, second.Revision+1, first.Revision)

	second.Currency = 2
	assert.ErrorIs(t, repo.Save(ctx, second), storage.ErrStaleAccount)

	stored, err := repo.Load(ctx, "kakao-2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Currency)
}

func TestAccountRepository_CreditIsNotLostToConcurrentSave(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, sampleAccount("kakao-3")))

	// An upgrade loads the account, a grant lands, then the upgrade saves.
	inFlight, err := repo.Load(ctx, "kakao-3")
	require.NoError(t, err)

	balance, err := repo.Credit(ctx, "kakao-3", 500)
	require.NoError(t, err)
	assert.Equal(t, int64(10500), balance)

	require.NoError(t, inFlight.Debit(100))
	assert.ErrorIs(t, repo.Save(ctx, inFlight), storage.ErrStaleAccount)

	stored, err := repo.Load(ctx, "kakao-3")
	require.NoError(t, err)
	assert.Equal(t, int64(10500), stored.Currency)
	assert.Equal(t, int64(500), stored.Stats.Earned)
	assert.Equal(t, 4, stored.Entity.Level)

	_, err = repo.Credit(ctx, "missing", 10)
	assert.ErrorIs(t, err, storage.ErrAccountNotFound)
	_, err = repo.Credit(ctx, "kakao-3", 0)
	assert.ErrorIs(t, err, account.ErrNegativeAmount)
}

func TestAccountRepository_AdminQueries(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	for id, lvl := range map[string]int{"kakao-a": 2, "kakao-b": 11, "web-c": 7} {
		a := sampleAccount(id)
		a.Stats.MaxLevel = lvl
		require.NoError(t, repo.Create(ctx, a))
	}

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	found, err := repo.Search(ctx, "kakao-", 0)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "kakao-a", found[0].ID)

	top, err := repo.Top(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "kakao-b", top[0].ID)
	assert.Equal(t, "web-c", top[1].ID)
}
