package account_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/ascend/internal/game/ability"
	"github.com/cory-johannsen/ascend/internal/game/account"
)

func TestDebitCredit(t *testing.T) {
	a := account.New("u1", 1000, time.Now())
	require.NoError(t, a.Debit(300))
	assert.Equal(t, int64(700), a.Currency)
	assert.Equal(t, int64(300), a.Stats.Spent)

	assert.Error(t, a.Debit(701))
	assert.Equal(t, int64(700), a.Currency)

	require.NoError(t, a.Credit(50))
	assert.Equal(t, int64(750), a.Currency)
	assert.Equal(t, int64(50), a.Stats.Earned)

	assert.ErrorIs(t, a.Credit(-1), account.ErrNegativeAmount)
	assert.ErrorIs(t, a.Debit(-1), account.ErrNegativeAmount)
}

func TestCurrencyNeverNegative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := account.New("u", rapid.Int64Range(0, 1_000_000).Draw(t, "start"), time.Now())
		ops := rapid.SliceOf(rapid.Int64Range(-5000, 5000)).Draw(t, "ops")
		for _, op := range ops {
			if op >= 0 {
				_ = a.Credit(op)
			} else {
				_ = a.Debit(-op)
			}
			if a.Currency < 0 {
				t.Fatalf("currency went negative: %d", a.Currency)
			}
		}
	})
}

func TestCollectionSetsAreDistinct(t *testing.T) {
	a := account.New("u1", 0, time.Now())
	assert.True(t, a.RecordFlavor("x"))
	assert.False(t, a.RecordFlavor("x"))
	assert.True(t, a.RecordRole("y"))
	assert.True(t, a.Unlock("first_upgrade"))
	assert.False(t, a.Unlock("first_upgrade"))
	assert.True(t, a.HasAchievement("first_upgrade"))
	assert.True(t, a.Claim("flavors_25"))
	assert.True(t, a.HasClaimed("flavors_25"))
	assert.Equal(t, []string{"x"}, a.Collection.Flavors)
}

func TestRecordEnding(t *testing.T) {
	a := account.New("u1", 0, time.Now())
	a.RecordEnding("isekai")
	a.RecordEnding("isekai")
	assert.Equal(t, []string{"isekai"}, a.Destiny.Triggered)
	assert.Equal(t, "isekai", a.Destiny.Last)
	assert.Equal(t, int64(2), a.Stats.SpecialEndings)
}

func TestObserveLevel(t *testing.T) {
	a := account.New("u1", 0, time.Now())
	a.Entity.Level = 4
	a.ObserveLevel()
	a.Entity.Level = 2
	a.ObserveLevel()
	assert.Equal(t, 4, a.Stats.MaxLevel)
}

func TestCloneIsDeep(t *testing.T) {
	a := account.New("u1", 0, time.Now())
	a.Entity.Abilities.Add(ability.LuckUp)
	a.Entity.ObtainedFlavors = []string{"f"}
	a.RecordFlavor("f")

	c := a.Clone()
	c.Entity.Abilities.Consume(ability.LuckUp)
	c.Entity.ObtainedFlavors[0] = "g"
	c.Collection.Flavors[0] = "g"

	assert.True(t, a.Entity.Abilities.Has(ability.LuckUp))
	assert.Equal(t, "f", a.Entity.ObtainedFlavors[0])
	assert.Equal(t, "f", a.Collection.Flavors[0])
}

func TestRankFor(t *testing.T) {
	cases := map[int]account.Rank{
		0:  account.RankTrainee,
		1:  account.RankApprentice,
		3:  account.RankApprentice,
		4:  account.RankRegular,
		9:  account.RankSkilled,
		10: account.RankVeteran,
		13: account.RankMaster,
		15: account.RankGrandmaster,
	}
	for level, want := range cases {
		assert.Equal(t, want, account.RankFor(level), "level %d", level)
	}
}
