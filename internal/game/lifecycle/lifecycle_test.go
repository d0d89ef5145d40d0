package lifecycle_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/ascend/internal/game/ability"
	"github.com/cory-johannsen/ascend/internal/game/account"
	"github.com/cory-johannsen/ascend/internal/game/destiny"
	"github.com/cory-johannsen/ascend/internal/game/dice"
	"github.com/cory-johannsen/ascend/internal/game/lifecycle"
	"github.com/cory-johannsen/ascend/internal/game/modifier"
	"github.com/cory-johannsen/ascend/internal/scripting"
)

func contentPath(name string) string {
	return filepath.Join("..", "..", "..", "content", name)
}

func newManager(t *testing.T, src dice.Source) (*lifecycle.Manager, *modifier.Registry) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	roller := dice.NewLoggedRoller(src, logger)
	flavors, err := modifier.LoadFlavorCatalog(contentPath("flavors.yaml"))
	require.NoError(t, err)
	roles, err := modifier.LoadRoleCatalog(contentPath("roles.yaml"))
	require.NoError(t, err)
	reg := modifier.NewRegistry(flavors, roles, roller)
	conds := scripting.NewConditions(0, logger)
	t.Cleanup(conds.Close)
	rules, err := destiny.Load(contentPath("endings.yaml"), reg, conds)
	require.NoError(t, err)
	endings := destiny.NewEvaluator(rules, reg, conds, roller, logger)
	return lifecycle.NewManager(reg, endings, logger), reg
}

var testNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// notAnimal skips the animal slice on a role draw.
var notAnimal = dice.RawPercent(50)

func TestNewAccount_CreatesLevelZeroEntity(t *testing.T) {
	m, _ := newManager(t, dice.NewSequence(0, 0, 0, notAnimal, 0, 0))
	acct := m.NewAccount("u1", 10000)

	e := acct.Entity
	assert.Equal(t, "평범한", e.Flavor.Name)
	assert.Equal(t, "회사원", e.Role.Name)
	assert.Zero(t, e.Level)
	assert.Zero(t, e.Investment)
	assert.Empty(t, e.Abilities.Active())
	assert.Equal(t, []string{"평범한"}, e.ObtainedFlavors)
	assert.Equal(t, int64(10000), acct.Currency)
	assert.Equal(t, []string{"평범한"}, acct.Collection.Flavors)
	assert.Equal(t, []string{"회사원"}, acct.Collection.Roles)
}

func TestCreateEntity_LegendaryFlavorSeedsAbilities(t *testing.T) {
	m, _ := newManager(t, dice.NewSequence(0, dice.RawPercent(99), 0, notAnimal, 0, 0))
	acct := account.New("u1", 0, testNow)
	e := m.CreateEntity(acct, "")

	assert.Equal(t, "전설의", e.Flavor.Name)
	assert.True(t, e.Abilities.Has(ability.PreventDestruction))
	assert.True(t, e.Abilities.Has(ability.DoubleLevel))
	assert.Equal(t, int64(1), acct.Stats.LegendaryFlavors)
}

func TestCreateEntity_ForcedRole(t *testing.T) {
	seq := dice.NewSequence(0, 0, 0)
	m, _ := newManager(t, seq)
	acct := account.New("u1", 0, testNow)
	e := m.CreateEntity(acct, "용사")

	assert.Equal(t, "용사", e.Role.Name)
	assert.Equal(t, 2, seq.Calls(), "forced role consumes no role draw")
	assert.Equal(t, int64(1), acct.Stats.LegendaryRoles)
}

func TestCreateEntity_ForcedRoleByKey(t *testing.T) {
	m, reg := newManager(t, dice.NewSequence(0, 0, 0))
	hero, ok := reg.Role("용사")
	require.True(t, ok)
	e := m.CreateEntity(account.New("u1", 0, testNow), hero.Key)
	assert.Equal(t, "용사", e.Role.Name)
}

func TestCreateEntity_UnknownForcedRoleIsDrawn(t *testing.T) {
	m, _ := newManager(t, dice.NewSequence(0, 0, 0, notAnimal, 0, 0))
	acct := account.New("u1", 0, testNow)
	e := m.CreateEntity(acct, "없는직업")
	assert.Equal(t, "회사원", e.Role.Name)
}

func TestApplyFlavor_GrantsOncePerEntity(t *testing.T) {
	m, reg := newManager(t, dice.NewSequence(0, 0, 0, notAnimal, 0, 0))
	acct := m.NewAccount("u1", 0)

	legendary, ok := reg.Flavor("전설의")
	require.True(t, ok)
	granted := m.ApplyFlavor(acct, legendary)
	assert.Equal(t, []ability.Kind{ability.PreventDestruction, ability.DoubleLevel}, granted)

	plain, ok := reg.Flavor("평범한")
	require.True(t, ok)
	assert.Empty(t, m.ApplyFlavor(acct, plain))

	assert.Empty(t, m.ApplyFlavor(acct, legendary), "a flavor already held grants nothing")
	assert.Equal(t, 1, acct.Entity.Abilities.Count(ability.PreventDestruction))
	assert.Equal(t, "전설의", acct.Entity.Flavor.Name)
	assert.Equal(t, int64(2), acct.Stats.LegendaryFlavors)
}

func TestChangeRoleOnSuccess_AnimalImmune(t *testing.T) {
	seq := dice.NewSequence(0, 0, 0, notAnimal, 0, 0)
	m, reg := newManager(t, seq)
	acct := m.NewAccount("u1", 0)
	rabbit, ok := reg.Role("토끼")
	require.True(t, ok)
	m.ApplyRole(acct, rabbit)

	before := seq.Calls()
	_, changed := m.ChangeRoleOnSuccess(acct)
	assert.False(t, changed)
	assert.Equal(t, before, seq.Calls())
	assert.Equal(t, "토끼", acct.Entity.Role.Name)
}

func TestChangeRoleOnSuccess_Draws(t *testing.T) {
	// Creation, a change hit, then the first legendary role.
	m, _ := newManager(t, dice.NewSequence(0,
		0, 0, notAnimal, 0, 0,
		0,
		notAnimal, dice.RawPercent(97), 0,
	))
	acct := m.NewAccount("u1", 0)
	r, changed := m.ChangeRoleOnSuccess(acct)
	require.True(t, changed)
	assert.Equal(t, "용사", r.Name)
	assert.Contains(t, acct.Collection.Roles, "용사")
}

func TestChangeFlavorOnSuccess_Miss(t *testing.T) {
	m, _ := newManager(t, dice.NewSequence(0, 0, 0, notAnimal, 0, 0, dice.RawPercent(50)))
	acct := m.NewAccount("u1", 0)
	_, _, changed := m.ChangeFlavorOnSuccess(acct)
	assert.False(t, changed)
	assert.Equal(t, "평범한", acct.Entity.Flavor.Name)
}

func TestLoseRoleOnFailure(t *testing.T) {
	seq := dice.NewSequence(0, 0, 0, notAnimal, 0, 0, 0)
	m, _ := newManager(t, seq)
	acct := m.NewAccount("u1", 0)

	require.True(t, m.LoseRoleOnFailure(acct))
	assert.True(t, acct.Entity.Role.IsUnemployed())
	assert.Equal(t, int64(1), acct.Stats.RoleLosses)

	before := seq.Calls()
	assert.False(t, m.LoseRoleOnFailure(acct))
	assert.Equal(t, before, seq.Calls(), "unemployed entities skip the draw")
	assert.Equal(t, int64(1), acct.Stats.RoleLosses)
}

func TestRerolls_CountAndAllowAnimals(t *testing.T) {
	m, reg := newManager(t, dice.NewSequence(0, 0, 0, notAnimal, 0, 0, notAnimal, 0, 0))
	acct := m.NewAccount("u1", 0)
	wolf, ok := reg.Role("늑대")
	require.True(t, ok)
	m.ApplyRole(acct, wolf)

	m.RerollRole(acct)
	m.RerollFlavor(acct)
	assert.False(t, acct.Entity.Role.IsAnimal())
	assert.Equal(t, int64(1), acct.Stats.RoleRerolls)
	assert.Equal(t, int64(1), acct.Stats.FlavorRerolls)
}

func TestCheckSpecialEnding_LocksNextRole(t *testing.T) {
	m, reg := newManager(t, dice.NewSequence(0, 0, 0, notAnimal, 0, 0, dice.RawPercent(10)))
	acct := m.NewAccount("u1", 5000)
	mage, ok := reg.Role("마법사")
	require.True(t, ok)
	m.ApplyRole(acct, mage)
	acct.Entity.Level = 7
	acct.Stats.Destructions = 3

	ending := m.CheckSpecialEnding(acct)
	require.NotNil(t, ending)
	assert.Equal(t, "mage_awakening", ending.ID)
	assert.Equal(t, "대마법사", acct.Entity.LockedNextRole)
	assert.Equal(t, int64(1), acct.Stats.SpecialEndings)
	assert.Equal(t, "mage_awakening", acct.Destiny.Last)

	next := m.Replace(acct)
	assert.Equal(t, "대마법사", next.Role.Name)
	assert.Empty(t, next.LockedNextRole)
	assert.Zero(t, next.Level)
}

func TestGrantLegendaryFlavor(t *testing.T) {
	m, _ := newManager(t, dice.NewSequence(0, 0, 0, notAnimal, 0, 0, 3))
	acct := m.NewAccount("u1", 0)
	f, granted := m.GrantLegendaryFlavor(acct)
	assert.Equal(t, "태초의", f.Name)
	assert.Equal(t, []ability.Kind{ability.GuaranteedSuccess, ability.RefundMultiplier}, granted)
}

func TestTotals(t *testing.T) {
	m, reg := newManager(t, dice.NewCryptoSource())
	flavors, roles := m.Totals()
	assert.Equal(t, len(reg.Flavors()), flavors)
	assert.Equal(t, len(reg.Roles()), roles)
}
