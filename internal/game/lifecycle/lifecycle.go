// Package lifecycle creates and replaces entities and applies modifier
// changes with their collection and ability bookkeeping.
package lifecycle

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/ascend/internal/game/ability"
	"github.com/cory-johannsen/ascend/internal/game/account"
	"github.com/cory-johannsen/ascend/internal/game/destiny"
	"github.com/cory-johannsen/ascend/internal/game/modifier"
)

// Manager owns entity creation and modifier application.
// It is stateless apart from its collaborators and safe for concurrent use;
// callers serialise access per account.
type Manager struct {
	registry *modifier.Registry
	endings  *destiny.Evaluator
	now      func() time.Time
	logger   *zap.Logger
}

// NewManager creates a Manager.
//
// Precondition: registry, endings and logger must be non-nil.
func NewManager(registry *modifier.Registry, endings *destiny.Evaluator, logger *zap.Logger) *Manager {
	return &Manager{registry: registry, endings: endings, now: time.Now, logger: logger}
}

// NewAccount builds a fresh account with its first entity.
//
// Precondition: id must be non-empty; currency >= 0.
// Postcondition: The account has a level 0 entity recorded in its collection.
func (m *Manager) NewAccount(id string, currency int64) *account.Account {
	acct := account.New(id, currency, m.now())
	m.CreateEntity(acct, "")
	return acct
}

// CreateEntity installs a brand-new entity on acct. The flavor is always
// drawn. The role is forcedRole when it names a catalog role, otherwise drawn.
//
// Postcondition: acct.Entity is level 0 with zero investment, abilities
// seeded from the flavor, and both modifiers recorded in the collection.
func (m *Manager) CreateEntity(acct *account.Account, forcedRole string) account.Entity {
	flavor := m.registry.RollFlavor()

	var role modifier.Role
	forced := false
	if forcedRole != "" {
		if r, ok := m.registry.LookupRole(forcedRole); ok {
			role, forced = r, true
		} else {
			m.logger.Warn("forced role not in catalog, drawing instead",
				zap.String("user_id", acct.ID),
				zap.String("role", forcedRole),
			)
		}
	}
	if !forced {
		role = m.registry.RollRole()
	}

	e := account.Entity{
		ID:              uuid.New(),
		Flavor:          flavor,
		Role:            role,
		ObtainedFlavors: []string{flavor.Name},
		CreatedAt:       m.now(),
	}
	e.Abilities.Add(flavor.Abilities...)
	acct.Entity = e

	m.recordFlavor(acct, flavor)
	m.recordRole(acct, role)

	m.logger.Debug("entity created",
		zap.String("user_id", acct.ID),
		zap.String("flavor", flavor.Name),
		zap.String("role", role.Name),
		zap.Bool("forced_role", forced),
	)
	return acct.Entity
}

// Replace swaps the live entity for a new one, honouring the entity's
// locked next role.
func (m *Manager) Replace(acct *account.Account) account.Entity {
	return m.CreateEntity(acct, acct.Entity.LockedNextRole)
}

// ApplyFlavor sets the entity's flavor. Intrinsic abilities are granted only
// if the flavor was not already held during this entity's life.
//
// Postcondition: Returns the abilities granted, possibly none.
func (m *Manager) ApplyFlavor(acct *account.Account, flavor modifier.Flavor) []ability.Kind {
	e := &acct.Entity
	e.Flavor = flavor
	m.recordFlavor(acct, flavor)
	if e.HasObtainedFlavor(flavor.Name) {
		return nil
	}
	e.ObtainedFlavors = append(e.ObtainedFlavors, flavor.Name)
	e.Abilities.Add(flavor.Abilities...)
	return append([]ability.Kind(nil), flavor.Abilities...)
}

// ApplyRole sets the entity's role and records it.
func (m *Manager) ApplyRole(acct *account.Account, role modifier.Role) {
	acct.Entity.Role = role
	m.recordRole(acct, role)
}

// ChangeFlavorOnSuccess runs the post-success flavor change draw.
//
// Postcondition: Returns the new flavor and granted abilities, or ok false.
func (m *Manager) ChangeFlavorOnSuccess(acct *account.Account) (modifier.Flavor, []ability.Kind, bool) {
	if !m.registry.ShouldChangeFlavorOnSuccess() {
		return modifier.Flavor{}, nil, false
	}
	f := m.registry.RollFlavor()
	return f, m.ApplyFlavor(acct, f), true
}

// ChangeRoleOnSuccess runs the post-success role change draw. Animal roles
// are immune and consume no draw.
//
// Postcondition: Returns the new role, or ok false.
func (m *Manager) ChangeRoleOnSuccess(acct *account.Account) (modifier.Role, bool) {
	if acct.Entity.Role.IsAnimal() {
		return modifier.Role{}, false
	}
	if !m.registry.ShouldChangeRoleOnSuccess() {
		return modifier.Role{}, false
	}
	r := m.registry.RollRole()
	m.ApplyRole(acct, r)
	return r, true
}

// LoseRoleOnFailure runs the background demotion draw. An entity that is
// already unemployed is skipped without a draw.
//
// Postcondition: Returns true when the role was replaced by the unemployed role.
func (m *Manager) LoseRoleOnFailure(acct *account.Account) bool {
	if acct.Entity.Role.IsUnemployed() {
		return false
	}
	if !m.registry.ShouldLoseRole() {
		return false
	}
	m.ApplyRole(acct, m.registry.Unemployed())
	acct.Stats.RoleLosses++
	return true
}

// RerollFlavor draws a new flavor for a paid reroll.
func (m *Manager) RerollFlavor(acct *account.Account) (modifier.Flavor, []ability.Kind) {
	f := m.registry.RollFlavor()
	acct.Stats.FlavorRerolls++
	return f, m.ApplyFlavor(acct, f)
}

// RerollRole draws a new role for a paid reroll. Animal roles may be
// rerolled; immunity only covers random change events.
func (m *Manager) RerollRole(acct *account.Account) modifier.Role {
	r := m.registry.RollRole()
	acct.Stats.RoleRerolls++
	m.ApplyRole(acct, r)
	return r
}

// CheckSpecialEnding evaluates the destiny rules for the entity about to be
// destroyed. A matched ending is logged and its forced role, if any, is
// locked onto the entity for Replace.
//
// Precondition: Stats.Destructions already counts this destruction.
func (m *Manager) CheckSpecialEnding(acct *account.Account) *destiny.Ending {
	ending := m.endings.Check(destiny.Subject{
		Level:        acct.Entity.Level,
		Currency:     acct.Currency,
		Flavor:       acct.Entity.Flavor,
		Role:         acct.Entity.Role,
		Destructions: acct.Stats.Destructions,
	})
	if ending == nil {
		return nil
	}
	acct.RecordEnding(ending.ID)
	acct.Entity.LockedNextRole = ending.NextRole
	return ending
}

// GrantLegendaryFlavor replaces the live entity's flavor with a random
// legendary one.
func (m *Manager) GrantLegendaryFlavor(acct *account.Account) (modifier.Flavor, []ability.Kind) {
	f := m.registry.RollFlavorInTier(modifier.Legendary)
	return f, m.ApplyFlavor(acct, f)
}

// Totals returns the catalog sizes for collection percentages.
func (m *Manager) Totals() (flavors, roles int) {
	return len(m.registry.Flavors()), len(m.registry.Roles())
}

func (m *Manager) recordFlavor(acct *account.Account, f modifier.Flavor) {
	acct.RecordFlavor(f.Name)
	if f.Tier == modifier.Legendary {
		acct.Stats.LegendaryFlavors++
	}
}

func (m *Manager) recordRole(acct *account.Account, r modifier.Role) {
	acct.RecordRole(r.Name)
	if r.Tier == modifier.Legendary {
		acct.Stats.LegendaryRoles++
	}
}
