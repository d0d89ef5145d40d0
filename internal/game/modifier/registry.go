package modifier

import (
	"github.com/cory-johannsen/ascend/internal/game/ability"
	"github.com/cory-johannsen/ascend/internal/game/dice"
)

// Registry serves weighted draws and lookups over both catalogs.
// It is immutable after construction and safe for concurrent use.
type Registry struct {
	flavors *FlavorCatalog
	roles   *RoleCatalog
	roller  *dice.Roller

	flavorByName map[string]Flavor
	flavorByKey  map[string]Flavor
	flavorByTier map[Tier][]Flavor
	roleByName   map[string]Role
	roleByKey    map[string]Role
	roleByTier   map[Tier][]Role
	unemployed   Role
}

// NewRegistry indexes both catalogs.
//
// Precondition: flavors and roles must come from their Load functions; roller must be non-nil.
// Postcondition: Returns a Registry whose draws only yield catalog entries.
func NewRegistry(flavors *FlavorCatalog, roles *RoleCatalog, roller *dice.Roller) *Registry {
	r := &Registry{
		flavors:      flavors,
		roles:        roles,
		roller:       roller,
		flavorByName: make(map[string]Flavor),
		flavorByKey:  make(map[string]Flavor),
		flavorByTier: make(map[Tier][]Flavor),
		roleByName:   make(map[string]Role),
		roleByKey:    make(map[string]Role),
		roleByTier:   make(map[Tier][]Role),
	}
	for _, f := range flavors.flavors {
		r.flavorByName[f.Name] = f
		r.flavorByKey[f.Key] = f
		r.flavorByTier[f.Tier] = append(r.flavorByTier[f.Tier], f)
	}
	for _, ro := range roles.roles {
		r.roleByName[ro.Name] = ro
		r.roleByKey[ro.Key] = ro
		r.roleByTier[ro.Tier] = append(r.roleByTier[ro.Tier], ro)
		if ro.Name == roles.Unemployed {
			r.unemployed = ro
		}
	}
	return r
}

// pickTier walks weights cumulatively and returns the first tier whose bound
// exceeds draw. A draw past the last bound returns the last tier with entries.
func pickTier(tiers []TierWeight, draw float64) Tier {
	var cumulative float64
	var last Tier
	for _, t := range tiers {
		if t.Weight <= 0 {
			continue
		}
		last = t.Tier
		cumulative += t.Weight
		if draw < cumulative {
			return t.Tier
		}
	}
	return last
}

// RollFlavor draws a tier by weight, then an entry uniformly within it.
//
// Postcondition: Returns a catalog flavor.
func (r *Registry) RollFlavor() Flavor {
	tier := pickTier(r.flavors.Tiers, r.roller.Percent("flavor tier"))
	pool := r.flavorByTier[tier]
	return cloneFlavor(pool[r.roller.Intn("flavor entry", len(pool))])
}

// RollRole draws the animal slice first; otherwise it draws a standard tier
// over the full 100% and an entry uniformly within it.
//
// Postcondition: Returns a catalog role.
func (r *Registry) RollRole() Role {
	if r.roles.Animal.Weight > 0 && r.roller.Chance("animal role", r.roles.Animal.Weight) {
		pool := r.roleByTier[Animal]
		return pool[r.roller.Intn("animal entry", len(pool))]
	}
	tier := pickTier(r.roles.Tiers, r.roller.Percent("role tier"))
	pool := r.roleByTier[tier]
	return pool[r.roller.Intn("role entry", len(pool))]
}

// ShouldChangeFlavorOnSuccess is the post-success flavor change draw.
func (r *Registry) ShouldChangeFlavorOnSuccess() bool {
	return r.roller.Chance("flavor change", r.flavors.ChangeOnSuccess)
}

// ShouldChangeRoleOnSuccess is the post-success role change draw.
func (r *Registry) ShouldChangeRoleOnSuccess() bool {
	return r.roller.Chance("role change", r.roles.ChangeOnSuccess)
}

// ShouldLoseRole is the background demotion draw on failure.
func (r *Registry) ShouldLoseRole() bool {
	return r.roller.Chance("role loss", r.roles.LossOnFailure)
}

// Unemployed returns the reserved demotion role.
func (r *Registry) Unemployed() Role { return r.unemployed }

// Flavor looks a flavor up by exact name.
func (r *Registry) Flavor(name string) (Flavor, bool) {
	f, ok := r.flavorByName[name]
	return cloneFlavor(f), ok
}

// FlavorByKey looks a flavor up by its slug key.
func (r *Registry) FlavorByKey(key string) (Flavor, bool) {
	f, ok := r.flavorByKey[key]
	return cloneFlavor(f), ok
}

// Role looks a role up by exact name.
func (r *Registry) Role(name string) (Role, bool) {
	ro, ok := r.roleByName[name]
	return ro, ok
}

// RoleByKey looks a role up by its slug key.
func (r *Registry) RoleByKey(key string) (Role, bool) {
	ro, ok := r.roleByKey[key]
	return ro, ok
}

// LookupFlavor resolves ref as a flavor name, then as a slug key.
func (r *Registry) LookupFlavor(ref string) (Flavor, bool) {
	if f, ok := r.Flavor(ref); ok {
		return f, true
	}
	return r.FlavorByKey(ref)
}

// LookupRole resolves ref as a role name, then as a slug key.
func (r *Registry) LookupRole(ref string) (Role, bool) {
	if ro, ok := r.Role(ref); ok {
		return ro, true
	}
	return r.RoleByKey(ref)
}

// Flavors returns every flavor in catalog order.
func (r *Registry) Flavors() []Flavor {
	out := make([]Flavor, len(r.flavors.flavors))
	for i, f := range r.flavors.flavors {
		out[i] = cloneFlavor(f)
	}
	return out
}

// Roles returns every role in catalog order.
func (r *Registry) Roles() []Role {
	return append([]Role(nil), r.roles.roles...)
}

// FlavorTiers returns the flavor tier weights.
func (r *Registry) FlavorTiers() []TierWeight {
	return append([]TierWeight(nil), r.flavors.Tiers...)
}

// RoleTiers returns the standard role tier weights followed by the animal slice.
func (r *Registry) RoleTiers() []TierWeight {
	return append(append([]TierWeight(nil), r.roles.Tiers...), r.roles.Animal)
}

// RolesInTiers returns every role whose tier is one of tiers, in catalog order.
func (r *Registry) RolesInTiers(tiers ...Tier) []Role {
	want := make(map[Tier]bool, len(tiers))
	for _, t := range tiers {
		want[t] = true
	}
	var out []Role
	for _, ro := range r.roles.roles {
		if want[ro.Tier] {
			out = append(out, ro)
		}
	}
	return out
}

// PickRole draws uniformly from pool.
//
// Precondition: pool must be non-empty.
func (r *Registry) PickRole(label string, pool []Role) Role {
	return pool[r.roller.Intn(label, len(pool))]
}

// RollFlavorInTier draws uniformly among flavors of tier.
//
// Precondition: tier must have at least one entry.
func (r *Registry) RollFlavorInTier(tier Tier) Flavor {
	pool := r.flavorByTier[tier]
	return cloneFlavor(pool[r.roller.Intn("flavor entry", len(pool))])
}

func cloneFlavor(f Flavor) Flavor {
	f.Abilities = append([]ability.Kind(nil), f.Abilities...)
	return f
}
