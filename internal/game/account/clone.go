package account

import (
	"slices"

	"github.com/cory-johannsen/ascend/internal/game/ability"
)

// Clone returns a deep copy that shares no slices with a.
func (a *Account) Clone() *Account {
	c := *a
	c.Entity = a.Entity.Clone()
	c.Collection = CollectionLog{
		Flavors:      slices.Clone(a.Collection.Flavors),
		Roles:        slices.Clone(a.Collection.Roles),
		Achievements: slices.Clone(a.Collection.Achievements),
		Claimed:      slices.Clone(a.Collection.Claimed),
	}
	c.Destiny.Triggered = slices.Clone(a.Destiny.Triggered)
	return &c
}

// Clone returns a deep copy of e.
func (e Entity) Clone() Entity {
	e.Flavor.Abilities = slices.Clone(e.Flavor.Abilities)
	e.ObtainedFlavors = slices.Clone(e.ObtainedFlavors)
	e.Abilities = ability.List(slices.Clone([]ability.Entry(e.Abilities)))
	return e
}
