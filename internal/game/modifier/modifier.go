// Package modifier holds the flavor and role catalogs and the weighted draws
// that assign them to entities.
package modifier

import (
	"github.com/cory-johannsen/ascend/internal/game/ability"
)

// Tier is a rarity class. Flavors use common through legendary; roles use
// common, uncommon, rare, legendary and the animal side-class.
type Tier string

const (
	Common    Tier = "common"
	Uncommon  Tier = "uncommon"
	Rare      Tier = "rare"
	Epic      Tier = "epic"
	Legendary Tier = "legendary"
	Animal    Tier = "animal"
)

// UnemployedCategory is the reserved role category used for demotion.
const UnemployedCategory = "unemployed"

// Flavor is a cosmetic prefix modifier with a sell bonus and intrinsic abilities.
type Flavor struct {
	Key       string         `json:"key"`
	Name      string         `json:"name"`
	Tier      Tier           `json:"tier"`
	BonusRate float64        `json:"bonusRate"`
	Abilities []ability.Kind `json:"abilities,omitempty"`
}

// Role is a job-like modifier with a sell bonus.
type Role struct {
	Key       string  `json:"key"`
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	Tier      Tier    `json:"tier"`
	BonusRate float64 `json:"bonusRate"`
}

// IsAnimal reports whether the role is immune to random role changes.
func (r Role) IsAnimal() bool { return r.Tier == Animal }

// IsUnemployed reports whether the role is the reserved demotion target.
func (r Role) IsUnemployed() bool { return r.Category == UnemployedCategory }

// TierWeight is one rarity tier's draw probability and bonus.
type TierWeight struct {
	Tier   Tier    `yaml:"tier" json:"tier"`
	Weight float64 `yaml:"weight" json:"weight"`
	Bonus  float64 `yaml:"bonus" json:"bonus"`
}
