package modifier

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/ascend/internal/game/ability"
)

// ErrInvalidCatalog is returned when catalog content violates an invariant.
var ErrInvalidCatalog = errors.New("invalid modifier catalog")

type flavorEntry struct {
	Name      string         `yaml:"name"`
	Tier      Tier           `yaml:"tier"`
	Abilities []ability.Kind `yaml:"abilities"`
}

// FlavorCatalog is the validated flavor content.
type FlavorCatalog struct {
	ChangeOnSuccess float64       `yaml:"change_on_success"`
	Tiers           []TierWeight  `yaml:"tiers"`
	Entries         []flavorEntry `yaml:"flavors"`

	flavors []Flavor
}

type roleEntry struct {
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Tier     Tier   `yaml:"tier"`
}

// RoleCatalog is the validated role content.
type RoleCatalog struct {
	ChangeOnSuccess float64      `yaml:"change_on_success"`
	LossOnFailure   float64      `yaml:"loss_on_failure"`
	Unemployed      string       `yaml:"unemployed"`
	Animal          TierWeight   `yaml:"animal"`
	Tiers           []TierWeight `yaml:"tiers"`
	Entries         []roleEntry  `yaml:"roles"`

	roles []Role
}

func decodeFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %q: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("parsing %q: %w", path, err)
	}
	return nil
}

// LoadFlavorCatalog reads and validates a flavor catalog file.
//
// Postcondition: Returns a catalog with every entry resolved, or an error
// wrapping ErrInvalidCatalog.
func LoadFlavorCatalog(path string) (*FlavorCatalog, error) {
	var c FlavorCatalog
	if err := decodeFile(path, &c); err != nil {
		return nil, err
	}
	if err := c.build(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadRoleCatalog reads and validates a role catalog file.
//
// Postcondition: Returns a catalog with every entry resolved, or an error
// wrapping ErrInvalidCatalog.
func LoadRoleCatalog(path string) (*RoleCatalog, error) {
	var c RoleCatalog
	if err := decodeFile(path, &c); err != nil {
		return nil, err
	}
	if err := c.build(); err != nil {
		return nil, err
	}
	return &c, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidCatalog, fmt.Sprintf(format, args...))
}

func validateTiers(tiers []TierWeight, total float64) (map[Tier]TierWeight, error) {
	byTier := make(map[Tier]TierWeight, len(tiers))
	var sum float64
	for _, t := range tiers {
		if _, dup := byTier[t.Tier]; dup {
			return nil, invalid("duplicate tier %q", t.Tier)
		}
		if t.Weight < 0 || t.Bonus < 0 {
			return nil, invalid("tier %q has a negative weight or bonus", t.Tier)
		}
		byTier[t.Tier] = t
		sum += t.Weight
	}
	if math.Abs(sum-total) > 1e-9 {
		return nil, invalid("tier weights sum to %v, want %v", sum, total)
	}
	return byTier, nil
}

// keyer assigns unique URL-safe keys derived from names.
type keyer map[string]int

func (k keyer) key(name string) string {
	base := slug.Make(name)
	if base == "" {
		base = "entry"
	}
	k[base]++
	if n := k[base]; n > 1 {
		return fmt.Sprintf("%s-%d", base, n)
	}
	return base
}

func (c *FlavorCatalog) build() error {
	if c.ChangeOnSuccess < 0 || c.ChangeOnSuccess > 100 {
		return invalid("change_on_success must be within [0, 100]")
	}
	byTier, err := validateTiers(c.Tiers, 100)
	if err != nil {
		return err
	}
	keys := keyer{}
	names := make(map[string]bool, len(c.Entries))
	counts := make(map[Tier]int)
	c.flavors = make([]Flavor, 0, len(c.Entries))
	for _, e := range c.Entries {
		tw, ok := byTier[e.Tier]
		if !ok {
			return invalid("flavor %q has unknown tier %q", e.Name, e.Tier)
		}
		if names[e.Name] {
			return invalid("duplicate flavor %q", e.Name)
		}
		names[e.Name] = true
		if len(e.Abilities) > 2 {
			return invalid("flavor %q carries %d abilities, at most 2", e.Name, len(e.Abilities))
		}
		if e.Tier == Legendary && len(e.Abilities) != 2 {
			return invalid("legendary flavor %q must carry exactly 2 abilities", e.Name)
		}
		for _, k := range e.Abilities {
			if !k.Valid() {
				return invalid("flavor %q: %v %q", e.Name, ability.ErrUnknownKind, k)
			}
		}
		counts[e.Tier]++
		c.flavors = append(c.flavors, Flavor{
			Key:       keys.key(e.Name),
			Name:      e.Name,
			Tier:      e.Tier,
			BonusRate: tw.Bonus,
			Abilities: append([]ability.Kind(nil), e.Abilities...),
		})
	}
	for _, t := range c.Tiers {
		if t.Weight > 0 && counts[t.Tier] == 0 {
			return invalid("flavor tier %q has weight but no entries", t.Tier)
		}
	}
	return nil
}

func (c *RoleCatalog) build() error {
	for name, pct := range map[string]float64{
		"change_on_success": c.ChangeOnSuccess,
		"loss_on_failure":   c.LossOnFailure,
		"animal.weight":     c.Animal.Weight,
	} {
		if pct < 0 || pct > 100 {
			return invalid("%s must be within [0, 100]", name)
		}
	}
	c.Animal.Tier = Animal
	byTier, err := validateTiers(c.Tiers, 100)
	if err != nil {
		return err
	}
	if _, ok := byTier[Animal]; ok {
		return invalid("animal tier is configured separately, not in tiers")
	}
	byTier[Animal] = c.Animal

	keys := keyer{}
	names := make(map[string]bool, len(c.Entries))
	counts := make(map[Tier]int)
	c.roles = make([]Role, 0, len(c.Entries))
	unemployedFound := false
	for _, e := range c.Entries {
		tw, ok := byTier[e.Tier]
		if !ok {
			return invalid("role %q has unknown tier %q", e.Name, e.Tier)
		}
		if names[e.Name] {
			return invalid("duplicate role %q", e.Name)
		}
		names[e.Name] = true
		if e.Category == "" {
			return invalid("role %q has no category", e.Name)
		}
		bonus := tw.Bonus
		if e.Category == UnemployedCategory {
			bonus = 0
		}
		if e.Name == c.Unemployed {
			if e.Category != UnemployedCategory {
				return invalid("unemployed role %q must have category %q", e.Name, UnemployedCategory)
			}
			unemployedFound = true
		}
		counts[e.Tier]++
		c.roles = append(c.roles, Role{
			Key:       keys.key(e.Name),
			Name:      e.Name,
			Category:  e.Category,
			Tier:      e.Tier,
			BonusRate: bonus,
		})
	}
	if !unemployedFound {
		return invalid("unemployed role %q is not in the catalog", c.Unemployed)
	}
	for _, t := range append(append([]TierWeight(nil), c.Tiers...), c.Animal) {
		if t.Weight > 0 && counts[t.Tier] == 0 {
			return invalid("role tier %q has weight but no entries", t.Tier)
		}
	}
	return nil
}
