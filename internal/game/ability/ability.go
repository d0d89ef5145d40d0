// Package ability defines the consumable special effects an entity carries
// and the catalog that parameterises them.
package ability

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Kind identifies one ability effect.
type Kind string

const (
	// PreventDestruction turns a destruction into a failure.
	PreventDestruction Kind = "prevent_destruction"
	// ResistDestruction turns a destruction into a failure with Def.Chance.
	ResistDestruction Kind = "resist_destruction"
	// GuaranteedSuccess turns a failure into a success.
	GuaranteedSuccess Kind = "guaranteed_success"
	// LuckUp turns a failure into a success with Def.Chance.
	LuckUp Kind = "luck_up"
	// SuccessBoost adds Def.Boost points to the success chance of one attempt.
	SuccessBoost Kind = "success_boost"
	// CostDiscount multiplies one upgrade cost by Def.Factor.
	CostDiscount Kind = "cost_discount"
	// RefundMultiplier doubles the destruction refund; instances stack.
	RefundMultiplier Kind = "refund_multiplier"
	// DoubleLevel grants two levels on one success.
	DoubleLevel Kind = "double_level"
	// PreserveLevel carries the level over to the replacement entity.
	PreserveLevel Kind = "preserve_level"
	// DoubleSell doubles one sale price.
	DoubleSell Kind = "double_sell"
	// BonusGold adds Def.Amount to one sale price.
	BonusGold Kind = "bonus_gold"
)

// AllKinds lists every known kind in a stable order.
var AllKinds = []Kind{
	PreventDestruction, ResistDestruction, GuaranteedSuccess, LuckUp, SuccessBoost,
	CostDiscount, RefundMultiplier, DoubleLevel, PreserveLevel, DoubleSell, BonusGold,
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ErrUnknownKind is returned for a kind outside AllKinds.
var ErrUnknownKind = errors.New("unknown ability kind")

// Def is the static definition of one ability kind, loaded from YAML.
type Def struct {
	Kind        Kind    `yaml:"kind" json:"kind"`
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description" json:"description"`
	Chance      float64 `yaml:"chance" json:"chance,omitempty"` // percent, probabilistic kinds
	Boost       float64 `yaml:"boost" json:"boost,omitempty"`   // success points, SuccessBoost
	Factor      float64 `yaml:"factor" json:"factor,omitempty"` // cost multiplier, CostDiscount
	Amount      int64   `yaml:"amount" json:"amount,omitempty"` // currency, BonusGold
}

func (d Def) validate() error {
	if !d.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, d.Kind)
	}
	switch d.Kind {
	case LuckUp, ResistDestruction:
		if d.Chance <= 0 || d.Chance > 100 {
			return fmt.Errorf("%s: chance must be within (0, 100], got %v", d.Kind, d.Chance)
		}
	case SuccessBoost:
		if d.Boost <= 0 || d.Boost > 100 {
			return fmt.Errorf("%s: boost must be within (0, 100], got %v", d.Kind, d.Boost)
		}
	case CostDiscount:
		if d.Factor <= 0 || d.Factor >= 1 {
			return fmt.Errorf("%s: factor must be within (0, 1), got %v", d.Kind, d.Factor)
		}
	case BonusGold:
		if d.Amount <= 0 {
			return fmt.Errorf("%s: amount must be positive, got %d", d.Kind, d.Amount)
		}
	}
	return nil
}

// Catalog holds one Def per kind.
type Catalog struct {
	defs map[Kind]Def
}

// NewCatalog validates defs and builds a Catalog covering every kind.
//
// Postcondition: Returns a Catalog with a Def for each of AllKinds, or an error.
func NewCatalog(defs []Def) (*Catalog, error) {
	c := &Catalog{defs: make(map[Kind]Def, len(defs))}
	for _, d := range defs {
		if err := d.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.defs[d.Kind]; dup {
			return nil, fmt.Errorf("duplicate ability kind %q", d.Kind)
		}
		c.defs[d.Kind] = d
	}
	for _, k := range AllKinds {
		if _, ok := c.defs[k]; !ok {
			return nil, fmt.Errorf("ability kind %q has no definition", k)
		}
	}
	return c, nil
}

// Get returns the Def for k.
func (c *Catalog) Get(k Kind) (Def, bool) {
	d, ok := c.defs[k]
	return d, ok
}

// MustGet returns the Def for k.
//
// Precondition: k must be one of AllKinds; NewCatalog guarantees coverage.
func (c *Catalog) MustGet(k Kind) Def {
	d, ok := c.defs[k]
	if !ok {
		panic("ability: MustGet precondition violated: no definition for " + string(k))
	}
	return d
}

// All returns every Def sorted by kind.
func (c *Catalog) All() []Def {
	out := make([]Def, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// LoadCatalog reads a YAML file holding an "abilities" list.
//
// Precondition: path must be a readable YAML file.
// Postcondition: Returns a complete Catalog, or an error if parsing or validation fails.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading abilities %q: %w", path, err)
	}
	var f struct {
		Abilities []Def `yaml:"abilities"`
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing abilities %q: %w", path, err)
	}
	return NewCatalog(f.Abilities)
}
