// Package destiny evaluates the special-ending rules checked on every
// destruction. A matched ending may force the next entity's role.
package destiny

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/ascend/internal/game/dice"
	"github.com/cory-johannsen/ascend/internal/game/modifier"
	"github.com/cory-johannsen/ascend/internal/scripting"
)

// ErrInvalidRules is returned when the endings file fails validation.
var ErrInvalidRules = errors.New("invalid destiny rules")

// Directive selects how the next role is chosen once an ending matches.
type Directive string

const (
	// Fixed forces Rule.Role.
	Fixed Directive = "fixed"
	// Keep forces the current role.
	Keep Directive = "keep"
	// RandomRare draws uniformly among rare and legendary roles.
	RandomRare Directive = "random_rare"
	// RandomLegendary draws uniformly among legendary roles.
	RandomLegendary Directive = "random_legendary"
	// Choice draws uniformly from Rule.Choices.
	Choice Directive = "choice"
	// None leaves the next role to the normal draw.
	None Directive = "none"
)

// Condition is a conjunction of declarative checks plus an optional Lua
// expression. An empty condition never matches; unconditional endings live
// in the random pool instead.
type Condition struct {
	Roles       []string      `yaml:"roles"`
	Flavors     []string      `yaml:"flavors"`
	FlavorTier  modifier.Tier `yaml:"flavor_tier"`
	RoleTier    modifier.Tier `yaml:"role_tier"`
	MinLevel    *int          `yaml:"min_level"`
	MaxLevel    *int          `yaml:"max_level"`
	MinCurrency *int64        `yaml:"min_currency"`
	MaxCurrency *int64        `yaml:"max_currency"`
	// Destruction matches when this is the n-th destruction of the account.
	Destruction *int64 `yaml:"destruction"`
	Script      string `yaml:"script"`
}

func (c Condition) empty() bool {
	return len(c.Roles) == 0 && len(c.Flavors) == 0 && c.FlavorTier == "" && c.RoleTier == "" &&
		c.MinLevel == nil && c.MaxLevel == nil && c.MinCurrency == nil && c.MaxCurrency == nil &&
		c.Destruction == nil && c.Script == ""
}

// Rule is one special ending.
type Rule struct {
	ID                   string    `yaml:"id"`
	Category             string    `yaml:"category"`
	Chance               float64   `yaml:"chance"`
	When                 Condition `yaml:"when"`
	Next                 Directive `yaml:"next"`
	Role                 string    `yaml:"role"`
	Choices              []string  `yaml:"choices"`
	GrantLegendaryFlavor bool      `yaml:"grant_legendary_flavor"`
	Message              string    `yaml:"message"`
}

// Subject is the state a rule is evaluated against, taken at the moment of
// destruction after the refund is credited.
type Subject struct {
	Level        int
	Currency     int64
	Flavor       modifier.Flavor
	Role         modifier.Role
	Destructions int64
}

func (s Subject) facts() scripting.Facts {
	return scripting.Facts{
		"level":        s.Level,
		"currency":     s.Currency,
		"flavor":       s.Flavor.Name,
		"flavor_tier":  string(s.Flavor.Tier),
		"role":         s.Role.Name,
		"role_tier":    string(s.Role.Tier),
		"category":     s.Role.Category,
		"destructions": s.Destructions,
	}
}

// Ending is the descriptor returned when a rule fires.
type Ending struct {
	ID                   string `json:"id"`
	Category             string `json:"category"`
	Message              string `json:"message"`
	NextRole             string `json:"nextRole,omitempty"`
	GrantLegendaryFlavor bool   `json:"grantLegendaryFlavor,omitempty"`
}

type rulesFile struct {
	Conditional []Rule `yaml:"conditional"`
	Random      []Rule `yaml:"random"`
}

// Rules is the validated ending catalog.
type Rules struct {
	conditional []Rule
	random      []Rule
}

// Load reads and validates an endings file against the role registry.
// Rules with a script are compiled into conds under "ending:<id>".
//
// Precondition: reg and conds must be non-nil.
// Postcondition: Returns validated Rules or an error wrapping ErrInvalidRules.
func Load(path string, reg *modifier.Registry, conds *scripting.Conditions) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading endings %s: %w", path, err)
	}
	var f rulesFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing endings %s: %w", path, err)
	}
	return New(f.Conditional, f.Random, reg, conds)
}

// New validates the rule lists. Role and flavor references may be catalog
// names or slug keys; the returned rules carry the catalog names.
//
// Precondition: reg and conds must be non-nil.
func New(conditional, random []Rule, reg *modifier.Registry, conds *scripting.Conditions) (*Rules, error) {
	seen := make(map[string]bool)
	check := func(r Rule, wantCondition bool) (Rule, error) {
		if r.ID == "" {
			return r, fmt.Errorf("%w: rule without id", ErrInvalidRules)
		}
		if seen[r.ID] {
			return r, fmt.Errorf("%w: duplicate id %s", ErrInvalidRules, r.ID)
		}
		seen[r.ID] = true
		if r.Chance <= 0 || r.Chance > 100 {
			return r, fmt.Errorf("%w: %s chance %v outside (0,100]", ErrInvalidRules, r.ID, r.Chance)
		}
		if wantCondition == r.When.empty() {
			if wantCondition {
				return r, fmt.Errorf("%w: conditional rule %s has no condition", ErrInvalidRules, r.ID)
			}
			return r, fmt.Errorf("%w: random rule %s has a condition", ErrInvalidRules, r.ID)
		}
		roles, err := roleNames(reg, r.When.Roles)
		if err != nil {
			return r, fmt.Errorf("%w: %s references %v", ErrInvalidRules, r.ID, err)
		}
		r.When.Roles = roles
		flavors := make([]string, len(r.When.Flavors))
		for i, ref := range r.When.Flavors {
			f, ok := reg.LookupFlavor(ref)
			if !ok {
				return r, fmt.Errorf("%w: %s references unknown flavor %q", ErrInvalidRules, r.ID, ref)
			}
			flavors[i] = f.Name
		}
		r.When.Flavors = flavors
		switch r.Next {
		case Fixed:
			ro, ok := reg.LookupRole(r.Role)
			if !ok {
				return r, fmt.Errorf("%w: %s fixes unknown role %q", ErrInvalidRules, r.ID, r.Role)
			}
			r.Role = ro.Name
		case Choice:
			if len(r.Choices) == 0 {
				return r, fmt.Errorf("%w: %s has no choices", ErrInvalidRules, r.ID)
			}
			choices, err := roleNames(reg, r.Choices)
			if err != nil {
				return r, fmt.Errorf("%w: %s offers %v", ErrInvalidRules, r.ID, err)
			}
			r.Choices = choices
		case Keep, RandomRare, RandomLegendary, None:
		default:
			return r, fmt.Errorf("%w: %s has unknown directive %q", ErrInvalidRules, r.ID, r.Next)
		}
		if r.When.Script != "" {
			if err := conds.Compile(scriptName(r.ID), r.When.Script); err != nil {
				return r, fmt.Errorf("%w: %s: %v", ErrInvalidRules, r.ID, err)
			}
		}
		return r, nil
	}

	out := &Rules{
		conditional: make([]Rule, 0, len(conditional)),
		random:      make([]Rule, 0, len(random)),
	}
	var total float64
	for _, r := range conditional {
		r, err := check(r, true)
		if err != nil {
			return nil, err
		}
		out.conditional = append(out.conditional, r)
	}
	for _, r := range random {
		r, err := check(r, false)
		if err != nil {
			return nil, err
		}
		out.random = append(out.random, r)
		total += r.Chance
	}
	if total > 100 {
		return nil, fmt.Errorf("%w: random pool sums to %v", ErrInvalidRules, total)
	}
	return out, nil
}

// roleNames resolves role names or keys to canonical names.
func roleNames(reg *modifier.Registry, refs []string) ([]string, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	out := make([]string, len(refs))
	for i, ref := range refs {
		ro, ok := reg.LookupRole(ref)
		if !ok {
			return nil, fmt.Errorf("unknown role %q", ref)
		}
		out[i] = ro.Name
	}
	return out, nil
}

func scriptName(id string) string { return "ending:" + id }

// Conditional returns the prioritized conditional rules.
func (r *Rules) Conditional() []Rule { return slices.Clone(r.conditional) }

// Random returns the unconditional pool.
func (r *Rules) Random() []Rule { return slices.Clone(r.random) }

// IDs returns every rule id, conditional first.
func (r *Rules) IDs() []string {
	out := make([]string, 0, len(r.conditional)+len(r.random))
	for _, rule := range r.conditional {
		out = append(out, rule.ID)
	}
	for _, rule := range r.random {
		out = append(out, rule.ID)
	}
	return out
}

// Evaluator resolves endings with the shared roller.
type Evaluator struct {
	rules  *Rules
	reg    *modifier.Registry
	conds  *scripting.Conditions
	roller *dice.Roller
	logger *zap.Logger
}

// NewEvaluator wires the rule set to its draws.
//
// Precondition: every argument must be non-nil.
func NewEvaluator(rules *Rules, reg *modifier.Registry, conds *scripting.Conditions, roller *dice.Roller, logger *zap.Logger) *Evaluator {
	return &Evaluator{rules: rules, reg: reg, conds: conds, roller: roller, logger: logger}
}

// Check walks conditional rules in order; each matching rule gets its own
// chance draw and the first hit wins. With no hit the random pool is drawn
// once over its summed weights.
//
// Postcondition: Returns nil when no ending fires.
func (e *Evaluator) Check(s Subject) *Ending {
	for _, rule := range e.rules.conditional {
		if !e.matches(rule, s) {
			continue
		}
		if e.roller.Chance("ending "+rule.ID, rule.Chance) {
			return e.resolve(rule, s)
		}
	}

	draw := e.roller.Percent("random ending")
	var cumulative float64
	for _, rule := range e.rules.random {
		cumulative += rule.Chance
		if draw < cumulative {
			return e.resolve(rule, s)
		}
	}
	return nil
}

func (e *Evaluator) matches(rule Rule, s Subject) bool {
	c := rule.When
	if len(c.Roles) > 0 && !slices.Contains(c.Roles, s.Role.Name) {
		return false
	}
	if len(c.Flavors) > 0 && !slices.Contains(c.Flavors, s.Flavor.Name) {
		return false
	}
	if c.FlavorTier != "" && s.Flavor.Tier != c.FlavorTier {
		return false
	}
	if c.RoleTier != "" && s.Role.Tier != c.RoleTier {
		return false
	}
	if c.MinLevel != nil && s.Level < *c.MinLevel {
		return false
	}
	if c.MaxLevel != nil && s.Level > *c.MaxLevel {
		return false
	}
	if c.MinCurrency != nil && s.Currency < *c.MinCurrency {
		return false
	}
	if c.MaxCurrency != nil && s.Currency > *c.MaxCurrency {
		return false
	}
	if c.Destruction != nil && s.Destructions != *c.Destruction {
		return false
	}
	if c.Script != "" {
		ok, err := e.conds.Eval(scriptName(rule.ID), s.facts())
		if err != nil {
			e.logger.Warn("ending condition failed", zap.String("ending", rule.ID), zap.Error(err))
			return false
		}
		return ok
	}
	return true
}

func (e *Evaluator) resolve(rule Rule, s Subject) *Ending {
	out := &Ending{
		ID:                   rule.ID,
		Category:             rule.Category,
		Message:              rule.Message,
		GrantLegendaryFlavor: rule.GrantLegendaryFlavor,
	}
	switch rule.Next {
	case Fixed:
		out.NextRole = rule.Role
	case Keep:
		out.NextRole = s.Role.Name
	case RandomRare:
		out.NextRole = e.reg.PickRole("ending rare role", e.reg.RolesInTiers(modifier.Rare, modifier.Legendary)).Name
	case RandomLegendary:
		out.NextRole = e.reg.PickRole("ending legendary role", e.reg.RolesInTiers(modifier.Legendary)).Name
	case Choice:
		out.NextRole = rule.Choices[e.roller.Intn("ending choice", len(rule.Choices))]
	}
	e.logger.Info("special ending",
		zap.String("ending", out.ID),
		zap.String("next_role", out.NextRole),
	)
	return out
}
