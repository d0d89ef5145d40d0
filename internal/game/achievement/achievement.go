// Package achievement evaluates unlockable achievements and collection
// milestone rewards after each state-changing action.
package achievement

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/ascend/internal/game/account"
	"github.com/cory-johannsen/ascend/internal/scripting"
)

// ErrInvalidCatalog is returned when the achievements file fails validation.
var ErrInvalidCatalog = errors.New("invalid achievement catalog")

// Grade is the prestige class of an achievement.
type Grade string

const (
	Bronze    Grade = "bronze"
	Silver    Grade = "silver"
	Gold      Grade = "gold"
	Diamond   Grade = "diamond"
	Legendary Grade = "legendary"
)

// Metric names an account counter an achievement can threshold on.
type Metric string

const (
	Successes          Metric = "successes"
	MaxLevel           Metric = "max_level"
	Destructions       Metric = "destructions"
	Jackpots           Metric = "jackpots"
	Currency           Metric = "currency"
	Sold               Metric = "sold"
	Rerolls            Metric = "rerolls"
	FlavorsCollected   Metric = "flavors_collected"
	RolesCollected     Metric = "roles_collected"
	FlavorCollectedPct Metric = "flavor_collection_pct"
	RoleCollectedPct   Metric = "role_collection_pct"
	LegendaryFlavors   Metric = "legendary_flavors"
	LegendaryRoles     Metric = "legendary_roles"
	SpecialEndings     Metric = "special_endings"
	DistinctEndings    Metric = "distinct_endings"
)

var knownMetrics = []Metric{
	Successes, MaxLevel, Destructions, Jackpots, Currency, Sold, Rerolls,
	FlavorsCollected, RolesCollected, FlavorCollectedPct, RoleCollectedPct,
	LegendaryFlavors, LegendaryRoles, SpecialEndings, DistinctEndings,
}

// Achievement unlocks once when exactly one of its triggers holds: a metric
// at or above Threshold, a triggered ending id, or a Lua expression.
type Achievement struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Category    string `yaml:"category" json:"category"`
	Grade       Grade  `yaml:"grade" json:"grade"`
	Reward      int64  `yaml:"reward" json:"reward"`
	Metric      Metric `yaml:"metric" json:"-"`
	Threshold   int64  `yaml:"threshold" json:"-"`
	Ending      string `yaml:"ending" json:"-"`
	Script      string `yaml:"script" json:"-"`
}

// Milestone pays Reward once when Percent of a collection is complete.
type Milestone struct {
	ID         string `yaml:"id"`
	Collection string `yaml:"collection"`
	Percent    int64  `yaml:"percent"`
	Reward     int64  `yaml:"reward"`
}

// Totals are the catalog sizes used for collection percentages.
type Totals struct {
	Flavors int
	Roles   int
}

// Unlock is one newly granted achievement or milestone.
type Unlock struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Grade  Grade  `json:"grade,omitempty"`
	Reward int64  `json:"reward"`
	// Milestone is true for collection rewards.
	Milestone bool `json:"milestone,omitempty"`
}

type catalogFile struct {
	Achievements []Achievement `yaml:"achievements"`
	Milestones   []Milestone   `yaml:"milestones"`
}

// Catalog holds validated achievements and milestones.
type Catalog struct {
	achievements []Achievement
	milestones   []Milestone
	totals       Totals
	conds        *scripting.Conditions
	logger       *zap.Logger
}

// Load reads and validates an achievements file. Script triggers are
// compiled into conds under "achievement:<id>".
//
// Precondition: conds and logger must be non-nil; totals must be positive.
// Postcondition: Returns a Catalog or an error wrapping ErrInvalidCatalog.
func Load(path string, totals Totals, conds *scripting.Conditions, logger *zap.Logger) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading achievements %s: %w", path, err)
	}
	var f catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing achievements %s: %w", path, err)
	}
	return New(f.Achievements, f.Milestones, totals, conds, logger)
}

// New validates achievements and milestones.
func New(achievements []Achievement, milestones []Milestone, totals Totals, conds *scripting.Conditions, logger *zap.Logger) (*Catalog, error) {
	seen := make(map[string]bool)
	for _, a := range achievements {
		if a.ID == "" || seen[a.ID] {
			return nil, fmt.Errorf("%w: missing or duplicate id %q", ErrInvalidCatalog, a.ID)
		}
		seen[a.ID] = true
		if a.Reward < 0 {
			return nil, fmt.Errorf("%w: %s has negative reward", ErrInvalidCatalog, a.ID)
		}
		triggers := 0
		if a.Metric != "" {
			triggers++
			if !slices.Contains(knownMetrics, a.Metric) {
				return nil, fmt.Errorf("%w: %s has unknown metric %q", ErrInvalidCatalog, a.ID, a.Metric)
			}
		}
		if a.Ending != "" {
			triggers++
		}
		if a.Script != "" {
			triggers++
			if err := conds.Compile(scriptName(a.ID), a.Script); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCatalog, a.ID, err)
			}
		}
		if triggers != 1 {
			return nil, fmt.Errorf("%w: %s needs exactly one of metric, ending, script", ErrInvalidCatalog, a.ID)
		}
	}
	for _, m := range milestones {
		if m.ID == "" || seen[m.ID] {
			return nil, fmt.Errorf("%w: missing or duplicate id %q", ErrInvalidCatalog, m.ID)
		}
		seen[m.ID] = true
		if m.Reward < 0 {
			return nil, fmt.Errorf("%w: %s has negative reward", ErrInvalidCatalog, m.ID)
		}
		if m.Collection != "flavors" && m.Collection != "roles" {
			return nil, fmt.Errorf("%w: %s has unknown collection %q", ErrInvalidCatalog, m.ID, m.Collection)
		}
		if m.Percent <= 0 || m.Percent > 100 {
			return nil, fmt.Errorf("%w: %s percent %d outside (0,100]", ErrInvalidCatalog, m.ID, m.Percent)
		}
	}
	return &Catalog{
		achievements: slices.Clone(achievements),
		milestones:   slices.Clone(milestones),
		totals:       totals,
		conds:        conds,
		logger:       logger,
	}, nil
}

func scriptName(id string) string { return "achievement:" + id }

// All returns every achievement in catalog order.
func (c *Catalog) All() []Achievement { return slices.Clone(c.achievements) }

// Milestones returns every collection milestone in catalog order.
func (c *Catalog) Milestones() []Milestone { return slices.Clone(c.milestones) }

// Evaluate unlocks every achievement and milestone acct newly satisfies,
// records them and credits their rewards.
//
// Precondition: acct must be non-nil.
// Postcondition: Returned ids are recorded on acct; Currency and Earned grow by
// the summed rewards. A failed credit stops evaluation and is returned.
func (c *Catalog) Evaluate(acct *account.Account) ([]Unlock, error) {
	var out []Unlock
	for _, a := range c.achievements {
		if acct.HasAchievement(a.ID) || !c.satisfied(a, acct) {
			continue
		}
		if err := acct.Credit(a.Reward); err != nil {
			return nil, fmt.Errorf("crediting achievement %s: %w", a.ID, err)
		}
		acct.Unlock(a.ID)
		out = append(out, Unlock{ID: a.ID, Name: a.Name, Grade: a.Grade, Reward: a.Reward})
	}
	for _, m := range c.milestones {
		if acct.HasClaimed(m.ID) {
			continue
		}
		metric := FlavorCollectedPct
		if m.Collection == "roles" {
			metric = RoleCollectedPct
		}
		if c.metric(metric, acct) < m.Percent {
			continue
		}
		if err := acct.Credit(m.Reward); err != nil {
			return nil, fmt.Errorf("crediting milestone %s: %w", m.ID, err)
		}
		acct.Claim(m.ID)
		out = append(out, Unlock{ID: m.ID, Reward: m.Reward, Milestone: true})
	}
	if len(out) > 0 {
		ids := make([]string, len(out))
		for i, u := range out {
			ids[i] = u.ID
		}
		c.logger.Info("achievements unlocked",
			zap.String("user_id", acct.ID),
			zap.Strings("ids", ids),
		)
	}
	return out, nil
}

func (c *Catalog) satisfied(a Achievement, acct *account.Account) bool {
	switch {
	case a.Metric != "":
		return c.metric(a.Metric, acct) >= a.Threshold
	case a.Ending != "":
		return slices.Contains(acct.Destiny.Triggered, a.Ending)
	default:
		ok, err := c.conds.Eval(scriptName(a.ID), c.facts(acct))
		if err != nil {
			c.logger.Warn("achievement condition failed", zap.String("achievement", a.ID), zap.Error(err))
			return false
		}
		return ok
	}
}

func (c *Catalog) metric(m Metric, acct *account.Account) int64 {
	s := acct.Stats
	switch m {
	case Successes:
		return s.Successes
	case MaxLevel:
		return int64(s.MaxLevel)
	case Destructions:
		return s.Destructions
	case Jackpots:
		return s.Jackpots
	case Currency:
		return acct.Currency
	case Sold:
		return s.Sold
	case Rerolls:
		return s.FlavorRerolls + s.RoleRerolls
	case FlavorsCollected:
		return int64(len(acct.Collection.Flavors))
	case RolesCollected:
		return int64(len(acct.Collection.Roles))
	case FlavorCollectedPct:
		return percent(len(acct.Collection.Flavors), c.totals.Flavors)
	case RoleCollectedPct:
		return percent(len(acct.Collection.Roles), c.totals.Roles)
	case LegendaryFlavors:
		return s.LegendaryFlavors
	case LegendaryRoles:
		return s.LegendaryRoles
	case SpecialEndings:
		return s.SpecialEndings
	case DistinctEndings:
		return int64(len(acct.Destiny.Triggered))
	}
	return 0
}

func percent(n, total int) int64 {
	if total <= 0 {
		return 0
	}
	return int64(n * 100 / total)
}

func (c *Catalog) facts(acct *account.Account) scripting.Facts {
	e := acct.Entity
	f := scripting.Facts{
		"level":       e.Level,
		"investment":  e.Investment,
		"flavor":      e.Flavor.Name,
		"flavor_tier": string(e.Flavor.Tier),
		"role":        e.Role.Name,
		"role_tier":   string(e.Role.Tier),
		"category":    e.Role.Category,
		"endings":     acct.Destiny.Triggered,
	}
	for _, m := range knownMetrics {
		f[string(m)] = c.metric(m, acct)
	}
	return f
}
