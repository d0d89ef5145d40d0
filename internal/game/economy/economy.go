// Package economy computes every currency amount in the game: upgrade cost,
// sell price, reroll cost and the destruction refund.
package economy

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/ascend/internal/game/dice"
	"github.com/cory-johannsen/ascend/internal/game/table"
)

// ErrInvalidEconomy is returned when economy content violates an invariant.
var ErrInvalidEconomy = errors.New("invalid economy")

// RerollKind selects which modifier a reroll replaces.
type RerollKind string

const (
	RerollFlavor RerollKind = "flavor"
	RerollRole   RerollKind = "role"
)

// SellCurve is the piecewise-exponential base price curve.
type SellCurve struct {
	Base              float64 `yaml:"base"`
	Growth            float64 `yaml:"growth"`
	AccelerateFrom    int     `yaml:"accelerate_from"`
	AcceleratedGrowth float64 `yaml:"accelerated_growth"`
}

// LinearCost is base + perLevel*level.
type LinearCost struct {
	Base     int64 `yaml:"base"`
	PerLevel int64 `yaml:"per_level"`
}

// RefundTier is one weighted refund outcome.
type RefundTier struct {
	// Rate is the refunded share of the investment, in percent.
	Rate int `yaml:"rate"`
	// Weight is the percent probability of the tier.
	Weight float64 `yaml:"weight"`
	// Jackpot marks the top tier.
	Jackpot bool `yaml:"jackpot"`
}

// Config is the tunable economy content.
type Config struct {
	Sell   SellCurve `yaml:"sell"`
	Reroll struct {
		Flavor LinearCost `yaml:"flavor"`
		Role   LinearCost `yaml:"role"`
	} `yaml:"reroll"`
	Refund struct {
		Tiers []RefundTier `yaml:"tiers"`
	} `yaml:"refund"`
}

// Validate checks the curve, reroll and refund invariants.
func (c Config) Validate() error {
	var errs []error
	if c.Sell.Base <= 0 {
		errs = append(errs, errors.New("sell.base must be positive"))
	}
	if c.Sell.Growth <= 1 || c.Sell.AcceleratedGrowth <= 1 {
		errs = append(errs, errors.New("sell growth factors must exceed 1"))
	}
	if c.Sell.AccelerateFrom < 0 {
		errs = append(errs, errors.New("sell.accelerate_from must not be negative"))
	}
	for kind, lc := range map[RerollKind]LinearCost{RerollFlavor: c.Reroll.Flavor, RerollRole: c.Reroll.Role} {
		if lc.Base < 0 || lc.PerLevel < 0 {
			errs = append(errs, fmt.Errorf("reroll.%s must not be negative", kind))
		}
	}
	var total float64
	jackpots := 0
	for _, t := range c.Refund.Tiers {
		if t.Weight < 0 || t.Rate < 0 {
			errs = append(errs, fmt.Errorf("refund tier %d%% has a negative field", t.Rate))
		}
		if t.Jackpot {
			jackpots++
		}
		total += t.Weight
	}
	if total > 100 {
		errs = append(errs, fmt.Errorf("refund weights sum to %v, above 100", total))
	}
	if jackpots > 1 {
		errs = append(errs, errors.New("at most one refund tier may be the jackpot"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidEconomy, errors.Join(errs...))
	}
	return nil
}

// LoadConfig reads economy YAML from path.
//
// Postcondition: Returns a validated Config or an error.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading economy %q: %w", path, err)
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing economy %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Economy evaluates currency amounts against one table and config.
// It is immutable and safe for concurrent use.
type Economy struct {
	cfg   Config
	table *table.Table
}

// New builds an Economy.
//
// Precondition: tbl must be non-nil.
// Postcondition: Returns an Economy or the config validation error.
func New(cfg Config, tbl *table.Table) (*Economy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Economy{cfg: cfg, table: tbl}, nil
}

// Table returns the upgrade table the economy prices against.
func (e *Economy) Table() *table.Table { return e.table }

// UpgradeCost returns the undiscounted cost of upgrading from level, or
// false at or above the max level.
func (e *Economy) UpgradeCost(level int) (int64, bool) {
	row, ok := e.table.Info(level)
	if !ok {
		return 0, false
	}
	return row.Cost, true
}

// ExpectedCosts returns, for each level 0..MaxLevel, the expected currency
// spent reaching it from a fresh level 0 entity. Destruction restarts the
// climb; abilities and refunds are ignored. A level behind a row with no
// success chance is +Inf.
//
// Postcondition: len(result) == MaxLevel+1; result[0] == 0; non-decreasing.
func (e *Economy) ExpectedCosts() []float64 {
	rows := e.table.Rows()
	out := make([]float64, len(rows)+1)
	for i, row := range rows {
		p := float64(row.SuccessPct) / 100
		d := float64(row.DestroyPct) / 100
		if p == 0 {
			for j := i + 1; j < len(out); j++ {
				out[j] = math.Inf(1)
			}
			break
		}
		// From level i: each attempt costs row.Cost; destruction forfeits
		// out[i] to climb back.
		out[i+1] = out[i] + (float64(row.Cost)+d*out[i])/p
	}
	return out
}

// Discount applies a cost multiplier, flooring the result.
//
// Precondition: 0 <= factor <= 1.
// Postcondition: 0 <= result <= cost.
func Discount(cost int64, factor float64) int64 {
	return int64(math.Floor(float64(cost) * factor))
}

// BasePrice is the sell curve before modifier bonuses.
//
// Postcondition: BasePrice(0) == 0; strictly increasing for level >= 1.
func (e *Economy) BasePrice(level int) int64 {
	if level <= 0 {
		return 0
	}
	s := e.cfg.Sell
	if level <= s.AccelerateFrom {
		return int64(math.Floor(s.Base * math.Pow(s.Growth, float64(level))))
	}
	knee := s.Base * math.Pow(s.Growth, float64(s.AccelerateFrom))
	return int64(math.Floor(knee * math.Pow(s.AcceleratedGrowth, float64(level-s.AccelerateFrom))))
}

// SellPrice returns floor(BasePrice(level) * (1 + flavorBonus + roleBonus)).
//
// Postcondition: SellPrice(0, *, *) == 0.
func (e *Economy) SellPrice(level int, flavorBonus, roleBonus float64) int64 {
	if level <= 0 {
		return 0
	}
	return int64(math.Floor(float64(e.BasePrice(level)) * (1 + flavorBonus + roleBonus)))
}

// SellModifiers are the ability effects that adjust a sale.
type SellModifiers struct {
	FlatBonus int64
	Double    bool
}

// SellPriceWith applies sale abilities on top of SellPrice. The flat bonus is
// added before the doubling.
//
// Postcondition: result == 0 when level == 0.
func (e *Economy) SellPriceWith(level int, flavorBonus, roleBonus float64, mods SellModifiers) int64 {
	price := e.SellPrice(level, flavorBonus, roleBonus)
	if price == 0 {
		return 0
	}
	price += mods.FlatBonus
	if mods.Double {
		price *= 2
	}
	return price
}

// RerollCost returns base + level*perLevel for kind.
//
// Postcondition: result >= 0.
func (e *Economy) RerollCost(level int, kind RerollKind) int64 {
	lc := e.cfg.Reroll.Flavor
	if kind == RerollRole {
		lc = e.cfg.Reroll.Role
	}
	cost := lc.Base + int64(level)*lc.PerLevel
	if cost < 0 {
		return 0
	}
	return cost
}

// Refund is the outcome of a destruction refund draw.
type Refund struct {
	Amount int64 `json:"amount"`
	// RatePct is the tier rate before stacking.
	RatePct int `json:"ratePct"`
	// Multiplier is 2^stack for the refund-multiplier abilities consumed.
	Multiplier int64 `json:"multiplier"`
	IsJackpot  bool  `json:"isJackpot"`
}

// MaxRefundStack caps how many refund multipliers count toward one refund.
const MaxRefundStack = 30

// DestructionRefund draws a refund tier for invested currency and scales it
// by 2^stack, with stack clamped to [0, MaxRefundStack].
//
// Precondition: invested >= 0; roller must be non-nil.
// Postcondition: Amount == floor(invested * RatePct/100 * Multiplier),
// saturating at math.MaxInt64; IsJackpot only when the jackpot tier was drawn.
func (e *Economy) DestructionRefund(roller *dice.Roller, invested int64, stack int) Refund {
	mult := int64(1) << min(max(stack, 0), MaxRefundStack)
	draw := roller.Percent("refund")
	var cumulative float64
	for _, tier := range e.cfg.Refund.Tiers {
		cumulative += tier.Weight
		if draw < cumulative {
			amount := saturate(math.Floor(float64(invested) * float64(tier.Rate) / 100 * float64(mult)))
			return Refund{Amount: amount, RatePct: tier.Rate, Multiplier: mult, IsJackpot: tier.Jackpot}
		}
	}
	return Refund{Multiplier: mult}
}

// saturate converts a non-negative float to int64, clamping at math.MaxInt64.
func saturate(v float64) int64 {
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
