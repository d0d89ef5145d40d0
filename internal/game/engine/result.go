package engine

import (
	"github.com/cory-johannsen/ascend/internal/game/ability"
	"github.com/cory-johannsen/ascend/internal/game/account"
	"github.com/cory-johannsen/ascend/internal/game/achievement"
	"github.com/cory-johannsen/ascend/internal/game/destiny"
	"github.com/cory-johannsen/ascend/internal/game/economy"
	"github.com/cory-johannsen/ascend/internal/game/modifier"
	"github.com/cory-johannsen/ascend/internal/game/table"
)

// EntityView is the reported snapshot of one entity.
type EntityView struct {
	ID         string          `json:"id"`
	Level      int             `json:"level"`
	Rank       account.Rank    `json:"rank"`
	Flavor     modifier.Flavor `json:"flavor"`
	Role       modifier.Role   `json:"role"`
	Investment int64           `json:"investment"`
	Abilities  []ability.Kind  `json:"abilities"`
	SellPrice  int64           `json:"sellPrice"`
}

// NextInfo describes the next upgrade attempt. It is nil at max level.
type NextInfo struct {
	Level      int   `json:"level"`
	Cost       int64 `json:"cost"`
	SuccessPct int   `json:"successPct"`
	DestroyPct int   `json:"destroyPct"`
	FailPct    int   `json:"failPct"`
}

// UpgradeResult is the structured outcome of one upgrade attempt.
type UpgradeResult struct {
	Outcome          table.Outcome        `json:"outcome"`
	// Drawn is the outcome before the ability adjustment pass.
	Drawn            table.Outcome        `json:"drawn"`
	AbilityActivated ability.Kind         `json:"abilityActivated,omitempty"`
	Cost             int64                `json:"cost"`
	Discounted       bool                 `json:"discounted,omitempty"`
	SuccessBoost     int                  `json:"successBoost,omitempty"`
	DoubleLevel      bool                 `json:"doubleLevel,omitempty"`
	CurrencyDelta    int64                `json:"currencyDelta"`
	Balance          int64                `json:"balance"`
	Entity           EntityView           `json:"entity"`
	Destroyed        *EntityView          `json:"destroyed,omitempty"`
	Next             *NextInfo            `json:"next"`
	MaxLevel         bool                 `json:"maxLevel,omitempty"`
	Refund           *economy.Refund      `json:"refund,omitempty"`
	LevelPreserved   bool                 `json:"levelPreserved,omitempty"`
	SpecialEnding    *destiny.Ending      `json:"specialEnding,omitempty"`
	FlavorChanged    *modifier.Flavor     `json:"flavorChanged,omitempty"`
	RoleChanged      *modifier.Role       `json:"roleChanged,omitempty"`
	AbilitiesGranted []ability.Kind       `json:"abilitiesGranted,omitempty"`
	JobLossOccurred  bool                 `json:"jobLossOccurred"`
	Unlocks          []achievement.Unlock `json:"unlocks,omitempty"`
}

// SellResult is the outcome of a sale.
type SellResult struct {
	Price     int64                `json:"price"`
	BonusGold int64                `json:"bonusGold,omitempty"`
	Doubled   bool                 `json:"doubled,omitempty"`
	Sold      EntityView           `json:"sold"`
	Entity    EntityView           `json:"entity"`
	Balance   int64                `json:"balance"`
	Unlocks   []achievement.Unlock `json:"unlocks,omitempty"`
}

// RerollResult is the outcome of a paid modifier reroll.
type RerollResult struct {
	Kind             economy.RerollKind   `json:"kind"`
	Cost             int64                `json:"cost"`
	Flavor           *modifier.Flavor     `json:"flavor,omitempty"`
	Role             *modifier.Role       `json:"role,omitempty"`
	AbilitiesGranted []ability.Kind       `json:"abilitiesGranted,omitempty"`
	Entity           EntityView           `json:"entity"`
	Balance          int64                `json:"balance"`
	Unlocks          []achievement.Unlock `json:"unlocks,omitempty"`
}

// CollectionProgress is collected / total for one catalog.
type CollectionProgress struct {
	Collected int `json:"collected"`
	Total     int `json:"total"`
}

// StatusResult is the read-only view of an account.
type StatusResult struct {
	UserID       string             `json:"userId"`
	Balance      int64              `json:"balance"`
	Entity       EntityView         `json:"entity"`
	Next         *NextInfo          `json:"next"`
	MaxLevel     bool               `json:"maxLevel,omitempty"`
	FlavorReroll int64              `json:"flavorRerollCost"`
	RoleReroll   int64              `json:"roleRerollCost"`
	Stats        account.Statistics `json:"stats"`
	Flavors      CollectionProgress `json:"flavors"`
	Roles        CollectionProgress `json:"roles"`
	Achievements int                `json:"achievements"`
	LastEnding   string             `json:"lastEnding,omitempty"`
}

// RatesResult is the public probability sheet.
type RatesResult struct {
	TableVersion int                   `json:"tableVersion"`
	MaxLevel     int                   `json:"maxLevel"`
	DangerLevel  int                   `json:"dangerLevel"`
	Rows         []table.Row           `json:"rows"`
	FlavorTiers  []modifier.TierWeight `json:"flavorTiers"`
	RoleTiers    []modifier.TierWeight `json:"roleTiers"`
}
