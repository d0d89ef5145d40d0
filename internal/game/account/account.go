// Package account defines the persistent user record: balance, the single
// live entity, lifetime statistics and the collection and destiny logs.
package account

import (
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/ascend/internal/game/ability"
	"github.com/cory-johannsen/ascend/internal/game/modifier"
)

// ErrNegativeAmount is returned when a credit or debit amount is below zero.
var ErrNegativeAmount = errors.New("amount must not be negative")

// Entity is the single upgradable thing an account owns.
//
// Level only grows while the entity lives; it resets by replacing the entity.
type Entity struct {
	ID              uuid.UUID       `json:"id"`
	Level           int             `json:"level"`
	Flavor          modifier.Flavor `json:"flavor"`
	Role            modifier.Role   `json:"role"`
	Investment      int64           `json:"investment"`
	ObtainedFlavors []string        `json:"obtainedFlavors"`
	Abilities       ability.List    `json:"abilities"`
	LockedNextRole  string          `json:"lockedNextRole,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// HasObtainedFlavor reports whether name was held earlier in this entity's life.
func (e *Entity) HasObtainedFlavor(name string) bool {
	return slices.Contains(e.ObtainedFlavors, name)
}

// Statistics are lifetime counters. They never decrease.
type Statistics struct {
	Attempts         int64 `json:"attempts"`
	Successes        int64 `json:"successes"`
	Failures         int64 `json:"failures"`
	Destructions     int64 `json:"destructions"`
	MaxLevel         int   `json:"maxLevel"`
	Earned           int64 `json:"earned"`
	Spent            int64 `json:"spent"`
	FlavorRerolls    int64 `json:"flavorRerolls"`
	RoleRerolls      int64 `json:"roleRerolls"`
	LegendaryFlavors int64 `json:"legendaryFlavors"`
	LegendaryRoles   int64 `json:"legendaryRoles"`
	Jackpots         int64 `json:"jackpots"`
	Sold             int64 `json:"sold"`
	SpecialEndings   int64 `json:"specialEndings"`
	RoleLosses       int64 `json:"roleLosses"`
}

// CollectionLog holds the distinct names and ids ever obtained.
type CollectionLog struct {
	Flavors      []string `json:"flavors"`
	Roles        []string `json:"roles"`
	Achievements []string `json:"achievements"`
	Claimed      []string `json:"claimed"`
}

// DestinyLog records triggered special endings.
type DestinyLog struct {
	Triggered []string `json:"triggered"`
	Last      string   `json:"last,omitempty"`
}

// Account is one user's persistent game state.
type Account struct {
	ID           string        `json:"id"`
	Currency     int64         `json:"currency"`
	Entity       Entity        `json:"entity"`
	Stats        Statistics    `json:"stats"`
	Collection   CollectionLog `json:"collection"`
	Destiny      DestinyLog    `json:"destiny"`
	CreatedAt    time.Time     `json:"createdAt"`
	LastPlayedAt time.Time     `json:"lastPlayedAt"`

	// Revision counts stored writes. Stores reject a Save whose Revision
	// no longer matches the stored one.
	Revision int64 `json:"-"`
}

// New returns an account with the starting balance and no entity. The caller
// must install an entity before the account is used.
//
// Precondition: id must be non-empty; currency must be >= 0.
func New(id string, currency int64, now time.Time) *Account {
	return &Account{
		ID:           id,
		Currency:     currency,
		CreatedAt:    now,
		LastPlayedAt: now,
	}
}

// CanAfford reports whether the balance covers amount.
func (a *Account) CanAfford(amount int64) bool {
	return amount >= 0 && a.Currency >= amount
}

// Debit removes amount from the balance and counts it as spent.
//
// Precondition: CanAfford(amount).
// Postcondition: Currency >= 0.
func (a *Account) Debit(amount int64) error {
	if amount < 0 {
		return ErrNegativeAmount
	}
	if a.Currency < amount {
		return errors.New("debit exceeds balance")
	}
	a.Currency -= amount
	a.Stats.Spent += amount
	return nil
}

// Credit adds amount to the balance and counts it as earned.
func (a *Account) Credit(amount int64) error {
	if amount < 0 {
		return ErrNegativeAmount
	}
	a.Currency += amount
	a.Stats.Earned += amount
	return nil
}

// RecordFlavor adds name to the collection. It reports whether name was new.
func (a *Account) RecordFlavor(name string) bool {
	return addUnique(&a.Collection.Flavors, name)
}

// RecordRole adds name to the collection. It reports whether name was new.
func (a *Account) RecordRole(name string) bool {
	return addUnique(&a.Collection.Roles, name)
}

// HasAchievement reports whether id is already unlocked.
func (a *Account) HasAchievement(id string) bool {
	return slices.Contains(a.Collection.Achievements, id)
}

// Unlock records an achievement. It reports whether id was new.
func (a *Account) Unlock(id string) bool {
	return addUnique(&a.Collection.Achievements, id)
}

// HasClaimed reports whether a collection reward was already paid.
func (a *Account) HasClaimed(id string) bool {
	return slices.Contains(a.Collection.Claimed, id)
}

// Claim records a collection reward. It reports whether id was new.
func (a *Account) Claim(id string) bool {
	return addUnique(&a.Collection.Claimed, id)
}

// RecordEnding logs a triggered special ending and bumps its counter.
func (a *Account) RecordEnding(id string) {
	addUnique(&a.Destiny.Triggered, id)
	a.Destiny.Last = id
	a.Stats.SpecialEndings++
}

// ObserveLevel raises MaxLevel if the live entity passed it.
func (a *Account) ObserveLevel() {
	if a.Entity.Level > a.Stats.MaxLevel {
		a.Stats.MaxLevel = a.Entity.Level
	}
}

func addUnique(set *[]string, v string) bool {
	if slices.Contains(*set, v) {
		return false
	}
	*set = append(*set, v)
	return true
}
