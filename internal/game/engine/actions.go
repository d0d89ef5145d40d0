package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/ascend/internal/game/ability"
	"github.com/cory-johannsen/ascend/internal/game/account"
	"github.com/cory-johannsen/ascend/internal/game/economy"
)

// Status returns the account view, creating the account on first contact.
func (e *Engine) Status(ctx context.Context, userID string) (*StatusResult, error) {
	var out *StatusResult
	err := e.withAccount(ctx, userID, false, func(acct *account.Account) error {
		flavors, roles := e.Lifecycle.Totals()
		ent := acct.Entity
		out = &StatusResult{
			UserID:       acct.ID,
			Balance:      acct.Currency,
			Entity:       e.view(ent),
			Next:         e.next(ent.Level),
			FlavorReroll: e.Economy.RerollCost(ent.Level, economy.RerollFlavor),
			RoleReroll:   e.Economy.RerollCost(ent.Level, economy.RerollRole),
			Stats:        acct.Stats,
			Flavors:      CollectionProgress{Collected: len(acct.Collection.Flavors), Total: flavors},
			Roles:        CollectionProgress{Collected: len(acct.Collection.Roles), Total: roles},
			Achievements: len(acct.Collection.Achievements),
			LastEnding:   acct.Destiny.Last,
		}
		out.MaxLevel = out.Next == nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Sell converts the entity into currency and replaces it. A flat bonus is
// added before doubling; both abilities are consumed.
//
// Postcondition: Rejected with ErrNotSellable at level 0.
func (e *Engine) Sell(ctx context.Context, userID string) (*SellResult, error) {
	var out *SellResult
	err := e.withAccount(ctx, userID, true, func(acct *account.Account) error {
		ent := &acct.Entity
		if ent.Level == 0 {
			return &RejectionError{Reason: ReasonNotSellable, Err: ErrNotSellable}
		}
		var mods economy.SellModifiers
		if ent.Abilities.Consume(ability.BonusGold) {
			mods.FlatBonus = e.Abilities.MustGet(ability.BonusGold).Amount
		}
		mods.Double = ent.Abilities.Consume(ability.DoubleSell)
		price := e.Economy.SellPriceWith(ent.Level, ent.Flavor.BonusRate, ent.Role.BonusRate, mods)

		sold := e.view(*ent)
		if err := acct.Credit(price); err != nil {
			return fmt.Errorf("crediting sale: %w", err)
		}
		acct.Stats.Sold++
		e.Lifecycle.Replace(acct)

		out = &SellResult{
			Price:     price,
			BonusGold: mods.FlatBonus,
			Doubled:   mods.Double,
			Sold:      sold,
		}
		unlocks, err := e.evaluateAchievements(acct)
		if err != nil {
			return err
		}
		out.Unlocks = unlocks
		out.Entity = e.view(acct.Entity)
		out.Balance = acct.Currency
		e.Logger.Info("entity sold",
			zap.String("user_id", userID),
			zap.Int("level", sold.Level),
			zap.Int64("price", price),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Reroll pays to redraw one modifier. Animal roles may be rerolled.
//
// Postcondition: Rejected with ErrInsufficientFunds when the balance does
// not cover the reroll cost.
func (e *Engine) Reroll(ctx context.Context, userID string, kind economy.RerollKind) (*RerollResult, error) {
	if kind != economy.RerollFlavor && kind != economy.RerollRole {
		return nil, fmt.Errorf("%w: reroll %q", ErrUnknownAction, kind)
	}
	var out *RerollResult
	err := e.withAccount(ctx, userID, true, func(acct *account.Account) error {
		cost := e.Economy.RerollCost(acct.Entity.Level, kind)
		if err := acct.Debit(cost); err != nil {
			return insufficient(cost, acct.Currency)
		}
		out = &RerollResult{Kind: kind, Cost: cost}
		switch kind {
		case economy.RerollFlavor:
			f, granted := e.Lifecycle.RerollFlavor(acct)
			out.Flavor = &f
			out.AbilitiesGranted = granted
		case economy.RerollRole:
			r := e.Lifecycle.RerollRole(acct)
			out.Role = &r
		}
		unlocks, err := e.evaluateAchievements(acct)
		if err != nil {
			return err
		}
		out.Unlocks = unlocks
		out.Entity = e.view(acct.Entity)
		out.Balance = acct.Currency
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Rates returns the table and tier probabilities. It touches no account.
func (e *Engine) Rates() RatesResult {
	tbl := e.Economy.Table()
	return RatesResult{
		TableVersion: tbl.Version(),
		MaxLevel:     tbl.MaxLevel(),
		DangerLevel:  tbl.DangerLevel(),
		Rows:         tbl.Rows(),
		FlavorTiers:  e.Registry.FlavorTiers(),
		RoleTiers:    e.Registry.RoleTiers(),
	}
}

// GrantCurrency credits amount to userID's account as earned currency.
//
// Precondition: amount > 0.
// Postcondition: Returns the new balance.
func (e *Engine) GrantCurrency(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("granting %d: %w", amount, account.ErrNegativeAmount)
	}
	var balance int64
	err := e.withAccount(ctx, userID, true, func(acct *account.Account) error {
		if err := acct.Credit(amount); err != nil {
			return err
		}
		balance = acct.Currency
		return nil
	})
	if err != nil {
		return 0, err
	}
	e.Logger.Info("currency granted",
		zap.String("user_id", userID),
		zap.Int64("amount", amount),
		zap.Int64("balance", balance),
	)
	return balance, nil
}

// Account returns a copy of the stored account without creating one.
func (e *Engine) Account(ctx context.Context, userID string) (*account.Account, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()
	lctx, cancel := e.bound(ctx)
	defer cancel()
	return e.Store.Load(lctx, userID)
}

// Action names a player action on the wire.
type Action string

const (
	ActionStatus       Action = "status"
	ActionUpgrade      Action = "upgrade"
	ActionSell         Action = "sell"
	ActionRerollFlavor Action = "reroll-flavor"
	ActionRerollRole   Action = "reroll-role"
	ActionRates        Action = "rates"
)

// Dispatch routes a named action to its handler and returns its result.
//
// Postcondition: Returns an error wrapping ErrUnknownAction for names
// outside the Action constants.
func (e *Engine) Dispatch(ctx context.Context, userID string, action Action) (any, error) {
	switch action {
	case ActionStatus:
		return e.Status(ctx, userID)
	case ActionUpgrade:
		return e.Upgrade(ctx, userID)
	case ActionSell:
		return e.Sell(ctx, userID)
	case ActionRerollFlavor:
		return e.Reroll(ctx, userID, economy.RerollFlavor)
	case ActionRerollRole:
		return e.Reroll(ctx, userID, economy.RerollRole)
	case ActionRates:
		return e.Rates(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
}
