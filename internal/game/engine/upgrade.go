package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/ascend/internal/game/ability"
	"github.com/cory-johannsen/ascend/internal/game/account"
	"github.com/cory-johannsen/ascend/internal/game/economy"
	"github.com/cory-johannsen/ascend/internal/game/table"
)

// attempt is the evolving state of one upgrade as it passes through the
// stages.
type attempt struct {
	acct     *account.Account
	row      table.Row
	cost     int64
	discount bool
	before   int64
	result   UpgradeResult
}

// stage is one step of the upgrade pipeline. A stage returning an error stops
// the pipeline and nothing is saved.
type stage struct {
	name string
	run  func(*Engine, *attempt) error
}

// upgradeStages is the fixed resolution order.
var upgradeStages = []stage{
	{"precondition", (*Engine).checkPreconditions},
	{"charge", (*Engine).charge},
	{"draw", (*Engine).draw},
	{"adjust", (*Engine).adjust},
	{"apply", (*Engine).apply},
	{"achievements", (*Engine).unlockAchievements},
	{"report", (*Engine).report},
}

// Upgrade resolves one upgrade attempt for userID behind the abuse guard.
//
// Postcondition: On success the account is saved and the result describes
// the outcome. On rejection the error is a *RejectionError and no game state
// changed. Any other error is an infrastructure failure.
func (e *Engine) Upgrade(ctx context.Context, userID string) (*UpgradeResult, error) {
	start := time.Now()
	release, err := e.Guard.Admit(ctx, userID)
	if err != nil {
		return nil, admissionRejection(err)
	}
	defer release()

	var at *attempt
	err = e.withAccount(ctx, userID, true, func(acct *account.Account) error {
		at = &attempt{acct: acct, before: acct.Currency}
		for _, s := range upgradeStages {
			if err := s.run(e, at); err != nil {
				e.Logger.Debug("upgrade stopped", zap.String("user_id", userID), zap.String("stage", s.name), zap.Error(err))
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.Logger.Info("upgrade resolved",
		zap.String("user_id", userID),
		zap.String("outcome", string(at.result.Outcome)),
		zap.Int("level", at.result.Entity.Level),
		zap.Int64("cost", at.result.Cost),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &at.result, nil
}

func (e *Engine) checkPreconditions(at *attempt) error {
	ent := &at.acct.Entity
	row, ok := e.Economy.Table().Info(ent.Level)
	if !ok {
		return &RejectionError{Reason: ReasonMaxLevel, Err: ErrMaxLevelReached}
	}
	at.row = row
	at.cost = row.Cost
	if ent.Abilities.Has(ability.CostDiscount) {
		at.cost = economy.Discount(row.Cost, e.Abilities.MustGet(ability.CostDiscount).Factor)
		at.discount = true
	}
	if !at.acct.CanAfford(at.cost) {
		return insufficient(at.cost, at.acct.Currency)
	}
	return nil
}

func (e *Engine) charge(at *attempt) error {
	if err := at.acct.Debit(at.cost); err != nil {
		return insufficient(at.cost, at.acct.Currency)
	}
	if at.discount {
		at.acct.Entity.Abilities.Consume(ability.CostDiscount)
	}
	at.acct.Stats.Attempts++
	at.acct.Entity.Investment += at.cost
	at.result.Cost = at.cost
	at.result.Discounted = at.discount
	return nil
}

// draw samples the base outcome. A success boost moves points into success,
// taken from failure first and then destruction.
func (e *Engine) draw(at *attempt) error {
	row := at.row
	if at.acct.Entity.Abilities.Consume(ability.SuccessBoost) {
		boost := int(e.Abilities.MustGet(ability.SuccessBoost).Boost)
		row = boosted(row, boost)
		at.result.SuccessBoost = row.SuccessPct - at.row.SuccessPct
	}
	at.result.Drawn = row.Resolve(e.Roller.Percent("upgrade"))
	at.result.Outcome = at.result.Drawn
	return nil
}

func boosted(row table.Row, boost int) table.Row {
	fromFail := min(boost, row.FailPct)
	row.FailPct -= fromFail
	fromDestroy := min(boost-fromFail, row.DestroyPct)
	row.DestroyPct -= fromDestroy
	row.SuccessPct += fromFail + fromDestroy
	return row
}

// adjust runs the ability interceptors. Guaranteed effects win over
// probabilistic ones and at most one adjustment fires.
func (e *Engine) adjust(at *attempt) error {
	abilities := at.acct.Entity.Abilities
	switch at.result.Outcome {
	case table.Failure:
		if abilities.Consume(ability.GuaranteedSuccess) {
			at.flip(table.Success, ability.GuaranteedSuccess)
		} else if abilities.Consume(ability.LuckUp) {
			if e.Roller.Chance("luck up", e.Abilities.MustGet(ability.LuckUp).Chance) {
				at.flip(table.Success, ability.LuckUp)
			}
		}
	case table.Destruction:
		if abilities.Consume(ability.PreventDestruction) {
			at.flip(table.Failure, ability.PreventDestruction)
		} else if abilities.Consume(ability.ResistDestruction) {
			if e.Roller.Chance("resist destruction", e.Abilities.MustGet(ability.ResistDestruction).Chance) {
				at.flip(table.Failure, ability.ResistDestruction)
			}
		}
	}
	return nil
}

func (at *attempt) flip(to table.Outcome, by ability.Kind) {
	at.result.Outcome = to
	at.result.AbilityActivated = by
}

func (e *Engine) apply(at *attempt) error {
	switch at.result.Outcome {
	case table.Success:
		e.applySuccess(at)
	case table.Failure:
		e.applyFailure(at)
	case table.Destruction:
		return e.applyDestruction(at)
	}
	return nil
}

func (e *Engine) applySuccess(at *attempt) {
	acct := at.acct
	ent := &acct.Entity
	gain := 1
	if ent.Abilities.Has(ability.DoubleLevel) && ent.Level+2 <= e.Economy.Table().MaxLevel() {
		ent.Abilities.Consume(ability.DoubleLevel)
		gain = 2
		at.result.DoubleLevel = true
	}
	ent.Level += gain
	acct.Stats.Successes++
	acct.ObserveLevel()

	if f, granted, ok := e.Lifecycle.ChangeFlavorOnSuccess(acct); ok {
		at.result.FlavorChanged = &f
		at.result.AbilitiesGranted = granted
	}
	if r, ok := e.Lifecycle.ChangeRoleOnSuccess(acct); ok {
		at.result.RoleChanged = &r
	}
}

func (e *Engine) applyFailure(at *attempt) {
	at.acct.Stats.Failures++
	at.result.JobLossOccurred = e.Lifecycle.LoseRoleOnFailure(at.acct)
}

func (e *Engine) applyDestruction(at *attempt) error {
	acct := at.acct
	ent := &acct.Entity
	acct.Stats.Destructions++

	stack := ent.Abilities.ConsumeAll(ability.RefundMultiplier)
	refund := e.Economy.DestructionRefund(e.Roller, ent.Investment, stack)
	if err := acct.Credit(refund.Amount); err != nil {
		return fmt.Errorf("crediting refund: %w", err)
	}
	if refund.IsJackpot {
		acct.Stats.Jackpots++
	}
	at.result.Refund = &refund

	at.result.SpecialEnding = e.Lifecycle.CheckSpecialEnding(acct)

	preserved := ent.Level
	keepLevel := ent.Abilities.Consume(ability.PreserveLevel)
	destroyed := e.view(*ent)
	at.result.Destroyed = &destroyed

	e.Lifecycle.Replace(acct)
	if keepLevel {
		acct.Entity.Level = preserved
		at.result.LevelPreserved = true
	}
	if at.result.SpecialEnding != nil && at.result.SpecialEnding.GrantLegendaryFlavor {
		f, granted := e.Lifecycle.GrantLegendaryFlavor(acct)
		at.result.FlavorChanged = &f
		at.result.AbilitiesGranted = granted
	}
	return nil
}

func (e *Engine) unlockAchievements(at *attempt) error {
	unlocks, err := e.evaluateAchievements(at.acct)
	if err != nil {
		return err
	}
	at.result.Unlocks = unlocks
	return nil
}

func (e *Engine) report(at *attempt) error {
	acct := at.acct
	at.result.Entity = e.view(acct.Entity)
	at.result.Next = e.next(acct.Entity.Level)
	at.result.MaxLevel = at.result.Next == nil
	at.result.Balance = acct.Currency
	at.result.CurrencyDelta = acct.Currency - at.before
	return nil
}
