// Package engine resolves player actions against one account: the upgrade
// pipeline plus sell, reroll, status and rates.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/ascend/internal/game/ability"
	"github.com/cory-johannsen/ascend/internal/game/account"
	"github.com/cory-johannsen/ascend/internal/game/achievement"
	"github.com/cory-johannsen/ascend/internal/game/dice"
	"github.com/cory-johannsen/ascend/internal/game/economy"
	"github.com/cory-johannsen/ascend/internal/game/guard"
	"github.com/cory-johannsen/ascend/internal/game/lifecycle"
	"github.com/cory-johannsen/ascend/internal/game/modifier"
	"github.com/cory-johannsen/ascend/internal/storage"
)

// Deps are the collaborators an Engine resolves actions with.
type Deps struct {
	Store        storage.Store
	Economy      *economy.Economy
	Abilities    *ability.Catalog
	Registry     *modifier.Registry
	Lifecycle    *lifecycle.Manager
	Achievements *achievement.Catalog
	Guard        *guard.Guard
	Roller       *dice.Roller
	Logger       *zap.Logger
}

// Config tunes the Engine.
type Config struct {
	// InitialCurrency is the balance of a newly created account.
	InitialCurrency int64
	// StoreTimeout bounds every persistence call; zero disables the bound.
	StoreTimeout time.Duration
}

// Engine is safe for concurrent use. Actions on one account are serialised.
type Engine struct {
	Deps
	cfg   Config
	locks *KeyLocks
	now   func() time.Time
}

// New creates an Engine.
//
// Precondition: every Deps field must be non-nil.
func New(deps Deps, cfg Config) *Engine {
	return &Engine{Deps: deps, cfg: cfg, locks: NewKeyLocks(), now: time.Now}
}

// withAccount runs fn on the loaded or newly created account while holding
// the account's key lock. The account is saved only if fn returns nil and
// save is true.
func (e *Engine) withAccount(ctx context.Context, userID string, save bool, fn func(*account.Account) error) error {
	unlock := e.locks.Lock(userID)
	defer unlock()

	acct, err := e.loadOrCreate(ctx, userID)
	if err != nil {
		return err
	}
	if err := fn(acct); err != nil {
		return err
	}
	if !save {
		return nil
	}
	acct.LastPlayedAt = e.now()
	sctx, cancel := e.bound(ctx)
	defer cancel()
	if err := e.Store.Save(sctx, acct); err != nil {
		return fmt.Errorf("saving account %s: %w", userID, err)
	}
	return nil
}

// loadOrCreate returns the stored account, creating and persisting a fresh
// one on first contact.
func (e *Engine) loadOrCreate(ctx context.Context, userID string) (*account.Account, error) {
	lctx, cancel := e.bound(ctx)
	acct, err := e.Store.Load(lctx, userID)
	cancel()
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, storage.ErrAccountNotFound) {
		return nil, fmt.Errorf("loading account %s: %w", userID, err)
	}

	acct = e.Lifecycle.NewAccount(userID, e.cfg.InitialCurrency)
	cctx, cancel := e.bound(ctx)
	defer cancel()
	switch err := e.Store.Create(cctx, acct); {
	case err == nil:
		e.Logger.Info("account created",
			zap.String("user_id", userID),
			zap.String("flavor", acct.Entity.Flavor.Name),
			zap.String("role", acct.Entity.Role.Name),
		)
		return acct, nil
	case errors.Is(err, storage.ErrAccountExists):
		// Another process created it between Load and Create.
		acct, err = e.Store.Load(cctx, userID)
		if err != nil {
			return nil, fmt.Errorf("loading account %s: %w", userID, err)
		}
		return acct, nil
	default:
		return nil, fmt.Errorf("creating account %s: %w", userID, err)
	}
}

func (e *Engine) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.cfg.StoreTimeout)
}

// view snapshots the live entity.
func (e *Engine) view(ent account.Entity) EntityView {
	active := ent.Abilities.Active()
	if active == nil {
		active = []ability.Kind{}
	}
	return EntityView{
		ID:         ent.ID.String(),
		Level:      ent.Level,
		Rank:       account.RankFor(ent.Level),
		Flavor:     ent.Flavor,
		Role:       ent.Role,
		Investment: ent.Investment,
		Abilities:  active,
		SellPrice:  e.Economy.SellPrice(ent.Level, ent.Flavor.BonusRate, ent.Role.BonusRate),
	}
}

// next returns the upgrade info for level, or nil at max level.
func (e *Engine) next(level int) *NextInfo {
	row, ok := e.Economy.Table().Info(level)
	if !ok {
		return nil
	}
	return &NextInfo{
		Level:      row.Level,
		Cost:       row.Cost,
		SuccessPct: row.SuccessPct,
		DestroyPct: row.DestroyPct,
		FailPct:    row.FailPct,
	}
}

func (e *Engine) evaluateAchievements(acct *account.Account) ([]achievement.Unlock, error) {
	return e.Achievements.Evaluate(acct)
}
