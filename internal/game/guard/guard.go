// Package guard is the admission layer in front of upgrade requests: a
// process-wide concurrency ceiling, a per-user cooldown and a sliding-window
// anomaly detector that flags users until an operator clears them.
package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrServerOverloaded is returned when the in-flight ceiling is reached.
	ErrServerOverloaded = errors.New("server overloaded")
	// ErrTooFast is returned when a user's cooldown has not elapsed.
	ErrTooFast = errors.New("request too fast")
	// ErrFlagged is returned for users flagged by the anomaly detector.
	ErrFlagged = errors.New("user flagged")
)

// Config bounds the three admission mechanisms.
type Config struct {
	MaxConcurrent int64
	Cooldown      time.Duration
	Window        time.Duration
	Threshold     int
	StaleAfter    time.Duration
}

// FlagStore persists the flagged-user set. Implementations must be safe for
// concurrent use.
type FlagStore interface {
	Flag(ctx context.Context, userID string) error
	Unflag(ctx context.Context, userID string) (bool, error)
	UnflagAll(ctx context.Context) (int, error)
	IsFlagged(ctx context.Context, userID string) (bool, error)
	List(ctx context.Context) ([]string, error)
}

// Guard applies admission control. All methods are safe for concurrent use.
type Guard struct {
	cfg    Config
	flags  FlagStore
	logger *zap.Logger
	now    func() time.Time

	inFlight atomic.Int64

	mu       sync.Mutex
	lastSeen map[string]time.Time
	history  map[string][]time.Time
}

// New creates a Guard.
//
// Precondition: cfg.MaxConcurrent > 0, cfg.Threshold > 0, cfg.Window > 0;
// flags and logger must be non-nil.
func New(cfg Config, flags FlagStore, logger *zap.Logger) *Guard {
	return &Guard{
		cfg:      cfg,
		flags:    flags,
		logger:   logger,
		now:      time.Now,
		lastSeen: make(map[string]time.Time),
		history:  make(map[string][]time.Time),
	}
}

// Admit runs the admission checks for one upgrade request. Checks run in
// order: concurrency ceiling, flagged set, anomaly window, cooldown. Every
// request that reaches the window is counted in it, admitted or not.
//
// Postcondition: On success the in-flight counter is incremented and the
// returned release must be called exactly once; extra calls are no-ops. On
// rejection the counter is unchanged and the error wraps one of
// ErrServerOverloaded, ErrFlagged, ErrTooFast.
func (g *Guard) Admit(ctx context.Context, userID string) (func(), error) {
	if !g.reserve() {
		return nil, ErrServerOverloaded
	}
	var once sync.Once
	release := func() { once.Do(g.releaseSlot) }

	flagged, err := g.flags.IsFlagged(ctx, userID)
	if err != nil {
		// A failed lookup admits the request.
		g.logger.Warn("flag lookup failed, admitting", zap.String("user_id", userID), zap.Error(err))
	}
	if flagged {
		release()
		return nil, ErrFlagged
	}

	now := g.now()
	g.mu.Lock()
	count := g.record(userID, now)
	if count >= g.cfg.Threshold {
		g.mu.Unlock()
		release()
		g.flag(ctx, userID, count)
		return nil, ErrFlagged
	}
	if last, ok := g.lastSeen[userID]; ok && now.Sub(last) < g.cfg.Cooldown {
		g.mu.Unlock()
		release()
		return nil, fmt.Errorf("%w: retry in %s", ErrTooFast, g.cfg.Cooldown-now.Sub(last))
	}
	g.lastSeen[userID] = now
	g.mu.Unlock()

	return release, nil
}

// reserve takes one in-flight slot if the ceiling allows it.
func (g *Guard) reserve() bool {
	for {
		cur := g.inFlight.Load()
		if cur >= g.cfg.MaxConcurrent {
			return false
		}
		if g.inFlight.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// releaseSlot returns one slot, never dropping below zero.
func (g *Guard) releaseSlot() {
	for {
		cur := g.inFlight.Load()
		if cur <= 0 {
			return
		}
		if g.inFlight.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// record appends now to the user's window, drops entries older than the
// window and returns the resulting count. Caller holds g.mu.
func (g *Guard) record(userID string, now time.Time) int {
	cutoff := now.Add(-g.cfg.Window)
	kept := g.history[userID][:0]
	for _, ts := range g.history[userID] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	g.history[userID] = kept
	return len(kept)
}

func (g *Guard) flag(ctx context.Context, userID string, count int) {
	g.logger.Warn("user flagged",
		zap.String("user_id", userID),
		zap.Int("requests", count),
		zap.Duration("window", g.cfg.Window),
	)
	if err := g.flags.Flag(ctx, userID); err != nil {
		g.logger.Error("persisting flag failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// InFlight returns the current in-flight count.
func (g *Guard) InFlight() int64 { return g.inFlight.Load() }

// Overloaded reports whether the ceiling is reached.
func (g *Guard) Overloaded() bool { return g.inFlight.Load() >= g.cfg.MaxConcurrent }

// Sweep evicts cooldown entries older than both StaleAfter and Cooldown and
// window entries older than Window. It returns how many users were evicted.
//
// Postcondition: No user still inside their cooldown is evicted.
func (g *Guard) Sweep() int {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()

	stale := max(g.cfg.StaleAfter, g.cfg.Cooldown)
	evicted := 0
	for id, ts := range g.lastSeen {
		if now.Sub(ts) > stale {
			delete(g.lastSeen, id)
			evicted++
		}
	}
	cutoff := now.Add(-g.cfg.Window)
	for id, hist := range g.history {
		kept := hist[:0]
		for _, ts := range hist {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		if len(kept) == 0 {
			delete(g.history, id)
			evicted++
			continue
		}
		g.history[id] = kept
	}
	if evicted > 0 {
		g.logger.Debug("guard sweep", zap.Int("evicted", evicted))
	}
	return evicted
}

// Snapshot is the admin view of guard state.
type Snapshot struct {
	InFlight         int64    `json:"inFlight"`
	Ceiling          int64    `json:"ceiling"`
	Overloaded       bool     `json:"overloaded"`
	LoadPercent      int64    `json:"loadPercent"`
	TrackedCooldowns int      `json:"trackedCooldowns"`
	TrackedWindows   int      `json:"trackedWindows"`
	Flagged          []string `json:"flagged"`
}

// Snapshot returns the current guard state.
func (g *Guard) Snapshot(ctx context.Context) (Snapshot, error) {
	flagged, err := g.flags.List(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("listing flagged users: %w", err)
	}
	g.mu.Lock()
	cooldowns, windows := len(g.lastSeen), len(g.history)
	g.mu.Unlock()

	in := g.inFlight.Load()
	return Snapshot{
		InFlight:         in,
		Ceiling:          g.cfg.MaxConcurrent,
		Overloaded:       in >= g.cfg.MaxConcurrent,
		LoadPercent:      in * 100 / g.cfg.MaxConcurrent,
		TrackedCooldowns: cooldowns,
		TrackedWindows:   windows,
		Flagged:          flagged,
	}, nil
}

// Flagged lists flagged users.
func (g *Guard) Flagged(ctx context.Context) ([]string, error) {
	return g.flags.List(ctx)
}

// IsFlagged reports whether userID is flagged.
func (g *Guard) IsFlagged(ctx context.Context, userID string) (bool, error) {
	return g.flags.IsFlagged(ctx, userID)
}

// Unflag clears one user's flag together with their cooldown and window.
//
// Postcondition: Returns false when the user was not flagged.
func (g *Guard) Unflag(ctx context.Context, userID string) (bool, error) {
	ok, err := g.flags.Unflag(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("unflagging %s: %w", userID, err)
	}
	g.mu.Lock()
	delete(g.lastSeen, userID)
	delete(g.history, userID)
	g.mu.Unlock()
	if ok {
		g.logger.Info("user unflagged", zap.String("user_id", userID))
	}
	return ok, nil
}

// UnflagAll clears every flag and all per-user tracking.
func (g *Guard) UnflagAll(ctx context.Context) (int, error) {
	n, err := g.flags.UnflagAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("unflagging all: %w", err)
	}
	g.mu.Lock()
	g.lastSeen = make(map[string]time.Time)
	g.history = make(map[string][]time.Time)
	g.mu.Unlock()
	g.logger.Info("all users unflagged", zap.Int("count", n))
	return n, nil
}
