package guard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestGuard(t testing.TB, cfg Config) (*Guard, *fakeClock) {
	g := New(cfg, NewMemoryFlags(), zaptest.NewLogger(t))
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	g.now = clock.Now
	return g, clock
}

func defaultConfig() Config {
	return Config{
		MaxConcurrent: 100,
		Cooldown:      time.Second,
		Window:        10 * time.Second,
		Threshold:     30,
		StaleAfter:    5 * time.Minute,
	}
}

func TestAdmit_ConcurrencyCeiling(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxConcurrent = 2
	g, _ := newTestGuard(t, cfg)
	ctx := context.Background()

	r1, err := g.Admit(ctx, "u1")
	require.NoError(t, err)
	_, err = g.Admit(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, g.Overloaded())

	_, err = g.Admit(ctx, "u3")
	assert.ErrorIs(t, err, ErrServerOverloaded)
	assert.Equal(t, int64(2), g.InFlight())

	r1()
	r1()
	assert.Equal(t, int64(1), g.InFlight())

	_, err = g.Admit(ctx, "u3")
	assert.NoError(t, err)
}

func TestAdmit_Cooldown(t *testing.T) {
	g, clock := newTestGuard(t, defaultConfig())
	ctx := context.Background()

	release, err := g.Admit(ctx, "u1")
	require.NoError(t, err)
	release()

	clock.Advance(500 * time.Millisecond)
	_, err = g.Admit(ctx, "u1")
	assert.ErrorIs(t, err, ErrTooFast)
	assert.Zero(t, g.InFlight())

	_, err = g.Admit(ctx, "u2")
	assert.NoError(t, err, "cooldown is per user")

	clock.Advance(500 * time.Millisecond)
	_, err = g.Admit(ctx, "u1")
	assert.NoError(t, err)
}

func TestAdmit_AnomalyFlagsUntilCleared(t *testing.T) {
	cfg := defaultConfig()
	cfg.Threshold = 5
	g, clock := newTestGuard(t, cfg)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		release, err := g.Admit(ctx, "bot")
		if err == nil {
			release()
		} else {
			assert.ErrorIs(t, err, ErrTooFast)
		}
		clock.Advance(100 * time.Millisecond)
	}
	_, err := g.Admit(ctx, "bot")
	assert.ErrorIs(t, err, ErrFlagged)

	clock.Advance(time.Hour)
	g.Sweep()
	_, err = g.Admit(ctx, "bot")
	assert.ErrorIs(t, err, ErrFlagged)
	assert.Zero(t, g.InFlight())

	flagged, err := g.Flagged(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bot"}, flagged)

	ok, err := g.Unflag(ctx, "bot")
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = g.Admit(ctx, "bot")
	assert.NoError(t, err)
}

func TestAdmit_WindowSlides(t *testing.T) {
	cfg := defaultConfig()
	cfg.Threshold = 3
	cfg.Cooldown = 0
	g, clock := newTestGuard(t, cfg)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		release, err := g.Admit(ctx, "u1")
		require.NoError(t, err, "request %d", i)
		release()
		clock.Advance(6 * time.Second)
	}
}

func TestUnflagAll(t *testing.T) {
	cfg := defaultConfig()
	cfg.Threshold = 1
	g, _ := newTestGuard(t, cfg)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		_, err := g.Admit(ctx, id)
		assert.ErrorIs(t, err, ErrFlagged)
	}
	n, err := g.UnflagAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	snap, err := g.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Flagged)
	assert.Zero(t, snap.TrackedWindows)
}

func TestSweep_EvictsStaleEntries(t *testing.T) {
	g, clock := newTestGuard(t, defaultConfig())
	ctx := context.Background()

	release, err := g.Admit(ctx, "u1")
	require.NoError(t, err)
	release()

	snap, err := g.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.TrackedCooldowns)
	assert.Equal(t, 1, snap.TrackedWindows)

	clock.Advance(11 * time.Second)
	assert.Equal(t, 1, g.Sweep())

	clock.Advance(5 * time.Minute)
	assert.Equal(t, 1, g.Sweep())

	snap, err = g.Snapshot(ctx)
	require.NoError(t, err)
	assert.Zero(t, snap.TrackedCooldowns)
	assert.Zero(t, snap.TrackedWindows)
}

func TestSweep_KeepsCooldownsLongerThanStaleAfter(t *testing.T) {
	cfg := defaultConfig()
	cfg.Cooldown = 10 * time.Minute
	cfg.StaleAfter = time.Minute
	g, clock := newTestGuard(t, cfg)
	ctx := context.Background()

	release, err := g.Admit(ctx, "u1")
	require.NoError(t, err)
	release()

	clock.Advance(2 * time.Minute)
	g.Sweep()

	_, err = g.Admit(ctx, "u1")
	assert.ErrorIs(t, err, ErrTooFast)

	clock.Advance(9 * time.Minute)
	g.Sweep()
	snap, err := g.Snapshot(ctx)
	require.NoError(t, err)
	assert.Zero(t, snap.TrackedCooldowns)

	release, err = g.Admit(ctx, "u1")
	require.NoError(t, err)
	release()
}

func TestSnapshot_Load(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxConcurrent = 4
	g, _ := newTestGuard(t, cfg)
	ctx := context.Background()
	_, err := g.Admit(ctx, "u1")
	require.NoError(t, err)

	snap, err := g.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.InFlight)
	assert.Equal(t, int64(4), snap.Ceiling)
	assert.Equal(t, int64(25), snap.LoadPercent)
	assert.False(t, snap.Overloaded)
}

type brokenFlags struct{ *MemoryFlags }

func (brokenFlags) IsFlagged(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

func TestAdmit_FlagLookupFailureAdmits(t *testing.T) {
	g := New(defaultConfig(), brokenFlags{NewMemoryFlags()}, zaptest.NewLogger(t))
	release, err := g.Admit(context.Background(), "u1")
	require.NoError(t, err)
	release()
}

func TestProperty_InFlightNeverExceedsCeiling(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ceiling := rapid.Int64Range(1, 8).Draw(rt, "ceiling")
		workers := rapid.IntRange(1, 32).Draw(rt, "workers")
		cfg := defaultConfig()
		cfg.MaxConcurrent = ceiling
		cfg.Cooldown = 0
		cfg.Threshold = 1 << 20
		g := New(cfg, NewMemoryFlags(), zaptest.NewLogger(t))

		var wg sync.WaitGroup
		var mu sync.Mutex
		var peak int64
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				release, err := g.Admit(context.Background(), "u")
				if err != nil {
					return
				}
				defer release()
				mu.Lock()
				if n := g.InFlight(); n > peak {
					peak = n
				}
				mu.Unlock()
			}(i)
		}
		wg.Wait()
		if peak > ceiling {
			rt.Fatalf("in-flight peaked at %d above ceiling %d", peak, ceiling)
		}
		if g.InFlight() != 0 {
			rt.Fatalf("in-flight did not return to zero: %d", g.InFlight())
		}
	})
}
