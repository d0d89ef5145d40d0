package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/ascend/internal/game/content"
	"github.com/cory-johannsen/ascend/internal/game/dice"
	"github.com/cory-johannsen/ascend/internal/game/engine"
	"github.com/cory-johannsen/ascend/internal/game/guard"
	"github.com/cory-johannsen/ascend/internal/game/table"
	"github.com/cory-johannsen/ascend/internal/storage"
)

// simBalance funds every simulated player well past any realistic run.
const simBalance = int64(1) << 50

// simReport aggregates a seeded simulation.
type simReport struct {
	Players      int
	ReachedMax   int
	Attempts     int64
	Destructions int64
	Endings      map[string]int
	EndingIDs    []string
}

// simulate plays players through the engine with a seeded source, each
// upgrading until max level or maxAttempts.
//
// Precondition: players > 0; maxAttempts > 0.
// Postcondition: The same dir, seed and counts always yield the same report.
func simulate(ctx context.Context, dir string, seed uint64, players, maxAttempts int, logger *zap.Logger) (*simReport, error) {
	roller := dice.NewLoggedRoller(dice.NewSeededSource(seed), logger)
	b, err := content.Load(dir, roller, logger)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	g := guard.New(guard.Config{
		MaxConcurrent: 1,
		Window:        time.Minute,
		Threshold:     math.MaxInt,
		StaleAfter:    time.Minute,
	}, guard.NewMemoryFlags(), logger)
	eng := engine.New(engine.Deps{
		Store:        storage.NewMemoryStore(),
		Economy:      b.Economy,
		Abilities:    b.Abilities,
		Registry:     b.Registry,
		Lifecycle:    b.Lifecycle,
		Achievements: b.Achievements,
		Guard:        g,
		Roller:       roller,
		Logger:       logger,
	}, engine.Config{InitialCurrency: simBalance})

	report := &simReport{Players: players, Endings: make(map[string]int), EndingIDs: b.Endings.IDs()}
	for p := 0; p < players; p++ {
		id := fmt.Sprintf("sim-%d", p)
		for n := 0; n < maxAttempts; n++ {
			res, err := eng.Upgrade(ctx, id)
			var rej *engine.RejectionError
			if errors.As(err, &rej) && rej.Reason == engine.ReasonMaxLevel {
				report.ReachedMax++
				break
			}
			if err != nil {
				return nil, fmt.Errorf("simulating %s: %w", id, err)
			}
			report.Attempts++
			if res.Outcome == table.Destruction {
				report.Destructions++
			}
			if res.SpecialEnding != nil {
				report.Endings[res.SpecialEnding.ID]++
			}
		}
	}
	return report, nil
}

func (r *simReport) print(w io.Writer) {
	fmt.Fprintf(w, "simulated %d players: %d reached max level\n", r.Players, r.ReachedMax)
	fmt.Fprintf(w, "mean attempts %.1f, mean destructions %.1f\n",
		float64(r.Attempts)/float64(r.Players), float64(r.Destructions)/float64(r.Players))
	for _, id := range r.EndingIDs {
		fmt.Fprintf(w, "  %-28s %d\n", id, r.Endings[id])
	}
}
