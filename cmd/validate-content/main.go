// Package main loads and validates a content directory and prints a summary
// with the expected cost of reaching each level.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/ascend/internal/game/content"
	"github.com/cory-johannsen/ascend/internal/game/dice"
)

func main() {
	dir := flag.String("dir", "content", "path to the content directory")
	players := flag.Int("simulate", 0, "simulate this many seeded players after validating")
	seed := flag.Uint64("seed", 1, "seed for -simulate")
	maxAttempts := flag.Int("max-attempts", 10000, "upgrade attempts per simulated player")
	flag.Parse()

	start := time.Now()
	logger := zap.NewNop()
	b, err := content.Load(*dir, dice.NewLoggedRoller(dice.NewCryptoSource(), logger), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer b.Close()

	flavors, roles := b.Lifecycle.Totals()
	fmt.Printf("table v%d: max level %d, danger from level %d\n",
		b.Table.Version(), b.Table.MaxLevel(), b.Table.DangerLevel())
	fmt.Printf("flavors %d, roles %d, abilities %d\n", flavors, roles, len(b.Abilities.All()))
	fmt.Printf("endings %d conditional, %d random\n", len(b.Endings.Conditional()), len(b.Endings.Random()))
	fmt.Printf("achievements %d, collection milestones %d\n", len(b.Achievements.All()), len(b.Achievements.Milestones()))

	fmt.Println()
	fmt.Printf("%5s %6s %6s %6s %10s %16s\n", "level", "succ%", "dest%", "fail%", "cost", "expected total")
	costs := b.Economy.ExpectedCosts()
	for _, row := range b.Table.Rows() {
		fmt.Printf("%5d %6d %6d %6d %10d %16s\n",
			row.Level, row.SuccessPct, row.DestroyPct, row.FailPct, row.Cost, formatCost(costs[row.Level+1]))
	}
	fmt.Printf("\ncontent valid [%s]\n", time.Since(start).Round(time.Millisecond))

	if *players > 0 {
		report, err := simulate(context.Background(), *dir, *seed, *players, *maxAttempts, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println()
		report.print(os.Stdout)
	}
}

func formatCost(v float64) string {
	if math.IsInf(v, 1) {
		return "unreachable"
	}
	return fmt.Sprintf("%.0f", v)
}
