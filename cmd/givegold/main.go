// Package main provides a CLI tool for crediting currency to an account.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/cory-johannsen/ascend/internal/config"
	"github.com/cory-johannsen/ascend/internal/storage"
	"github.com/cory-johannsen/ascend/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	userID := flag.String("user", "", "target user id (required)")
	amount := flag.Int64("amount", 0, "currency to credit, must be positive (required)")
	flag.Parse()

	if *userID == "" || *amount <= 0 {
		flag.Usage()
		os.Exit(1)
	}

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("connecting to database: %v", err)
	}
	defer pool.Close()

	if err := pool.CheckSchema(ctx); err != nil {
		log.Fatalf("checking schema: %v", err)
	}
	repo := pool.Accounts()

	balance, err := repo.Credit(ctx, *userID, *amount)
	if errors.Is(err, storage.ErrAccountNotFound) {
		log.Fatalf("account %q does not exist", *userID)
	}
	if err != nil {
		log.Fatalf("crediting account %q: %v", *userID, err)
	}

	fmt.Fprintf(os.Stdout, "credited %s: %d -> %d [%s]\n",
		*userID, balance-*amount, balance, time.Since(start))
}
