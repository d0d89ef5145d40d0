// Package main provides the upgrade game server: the chat webhook and admin
// API over HTTP, plus a gRPC health service.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/cory-johannsen/ascend/internal/config"
	"github.com/cory-johannsen/ascend/internal/game/content"
	"github.com/cory-johannsen/ascend/internal/game/dice"
	"github.com/cory-johannsen/ascend/internal/game/engine"
	"github.com/cory-johannsen/ascend/internal/game/guard"
	"github.com/cory-johannsen/ascend/internal/health"
	"github.com/cory-johannsen/ascend/internal/observability"
	"github.com/cory-johannsen/ascend/internal/server"
	"github.com/cory-johannsen/ascend/internal/storage"
	"github.com/cory-johannsen/ascend/internal/storage/postgres"
	redisstore "github.com/cory-johannsen/ascend/internal/storage/redis"
	"github.com/cory-johannsen/ascend/internal/webhook"
)

const (
	limiterIdle   = 10 * time.Minute
	healthRefresh = time.Second
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	envFile := flag.String("env", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading %s: %v", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting upgrade server",
		zap.String("http_addr", cfg.HTTP.Addr()),
		zap.String("grpc_addr", cfg.GRPC.Addr()),
		zap.String("storage", cfg.Storage.Driver),
	)

	ctx := context.Background()
	roller := dice.NewLoggedRoller(dice.NewCryptoSource(), logger)

	contentStart := time.Now()
	bundle, err := content.Load(cfg.Game.ContentDir, roller, logger)
	if err != nil {
		logger.Fatal("loading content", zap.Error(err))
	}
	defer bundle.Close()
	logger.Info("content loaded",
		zap.String("dir", cfg.Game.ContentDir),
		zap.Int("table_version", bundle.Table.Version()),
		zap.Int("max_level", bundle.Table.MaxLevel()),
		zap.Duration("elapsed", time.Since(contentStart)),
	)

	lifecycle := server.NewLifecycle(logger, cfg.HTTP.ShutdownTimeout)

	var store storage.Store
	switch cfg.Storage.Driver {
	case "postgres":
		dbStart := time.Now()
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		if err := pool.CheckSchema(ctx); err != nil {
			logger.Fatal("checking database schema", zap.Error(err))
		}
		store = pool.Accounts()
		done := make(chan struct{})
		lifecycle.Add("postgres", &server.FuncService{
			StartFn: func() error {
				ticker := time.NewTicker(30 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return nil
					case <-ticker.C:
						if err := pool.Health(ctx); err != nil {
							logger.Warn("database health check failed", zap.Error(err))
						}
					}
				}
			},
			StopFn: func(context.Context) error {
				close(done)
				pool.Close()
				return nil
			},
		})
	default:
		logger.Warn("using in-memory account store; accounts are lost on exit")
		store = storage.NewMemoryStore()
	}

	var flags guard.FlagStore = guard.NewMemoryFlags()
	if cfg.Redis.Enabled {
		client, err := redisstore.NewClient(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal("connecting to redis", zap.Error(err))
		}
		flags = redisstore.NewFlagStore(client, cfg.Redis.KeyPrefix)
		logger.Info("redis flag store connected", zap.String("addr", cfg.Redis.Addr))
		defer client.Close()
	}

	g := guard.New(guard.Config{
		MaxConcurrent: cfg.Guard.MaxConcurrent,
		Cooldown:      cfg.Guard.Cooldown,
		Window:        cfg.Guard.Window,
		Threshold:     cfg.Guard.Threshold,
		StaleAfter:    cfg.Guard.StaleAfter,
	}, flags, logger)

	eng := engine.New(engine.Deps{
		Store:        store,
		Economy:      bundle.Economy,
		Abilities:    bundle.Abilities,
		Registry:     bundle.Registry,
		Lifecycle:    bundle.Lifecycle,
		Achievements: bundle.Achievements,
		Guard:        g,
		Roller:       roller,
		Logger:       logger,
	}, engine.Config{
		InitialCurrency: cfg.Game.InitialCurrency,
		StoreTimeout:    cfg.Database.QueryTimeout,
	})

	adminCfg := cfg.Admin
	if adminCfg.KeyHash == "" {
		logger.Warn("admin.key_hash is empty; the admin API refuses every request")
	}
	if adminCfg.TokenSecret == "" {
		adminCfg.TokenSecret = randomSecret()
		logger.Warn("admin.token_secret is empty; using a per-process secret")
	}
	auth := webhook.NewAuthenticator(adminCfg, logger)
	limiter := webhook.NewIPLimiter(cfg.HTTP.APIRate, cfg.HTTP.APIBurst)

	httpServer := webhook.New(cfg.HTTP, webhook.Deps{
		Game:     eng,
		Guard:    g,
		Accounts: store,
		Catalog:  bundle.Registry,
		Auth:     auth,
		Limiter:  limiter,
		Logger:   logger,
	})

	reporter := health.NewReporter(g, logger)
	grpcServer := grpc.NewServer()
	reporter.Register(grpcServer)

	sched, err := server.NewScheduler(logger)
	if err != nil {
		logger.Fatal("creating scheduler", zap.Error(err))
	}
	jobs := []struct {
		name     string
		interval time.Duration
		fn       func()
	}{
		{"guard-sweep", cfg.Guard.SweepInterval, func() { g.Sweep() }},
		{"limiter-evict", cfg.Guard.SweepInterval, func() {
			limiter.Evict(limiterIdle)
			auth.EvictLockouts()
		}},
		{"health-refresh", healthRefresh, reporter.Refresh},
	}
	for _, j := range jobs {
		if err := sched.Every(j.name, j.interval, j.fn); err != nil {
			logger.Fatal("scheduling job", zap.String("job", j.name), zap.Error(err))
		}
	}

	lifecycle.Add("scheduler", sched)
	lifecycle.Add("grpc", &server.FuncService{
		StartFn: func() error {
			lis, err := net.Listen("tcp", cfg.GRPC.Addr())
			if err != nil {
				return fmt.Errorf("listening on %s: %w", cfg.GRPC.Addr(), err)
			}
			logger.Info("gRPC health server listening", zap.String("addr", lis.Addr().String()))
			return grpcServer.Serve(lis)
		},
		StopFn: func(context.Context) error {
			reporter.Shutdown()
			grpcServer.GracefulStop()
			return nil
		},
	})
	lifecycle.Add("http", httpServer)

	logger.Info("upgrade server initialized", zap.Duration("startup", time.Since(start)))

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatalf("generating token secret: %v", err)
	}
	return hex.EncodeToString(b)
}
