// Kestrel - Credit card rewards computation and comparison engine.
// Copyright (c) 2025 finmatter
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/finmatter/kestrel/internal/api"
	"github.com/finmatter/kestrel/internal/bus"
	"github.com/finmatter/kestrel/internal/cache"
	"github.com/finmatter/kestrel/internal/catalog"
	"github.com/finmatter/kestrel/internal/categorize"
	"github.com/finmatter/kestrel/internal/domain"
	"github.com/finmatter/kestrel/internal/rewards"
	"github.com/finmatter/kestrel/internal/store"
	"github.com/finmatter/kestrel/internal/tracing"
	"github.com/finmatter/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// .env is optional; real environments set variables directly
	_ = godotenv.Load()

	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	cfg := loadConfig()

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Tracing
	if _, err := tracing.Init(cfg.Tracing); err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Repository
	repo, err := store.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Catalog service
	catalogSvc := catalog.NewService(repo, cacheImpl)
	slog.Info("catalog service initialized")

	// Categorizer
	categorizer, err := categorize.NewDefault()
	if err != nil {
		slog.Error("failed to initialize categorizer", "error", err)
		os.Exit(1)
	}
	slog.Info("categorizer initialized", "rules_version", categorize.RulesVersion)

	// Rewards engine
	engine := rewards.NewEngine()

	// Async recompute worker
	asyncWorker := worker.NewWorker(busImpl, repo, cacheImpl, engine)
	if users := workerUsers(); len(users) > 0 {
		if err := asyncWorker.Start(worker.Config{UserIDs: users}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		}
	}

	// HTTP server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, catalogSvc, categorizer, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	asyncWorker.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	if err := tracing.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shut down tracing", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// loadConfig builds the configuration from tier defaults plus environment
// overrides.
func loadConfig() *domain.Config {
	cfg := domain.DefaultConfig()
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	if port := os.Getenv("KESTREL_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if path := os.Getenv("KESTREL_SQLITE_PATH"); path != "" {
		cfg.Repository.SQLitePath = path
	}
	if host := os.Getenv("KESTREL_POSTGRES_HOST"); host != "" {
		cfg.Repository.PostgresHost = host
	}
	if user := os.Getenv("KESTREL_POSTGRES_USER"); user != "" {
		cfg.Repository.PostgresUser = user
	}
	if pass := os.Getenv("KESTREL_POSTGRES_PASSWORD"); pass != "" {
		cfg.Repository.PostgresPassword = pass
	}
	if db := os.Getenv("KESTREL_POSTGRES_DB"); db != "" {
		cfg.Repository.PostgresDB = db
	}
	if addr := os.Getenv("KESTREL_REDIS_ADDR"); addr != "" {
		cfg.Cache.RedisAddr = addr
	}
	if url := os.Getenv("KESTREL_NATS_URL"); url != "" {
		cfg.EventBus.NATSUrl = url
	}
	if endpoint := os.Getenv("KESTREL_JAEGER_ENDPOINT"); endpoint != "" {
		cfg.Tracing.Endpoint = endpoint
		cfg.Tracing.Enabled = true
	}
	if env := os.Getenv("KESTREL_ENVIRONMENT"); env != "" {
		cfg.Tracing.Environment = env
	}

	return cfg
}

// workerUsers parses the comma-separated user list the async worker
// subscribes for.
func workerUsers() []string {
	raw := os.Getenv("KESTREL_WORKER_USERS")
	if raw == "" {
		return nil
	}

	var users []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			users = append(users, id)
		}
	}
	return users
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               KESTREL                     ║")
	fmt.Println("  ║   Card Rewards Computation Engine         ║")
	fmt.Println("  ║   Every rupee of rewards, accounted.      ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /rewards/compute     - Compute rewards for a card/period")
	fmt.Println("    GET  /rewards/summary     - Cached period summary for a card")
	fmt.Println("    POST /optimize/rewards    - Compare owned cards over spend history")
	fmt.Println("    POST /recommend/cards     - Recommend candidate cards")
	fmt.Println("    GET  /rule-sets           - List declared rule sets")
	fmt.Println("    PUT  /rule-sets/{cardId}  - Declare a card's rule set")
	fmt.Println("    GET  /catalog             - List catalog variants")
	fmt.Println("    POST /catalog             - Add a catalog variant")
	fmt.Println("    POST /transactions        - Batch ingest transactions")
	fmt.Println("    GET  /transactions        - List stored transactions")
	fmt.Println("    GET  /health              - Health check")
	fmt.Println()
}
