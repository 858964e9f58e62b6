// Finch - personal finance coaching on top of your transaction ledger.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/finch/internal/analysis"
	"github.com/opensource-finance/finch/internal/api"
	"github.com/opensource-finance/finch/internal/bus"
	"github.com/opensource-finance/finch/internal/cache"
	"github.com/opensource-finance/finch/internal/coach"
	"github.com/opensource-finance/finch/internal/config"
	"github.com/opensource-finance/finch/internal/digest"
	"github.com/opensource-finance/finch/internal/domain"
	"github.com/opensource-finance/finch/internal/ledger"
	"github.com/opensource-finance/finch/internal/report"
	"github.com/opensource-finance/finch/internal/repository"
	"github.com/opensource-finance/finch/internal/rules"
	"github.com/opensource-finance/finch/internal/scheduler"
	"github.com/opensource-finance/finch/internal/velocity"
	"github.com/opensource-finance/finch/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Logging)

	slog.Info("starting finch",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"coach", cfg.Coach.APIKey != "",
		"tracing", cfg.Tracing.Enabled,
	)

	// Create context with cancellation
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	store := ledger.NewStore(repo, busImpl)

	// Initialize Rule Engine with the spend velocity getter
	velocitySvc := velocity.NewService(repo)
	engine, err := rules.NewEngine(velocitySvc.Getter(), cfg.Analysis.MaxWorkers)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	if err := loadRules(ctx, repo, engine); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	reports := report.NewService(report.Options{
		Store:     store,
		Cache:     cacheImpl,
		Analyzer:  analysis.NewAnalyzer(analysis.NewIsolationForest(cfg.Analysis.Seed), cfg.Analysis.MaxWorkers),
		Engine:    engine,
		Digester:  digest.NewProcessor(cfg.Analysis.DigestThreshold),
		Analysis:  cfg.Analysis,
		ResultTTL: cfg.Cache.SnapshotTTL,
	})

	// Optional LLM coach
	var coachImpl coach.Coach
	if cfg.Coach.APIKey != "" {
		gemini, err := coach.NewGemini(ctx, cfg.Coach)
		if err != nil {
			slog.Error("failed to initialize coach, chat will use the fallback reply", "error", err)
		} else {
			coachImpl = gemini
			slog.Info("coach initialized", "model", cfg.Coach.Model)
		}
	} else {
		slog.Info("no GEMINI_API_KEY set, chat will use the fallback reply")
	}

	// Initialize async Worker
	var asyncWorker *worker.Worker
	if cfg.AsyncWorker {
		asyncWorker = worker.NewWorker(busImpl, reports)
		if err := asyncWorker.Start(worker.Config{}); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		}
	}

	if cfg.Ledger.SeedCSVPath != "" {
		if err := seedLedger(ctx, store, cfg.Ledger.SeedCSVPath, cfg.Ledger.DefaultTenant); err != nil {
			slog.Error("failed to seed ledger", "path", cfg.Ledger.SeedCSVPath, "error", err)
			os.Exit(1)
		}
	}

	// Periodic refresh
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(store, busImpl, cfg.Scheduler.Schedule)
		if err != nil {
			slog.Error("failed to initialize scheduler", "error", err)
			os.Exit(1)
		}
		sched.Start()
		slog.Info("refresh scheduler initialized",
			"schedule", cfg.Scheduler.Schedule,
			"next_run", sched.NextRun(),
		)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, api.Dependencies{
		Repo:          repo,
		Cache:         cacheImpl,
		Bus:           busImpl,
		Store:         store,
		Reports:       reports,
		Engine:        engine,
		Coach:         coachImpl,
		Version:       Version,
		DefaultTenant: cfg.Ledger.DefaultTenant,
		HistoryTurns:  cfg.Coach.HistoryTurns,
		ChatRateLimit: cfg.Coach.ChatRateLimit,
		ResultTTL:     cfg.Cache.SnapshotTTL,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	slog.Info("finch is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cfg, Version)

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-serverErr:
		slog.Error("server failed", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			slog.Error("scheduler did not stop cleanly", "error", err)
		}
	}
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("finch shutdown complete")
}

func setupLogger(cfg domain.LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// loadRules loads the stored global rules, seeding the default set into an
// empty database first.
func loadRules(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	dbRules, err := repo.ListNudgeRules(ctx, domain.GlobalTenantID)
	if err != nil {
		return fmt.Errorf("failed to list rules: %w", err)
	}

	if len(dbRules) == 0 {
		dbRules = rules.DefaultNudgeRules()
		for _, rule := range dbRules {
			if err := repo.SaveNudgeRule(ctx, domain.GlobalTenantID, rule); err != nil {
				return fmt.Errorf("failed to seed rule %s: %w", rule.ID, err)
			}
		}
		slog.Info("seeded default nudge rules", "count", len(dbRules))
	}

	return engine.LoadRules(dbRules)
}

// seedLedger imports a CSV ledger for the default tenant at start-up.
func seedLedger(ctx context.Context, store *ledger.Store, path, tenantID string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	txs, err := ledger.ReadCSV(f)
	if err != nil {
		return err
	}
	if err := store.Save(ctx, tenantID, txs, "seed"); err != nil {
		return err
	}

	slog.Info("ledger seeded",
		"tenant_id", tenantID,
		"transactions", len(txs),
		"path", path,
	)
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  FINCH  personal finance coach")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /api/transactions         - List the ledger")
	fmt.Println("    POST /api/transactions         - Add transactions (JSON)")
	fmt.Println("    POST /api/transactions/import  - Import a CSV ledger")
	fmt.Println("    GET  /api/analysis             - Anomalies and insights")
	fmt.Println("    GET  /api/income-profile       - Income profile")
	fmt.Println("    GET  /api/stats                - Dashboard statistics")
	fmt.Println("    GET  /api/nudges               - Fired coaching rules")
	fmt.Println("    GET  /api/digest               - Financial digest")
	fmt.Println("    POST /api/forecast             - Savings goal forecast")
	fmt.Println("    POST /api/subscriptions        - Detected subscriptions")
	fmt.Println("    POST /api/chat                 - Coaching chat")
	fmt.Println("    GET  /api/rules                - List nudge rules")
	fmt.Println("    POST /api/rules                - Create a nudge rule")
	fmt.Println("    GET  /health                   - Health check")
	fmt.Println()
}
