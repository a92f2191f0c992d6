// Command onboardd runs the client onboarding orchestration server: the
// lifecycle state machine, the verification and setup engines, the progress
// tracker, and the HTTP surface that fronts them.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/meridianfs/onboard/internal/api"
	"github.com/meridianfs/onboard/internal/compliance"
	"github.com/meridianfs/onboard/internal/expressions"
	"github.com/meridianfs/onboard/internal/logging"
	"github.com/meridianfs/onboard/internal/notify"
	"github.com/meridianfs/onboard/internal/progress"
	"github.com/meridianfs/onboard/internal/scheduler"
	"github.com/meridianfs/onboard/internal/setup"
	"github.com/meridianfs/onboard/internal/store"
	"github.com/meridianfs/onboard/internal/streaming"
	"github.com/meridianfs/onboard/internal/validation"
	"github.com/meridianfs/onboard/internal/verify"
	"github.com/meridianfs/onboard/internal/worker"
	"github.com/meridianfs/onboard/internal/workflow"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "onboardd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	hub := streaming.NewMemoryHub()
	conditions, err := expressions.NewCELEngine()
	if err != nil {
		return fmt.Errorf("build condition engine: %w", err)
	}

	machine := workflow.NewMachine(st, hub, workflow.DefaultRules(),
		workflow.NewValidatorRegistry(), conditions, logger)
	setupEngine := setup.NewEngine(setup.NewMemoryRepository(), st, hub, logger)
	complianceEngine := compliance.NewEngine(compliance.NewMemoryRepository(),
		compliance.NewReviewerPool(compliance.DefaultReviewers()), expressions.NewExprEngine(), st, st, hub, logger)

	notifier := notify.NewGuardedPort(notify.NewLogNotifier(logger), notify.DefaultBreakerConfig())
	tracker := progress.NewTracker(progress.NewMemoryRepository(), st, hub, notifier, logger)

	provider := verify.StaticProvider{}
	identity := verify.NewIdentityEngine(provider, st, hub, logger)
	pool := worker.NewPool(cfg.PoolSize)
	defer pool.Close()
	documents := verify.NewDocumentEngine(provider, pool, logger)

	coordinator := api.NewCoordinator(machine, setupEngine, complianceEngine,
		tracker, identity, notifier, logger)
	if err := coordinator.Start(ctx, hub); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}
	defer coordinator.Stop()

	reminders := scheduler.NewReminderScheduler(st, notifier, cfg.ReminderIdleAfter, logger)
	if err := reminders.Start(cfg.ReminderSpec); err != nil {
		return fmt.Errorf("start reminder scheduler: %w", err)
	}
	defer reminders.Stop()

	validator, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return fmt.Errorf("build setup validator: %w", err)
	}

	handlers := api.NewHandlers(machine, st, setupEngine, complianceEngine,
		tracker, identity, documents, expressions.NewGoJQEngine(), validator, logger)
	server := api.NewServer(api.ServerConfig{
		Host:         cfg.Host,
		Port:         cfg.Port,
		ReadTimeout:  api.DefaultServerConfig().ReadTimeout,
		WriteTimeout: api.DefaultServerConfig().WriteTimeout,
	}, handlers, logger)

	return server.Start(ctx)
}

// newLogger builds the process logger: JSON to stdout with the workflow
// correlation ids injected from context.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

// openStore opens the configured store: libSQL when a db path is set,
// in-memory otherwise. Migrations run on every start.
func openStore(ctx context.Context, cfg Config) (store.Store, error) {
	if cfg.DBPath == "" {
		return store.NewMemoryStore(), nil
	}
	st, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", cfg.DBPath, err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return st, nil
}
