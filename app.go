package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"toolbox_backend/core"
	"toolbox_backend/credits"
	"toolbox_backend/db"
	"toolbox_backend/logging"
	"toolbox_backend/metrics"
	"toolbox_backend/mirror"
	"toolbox_backend/shutdown"
	"toolbox_backend/variation"
	"toolbox_backend/webui"
	"toolbox_backend/webui/auth"
)

// Background intervals for the server process.
const (
	healthCheckInterval  = 30 * time.Second
	sessionSweepInterval = 10 * time.Minute
)

// app is the fully wired server process.
type app struct {
	cfg      *core.Config
	logger   *logging.Logger
	manager  *shutdown.Manager
	database *db.Database
	repo     *db.Repository
	writer   *db.AsyncWriter
	health   *webui.HealthMonitor
	server   *webui.Server
}

// openDatabase creates the data directory and opens the migrated database.
func openDatabase(cfg *core.Config) (*db.Database, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

// newGenerator builds the variant generator, loading the YAML overrides
// when VARIATION_CONFIG_FILE is set. extra options are applied last.
func newGenerator(cfg *core.Config, logger *logging.Logger, observer variation.Observer, extra ...variation.Option) (*variation.Generator, error) {
	opts := []variation.Option{
		variation.WithLogger(logger.Zap().Named("variation")),
		variation.WithMaxVariants(cfg.MaxVariants),
	}
	if observer != nil {
		opts = append(opts, variation.WithObserver(observer))
	}
	if cfg.MaxSourcePixels > 0 {
		opts = append(opts, variation.WithMaxSourcePixels(cfg.MaxSourcePixels))
	}
	if cfg.VariationConfigFile != "" {
		pc, err := variation.LoadPerturbationConfig(cfg.VariationConfigFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, variation.WithConfig(pc))
	}
	return variation.NewGenerator(append(opts, extra...)...)
}

// newApp wires every component and registers its cleanup with manager.
// On error, whatever was already registered is released by
// manager.Shutdown.
func newApp(ctx context.Context, cfg *core.Config, logger *logging.Logger, manager *shutdown.Manager) (*app, error) {
	a := &app{cfg: cfg, logger: logger, manager: manager}
	zlog := logger.Zap()

	database, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	a.database = database
	manager.Register("database", shutdown.PriorityDatabase, func(context.Context) error {
		return database.Close()
	})

	// The writer's handler needs the repository and the repository queues
	// through the writer.
	var repo *db.Repository
	a.writer = db.NewAsyncWriterWithConfig(func(op db.WriteOperation) error {
		return repo.HandleWrite(op)
	}, db.AsyncWriterConfig{
		ChannelCapacity: db.DefaultChannelCapacity,
		DrainTimeout:    db.DefaultDrainTimeout,
		OnError: func(op db.WriteOperation, err error) {
			logger.Warn("audit write failed", zap.Duration("queued_for", time.Since(op.QueuedAt)), zap.Error(err))
		},
	})
	repo = db.NewRepository(database, a.writer)
	a.repo = repo
	manager.Register("async-writer", shutdown.PriorityAsyncWriter, func(context.Context) error {
		if !a.writer.Stop() {
			return errors.New("audit writer did not drain before its timeout")
		}
		return nil
	})

	if cfg.HasBootstrapAdmin() {
		admin, created, err := auth.EnsureAdmin(ctx, repo, cfg.AdminEmail, cfg.AdminPassword, cfg.DailyImageCredits, auth.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to bootstrap admin: %w", err)
		}
		logger.Info("bootstrap admin ready", zap.String("profile_id", admin.ID), zap.Bool("created", created))
	}

	exporter := metrics.NewExporter()
	ledger := credits.NewLedger(database, cfg.DailyImageCredits, cfg.CreditsLocation, logger)

	generator, err := newGenerator(cfg, logger, exporter)
	if err != nil {
		return nil, err
	}

	provider, err := mirror.NewProvider(ctx, cfg)
	switch {
	case errors.Is(err, mirror.ErrNotConfigured):
		logger.Warn("mirror disabled", zap.String("provider", cfg.MirrorProvider), zap.Error(err))
	case err != nil:
		return nil, fmt.Errorf("failed to create mirror provider: %w", err)
	}
	mirrorService := mirror.NewService(mirror.ServiceConfig{
		Provider: provider,
		Ledger:   ledger,
		Recorder: repo,
		Observer: exporter,
		Timeout:  cfg.MirrorTimeout,
		Logger:   logger,
	})

	store := metrics.NewMetricsStore(metrics.DefaultStoreConfig(), time.Now())
	a.health = webui.NewHealthMonitor(zlog.Named("health"), store, healthCheckInterval)
	a.health.Register("database", database.Ping)

	sessions, err := newSessionStore(ctx, cfg, a)
	if err != nil {
		return nil, err
	}

	limiter := webui.NewRateLimiter(core.DefaultMaxAttempts, core.DefaultRateLimitWindow, auth.DefaultRateLimitBlock)
	limiter.StartCleanupTicker(manager.Context(), sessionSweepInterval)

	authHandler, err := auth.NewHandler(sessions, limiter, repo, auth.ConfigFromCore(cfg), zlog.Named("auth"))
	if err != nil {
		return nil, err
	}

	a.server, err = webui.NewServer(webui.ServerConfigFromCore(cfg), webui.Dependencies{
		Auth:      authHandler,
		Generator: generator,
		Mirror:    mirrorService,
		Profiles:  repo,
		History:   repo,
		Batches:   repo,
		Metrics:   store,
		Exporter:  exporter,
		Health:    a.health,
		Tracker:   manager,
	}, zlog.Named("http"))
	if err != nil {
		return nil, err
	}
	manager.Register("http-server", shutdown.PriorityHTTPServer, a.server.Shutdown)

	logger.Info("components ready",
		zap.String("addr", a.server.Addr()),
		zap.Bool("mirror_enabled", mirrorService.Enabled()),
		zap.Bool("redis_sessions", cfg.RedisURL != ""),
		zap.Int("max_variants", generator.MaxVariants()),
	)
	return a, nil
}

// newSessionStore picks Redis when REDIS_URL is set and the in-memory store
// otherwise.
func newSessionStore(ctx context.Context, cfg *core.Config, a *app) (webui.SessionStore, error) {
	if cfg.RedisURL == "" {
		sessions := webui.NewMemorySessionStore(cfg.SessionTTL)
		sessions.StartCleanupTicker(a.manager.Context(), sessionSweepInterval)
		return sessions, nil
	}

	sessions, err := webui.NewRedisSessionStore(ctx, cfg.RedisURL, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	a.manager.Register("sessions", shutdown.PrioritySessions, func(context.Context) error {
		return sessions.Close()
	})
	a.health.Register("redis", sessions.Ping)
	return sessions, nil
}

// run starts the background workers and serves until the manager's
// context is cancelled or the listener fails, then shuts everything down.
func (a *app) run() error {
	ctx := a.manager.Context()

	a.writer.Start()

	schedulerDone := a.database.StartCleanupScheduler(ctx, db.CleanupSchedulerConfig{
		RetentionDays: a.cfg.HistoryRetentionDays,
		Interval:      24 * time.Hour,
		OnCleanup: func(result db.CleanupResult, err error) {
			if err != nil {
				a.logger.Warn("history cleanup failed", zap.Error(err))
				return
			}
			a.logger.Info("history cleanup finished",
				zap.Int64("batches_deleted", result.BatchesDeleted),
				zap.Int64("mirror_requests_deleted", result.MirrorRequestsDeleted),
				zap.Duration("duration", result.Duration),
			)
		},
	})
	a.manager.Register("cleanup-scheduler", shutdown.PriorityScheduler, func(sctx context.Context) error {
		select {
		case <-schedulerDone:
			return nil
		case <-sctx.Done():
			return sctx.Err()
		}
	})

	go a.health.Start(ctx)

	serveErr := make(chan error, 1)
	go func() { serveErr <- a.server.Start() }()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		if runErr != nil {
			a.logger.Error("server failed", zap.Error(runErr))
		}
	}

	if err := a.manager.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
