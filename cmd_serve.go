package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"toolbox_backend/core"
	"toolbox_backend/core/validation"
	"toolbox_backend/logging"
	"toolbox_backend/shutdown"
)

var skipChecks bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Run the HTTP API server until SIGINT or SIGTERM.

Startup checks run first unless --skip-checks is given. A second signal
exits immediately without waiting for running batches.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&skipChecks, "skip-checks", false, "skip the startup checks")
	rootCmd.Flags().BoolVar(&skipChecks, "skip-checks", false, "skip the startup checks")
}

func runServe(cmd *cobra.Command, args []string) error {
	return serve(nil)
}

// serve loads the configuration, runs the startup checks and serves until
// shutdown. started, when set, receives the manager once it exists so the
// service runner can stop it.
func serve(started func(*shutdown.Manager)) error {
	cfg, err := core.LoadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.String("version", core.Version),
		zap.String("addr", cfg.Addr()),
		zap.String("database", cfg.DatabasePath),
		zap.String("mirror_provider", cfg.MirrorProvider),
		zap.Bool("mirror_enabled", cfg.MirrorEnabled()),
		zap.Int("daily_image_credits", cfg.DailyImageCredits),
		zap.String("credits_timezone", cfg.CreditsTimezone),
		zap.Int("max_concurrent_batches", cfg.MaxConcurrentBatches),
		zap.Int64("max_source_pixels", cfg.MaxSourcePixels),
		zap.Bool("trust_proxy_headers", cfg.TrustProxyHeaders),
		zap.Bool("dev_mode", cfg.DevMode),
	)

	if !skipChecks {
		if err := runStartupChecks(logger, cfg); err != nil {
			return err
		}
	}

	manager := shutdown.NewManager(logger.Zap())
	manager.Register("logger", shutdown.PriorityLogger, func(context.Context) error {
		logger.Sync()
		return nil
	})
	manager.Start()
	if started != nil {
		started(manager)
	}

	a, err := newApp(manager.Context(), cfg, logger, manager)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		manager.Shutdown()
		return err
	}
	return a.run()
}

// newLogger builds the process logger from LOG_LEVEL, LOG_FILE and
// DEV_MODE.
func newLogger(cfg *core.Config) (*logging.Logger, error) {
	def := zapcore.InfoLevel
	if cfg.DevMode {
		def = zapcore.DebugLevel
	}
	level := logging.ParseLogLevel(cfg.LogLevel, def)
	logger, err := logging.NewLoggerWithOptions(logging.Options{
		Development: cfg.DevMode,
		FilePath:    cfg.LogFile,
		Level:       &level,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// runStartupChecks runs the validation suite and logs each failed step.
func runStartupChecks(logger *logging.Logger, cfg *core.Config) error {
	suite := validation.NewValidationSuite("Startup checks", validation.StartupChecks(cfg)...).
		WithOutput(os.Stderr)
	result := suite.Validate(context.Background())

	if !result.Success {
		for _, step := range result.Steps {
			if step.Status == validation.StepFailed {
				logger.Error("startup check failed",
					zap.String("step", step.Name),
					zap.String("message", step.Message),
					zap.Error(step.Error),
				)
			}
		}
		if err := result.GetFirstError(); err != nil {
			return fmt.Errorf("startup checks failed: %w", err)
		}
		return errors.New(result.Summary())
	}

	logger.Info("startup checks passed",
		zap.Int("passed", result.PassedSteps),
		zap.Int("warnings", result.Warnings),
		zap.Duration("duration", result.Duration),
	)
	return nil
}
