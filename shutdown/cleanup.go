package shutdown

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"toolbox_backend/core"
)

// PartialSuffix marks a variant file that is still being written. Writers
// create name+PartialSuffix and rename it when complete.
const PartialSuffix = ".partial"

// CleanupPartials returns a ShutdownFunc that removes unfinished
// *.partial files from dir, left behind when a CLI batch is interrupted.
// Failures are logged and never block shutdown.
//
// Usage:
//
//	manager.Register("cleanup-partials", shutdown.PriorityFiles, shutdown.CleanupPartials(logger, outDir))
func CleanupPartials(logger *zap.Logger, dir string) core.ShutdownFunc {
	return func(ctx context.Context) error {
		removed, failed := removePartials(ctx, logger, dir)
		if removed > 0 || failed > 0 {
			logger.Info("removed unfinished variant files",
				zap.String("directory", dir),
				zap.Int("removed", removed),
				zap.Int("failed", failed))
		}
		return nil
	}
}

func removePartials(ctx context.Context, logger *zap.Logger, dir string) (removed, failed int) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+PartialSuffix))
	if err != nil {
		logger.Warn("failed to list partial files", zap.String("directory", dir), zap.Error(err))
		return 0, 0
	}

	for _, match := range matches {
		if ctx.Err() != nil {
			logger.Warn("shutdown deadline reached during cleanup",
				zap.Int("remaining", len(matches)-removed-failed))
			return removed, failed
		}
		if err := os.Remove(match); err != nil {
			failed++
			logger.Warn("failed to remove partial file", zap.String("file", filepath.Base(match)), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, failed
}
