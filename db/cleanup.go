package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DefaultRetentionDays is how long audit rows are kept.
const DefaultRetentionDays = 30

// CleanupResult contains statistics about a cleanup operation.
type CleanupResult struct {
	BatchesDeleted        int64
	MirrorRequestsDeleted int64
	TotalDeleted          int64
	Duration              time.Duration
}

// auditTables have a created_at column in the FormatTime layout. Profiles
// are never expired.
var auditTables = []string{
	"variant_batches",
	"mirror_requests",
}

// Cleanup deletes audit rows older than retentionDays and runs VACUUM.
// Deletes happen in one transaction; if any fails, none are kept.
//
// Example:
//
//	result, err := database.Cleanup(ctx, 30)
//	if err != nil {
//	    logger.Warn("cleanup failed", zap.Error(err))
//	}
func (d *Database) Cleanup(ctx context.Context, retentionDays int) (CleanupResult, error) {
	return d.cleanupBefore(ctx, retentionDays, time.Now())
}

func (d *Database) cleanupBefore(ctx context.Context, retentionDays int, now time.Time) (CleanupResult, error) {
	start := time.Now()
	var result CleanupResult

	if retentionDays < 0 {
		return result, fmt.Errorf("retentionDays must be non-negative, got %d", retentionDays)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	cutoff := FormatTime(now.AddDate(0, 0, -retentionDays))
	deleted := make(map[string]int64, len(auditTables))

	err := d.WithTx(ctx, func(tx *sql.Tx) error {
		for _, table := range auditTables {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE created_at < ?", cutoff)
			if err != nil {
				return fmt.Errorf("failed to delete from %s: %w", table, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected for %s: %w", table, err)
			}
			deleted[table] = n
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	result.BatchesDeleted = deleted["variant_batches"]
	result.MirrorRequestsDeleted = deleted["mirror_requests"]
	result.TotalDeleted = result.BatchesDeleted + result.MirrorRequestsDeleted

	if err := ctx.Err(); err != nil {
		result.Duration = time.Since(start)
		return result, err
	}

	// VACUUM cannot run inside a transaction. The rows are already gone, so
	// a failure here is reported alongside the counts.
	if _, err := d.ExecContext(ctx, "VACUUM"); err != nil {
		result.Duration = time.Since(start)
		return result, fmt.Errorf("cleanup succeeded but VACUUM failed: %w", err)
	}

	result.Duration = time.Since(start)
	return result, nil
}

// CleanupSchedulerConfig holds configuration for the cleanup scheduler.
type CleanupSchedulerConfig struct {
	RetentionDays int
	Interval      time.Duration
	// OnCleanup is called after each run. Optional.
	OnCleanup func(result CleanupResult, err error)
}

// DefaultCleanupSchedulerConfig runs daily with DefaultRetentionDays.
func DefaultCleanupSchedulerConfig() CleanupSchedulerConfig {
	return CleanupSchedulerConfig{
		RetentionDays: DefaultRetentionDays,
		Interval:      24 * time.Hour,
	}
}

// StartCleanupScheduler runs Cleanup once immediately and then every
// Interval until ctx is cancelled. The returned channel is closed when the
// scheduler goroutine exits.
func (d *Database) StartCleanupScheduler(ctx context.Context, config CleanupSchedulerConfig) <-chan struct{} {
	if config.Interval <= 0 {
		config.Interval = 24 * time.Hour
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		run := func() {
			result, err := d.Cleanup(ctx, config.RetentionDays)
			if config.OnCleanup != nil {
				config.OnCleanup(result, err)
			}
		}
		run()

		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
	return stopped
}
