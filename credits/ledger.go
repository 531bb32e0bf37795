// Package credits keeps the per-member daily image credit balance that gates
// mirror requests.
//
// Credits are reset lazily: the first read on a new calendar day in the
// ledger's location restores the daily allowance. A consume decrements in
// the same transaction as that read, guarded so the balance never goes
// below zero.
package credits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"toolbox_backend/db"
	"toolbox_backend/logging"
)

// DefaultDailyCredits is the allowance restored each calendar day.
const DefaultDailyCredits = 30

// ErrQuotaExhausted is returned by Consume when no credits are left today.
var ErrQuotaExhausted = errors.New("credits: daily image credits exhausted")

// Ledger reads and updates image credits on the profiles table.
type Ledger struct {
	db     *db.Database
	daily  int
	loc    *time.Location
	now    func() time.Time
	logger *logging.Logger
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now. Used by tests to cross day boundaries.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a ledger that restores daily credits per calendar day
// in loc. A nil loc means UTC; a nil logger discards output.
func NewLedger(database *db.Database, daily int, loc *time.Location, logger *logging.Logger, opts ...Option) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	l := &Ledger{
		db:     database,
		daily:  daily,
		loc:    loc,
		now:    time.Now,
		logger: logger.Named("credits"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DailyCredits returns the configured allowance.
func (l *Ledger) DailyCredits() int {
	return l.daily
}

// Location returns the location whose calendar days drive the reset.
func (l *Ledger) Location() *time.Location {
	return l.loc
}

// Balance returns the profile's current credits, applying the daily reset
// if due. It never decrements.
func (l *Ledger) Balance(ctx context.Context, profileID string) (int, error) {
	now := l.now()
	var credits int
	err := l.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		credits, err = l.current(ctx, tx, profileID, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	return credits, nil
}

// Consume spends one credit and returns the remaining balance. It returns
// ErrQuotaExhausted, without changing the balance, when none are left.
//
// Example:
//
//	remaining, err := ledger.Consume(ctx, profile.ID)
//	if errors.Is(err, credits.ErrQuotaExhausted) {
//	    // 429
//	}
func (l *Ledger) Consume(ctx context.Context, profileID string) (int, error) {
	now := l.now()
	var remaining int
	err := l.db.WithTx(ctx, func(tx *sql.Tx) error {
		credits, err := l.current(ctx, tx, profileID, now)
		if err != nil {
			return err
		}
		if credits <= 0 {
			return ErrQuotaExhausted
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE profiles
			SET image_credits = image_credits - 1, last_credit_update_at = ?, updated_at = ?
			WHERE id = ? AND image_credits > 0`,
			db.FormatTime(now), db.FormatTime(now), profileID,
		)
		if err != nil {
			return fmt.Errorf("failed to decrement credits: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return ErrQuotaExhausted
		}
		remaining = credits - 1
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrQuotaExhausted) {
			l.logger.Info("credits exhausted", zap.String("profile_id", profileID))
		}
		return 0, err
	}

	l.logger.Debug("credit consumed",
		zap.String("profile_id", profileID),
		zap.Int("remaining", remaining))
	return remaining, nil
}

// Refund returns one credit after a request that consumed one produced
// nothing. The balance is capped at the daily allowance.
func (l *Ledger) Refund(ctx context.Context, profileID string) (int, error) {
	now := l.now()
	var credits int
	err := l.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		if credits, err = l.current(ctx, tx, profileID, now); err != nil {
			return err
		}
		if credits >= l.daily {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE profiles SET image_credits = image_credits + 1, updated_at = ?
			WHERE id = ? AND image_credits < ?`,
			db.FormatTime(now), profileID, l.daily,
		)
		if err != nil {
			return fmt.Errorf("failed to refund credit: %w", err)
		}
		credits++
		return nil
	})
	if err != nil {
		return 0, err
	}

	l.logger.Debug("credit refunded",
		zap.String("profile_id", profileID),
		zap.Int("remaining", credits))
	return credits, nil
}

// current reads the balance inside tx and applies the daily reset.
func (l *Ledger) current(ctx context.Context, tx *sql.Tx, profileID string, now time.Time) (int, error) {
	var credits int
	var lastUpdate string
	err := tx.QueryRowContext(ctx,
		`SELECT image_credits, last_credit_update_at FROM profiles WHERE id = ?`, profileID,
	).Scan(&credits, &lastUpdate)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, db.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read credits: %w", err)
	}

	last, err := db.ParseTime(lastUpdate)
	if err != nil {
		return 0, err
	}
	if !NeedsReset(last, now, l.loc) {
		return credits, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE profiles SET image_credits = ?, last_credit_update_at = ?, updated_at = ?
		WHERE id = ?`,
		l.daily, db.FormatTime(now), db.FormatTime(now), profileID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset daily credits: %w", err)
	}

	l.logger.Debug("daily credits reset",
		zap.String("profile_id", profileID),
		zap.Int("previous", credits),
		zap.Int("credits", l.daily))
	return l.daily, nil
}
