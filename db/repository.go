package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Audit status values.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusCanceled = "canceled"
)

// BatchRecord is one row of variant_batches: a finished (or failed)
// variation batch.
type BatchRecord struct {
	ID            string
	ProfileID     string
	Level         int
	VariantCount  int
	Seeds         []int64
	Hashes        []string
	FallbackCount int
	DurationMS    int64
	Status        string
	ErrorMessage  string
	CreatedAt     time.Time
}

// MirrorRecord is one row of mirror_requests.
type MirrorRecord struct {
	ID           string
	ProfileID    string
	Provider     string
	Level        int
	Status       string
	ErrorMessage string
	DurationMS   int64
	CreatedAt    time.Time
}

// Repository provides typed access to the toolbox tables. Audit inserts go
// through the AsyncWriter when one is running, and fall back to a
// synchronous insert when it is absent, stopped or full.
type Repository struct {
	db          *Database
	asyncWriter *AsyncWriter
	now         func() time.Time
}

// NewRepository creates a Repository. asyncWriter may be nil.
func NewRepository(db *Database, asyncWriter *AsyncWriter) *Repository {
	return &Repository{
		db:          db,
		asyncWriter: asyncWriter,
		now:         time.Now,
	}
}

// Database returns the underlying Database.
func (r *Repository) Database() *Database {
	return r.db
}

// asyncInsertOp is the payload queued on the AsyncWriter.
type asyncInsertOp struct {
	table string
	query string
	args  []any
}

// HandleWrite executes a queued insert. It is the WriteHandler for the
// AsyncWriter passed to NewRepository.
//
// Example:
//
//	var repo *Repository
//	writer := NewAsyncWriter(func(op WriteOperation) error { return repo.HandleWrite(op) })
//	repo = NewRepository(database, writer)
//	writer.Start()
func (r *Repository) HandleWrite(op WriteOperation) error {
	insert, ok := op.Data.(asyncInsertOp)
	if !ok {
		return fmt.Errorf("unexpected async write payload %T", op.Data)
	}
	if _, err := r.db.ExecContext(context.Background(), insert.query, insert.args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", insert.table, err)
	}
	return nil
}

// insert queues op on the async writer or runs it inline.
func (r *Repository) insert(ctx context.Context, op asyncInsertOp) error {
	if r.asyncWriter != nil && r.asyncWriter.IsStarted() {
		if r.asyncWriter.Write(op) {
			return nil
		}
	}
	if _, err := r.db.ExecContext(ctx, op.query, op.args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", op.table, err)
	}
	return nil
}

// InsertBatch records a variation batch. An empty ID gets a fresh UUID.
// The assigned ID is returned even when the write is queued.
func (r *Repository) InsertBatch(ctx context.Context, rec BatchRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}
	if rec.Seeds == nil {
		rec.Seeds = []int64{}
	}
	if rec.Hashes == nil {
		rec.Hashes = []string{}
	}

	seeds, err := json.Marshal(rec.Seeds)
	if err != nil {
		return "", fmt.Errorf("failed to encode seeds: %w", err)
	}
	hashes, err := json.Marshal(rec.Hashes)
	if err != nil {
		return "", fmt.Errorf("failed to encode hashes: %w", err)
	}

	err = r.insert(ctx, asyncInsertOp{
		table: "variant_batches",
		query: `
			INSERT INTO variant_batches (
				id, profile_id, level, variant_count, seeds, hashes,
				fallback_count, duration_ms, status, error_message, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args: []any{
			rec.ID, rec.ProfileID, rec.Level, rec.VariantCount, string(seeds), string(hashes),
			rec.FallbackCount, rec.DurationMS, rec.Status, rec.ErrorMessage, FormatTime(rec.CreatedAt),
		},
	})
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// InsertMirrorRequest records one mirror call.
func (r *Repository) InsertMirrorRequest(ctx context.Context, rec MirrorRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}

	err := r.insert(ctx, asyncInsertOp{
		table: "mirror_requests",
		query: `
			INSERT INTO mirror_requests (
				id, profile_id, provider, level, status, error_message, duration_ms, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		args: []any{
			rec.ID, rec.ProfileID, rec.Provider, rec.Level, rec.Status,
			rec.ErrorMessage, rec.DurationMS, FormatTime(rec.CreatedAt),
		},
	})
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// RecentBatches returns up to limit batches, newest first. An empty
// profileID matches every profile.
func (r *Repository) RecentBatches(ctx context.Context, profileID string, limit int) ([]BatchRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, profile_id, level, variant_count, seeds, hashes,
			   fallback_count, duration_ms, status, error_message, created_at
		FROM variant_batches
		WHERE ? = '' OR profile_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, profileID, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query variant batches: %w", err)
	}
	defer rows.Close()

	var records []BatchRecord
	for rows.Next() {
		var rec BatchRecord
		var seeds, hashes, createdAt string
		err := rows.Scan(&rec.ID, &rec.ProfileID, &rec.Level, &rec.VariantCount, &seeds, &hashes,
			&rec.FallbackCount, &rec.DurationMS, &rec.Status, &rec.ErrorMessage, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan variant batch row: %w", err)
		}
		if err := json.Unmarshal([]byte(seeds), &rec.Seeds); err != nil {
			return nil, fmt.Errorf("failed to decode seeds of batch %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(hashes), &rec.Hashes); err != nil {
			return nil, fmt.Errorf("failed to decode hashes of batch %s: %w", rec.ID, err)
		}
		if rec.CreatedAt, err = ParseTime(createdAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating variant batch rows: %w", err)
	}
	return records, nil
}

// RecentMirrorRequests returns up to limit mirror requests, newest first.
// An empty profileID matches every profile.
func (r *Repository) RecentMirrorRequests(ctx context.Context, profileID string, limit int) ([]MirrorRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, profile_id, provider, level, status, error_message, duration_ms, created_at
		FROM mirror_requests
		WHERE ? = '' OR profile_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, profileID, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query mirror requests: %w", err)
	}
	defer rows.Close()

	var records []MirrorRecord
	for rows.Next() {
		var rec MirrorRecord
		var createdAt string
		err := rows.Scan(&rec.ID, &rec.ProfileID, &rec.Provider, &rec.Level, &rec.Status,
			&rec.ErrorMessage, &rec.DurationMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mirror request row: %w", err)
		}
		if rec.CreatedAt, err = ParseTime(createdAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mirror request rows: %w", err)
	}
	return records, nil
}
