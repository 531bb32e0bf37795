package db

import (
	"path/filepath"
	"testing"
	"time"
)

// newTestDatabase opens a migrated database in a temp directory.
func newTestDatabase(t *testing.T) *Database {
	t.Helper()

	database, err := Open(filepath.Join(t.TempDir(), "toolbox.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// steppingClock returns a clock that advances by step on every call.
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	next := start
	return func() time.Time {
		now := next
		next = next.Add(step)
		return now
	}
}

func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	repo := NewRepository(newTestDatabase(t), nil)
	repo.now = steppingClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), time.Second)
	return repo
}
