package db

import (
	"path/filepath"
	"testing"
)

func tableExists(t *testing.T, database *Database, name string) bool {
	t.Helper()

	var count int
	err := database.DB().QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("sqlite_master query error = %v", err)
	}
	return count == 1
}

func TestMigrations(t *testing.T) {
	database, err := NewDatabase(filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}
	defer database.Close()

	status, err := database.Version()
	if err != nil {
		t.Fatalf("Version() before migrate error = %v", err)
	}
	if status.Applied {
		t.Errorf("Version() before migrate = %v, want not applied", status)
	}

	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	for _, table := range []string{"profiles", "variant_batches", "mirror_requests"} {
		if !tableExists(t, database, table) {
			t.Errorf("table %s missing after Migrate()", table)
		}
	}

	status, err = database.Version()
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if !status.Applied || status.Dirty || status.Version != 2 {
		t.Errorf("Version() = %+v, want clean version 2", status)
	}

	t.Run("migrate is idempotent", func(t *testing.T) {
		if err := database.Migrate(); err != nil {
			t.Errorf("second Migrate() error = %v", err)
		}
	})

	t.Run("down one step drops history tables", func(t *testing.T) {
		if err := database.MigrateDown(1); err != nil {
			t.Fatalf("MigrateDown(1) error = %v", err)
		}
		if tableExists(t, database, "variant_batches") {
			t.Error("variant_batches still present after MigrateDown(1)")
		}
		if !tableExists(t, database, "profiles") {
			t.Error("profiles dropped by MigrateDown(1)")
		}
	})

	t.Run("down all and back up", func(t *testing.T) {
		if err := database.MigrateDown(-1); err != nil {
			t.Fatalf("MigrateDown(-1) error = %v", err)
		}
		if tableExists(t, database, "profiles") {
			t.Error("profiles still present after MigrateDown(-1)")
		}
		if err := database.Migrate(); err != nil {
			t.Fatalf("Migrate() after rollback error = %v", err)
		}
		if !tableExists(t, database, "mirror_requests") {
			t.Error("mirror_requests missing after re-migrate")
		}
	})
}

func TestMigrationStatusString(t *testing.T) {
	tests := []struct {
		status MigrationStatus
		want   string
	}{
		{MigrationStatus{}, "no migrations applied"},
		{MigrationStatus{Version: 2, Applied: true}, "version 2"},
		{MigrationStatus{Version: 1, Dirty: true, Applied: true}, "version 1 (dirty)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.status.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
