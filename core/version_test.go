package core

import "testing"

func TestGetVersionInfo(t *testing.T) {
	oldV, oldB, oldC := Version, BuildTime, GitCommit
	defer func() { Version, BuildTime, GitCommit = oldV, oldB, oldC }()

	Version, BuildTime, GitCommit = "1.2.3", "2026-01-01T00:00:00Z", "abc123"
	want := "1.2.3 (built 2026-01-01T00:00:00Z, commit abc123)"
	if got := GetVersionInfo(); got != want {
		t.Errorf("GetVersionInfo() = %q, want %q", got, want)
	}
}
