package core

// Build metadata, injected with
//
//	go build -ldflags "-X toolbox_backend/core.Version=$(git describe --tags --always) \
//	  -X toolbox_backend/core.GitCommit=$(git rev-parse --short HEAD) \
//	  -X toolbox_backend/core.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// GetVersionInfo returns "version (built time, commit hash)".
func GetVersionInfo() string {
	return Version + " (built " + BuildTime + ", commit " + GitCommit + ")"
}
