package validation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"toolbox_backend/core"
	"toolbox_backend/variation"
)

// StartupChecks returns the checks run before the server starts and by
// the "check" command.
func StartupChecks(cfg *core.Config) []Check {
	return []Check{
		ConfigCheck(cfg),
		DataDirectoryCheck(cfg.DatabasePath, DefaultMinFreeBytes),
		VariationConfigCheck(cfg.VariationConfigFile),
		{Name: "Session Store", RequiresPrevious: true, Run: func(ctx context.Context) CheckResult {
			return checkRedis(ctx, cfg.RedisURL)
		}},
		MirrorProviderCheck(cfg),
	}
}

// ConfigCheck re-validates cfg.
func ConfigCheck(cfg *core.Config) Check {
	return Check{Name: "Configuration", Run: func(context.Context) CheckResult {
		if cfg == nil {
			return Failed("No configuration loaded", core.ErrMissingConfig("environment"))
		}
		if err := cfg.Validate(); err != nil {
			return Failed("Invalid configuration", err)
		}
		return Passed(fmt.Sprintf("listening on %s", cfg.Addr()))
	}}
}

// DataDirectoryCheck makes sure the database directory exists, is
// writable and has at least minFree bytes available.
func DataDirectoryCheck(dbPath string, minFree int64) Check {
	return Check{Name: "Data Directory", Run: func(context.Context) CheckResult {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Failed("Cannot create data directory", err)
		}
		tmp, err := os.CreateTemp(dir, ".write-check-*")
		if err != nil {
			return Failed("Data directory is not writable", err)
		}
		name := tmp.Name()
		tmp.Close()
		os.Remove(name)

		info, err := GetDiskSpace(dir)
		if err != nil {
			return Warn(fmt.Sprintf("could not read free space: %v", err))
		}
		if info.Free < minFree {
			return Failed("Not enough free space", &DiskSpaceError{Path: info.Path, Required: minFree, Available: info.Free})
		}
		return Passed(fmt.Sprintf("%s free at %s", FormatBytes(info.Free), info.Path))
	}}
}

// VariationConfigCheck parses the perturbation override file, if any.
func VariationConfigCheck(path string) Check {
	return Check{Name: "Variation Settings", Run: func(context.Context) CheckResult {
		if path == "" {
			return Passed("built-in defaults")
		}
		if _, err := variation.LoadPerturbationConfig(path); err != nil {
			return Failed("Invalid variation settings", err)
		}
		return Passed(path)
	}}
}

func checkRedis(ctx context.Context, url string) CheckResult {
	if url == "" {
		return Skipped("REDIS_URL not set, sessions kept in memory")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return Failed("Invalid REDIS_URL", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		return Failed("Redis unreachable", err)
	}
	return Passed(opts.Addr)
}

// MirrorProviderCheck warns when the mirror provider has no API key. The
// server still starts; the mirror endpoint answers 503.
func MirrorProviderCheck(cfg *core.Config) Check {
	return Check{Name: "Mirror Provider", Run: func(context.Context) CheckResult {
		if cfg == nil {
			return Skipped("no configuration")
		}
		if !cfg.MirrorEnabled() {
			return Warn(core.ErrMissingAuth(cfg.MirrorProvider).Error())
		}
		return Passed(cfg.MirrorProvider)
	}}
}
