package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"toolbox_backend/core"
	"toolbox_backend/logging"
	"toolbox_backend/shutdown"
	"toolbox_backend/variation"
)

var (
	variantsInput string
	variantsOut   string
	variantsCount int
	variantsLevel int
	variantsSeeds string
	variantsTime  string
)

var variantsCmd = &cobra.Command{
	Use:   "variants",
	Short: "Generate a variant batch from a local image",
	Long: `Generate near-duplicate variants of a local image without the server.

Files are written to --out as variant_NN_<hash>.jpg plus manifest.json.
Each file is written as <name>.partial and renamed when complete; an
interrupted run removes its unfinished files.

--seeds with --timestamp replays a batch: pass the per-variant seeds and
the top-level batchTimestamp of an earlier manifest (and its level) to
get byte-identical images and manifest.`,
	Example: `  toolbox variants --input photo.jpg --count 5 --level 2 --out ./out
  toolbox variants --input photo.jpg --seeds 9007199254740993,42 --timestamp 2026-03-01T09:00:00Z --out ./replay`,
	RunE: runVariants,
}

func init() {
	f := variantsCmd.Flags()
	f.StringVarP(&variantsInput, "input", "i", "", "source image (JPEG, PNG, GIF, BMP, TIFF or WebP)")
	f.StringVarP(&variantsOut, "out", "o", ".", "output directory")
	f.IntVarP(&variantsCount, "count", "n", core.DefaultVariantCount, "number of variants")
	f.IntVarP(&variantsLevel, "level", "l", int(variation.LevelSubtle), "variation level: 1 subtle, 2 moderate, 3 strong")
	f.StringVar(&variantsSeeds, "seeds", "", "comma-separated seeds to replay instead of fresh ones")
	f.StringVar(&variantsTime, "timestamp", "", "batch timestamp (RFC 3339) to replay with --seeds")
	variantsCmd.MarkFlagRequired("input")
}

// cliManifest is manifest.json. BatchTimestamp is the clock the batch ran
// with; per-variant timestamps are derived from it.
type cliManifest struct {
	BatchTimestamp time.Time          `json:"batchTimestamp"`
	Level          int                `json:"level"`
	Variants       []cliManifestEntry `json:"variants"`
}

// cliManifestEntry is one variant in manifest.json.
type cliManifestEntry struct {
	Filename   string    `json:"filename"`
	Label      string    `json:"label"`
	UniqueHash string    `json:"uniqueHash"`
	UniqueID   string    `json:"uniqueId"`
	Seed       int64     `json:"seed,string"`
	Timestamp  time.Time `json:"timestamp"`
	Fallback   bool      `json:"fallback"`
	Skipped    []string  `json:"skippedStages,omitempty"`
}

func runVariants(cmd *cobra.Command, args []string) error {
	cfg, err := core.LoadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	source, err := os.ReadFile(variantsInput)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	seeds, err := parseSeeds(variantsSeeds)
	if err != nil {
		return err
	}
	batchTime, err := parseBatchTime(variantsTime)
	if err != nil {
		return err
	}
	if batchTime.IsZero() {
		batchTime = time.Now().UTC()
	}
	if err := os.MkdirAll(variantsOut, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	manager := shutdown.NewManager(logger.Zap())
	manager.Register("cleanup-partials", shutdown.PriorityFiles, shutdown.CleanupPartials(logger.Zap(), variantsOut))
	manager.Start()
	defer manager.Shutdown()

	generator, err := newGenerator(cfg, logger, nil, variation.WithClock(func() time.Time { return batchTime }))
	if err != nil {
		return err
	}

	level := variation.Level(variantsLevel)
	start := time.Now()
	var records []variation.ProcessedImageRecord
	err = manager.Track(manager.Context(), "cli-variants", func(ctx context.Context) error {
		var err error
		records, err = generateCLI(ctx, generator, source, level, seeds, batchTime)
		return err
	})
	if err != nil {
		return err
	}

	for _, rec := range records {
		if err := writeFileAtomic(filepath.Join(variantsOut, rec.Filename()), rec.Data); err != nil {
			return err
		}
	}
	manifest := buildManifest(records, level, batchTime)

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(variantsOut, "manifest.json"), data); err != nil {
		return err
	}

	logger.Info("variant batch written",
		append(logging.BatchFields("cli", int(level), len(records), time.Since(start)),
			zap.String("directory", variantsOut))...)
	color.New(color.FgGreen, color.Bold).Fprintf(cmd.OutOrStdout(), "✓ %d variants", len(records))
	fmt.Fprintf(cmd.OutOrStdout(), " written to %s in %s\n", variantsOut, time.Since(start).Round(time.Millisecond))
	return nil
}

// buildManifest describes records for manifest.json.
func buildManifest(records []variation.ProcessedImageRecord, level variation.Level, batchTime time.Time) cliManifest {
	m := cliManifest{
		BatchTimestamp: batchTime,
		Level:          int(level),
		Variants:       make([]cliManifestEntry, 0, len(records)),
	}
	for _, rec := range records {
		entry := cliManifestEntry{
			Filename:   rec.Filename(),
			Label:      rec.Label,
			UniqueHash: rec.UniqueHash,
			UniqueID:   rec.UniqueID,
			Seed:       rec.Seed,
			Timestamp:  rec.Timestamp,
			Fallback:   rec.Fallback,
		}
		for _, st := range rec.SkippedStages {
			entry.Skipped = append(entry.Skipped, string(st))
		}
		m.Variants = append(m.Variants, entry)
	}
	return m
}

// generateCLI runs a fresh batch on g's clock, or replays seeds at
// batchTime when given. Progress goes to stderr.
func generateCLI(ctx context.Context, g *variation.Generator, source []byte, level variation.Level, seeds []int64, batchTime time.Time) ([]variation.ProcessedImageRecord, error) {
	progress := func(p variation.Progress) {
		if p.Done {
			color.New(color.FgHiBlack).Fprintf(os.Stderr, "  variant %d/%d done\n", p.Variant+1, p.Total)
		}
	}

	if len(seeds) == 0 {
		return g.GenerateVariants(ctx, source, variantsCount, level, progress)
	}

	buf, _, err := g.Decode(source)
	if err != nil {
		return nil, err
	}
	return g.GenerateWithSeeds(ctx, buf, seeds, level, batchTime, progress)
}

// parseBatchTime reads an RFC 3339 timestamp; empty means none.
func parseBatchTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --timestamp %q: %w", s, err)
	}
	return t, nil
}

// parseSeeds reads a comma-separated list of int64 seeds.
func parseSeeds(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var seeds []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		seed, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid seed %q: %w", part, err)
		}
		seeds = append(seeds, seed)
	}
	return seeds, nil
}

// writeFileAtomic writes path+".partial" and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	partial := path + shutdown.PartialSuffix
	if err := os.WriteFile(partial, data, 0o644); err != nil {
		os.Remove(partial)
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(partial, path); err != nil {
		os.Remove(partial)
		return fmt.Errorf("failed to finalize %s: %w", filepath.Base(path), err)
	}
	return nil
}
