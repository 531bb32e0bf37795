package variation

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// Batch limits.
const (
	DefaultMaxVariants  = 10
	DefaultVariantCount = 5
)

var (
	// ErrInvalidCount is returned when count is outside [1, MaxVariants].
	ErrInvalidCount = errors.New("variation: variant count out of range")

	// ErrInvalidLevel is returned when the level is not 1, 2 or 3.
	ErrInvalidLevel = errors.New("variation: level must be 1, 2 or 3")
)

// Observer receives per-variant outcomes. Implementations must be safe for
// concurrent use; several batches may run at once.
type Observer interface {
	ObserveVariant(level Level, duration time.Duration, fallback bool)
	ObserveStageSkipped(stage StageName)
}

// Progress is one notification from a running batch. Variant is zero based.
type Progress struct {
	Variant int
	Total   int
	State   PipelineState
	Stage   StageName
	Skipped bool
	Done    bool
}

// ProgressReporter receives progress notifications. It is called on the
// batch goroutine; a panic inside it is recovered and logged.
type ProgressReporter func(Progress)

// NewChannelReporter adapts ch to a ProgressReporter. Sends never block:
// a notification is dropped when ch is full.
func NewChannelReporter(ch chan<- Progress) ProgressReporter {
	return func(p Progress) {
		select {
		case ch <- p:
		default:
		}
	}
}

// Generator produces batches of variants. A Generator holds no per-batch
// state and may be shared by concurrent callers.
type Generator struct {
	cfg         PerturbationConfig
	logger      *zap.Logger
	observer    Observer
	now         func() time.Time
	entropy     EntropySource
	yieldDelay  time.Duration
	maxVariants int
	maxPixels   int64
	format      Format
	stages      []stage
}

// Option configures a Generator.
type Option func(*Generator)

// WithConfig replaces the default tunables.
func WithConfig(cfg PerturbationConfig) Option {
	return func(g *Generator) { g.cfg = cfg }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(g *Generator) { g.observer = o }
}

// WithClock overrides time.Now for seed derivation and timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// WithEntropy overrides the random draw mixed into batch seeds.
func WithEntropy(src EntropySource) Option {
	return func(g *Generator) { g.entropy = src }
}

// WithYieldDelay adds a pause between variants on top of runtime.Gosched.
func WithYieldDelay(d time.Duration) Option {
	return func(g *Generator) { g.yieldDelay = d }
}

// WithMaxVariants sets the upper bound for count.
func WithMaxVariants(n int) Option {
	return func(g *Generator) { g.maxVariants = n }
}

// WithMaxSourcePixels bounds the decoded source, width times height.
func WithMaxSourcePixels(n int64) Option {
	return func(g *Generator) { g.maxPixels = n }
}

// WithFormat selects the output encoding. JPEG is the default.
func WithFormat(f Format) Option {
	return func(g *Generator) { g.format = f }
}

// NewGenerator builds a Generator and validates its configuration.
//
// Example:
//
//	gen, err := variation.NewGenerator(variation.WithLogger(logger.Zap()))
//	if err != nil {
//	    return err
//	}
//	records, err := gen.GenerateVariants(ctx, data, 5, variation.LevelSubtle, nil)
func NewGenerator(opts ...Option) (*Generator, error) {
	g := &Generator{
		cfg:         DefaultPerturbationConfig(),
		logger:      zap.NewNop(),
		now:         time.Now,
		entropy:     CryptoEntropy,
		maxVariants: DefaultMaxVariants,
		maxPixels:   DefaultMaxSourcePixels,
		format:      FormatJPEG,
		stages:      defaultStages(),
	}
	for _, opt := range opts {
		opt(g)
	}

	if err := g.cfg.Validate(); err != nil {
		return nil, err
	}
	if g.maxVariants < 1 {
		return nil, fmt.Errorf("variation: max variants must be positive, got %d", g.maxVariants)
	}
	if g.maxPixels < 1 {
		return nil, fmt.Errorf("variation: max source pixels must be positive, got %d", g.maxPixels)
	}
	return g, nil
}

// Decode decodes a source under the generator's pixel limit.
func (g *Generator) Decode(data []byte) (*PixelBuffer, string, error) {
	return DecodeWithLimit(data, g.maxPixels)
}

// MaxVariants returns the configured upper bound for count.
func (g *Generator) MaxVariants() int { return g.maxVariants }

// Config returns the tunables in use.
func (g *Generator) Config() PerturbationConfig { return g.cfg }

// GenerateVariants decodes source once and returns exactly count records,
// or an error and no records.
//
// Invalid count or level and an undecodable source are reported before any
// work starts. Stage failures are recovered inside each variant. When ctx is
// cancelled the variant in flight is discarded and ctx.Err() is returned.
func (g *Generator) GenerateVariants(ctx context.Context, source []byte, count int, level Level, progress ProgressReporter) ([]ProcessedImageRecord, error) {
	if err := g.validate(count, level); err != nil {
		return nil, err
	}

	buf, format, err := g.Decode(source)
	if err != nil {
		return nil, err
	}

	now := g.now()
	seeds := DeriveSeeds(now, count, g.entropy)

	g.logger.Debug("generating variants",
		zap.String("source_format", format),
		zap.Int("width", buf.Width()),
		zap.Int("height", buf.Height()),
		zap.Int("count", count),
		zap.Stringer("level", level))

	return g.GenerateWithSeeds(ctx, buf, seeds, level, now, progress)
}

// GenerateWithSeeds runs the pipeline for explicit seeds. Given the same
// source, seeds, level and now it returns byte-identical records, which
// makes a batch reproducible from its stored seeds.
func (g *Generator) GenerateWithSeeds(ctx context.Context, source *PixelBuffer, seeds []int64, level Level, now time.Time, progress ProgressReporter) ([]ProcessedImageRecord, error) {
	if err := g.validate(len(seeds), level); err != nil {
		return nil, err
	}
	if source == nil || source.Width() == 0 || source.Height() == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrDecodeSource)
	}

	records := make([]ProcessedImageRecord, 0, len(seeds))
	for i, seed := range seeds {
		if err := g.yield(ctx); err != nil {
			return nil, err
		}

		rec, err := g.runVariant(source, i, len(seeds), seed, level, now, progress)
		if err != nil {
			return nil, err
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (g *Generator) validate(count int, level Level) error {
	if count < 1 || count > g.maxVariants {
		return fmt.Errorf("%w: got %d, want 1..%d", ErrInvalidCount, count, g.maxVariants)
	}
	if !level.Valid() {
		return fmt.Errorf("%w: got %d", ErrInvalidLevel, int(level))
	}
	return nil
}

// yield gives other goroutines a turn between variants and reports
// cancellation.
func (g *Generator) yield(ctx context.Context) error {
	runtime.Gosched()
	if g.yieldDelay > 0 {
		t := time.NewTimer(g.yieldDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
		}
	}
	return ctx.Err()
}

// report delivers p to progress, recovering from a panicking reporter.
func (g *Generator) report(progress ProgressReporter, p Progress) {
	if progress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			g.logger.Warn("progress reporter panicked", zap.Any("panic", r))
		}
	}()
	progress(p)
}
