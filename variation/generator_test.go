package variation

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"math"
	"sync"
	"testing"
	"time"
)

type recordingObserver struct {
	mu       sync.Mutex
	variants int
	fallback int
	skipped  []StageName
}

func (o *recordingObserver) ObserveVariant(_ Level, _ time.Duration, fallback bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.variants++
	if fallback {
		o.fallback++
	}
}

func (o *recordingObserver) ObserveStageSkipped(stage StageName) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.skipped = append(o.skipped, stage)
}

func fixedClock() time.Time {
	return time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC)
}

func fixedEntropy() (uint64, error) { return 0x5EED, nil }

func encodedPattern(t *testing.T, w, h int) []byte {
	t.Helper()
	data, err := Encode(patternBuffer(w, h), FormatPNG, 0)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestNewGenerator_Validation(t *testing.T) {
	bad := DefaultPerturbationConfig()
	bad.ImportantFactor = 2
	if _, err := NewGenerator(WithConfig(bad)); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("invalid config error = %v", err)
	}
	if _, err := NewGenerator(WithMaxVariants(0)); err == nil {
		t.Error("max variants 0 should fail")
	}
	if _, err := NewGenerator(WithMaxSourcePixels(0)); err == nil {
		t.Error("max source pixels 0 should fail")
	}
	g, err := NewGenerator()
	if err != nil {
		t.Fatal(err)
	}
	if g.MaxVariants() != DefaultMaxVariants {
		t.Errorf("MaxVariants() = %d", g.MaxVariants())
	}
}

func TestGenerateVariants_SourceTooLarge(t *testing.T) {
	g, err := NewGenerator(WithMaxSourcePixels(32*32 - 1))
	if err != nil {
		t.Fatal(err)
	}
	recs, err := g.GenerateVariants(context.Background(), encodedPattern(t, 32, 32), 1, LevelSubtle, nil)
	if !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("error = %v, want %v", err, ErrImageTooLarge)
	}
	if recs != nil {
		t.Errorf("records = %d, want none", len(recs))
	}
}

func TestGenerateVariants_InvalidInput(t *testing.T) {
	g, _ := NewGenerator()
	src := encodedPattern(t, 32, 32)
	ctx := context.Background()

	tests := []struct {
		name   string
		source []byte
		count  int
		level  Level
		want   error
	}{
		{"zero count", src, 0, LevelSubtle, ErrInvalidCount},
		{"too many", src, DefaultMaxVariants + 1, LevelSubtle, ErrInvalidCount},
		{"bad level", src, 1, Level(7), ErrInvalidLevel},
		{"garbage", []byte("nope"), 1, LevelSubtle, ErrDecodeSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := g.GenerateVariants(ctx, tt.source, tt.count, tt.level, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if recs != nil {
				t.Errorf("records = %d, want nil", len(recs))
			}
		})
	}
}

func TestGenerateVariants_Complete(t *testing.T) {
	obs := &recordingObserver{}
	g, err := NewGenerator(WithObserver(obs))
	if err != nil {
		t.Fatal(err)
	}

	ch := make(chan Progress, 64)
	recs, err := g.GenerateVariants(context.Background(), encodedPattern(t, 160, 120), 3, LevelModerate, NewChannelReporter(ch))
	if err != nil {
		t.Fatalf("GenerateVariants() error = %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("len = %d, want 3", len(recs))
	}

	hashes := make(map[string]bool)
	for i, r := range recs {
		if r.Index != i {
			t.Errorf("record %d has Index %d", i, r.Index)
		}
		if r.MimeType != "image/jpeg" || len(r.Data) == 0 {
			t.Errorf("record %d: mime %q, %d bytes", i, r.MimeType, len(r.Data))
		}
		if hashes[r.UniqueHash] {
			t.Errorf("duplicate UniqueHash %q", r.UniqueHash)
		}
		hashes[r.UniqueHash] = true
		if len(r.AppliedStages) != 4 || r.Fallback {
			t.Errorf("record %d: applied %v fallback %v", i, r.AppliedStages, r.Fallback)
		}
		buf, _, err := Decode(r.Data)
		if err != nil {
			t.Fatalf("record %d does not decode: %v", i, err)
		}
		if buf.Width() != r.Width || buf.Height() != r.Height {
			t.Errorf("record %d: decoded %dx%d, recorded %dx%d", i, buf.Width(), buf.Height(), r.Width, r.Height)
		}
	}
	if recs[0].Label != "Variant 1 of 3 (moderate)" {
		t.Errorf("Label = %q", recs[0].Label)
	}
	if recs[2].Filename() != "variant_03_"+recs[2].UniqueHash+".jpg" {
		t.Errorf("Filename() = %q", recs[2].Filename())
	}

	close(ch)
	done := 0
	for p := range ch {
		if p.Done {
			done++
			if p.State != StateFinal {
				t.Errorf("done progress state = %v", p.State)
			}
		}
	}
	if done != 3 {
		t.Errorf("done notifications = %d, want 3", done)
	}
	if obs.variants != 3 || obs.fallback != 0 {
		t.Errorf("observer = %+v", obs)
	}
}

func TestGenerateWithSeeds_Reproducible(t *testing.T) {
	g, _ := NewGenerator()
	src := patternBuffer(120, 90)
	seeds := []int64{11, 22, 33}
	now := fixedClock()

	a, err := g.GenerateWithSeeds(context.Background(), src, seeds, LevelStrong, now, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := g.GenerateWithSeeds(context.Background(), src, seeds, LevelStrong, now, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if !bytes.Equal(a[i].Data, b[i].Data) {
			t.Errorf("variant %d bytes differ between runs", i)
		}
		if a[i].UniqueHash != b[i].UniqueHash || !a[i].Timestamp.Equal(b[i].Timestamp) {
			t.Errorf("variant %d metadata differs", i)
		}
	}
	if bytes.Equal(a[0].Data, a[1].Data) {
		t.Error("different seeds produced identical bytes")
	}
}

func TestGenerateVariants_FixedClockAndEntropy(t *testing.T) {
	g, _ := NewGenerator(WithClock(fixedClock), WithEntropy(fixedEntropy), WithFormat(FormatPNG))
	src := encodedPattern(t, 64, 48)

	a, err := g.GenerateVariants(context.Background(), src, 2, LevelSubtle, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := g.GenerateVariants(context.Background(), src, 2, LevelSubtle, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i].Seed != b[i].Seed || !bytes.Equal(a[i].Data, b[i].Data) {
			t.Errorf("variant %d not reproducible", i)
		}
		if a[i].MimeType != "image/png" {
			t.Errorf("MimeType = %q", a[i].MimeType)
		}
	}
}

func TestGenerateVariants_Cancelled(t *testing.T) {
	g, _ := NewGenerator()
	src := encodedPattern(t, 64, 48)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	recs, err := g.GenerateVariants(ctx, src, 3, LevelSubtle, nil)
	if !errors.Is(err, context.Canceled) || recs != nil {
		t.Errorf("pre-cancelled: %d records, err %v", len(recs), err)
	}

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	reporter := func(p Progress) {
		if p.Done && p.Variant == 0 {
			cancel()
		}
	}
	recs, err = g.GenerateVariants(ctx, src, 3, LevelSubtle, reporter)
	if !errors.Is(err, context.Canceled) || recs != nil {
		t.Errorf("cancelled mid-batch: %d records, err %v", len(recs), err)
	}
}

func TestGenerateVariants_YieldDelayHonoursCancel(t *testing.T) {
	g, _ := NewGenerator(WithYieldDelay(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := g.GenerateVariants(ctx, encodedPattern(t, 32, 32), 1, LevelSubtle, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("yield delay ignored cancellation")
	}
}

func TestRunVariant_StageFailuresRollBack(t *testing.T) {
	obs := &recordingObserver{}
	g, _ := NewGenerator(WithObserver(obs))

	stages := defaultStages()
	stages[1].run = func(*PixelBuffer, *stageEnv) (*PixelBuffer, error) {
		panic("color blew up")
	}
	stages[3].run = func(in *PixelBuffer, _ *stageEnv) (*PixelBuffer, error) {
		return uniformBuffer(in.Width(), in.Height(), color.NRGBA{A: 255}), nil
	}
	g.stages = stages

	var skippedProgress []StageName
	reporter := func(p Progress) {
		if p.Skipped {
			skippedProgress = append(skippedProgress, p.Stage)
		}
	}

	recs, err := g.GenerateWithSeeds(context.Background(), patternBuffer(100, 80), []int64{5}, LevelModerate, fixedClock(), reporter)
	if err != nil {
		t.Fatalf("GenerateWithSeeds() error = %v", err)
	}
	r := recs[0]
	wantSkipped := []StageName{StageColor, StageWatermark}
	if len(r.SkippedStages) != 2 || r.SkippedStages[0] != wantSkipped[0] || r.SkippedStages[1] != wantSkipped[1] {
		t.Errorf("SkippedStages = %v, want %v", r.SkippedStages, wantSkipped)
	}
	if len(r.AppliedStages) != 2 || r.AppliedStages[0] != StageGeometric || r.AppliedStages[1] != StagePerturb {
		t.Errorf("AppliedStages = %v", r.AppliedStages)
	}
	if !r.Fallback {
		t.Error("Fallback = false after a non-cosmetic stage was rolled back")
	}
	if len(obs.skipped) != 2 || len(skippedProgress) != 2 {
		t.Errorf("observer skipped %v, progress skipped %v", obs.skipped, skippedProgress)
	}

	buf, _, err := Decode(r.Data)
	if err != nil {
		t.Fatal(err)
	}
	if buf.IsUniform() {
		t.Error("degenerate watermark output leaked into the record")
	}
}

func TestRunVariant_CosmeticFailureIsNotFallback(t *testing.T) {
	g, _ := NewGenerator()
	stages := defaultStages()
	stages[3].run = func(*PixelBuffer, *stageEnv) (*PixelBuffer, error) {
		return nil, errors.New("no font")
	}
	g.stages = stages

	recs, err := g.GenerateWithSeeds(context.Background(), patternBuffer(64, 64), []int64{1}, LevelSubtle, fixedClock(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if recs[0].Fallback {
		t.Error("watermark failure marked the variant as fallback")
	}
	if len(recs[0].SkippedStages) != 1 || recs[0].SkippedStages[0] != StageWatermark {
		t.Errorf("SkippedStages = %v", recs[0].SkippedStages)
	}
}

func TestRunStage_WrapsErrors(t *testing.T) {
	st := stage{name: StageColor, from: StateGeometricDone, run: func(*PixelBuffer, *stageEnv) (*PixelBuffer, error) {
		return nil, errors.New("plain")
	}}
	_, err := runStage(st, patternBuffer(8, 8), &stageEnv{})
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageColor || se.State != StateGeometricDone {
		t.Fatalf("error = %v", err)
	}
	if se.Error() == "" {
		t.Error("empty error text")
	}
}

func TestGenerator_ReporterPanicRecovered(t *testing.T) {
	g, _ := NewGenerator()
	recs, err := g.GenerateWithSeeds(context.Background(), patternBuffer(40, 40), []int64{1, 2}, LevelSubtle, fixedClock(),
		func(Progress) { panic("reporter") })
	if err != nil || len(recs) != 2 {
		t.Errorf("records %d, err %v", len(recs), err)
	}
}

func TestNewChannelReporter_DoesNotBlock(t *testing.T) {
	ch := make(chan Progress, 1)
	report := NewChannelReporter(ch)
	report(Progress{Variant: 0})
	report(Progress{Variant: 1}) // dropped
	if got := <-ch; got.Variant != 0 {
		t.Errorf("Variant = %d", got.Variant)
	}
	select {
	case p := <-ch:
		t.Errorf("unexpected second notification %+v", p)
	default:
	}
}

func TestPipelineState_String(t *testing.T) {
	want := []string{"INIT", "GEOMETRIC_DONE", "COLOR_DONE", "PERTURBED", "WATERMARKED", "FINAL"}
	for i, w := range want {
		if got := PipelineState(i).String(); got != w {
			t.Errorf("PipelineState(%d) = %q, want %q", i, got, w)
		}
	}
	if PipelineState(99).String() != "UNKNOWN" {
		t.Error("unknown state")
	}
}

// An 800x600 source at the subtle level gives five distinct variants whose
// mean luminance stays within 2% of the source. The gradients move their
// mean under any uneven crop.
func TestGenerateVariants_SubtleBatch800x600(t *testing.T) {
	if testing.Short() {
		t.Skip("full-size batch")
	}
	fixtures := []struct {
		name   string
		source *PixelBuffer
	}{
		{"pattern", patternBuffer(800, 600)},
		{"vertical gradient", gradientBuffer(800, 600)},
		{"radial gradient", radialBuffer(800, 600)},
	}

	g, _ := NewGenerator()
	for _, fx := range fixtures {
		t.Run(fx.name, func(t *testing.T) {
			data, err := Encode(fx.source, FormatPNG, 0)
			if err != nil {
				t.Fatal(err)
			}
			want := fx.source.MeanLuminance()

			for batch := 0; batch < 2; batch++ {
				recs, err := g.GenerateVariants(context.Background(), data, DefaultVariantCount, LevelSubtle, nil)
				if err != nil {
					t.Fatalf("GenerateVariants() error = %v", err)
				}
				if len(recs) != DefaultVariantCount {
					t.Fatalf("len = %d", len(recs))
				}

				for i, r := range recs {
					buf, _, err := Decode(r.Data)
					if err != nil {
						t.Fatal(err)
					}
					if buf.Width() < 780 || buf.Width() > 820 || buf.Height() < 580 || buf.Height() > 620 {
						t.Errorf("variant %d size %dx%d", i, buf.Width(), buf.Height())
					}
					if drift := math.Abs(buf.MeanLuminance()/want - 1); drift > LuminanceTolerance {
						t.Errorf("batch %d variant %d luminance drift %.4f", batch, i, drift)
					}
					for j := 0; j < i; j++ {
						if recs[j].UniqueHash == r.UniqueHash {
							t.Errorf("variants %d and %d share hash %s", j, i, r.UniqueHash)
						}
						if bytes.Equal(recs[j].Data, r.Data) {
							t.Errorf("variants %d and %d are identical", j, i)
						}
					}
				}
			}
		})
	}
}
