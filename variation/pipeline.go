package variation

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"toolbox_backend/logging"
)

// minimalNoiseShare is the share of pixels touched by the minimal fallback.
const minimalNoiseShare = 0.02

// runVariant takes one seed through the state machine and encodes the
// result. The PRNG that builds the parameters is the same instance the
// stages draw from.
func (g *Generator) runVariant(source *PixelBuffer, index, total int, seed int64, level Level, now time.Time, progress ProgressReporter) (ProcessedImageRecord, error) {
	start := time.Now()
	rng := NewPRNG(seed)
	params := buildParameters(rng, seed, level, source.Width(), source.Height(), now, g.cfg)
	log := g.logger.With(logging.VariantFields(index, total, seed, params.UniqueHash)...)

	vs := newVariantState(source, params)
	sourceLuma := source.MeanLuminance()
	var perturbation PerturbationReport

	for _, st := range g.stages {
		env := &stageEnv{params: vs.params, rng: rng, cfg: g.cfg, report: &perturbation, sourceLuma: sourceLuma}
		snap := vs.current.Snapshot()

		out, err := runStage(st, vs.current, env)
		if err != nil {
			vs.rollback(st, snap, err)
			if st.cosmetic {
				log.Warn("stage skipped", append(logging.StageFields(string(st.name), st.from.String()), zap.Error(err))...)
			} else {
				log.Warn("stage rolled back, continuing with reduced parameters",
					append(logging.StageFields(string(st.name), st.from.String()), zap.Error(err))...)
			}
			if g.observer != nil {
				g.observer.ObserveStageSkipped(st.name)
			}
			g.report(progress, Progress{Variant: index, Total: total, State: vs.state, Stage: st.name, Skipped: true})
			continue
		}

		vs.advance(st, out)
		g.report(progress, Progress{Variant: index, Total: total, State: vs.state, Stage: st.name})
	}
	vs.finish()

	// Perturbation and the watermark run after the colour anchor.
	if drift := anchorLuminance(vs.current, sourceLuma, g.cfg.MaxLuminanceDrift); math.Abs(drift) > LuminanceTolerance {
		log.Warn("luminance outside tolerance after correction", zap.Float64("drift", drift))
	}

	fallback := false
	for _, st := range g.stages {
		if !st.cosmetic && contains(vs.skipped, st.name) {
			fallback = true
		}
	}

	final := vs.current
	applied := vs.applied
	skipped := vs.skipped
	data, err := Encode(final, g.format, vs.params.Quality)
	if err != nil {
		log.Warn("encode failed, using minimal variant", zap.Error(err))
		final = minimalVariant(source, rng)
		data, err = Encode(final, g.format, FallbackQuality)
		if err != nil {
			return ProcessedImageRecord{}, fmt.Errorf("failed to encode variant %d: %w", index, err)
		}
		fallback = true
		applied = nil
		skipped = stageNames(g.stages)
	}

	rec := ProcessedImageRecord{
		Index:         index,
		Label:         variantLabel(index, total, level),
		MimeType:      g.format.MimeType(),
		Data:          data,
		UniqueHash:    params.UniqueHash,
		UniqueID:      params.UniqueID,
		Timestamp:     params.Timestamp,
		Seed:          seed,
		Width:         final.Width(),
		Height:        final.Height(),
		AppliedStages: applied,
		SkippedStages: skipped,
		Fallback:      fallback,
	}

	elapsed := time.Since(start)
	if g.observer != nil {
		g.observer.ObserveVariant(level, elapsed, fallback)
	}
	log.Debug("variant complete",
		zap.Duration("duration", elapsed),
		zap.Bool("fallback", fallback),
		zap.Float64("mask_coverage", perturbation.MaskCoverage),
		zap.Int("jittered", perturbation.Jittered),
		zap.Int("inpainted", perturbation.Inpainted),
		zap.Int("clamped", perturbation.Clamped))

	g.report(progress, Progress{Variant: index, Total: total, State: StateFinal, Done: true})
	return rec, nil
}

// minimalVariant is the last-resort output: the source with ±1 noise on a
// small share of pixels.
func minimalVariant(source *PixelBuffer, rng *PRNG) *PixelBuffer {
	out := source.Clone()
	pix := out.img.Pix
	w, h := out.Width(), out.Height()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !rng.Bool(minimalNoiseShare) {
				continue
			}
			o := out.offset(x, y)
			for c := 0; c < 3; c++ {
				pix[o+c] = to8(float64(pix[o+c]) + float64(rng.Int(-1, 1)))
			}
		}
	}
	return out
}

func contains(names []StageName, name StageName) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func stageNames(stages []stage) []StageName {
	names := make([]StageName, len(stages))
	for i, st := range stages {
		names[i] = st.name
	}
	return names
}
