package variation

import (
	"math"
	"time"
)

// Parameter limits. Values drawn by NewTransformParameters are clamped to
// these before use.
const (
	MinCropFraction = 0.002
	MaxCropFraction = 0.08

	RotationEpsilonDeg = 0.05
	MaxShear           = 0.01
	ShearEpsilon       = 0.002

	MinResizeDim    = 350
	ResizeJitterPx  = 20
	MaxWatermarks   = 120
	MinWatermarks   = 50
	WatermarkSpread = 30

	MinWatermarkOpacity = 0.0003
	MaxWatermarkOpacity = 0.003

	UniqueIDLength   = 16
	UniqueHashLength = 12

	timestampJitterMs = 1_000_000
)

// ColorParameters are the color-correction coefficients of one variant.
// Multiplicative coefficients are neutral at 1, additive ones at 0.
type ColorParameters struct {
	Brightness  float64
	Contrast    float64
	Saturation  float64
	HueDeg      float64
	Gamma       float64
	Exposure    float64
	Temperature float64 // Kelvin, neutral 6500
	Tint        float64 // -100 green .. +100 magenta
	Vibrance    float64
	Highlights  float64
	Shadows     float64
	Whites      float64
	Blacks      float64
}

// TransformParameters is the full recipe for one variant. It is built once
// by NewTransformParameters and never mutated; Reduced returns a new value.
type TransformParameters struct {
	Seed      int64
	Level     Level
	Intensity float64

	// Geometric
	CropLeft, CropTop, CropRight, CropBottom int
	RotationDeg                              float64
	ShearX, ShearY                           float64
	TargetWidth, TargetHeight                int

	// Color
	Color        ColorParameters
	ChannelShift [3]float64

	// Noise
	NoiseSigma        float64
	SaltProbability   float64
	PepperProbability float64

	// Watermark / metadata
	WatermarkCount   int
	WatermarkOpacity float64
	Quality          float64
	UniqueID         string
	UniqueHash       string
	Timestamp        time.Time
}

// NewTransformParameters builds the parameters for one variant of a
// width x height source. It consumes a fresh PRNG for seed; the generator
// uses buildParameters instead so the same PRNG continues into the stages.
func NewTransformParameters(seed int64, level Level, width, height int, now time.Time, cfg PerturbationConfig) TransformParameters {
	return buildParameters(NewPRNG(seed), seed, level, width, height, now, cfg)
}

func buildParameters(rng *PRNG, seed int64, level Level, width, height int, now time.Time, cfg PerturbationConfig) TransformParameters {
	preset := cfg.preset(level)
	i := rng.Range(preset.IntensityMin, preset.IntensityMax)

	p := TransformParameters{
		Seed:      seed,
		Level:     level,
		Intensity: i,
	}

	// Crop: each side independently, at least MinCropFraction of the
	// dimension, at most a level-scaled share of MaxCropFraction.
	maxCrop := clamp(0.02+0.06*i, MinCropFraction, MaxCropFraction)
	p.CropLeft = cropPixels(rng, width, maxCrop)
	p.CropRight = cropPixels(rng, width, maxCrop)
	p.CropTop = cropPixels(rng, height, maxCrop)
	p.CropBottom = cropPixels(rng, height, maxCrop)

	maxRot := cfg.MaxRotationDeg
	p.RotationDeg = clamp(rng.Range(-1.5, 1.5)*i+rng.Range(-0.5, 0.5), -maxRot, maxRot)
	p.ShearX = clamp(rng.Range(-MaxShear, MaxShear)*i, -MaxShear, MaxShear)
	p.ShearY = clamp(rng.Range(-MaxShear, MaxShear)*i, -MaxShear, MaxShear)

	p.TargetWidth = targetDimension(rng, width)
	p.TargetHeight = targetDimension(rng, height)

	p.Color = ColorParameters{
		Brightness:  clamp(1+rng.Range(-0.02, 0.02)*i, 0.98, 1.02),
		Contrast:    clamp(1+rng.Range(-0.05, 0.05)*i, 0.95, 1.05),
		Saturation:  clamp(1+rng.Range(-0.1, 0.1)*i, 0.90, 1.10),
		HueDeg:      clamp(rng.Range(-5, 5)*i, -5, 5),
		Gamma:       clamp(1+rng.Range(-0.03, 0.03)*i, 0.9, 1.1),
		Exposure:    clamp(1+rng.Range(-0.05, 0.05)*i, 0.95, 1.05),
		Temperature: clamp(6500+rng.Range(-350, 350)*i, 6000, 7000),
		Tint:        clamp(rng.Range(-10, 10)*i, -100, 100),
		Vibrance:    clamp(1+rng.Range(-0.1, 0.1)*i, 0.5, 1.5),
		Highlights:  clamp(1+rng.Range(-0.05, 0.05)*i, 0.95, 1.05),
		Shadows:     clamp(1+rng.Range(-0.1, 0.1)*i, 0.90, 1.10),
		Whites:      clamp(1+rng.Range(-0.03, 0.03)*i, 0.97, 1.03),
		Blacks:      clamp(1+rng.Range(-0.1, 0.1)*i, 0.90, 1.10),
	}
	for c := range p.ChannelShift {
		p.ChannelShift[c] = clamp(1+rng.Range(-0.004, 0.004)*i, 0.99, 1.01)
	}

	p.NoiseSigma = clamp(rng.Range(0.2, 0.6)*(0.5+i), 0, 1)
	p.SaltProbability = clamp(rng.Range(0.0001, 0.0004)*i, 0, 0.001)
	p.PepperProbability = clamp(rng.Range(0.0001, 0.0004)*i, 0, 0.001)

	count := float64(rng.Int(MinWatermarks, MinWatermarks+WatermarkSpread)) * preset.WatermarkScale
	p.WatermarkCount = int(clamp(math.Round(count), 0, MaxWatermarks))
	p.WatermarkOpacity = clamp(rng.Range(0.0005, 0.002)*(0.5+i), MinWatermarkOpacity, MaxWatermarkOpacity)

	p.Quality = clamp(rng.Range(MinQuality, MaxQuality), MinQuality, MaxQuality)
	p.UniqueID = rng.Alphanumeric(UniqueIDLength)
	p.Timestamp = now.Add(time.Duration(rng.Int(-timestampJitterMs, timestampJitterMs)) * time.Millisecond)
	p.UniqueHash = rng.Alphanumeric(UniqueHashLength)

	return p
}

// cropPixels draws a crop for one side of a dimension of size n.
func cropPixels(rng *PRNG, n int, maxFraction float64) int {
	f := rng.Range(MinCropFraction, maxFraction)
	return int(math.Round(f * float64(n)))
}

// targetDimension is max(min(350, orig), orig + Int(-20, 20)).
func targetDimension(rng *PRNG, orig int) int {
	floor := min(MinResizeDim, orig)
	return max(floor, orig+rng.Int(-ResizeJitterPx, ResizeJitterPx))
}

// Reduced returns a copy pulled halfway toward neutral. The state machine
// switches to it after a stage has been rolled back. Identity fields, the
// crop and the target size are unchanged.
func (p TransformParameters) Reduced() TransformParameters {
	const k = 0.5
	r := p
	r.Intensity = p.Intensity * k
	r.RotationDeg = p.RotationDeg * k
	r.ShearX = p.ShearX * k
	r.ShearY = p.ShearY * k

	toward := func(v, neutral float64) float64 { return neutral + (v-neutral)*k }
	c := p.Color
	r.Color = ColorParameters{
		Brightness:  toward(c.Brightness, 1),
		Contrast:    toward(c.Contrast, 1),
		Saturation:  toward(c.Saturation, 1),
		HueDeg:      toward(c.HueDeg, 0),
		Gamma:       toward(c.Gamma, 1),
		Exposure:    toward(c.Exposure, 1),
		Temperature: toward(c.Temperature, 6500),
		Tint:        toward(c.Tint, 0),
		Vibrance:    toward(c.Vibrance, 1),
		Highlights:  toward(c.Highlights, 1),
		Shadows:     toward(c.Shadows, 1),
		Whites:      toward(c.Whites, 1),
		Blacks:      toward(c.Blacks, 1),
	}
	for i := range r.ChannelShift {
		r.ChannelShift[i] = toward(p.ChannelShift[i], 1)
	}
	r.NoiseSigma = p.NoiseSigma * k
	r.SaltProbability = p.SaltProbability * k
	r.PepperProbability = p.PepperProbability * k
	r.WatermarkOpacity = clamp(p.WatermarkOpacity*k, MinWatermarkOpacity, MaxWatermarkOpacity)
	return r
}
