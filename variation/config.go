package variation

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Level selects how far variants drift from the source.
type Level int

const (
	LevelSubtle   Level = 1
	LevelModerate Level = 2
	LevelStrong   Level = 3
)

// Valid reports whether l is one of the three supported levels.
func (l Level) Valid() bool {
	return l >= LevelSubtle && l <= LevelStrong
}

func (l Level) String() string {
	switch l {
	case LevelSubtle:
		return "subtle"
	case LevelModerate:
		return "moderate"
	case LevelStrong:
		return "strong"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// LevelPreset is the intensity band and watermark scale used for one level.
type LevelPreset struct {
	IntensityMin   float64 `yaml:"intensity_min"`
	IntensityMax   float64 `yaml:"intensity_max"`
	WatermarkScale float64 `yaml:"watermark_scale"`
}

// PerturbationConfig holds the tunable constants of the pipeline.
// None of these are invariants; the bounded-delta cap and the mask factor
// range are enforced by Validate.
type PerturbationConfig struct {
	// Edge map and mask
	EdgeThreshold         float64 `yaml:"edge_threshold"`
	EdgeDensityThreshold  float64 `yaml:"edge_density_threshold"`
	MidtoneLow            float64 `yaml:"midtone_low"`
	MidtoneHigh           float64 `yaml:"midtone_high"`
	RandomImportantBase   float64 `yaml:"random_important_base"`
	RandomImportantJitter float64 `yaml:"random_important_jitter"`
	MaskBlockMin          int     `yaml:"mask_block_min"`
	MaskBlockJitter       int     `yaml:"mask_block_jitter"`
	ImportantFactor       float64 `yaml:"important_factor"`

	// Jitter, noise, salt/pepper
	JitterFraction float64 `yaml:"jitter_fraction"`
	JitterMaxDelta float64 `yaml:"jitter_max_delta"`

	// Channel cross-bleed
	BleedFraction float64 `yaml:"bleed_fraction"`
	BleedMix      float64 `yaml:"bleed_mix"`

	// Sharpening kernels
	KernelProbability float64 `yaml:"kernel_probability"`
	KernelFraction    float64 `yaml:"kernel_fraction"`
	KernelStrengthMin float64 `yaml:"kernel_strength_min"`
	KernelStrengthMax float64 `yaml:"kernel_strength_max"`

	// Tile batch statistics
	BatchStatsProbability float64 `yaml:"batch_stats_probability"`
	BatchStatsTile        int     `yaml:"batch_stats_tile"`
	BatchStatsFraction    float64 `yaml:"batch_stats_fraction"`
	BatchStatsGain        float64 `yaml:"batch_stats_gain"`
	BatchStatsBias        float64 `yaml:"batch_stats_bias"`

	// Dropout + inpaint
	DropoutProbability       float64 `yaml:"dropout_probability"`
	DropoutRateMin           float64 `yaml:"dropout_rate_min"`
	DropoutRateMax           float64 `yaml:"dropout_rate_max"`
	DropoutCandidateFraction float64 `yaml:"dropout_candidate_fraction"`
	DropoutNoise             float64 `yaml:"dropout_noise"`

	// Final per-channel cap against the perturbation stage input.
	MaxChannelDelta int `yaml:"max_channel_delta"`

	// Color stage
	ColorJitterFraction float64 `yaml:"color_jitter_fraction"`
	MaxLuminanceDrift   float64 `yaml:"max_luminance_drift"`

	// Geometric stage
	MaxRotationDeg float64 `yaml:"max_rotation_deg"`

	Levels map[Level]LevelPreset `yaml:"levels"`
}

// DefaultPerturbationConfig returns the built-in tunables.
func DefaultPerturbationConfig() PerturbationConfig {
	return PerturbationConfig{
		EdgeThreshold:         30,
		EdgeDensityThreshold:  0.15,
		MidtoneLow:            80,
		MidtoneHigh:           180,
		RandomImportantBase:   0.25,
		RandomImportantJitter: 0.1,
		MaskBlockMin:          16,
		MaskBlockJitter:       8,
		ImportantFactor:       0.3,

		JitterFraction: 0.08,
		JitterMaxDelta: 1.5,

		BleedFraction: 0.015,
		BleedMix:      0.0005,

		KernelProbability: 0.3,
		KernelFraction:    0.01,
		KernelStrengthMin: 0.005,
		KernelStrengthMax: 0.015,

		BatchStatsProbability: 0.4,
		BatchStatsTile:        8,
		BatchStatsFraction:    0.2,
		BatchStatsGain:        0.05,
		BatchStatsBias:        2,

		DropoutProbability:       0.3,
		DropoutRateMin:           0.1,
		DropoutRateMax:           0.25,
		DropoutCandidateFraction: 0.05,
		DropoutNoise:             3,

		MaxChannelDelta: 3,

		ColorJitterFraction: 0.02,
		MaxLuminanceDrift:   0.01,

		MaxRotationDeg: 2,

		Levels: map[Level]LevelPreset{
			LevelSubtle:   {IntensityMin: 0.25, IntensityMax: 0.40, WatermarkScale: 1.0},
			LevelModerate: {IntensityMin: 0.45, IntensityMax: 0.65, WatermarkScale: 1.2},
			LevelStrong:   {IntensityMin: 0.70, IntensityMax: 0.90, WatermarkScale: 1.4},
		},
	}
}

// LuminanceTolerance is how far (relative) a variant's mean luma may sit
// from the source's. MaxLuminanceDrift must stay below it to leave room for
// JPEG encoding.
const LuminanceTolerance = 0.02

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("variation: invalid perturbation config")

// Validate checks the ranges the pipeline depends on.
func (c PerturbationConfig) Validate() error {
	if c.ImportantFactor < 0 || c.ImportantFactor > 1 {
		return fmt.Errorf("%w: important_factor must be within [0,1], got %v", ErrInvalidConfig, c.ImportantFactor)
	}
	if c.MaxChannelDelta < 0 || c.MaxChannelDelta > 255 {
		return fmt.Errorf("%w: max_channel_delta must be within [0,255], got %d", ErrInvalidConfig, c.MaxChannelDelta)
	}
	if c.MaskBlockMin < 1 {
		return fmt.Errorf("%w: mask_block_min must be positive, got %d", ErrInvalidConfig, c.MaskBlockMin)
	}
	if c.MaskBlockJitter < 0 {
		return fmt.Errorf("%w: mask_block_jitter must not be negative, got %d", ErrInvalidConfig, c.MaskBlockJitter)
	}
	if c.BatchStatsTile < 1 {
		return fmt.Errorf("%w: batch_stats_tile must be positive, got %d", ErrInvalidConfig, c.BatchStatsTile)
	}
	if c.MaxLuminanceDrift < 0 || c.MaxLuminanceDrift >= LuminanceTolerance {
		return fmt.Errorf("%w: max_luminance_drift must be within [0,%v), got %v", ErrInvalidConfig, LuminanceTolerance, c.MaxLuminanceDrift)
	}
	if c.MaxRotationDeg < 0 || c.MaxRotationDeg > 45 {
		return fmt.Errorf("%w: max_rotation_deg must be within [0,45], got %v", ErrInvalidConfig, c.MaxRotationDeg)
	}
	if c.KernelStrengthMin > c.KernelStrengthMax {
		return fmt.Errorf("%w: kernel_strength_min exceeds kernel_strength_max", ErrInvalidConfig)
	}
	if c.DropoutRateMin > c.DropoutRateMax {
		return fmt.Errorf("%w: dropout_rate_min exceeds dropout_rate_max", ErrInvalidConfig)
	}
	for _, lvl := range []Level{LevelSubtle, LevelModerate, LevelStrong} {
		p, ok := c.Levels[lvl]
		if !ok {
			return fmt.Errorf("%w: missing preset for level %d", ErrInvalidConfig, lvl)
		}
		if p.IntensityMin < 0 || p.IntensityMax > 1 || p.IntensityMin > p.IntensityMax {
			return fmt.Errorf("%w: level %d intensity band [%v,%v] is not within [0,1]",
				ErrInvalidConfig, lvl, p.IntensityMin, p.IntensityMax)
		}
		if p.WatermarkScale <= 0 {
			return fmt.Errorf("%w: level %d watermark_scale must be positive", ErrInvalidConfig, lvl)
		}
	}
	return nil
}

// preset returns the preset for level, falling back to the subtle preset.
func (c PerturbationConfig) preset(level Level) LevelPreset {
	if p, ok := c.Levels[level]; ok {
		return p
	}
	return DefaultPerturbationConfig().Levels[LevelSubtle]
}

// LoadPerturbationConfig reads a YAML file and overlays it on the defaults.
// Keys absent from the file keep their default value. An empty path returns
// the defaults.
func LoadPerturbationConfig(path string) (PerturbationConfig, error) {
	cfg := DefaultPerturbationConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read variation config %s: %w", path, err)
	}

	if err := ParsePerturbationConfig(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse variation config %s: %w", path, err)
	}
	return cfg, nil
}

// ParsePerturbationConfig decodes YAML into cfg and validates the result.
// Level presets given in the document replace the matching default preset
// as a whole; other levels are kept.
func ParsePerturbationConfig(data []byte, cfg *PerturbationConfig) error {
	defaults := cfg.Levels
	cfg.Levels = nil

	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg.Levels = defaults
		return err
	}

	merged := make(map[Level]LevelPreset, len(defaults))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range cfg.Levels {
		merged[k] = v
	}
	cfg.Levels = merged

	return cfg.Validate()
}
