package variation

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultPerturbationConfig_Valid(t *testing.T) {
	cfg := DefaultPerturbationConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.MaxChannelDelta != 3 {
		t.Errorf("MaxChannelDelta = %d, want 3", cfg.MaxChannelDelta)
	}
	for _, lvl := range []Level{LevelSubtle, LevelModerate, LevelStrong} {
		p := cfg.Levels[lvl]
		if p.IntensityMin > p.IntensityMax {
			t.Errorf("level %v band inverted: %+v", lvl, p)
		}
	}
}

func TestPerturbationConfig_ValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PerturbationConfig)
	}{
		{"important factor above one", func(c *PerturbationConfig) { c.ImportantFactor = 1.5 }},
		{"negative max delta", func(c *PerturbationConfig) { c.MaxChannelDelta = -1 }},
		{"zero mask block", func(c *PerturbationConfig) { c.MaskBlockMin = 0 }},
		{"zero tile", func(c *PerturbationConfig) { c.BatchStatsTile = 0 }},
		{"rotation too large", func(c *PerturbationConfig) { c.MaxRotationDeg = 90 }},
		{"luminance drift at tolerance", func(c *PerturbationConfig) { c.MaxLuminanceDrift = LuminanceTolerance }},
		{"negative luminance drift", func(c *PerturbationConfig) { c.MaxLuminanceDrift = -0.01 }},
		{"kernel range inverted", func(c *PerturbationConfig) { c.KernelStrengthMin = 1 }},
		{"missing level", func(c *PerturbationConfig) { delete(c.Levels, LevelStrong) }},
		{"bad band", func(c *PerturbationConfig) { c.Levels[LevelSubtle] = LevelPreset{IntensityMin: 0.8, IntensityMax: 0.2, WatermarkScale: 1} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultPerturbationConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoadPerturbationConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "variation.yaml")
	doc := `
max_channel_delta: 2
important_factor: 0.1
levels:
  3:
    intensity_min: 0.6
    intensity_max: 0.8
    watermark_scale: 1.3
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadPerturbationConfig(path)
	if err != nil {
		t.Fatalf("LoadPerturbationConfig() error = %v", err)
	}
	if cfg.MaxChannelDelta != 2 || cfg.ImportantFactor != 0.1 {
		t.Errorf("overrides not applied: %d %v", cfg.MaxChannelDelta, cfg.ImportantFactor)
	}
	if cfg.EdgeThreshold != DefaultPerturbationConfig().EdgeThreshold {
		t.Errorf("EdgeThreshold = %v, want default", cfg.EdgeThreshold)
	}
	if got := cfg.Levels[LevelStrong]; got.IntensityMin != 0.6 || got.WatermarkScale != 1.3 {
		t.Errorf("strong preset = %+v", got)
	}
	if got := cfg.Levels[LevelSubtle]; got != DefaultPerturbationConfig().Levels[LevelSubtle] {
		t.Errorf("subtle preset = %+v, want default", got)
	}
}

func TestLoadPerturbationConfig_EmptyPathAndErrors(t *testing.T) {
	cfg, err := LoadPerturbationConfig("")
	if err != nil || cfg.MaxChannelDelta != DefaultPerturbationConfig().MaxChannelDelta {
		t.Errorf("empty path = %+v, %v", cfg, err)
	}

	if _, err := LoadPerturbationConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(bad, []byte("max_channel_delta: [1, 2"), 0o644)
	if _, err := LoadPerturbationConfig(bad); err == nil {
		t.Error("malformed YAML should fail")
	}
}

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
		valid bool
	}{
		{LevelSubtle, "subtle", true},
		{LevelModerate, "moderate", true},
		{LevelStrong, "strong", true},
		{Level(0), "level(0)", false},
		{Level(4), "level(4)", false},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
		if tt.level.Valid() != tt.valid {
			t.Errorf("Level(%d).Valid() = %v", int(tt.level), !tt.valid)
		}
	}
}
