package variation

import (
	"image/color"
	"testing"
	"time"
)

// checkerMask marks every other block as important.
func checkerMask(w, h, bs int) *ImportantRegionMask {
	cols, rows := (w+bs-1)/bs, (h+bs-1)/bs
	m := &ImportantRegionMask{width: w, height: h, blockSize: bs, cols: cols, rows: rows, blocks: make([]bool, cols*rows)}
	for by := 0; by < rows; by++ {
		for bx := 0; bx < cols; bx++ {
			m.blocks[by*cols+bx] = (bx+by)%2 == 0
		}
	}
	return m
}

func TestApplyPerturbation_BoundedDelta(t *testing.T) {
	cfg := DefaultPerturbationConfig()
	// Make every optional step run.
	cfg.KernelProbability = 1
	cfg.BatchStatsProbability = 1
	cfg.DropoutProbability = 1

	src := patternBuffer(120, 90)
	for _, lvl := range []Level{LevelSubtle, LevelModerate, LevelStrong} {
		for seed := int64(0); seed < 5; seed++ {
			rng := NewPRNG(seed)
			p := buildParameters(rng, seed, lvl, 120, 90, time.Now(), cfg)
			out, rep, err := ApplyPerturbation(src, p, rng, cfg)
			if err != nil {
				t.Fatalf("ApplyPerturbation() error = %v", err)
			}
			if rep.Jittered == 0 {
				t.Errorf("level %v seed %d: nothing jittered", lvl, seed)
			}
			assertMaxDelta(t, src, out, cfg.MaxChannelDelta)
		}
	}
}

func TestApplyPerturbation_TighterLimit(t *testing.T) {
	cfg := DefaultPerturbationConfig()
	cfg.MaxChannelDelta = 1
	cfg.JitterMaxDelta = 5
	cfg.DropoutProbability = 1
	cfg.DropoutNoise = 10

	src := patternBuffer(64, 64)
	rng := NewPRNG(3)
	p := buildParameters(rng, 3, LevelStrong, 64, 64, time.Now(), cfg)
	out, rep, err := ApplyPerturbation(src, p, rng, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Clamped == 0 {
		t.Error("expected the delta limit to clamp something")
	}
	assertMaxDelta(t, src, out, 1)
}

func TestPerturbWithMask_ImportantUntouchedWhenFactorZero(t *testing.T) {
	cfg := DefaultPerturbationConfig()
	cfg.ImportantFactor = 0
	cfg.JitterFraction = 0.5
	cfg.BleedFraction = 0.5
	cfg.KernelProbability = 1
	cfg.KernelFraction = 0.5
	cfg.BatchStatsProbability = 1
	cfg.BatchStatsFraction = 0.5
	cfg.DropoutProbability = 1

	const w, h = 96, 64
	src := patternBuffer(w, h)
	mask := checkerMask(w, h, 16)
	rng := NewPRNG(21)
	p := buildParameters(rng, 21, LevelStrong, w, h, time.Now(), cfg)
	p.SaltProbability, p.PepperProbability = 0.01, 0.01

	out, _ := perturbWithMask(src, SobelEdges(src), mask, p, rng, cfg)

	changedPlain := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if mask.At(x, y) {
				if out.At(x, y) != src.At(x, y) {
					t.Fatalf("important pixel (%d,%d) changed: %v -> %v", x, y, src.At(x, y), out.At(x, y))
				}
			} else if out.At(x, y) != src.At(x, y) {
				changedPlain++
			}
		}
	}
	if changedPlain == 0 {
		t.Error("no plain pixel changed")
	}
}

func TestApplyPerturbation_PreservesAlphaAndSize(t *testing.T) {
	cfg := DefaultPerturbationConfig()
	src := patternBuffer(50, 40)
	rng := NewPRNG(8)
	p := buildParameters(rng, 8, LevelModerate, 50, 40, time.Now(), cfg)
	out, _, err := ApplyPerturbation(src, p, rng, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if out.Width() != 50 || out.Height() != 40 {
		t.Fatalf("size = %dx%d", out.Width(), out.Height())
	}
	for y := 0; y < 40; y++ {
		for x := 0; x < 50; x++ {
			if out.At(x, y).A != 255 {
				t.Fatalf("alpha changed at (%d,%d)", x, y)
			}
		}
	}
	if _, _, err := ApplyPerturbation(NewPixelBuffer(0, 0), p, rng, cfg); err == nil {
		t.Error("empty input should fail")
	}
}

func TestBuildImportantRegionMask(t *testing.T) {
	cfg := DefaultPerturbationConfig()
	cfg.RandomImportantBase = 0
	cfg.RandomImportantJitter = 0

	dark := uniformBuffer(64, 64, color.NRGBA{R: 10, G: 10, B: 10, A: 255})
	m := BuildImportantRegionMask(dark, SobelEdges(dark), NewPRNG(1), cfg)
	if m.Coverage() != 0 {
		t.Errorf("dark flat image coverage = %v, want 0", m.Coverage())
	}

	mid := uniformBuffer(64, 64, color.NRGBA{R: 130, G: 130, B: 130, A: 255})
	m = BuildImportantRegionMask(mid, SobelEdges(mid), NewPRNG(1), cfg)
	if m.Coverage() != 1 {
		t.Errorf("mid-tone image coverage = %v, want 1", m.Coverage())
	}
	if bs := m.BlockSize(); bs < cfg.MaskBlockMin || bs > cfg.MaskBlockMin+cfg.MaskBlockJitter {
		t.Errorf("BlockSize() = %d", bs)
	}
	if m.At(-1, 0) || m.At(64, 0) || m.At(0, 64) {
		t.Error("out-of-frame pixels must not be important")
	}
	if !m.AnyIn(0, 0, 4, 4) {
		t.Error("AnyIn over an important block = false")
	}
}

func TestMaskedProbability(t *testing.T) {
	if got := maskedProbability(0.4, false, 0.3); got != 0.4 {
		t.Errorf("plain = %v", got)
	}
	if got := maskedProbability(0.4, true, 0.5); got != 0.2 {
		t.Errorf("important = %v", got)
	}
}

func TestSobelEdges(t *testing.T) {
	flat := uniformBuffer(20, 20, color.NRGBA{R: 90, G: 90, B: 90, A: 255})
	if f := SobelEdges(flat).EdgeFraction(1); f != 0 {
		t.Errorf("flat EdgeFraction = %v", f)
	}

	step := NewPixelBuffer(20, 20)
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			v := uint8(0)
			if x >= 10 {
				v = 255
			}
			step.Set(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	e := SobelEdges(step)
	if !e.IsEdge(10, 10, 30) || e.IsEdge(3, 10, 30) {
		t.Error("step edge not detected where expected")
	}
}

func assertMaxDelta(t *testing.T, in, out *PixelBuffer, maxDelta int) {
	t.Helper()
	for y := 0; y < in.Height(); y++ {
		for x := 0; x < in.Width(); x++ {
			a, b := in.At(x, y), out.At(x, y)
			for _, d := range []int{int(a.R) - int(b.R), int(a.G) - int(b.G), int(a.B) - int(b.B)} {
				if d > maxDelta || -d > maxDelta {
					t.Fatalf("pixel (%d,%d) moved by %d, limit %d", x, y, d, maxDelta)
				}
			}
		}
	}
}
