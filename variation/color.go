package variation

import (
	"math"
)

// Tone region thresholds on normalised BT.601 luma.
const (
	whitesThreshold     = 0.9
	highlightsThreshold = 0.7
	shadowsThreshold    = 0.3
	blacksThreshold     = 0.1
)

// colorCoefficients are the per-stage constants derived from
// ColorParameters once, before the pixel loop.
type colorCoefficients struct {
	exposure   float64
	invGamma   float64
	channel    [3]float64
	vibrance   float64
	saturation float64
	hueCos     float64
	hueSin     float64
	brightness float64
	contrast   float64
	highlights float64
	shadows    float64
	whites     float64
	blacks     float64
}

func newColorCoefficients(p TransformParameters) colorCoefficients {
	c := p.Color

	tempAdj := (c.Temperature - 6500) / 3000
	tintAdj := c.Tint / 100

	gamma := c.Gamma
	if gamma <= 0 {
		gamma = 1
	}

	hue := c.HueDeg * math.Pi / 180

	return colorCoefficients{
		exposure: c.Exposure,
		invGamma: 1 / gamma,
		channel: [3]float64{
			p.ChannelShift[0] * (1 + 0.15*tempAdj) * (1 + 0.05*tintAdj),
			p.ChannelShift[1] * (1 - 0.05*math.Abs(tempAdj)) * (1 - 0.1*tintAdj),
			p.ChannelShift[2] * (1 - 0.2*tempAdj) * (1 + 0.05*tintAdj),
		},
		vibrance:   c.Vibrance - 1,
		saturation: c.Saturation,
		hueCos:     math.Cos(hue),
		hueSin:     math.Sin(hue),
		brightness: c.Brightness,
		contrast:   c.Contrast,
		highlights: c.Highlights,
		shadows:    c.Shadows,
		whites:     c.Whites,
		blacks:     c.Blacks,
	}
}

// correct applies the full color chain to one pixel. Channels are
// normalised to [0, 1] on entry and clamped on exit.
func (k *colorCoefficients) correct(r, g, b float64) (float64, float64, float64) {
	// Exposure, then gamma.
	r, g, b = r*k.exposure, g*k.exposure, b*k.exposure
	r, g, b = gammaCurve(r, k.invGamma), gammaCurve(g, k.invGamma), gammaCurve(b, k.invGamma)

	// Temperature / tint and per-channel shift.
	r, g, b = r*k.channel[0], g*k.channel[1], b*k.channel[2]

	// Tone regions keyed on luma.
	lum := 0.299*r + 0.587*g + 0.114*b
	tone := 1.0
	switch {
	case lum > whitesThreshold:
		tone = k.whites
	case lum > highlightsThreshold:
		tone = k.highlights
	case lum < blacksThreshold:
		tone = k.blacks
	case lum < shadowsThreshold:
		tone = k.shadows
	}
	r, g, b = r*tone, g*tone, b*tone

	// Vibrance, weaker on already saturated pixels.
	if k.vibrance != 0 {
		hi := math.Max(r, math.Max(g, b))
		lo := math.Min(r, math.Min(g, b))
		sat := 0.0
		if hi > 0 {
			sat = (hi - lo) / hi
		}
		amount := 1 + k.vibrance*(1-math.Sqrt(clamp(sat, 0, 1)))
		lum = 0.299*r + 0.587*g + 0.114*b
		r, g, b = lum+(r-lum)*amount, lum+(g-lum)*amount, lum+(b-lum)*amount
	}

	// Saturation and hue in YIQ.
	y := 0.299*r + 0.587*g + 0.114*b
	i := 0.596*r - 0.274*g - 0.322*b
	q := 0.211*r - 0.523*g + 0.312*b
	i, q = i*k.saturation, q*k.saturation
	i, q = i*k.hueCos-q*k.hueSin, i*k.hueSin+q*k.hueCos
	r = y + 0.956*i + 0.621*q
	g = y - 0.272*i - 0.647*q
	b = y - 1.106*i + 1.703*q

	// Brightness, then contrast about mid grey.
	r, g, b = r*k.brightness, g*k.brightness, b*k.brightness
	r = (r-0.5)*k.contrast + 0.5
	g = (g-0.5)*k.contrast + 0.5
	b = (b-0.5)*k.contrast + 0.5

	return clamp(r, 0, 1), clamp(g, 0, 1), clamp(b, 0, 1)
}

func gammaCurve(v, invGamma float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Pow(v, invGamma)
}

func to8(v float64) uint8 {
	return uint8(clamp(math.Round(v), 0, 255))
}

// ApplyColor runs the color chain over every pixel, sprinkles sparse ±1
// jitter, and finally anchors mean luminance to within MaxLuminanceDrift
// of the input. Alpha is preserved.
func ApplyColor(in *PixelBuffer, p TransformParameters, rng *PRNG, cfg PerturbationConfig) (*PixelBuffer, error) {
	if in == nil || in.Width() == 0 || in.Height() == 0 {
		return nil, &StageError{Stage: StageColor, State: StateGeometricDone, Reason: "empty input"}
	}

	k := newColorCoefficients(p)
	out := in.Clone()
	w, h := out.Width(), out.Height()
	pix := out.img.Pix
	stride := out.img.Stride

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := y*stride + x*4
			r, g, b := k.correct(float64(pix[o])/255, float64(pix[o+1])/255, float64(pix[o+2])/255)
			rv, gv, bv := r*255, g*255, b*255

			if rng.Bool(cfg.ColorJitterFraction) {
				rv += float64(rng.Int(-1, 1))
				gv += float64(rng.Int(-1, 1))
				bv += float64(rng.Int(-1, 1))
			}

			pix[o], pix[o+1], pix[o+2] = to8(rv), to8(gv), to8(bv)
		}
	}

	anchorLuminance(out, in.MeanLuminance(), cfg.MaxLuminanceDrift)
	return out, nil
}

// Luminance anchoring. Pixels clipped at 0 or 255 ignore the gain, so one
// pass can fall short; the goal sits inside the band so 8-bit rounding and
// the encoder do not push the result back out.
const (
	anchorPasses = 4
	anchorInset  = 0.75
)

// anchorLuminance applies a uniform gain to out when its mean luma has
// drifted from target by more than maxDrift (relative), pulling it to
// three quarters of the way to the nearest band edge. It returns the drift
// left afterwards.
func anchorLuminance(out *PixelBuffer, target, maxDrift float64) float64 {
	if target <= 0 {
		return 0
	}
	drift := out.MeanLuminance()/target - 1
	for pass := 0; pass < anchorPasses && math.Abs(drift) > maxDrift; pass++ {
		after := (1 + drift) * target
		if after <= 0 {
			break
		}
		goal := anchorInset * maxDrift
		gain := target * (1 + clamp(drift, -goal, goal)) / after

		pix := out.img.Pix
		w, h := out.Width(), out.Height()
		for y := 0; y < h; y++ {
			row := pix[y*out.img.Stride : y*out.img.Stride+w*4]
			for x := 0; x < len(row); x += 4 {
				row[x] = to8(float64(row[x]) * gain)
				row[x+1] = to8(float64(row[x+1]) * gain)
				row[x+2] = to8(float64(row[x+2]) * gain)
			}
		}
		drift = out.MeanLuminance()/target - 1
	}
	return drift
}
