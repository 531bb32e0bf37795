package variation

// PerturbationReport counts what the perturbation stage touched. It is
// logged per variant and has no effect on the output.
type PerturbationReport struct {
	MaskCoverage float64
	EdgeFraction float64
	Jittered     int
	Spiked       int
	Bled         int
	Sharpened    int
	Normalized   int
	Inpainted    int
	Clamped      int
}

// neighbour offsets for the near-identity sharpening kernels.
var sharpenKernels = [3][][2]int{
	{{0, -1}, {0, 1}, {-1, 0}, {1, 0}},   // cross
	{{-1, -1}, {1, -1}, {-1, 1}, {1, 1}}, // diagonal
	{{-1, 0}, {1, 0}},                    // horizontal
}

var eightNeighbours = [8][2]int{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// ApplyPerturbation runs the seven perturbation steps: edge map, mask,
// jitter with noise and salt/pepper, channel cross-bleed, optional
// sharpening, optional tile statistics and optional dropout with inpaint.
// No channel of the result differs from in by more than
// cfg.MaxChannelDelta.
func ApplyPerturbation(in *PixelBuffer, p TransformParameters, rng *PRNG, cfg PerturbationConfig) (*PixelBuffer, PerturbationReport, error) {
	if in == nil || in.Width() == 0 || in.Height() == 0 {
		return nil, PerturbationReport{}, &StageError{Stage: StagePerturb, State: StateColorDone, Reason: "empty input"}
	}

	edges := SobelEdges(in)
	mask := BuildImportantRegionMask(in, edges, rng, cfg)

	out, rep := perturbWithMask(in, edges, mask, p, rng, cfg)
	rep.MaskCoverage = mask.Coverage()
	return out, rep, nil
}

func perturbWithMask(in *PixelBuffer, edges *EdgeMap, mask *ImportantRegionMask, p TransformParameters, rng *PRNG, cfg PerturbationConfig) (*PixelBuffer, PerturbationReport) {
	out := in.Clone()
	rep := PerturbationReport{EdgeFraction: edges.EdgeFraction(cfg.EdgeThreshold)}

	rep.Jittered, rep.Spiked = jitterPixels(out, mask, p, rng, cfg, rep.EdgeFraction)
	rep.Bled = crossBleed(out, mask, rng, cfg)

	if rng.Bool(cfg.KernelProbability) {
		rep.Sharpened = sharpen(out, mask, rng, cfg)
	}
	if rng.Bool(cfg.BatchStatsProbability) {
		rep.Normalized = tileStatistics(out, mask, rng, cfg)
	}
	if rng.Bool(cfg.DropoutProbability) {
		rep.Inpainted = dropoutInpaint(out, mask, rng, cfg)
	}

	rep.Clamped = limitDelta(in, out, cfg.MaxChannelDelta)
	return out, rep
}

// jitterPixels adds small uniform+gaussian noise to a sparse share of
// pixels and rare salt/pepper spikes. Channels near the ends of the range
// are left alone so the step never clips.
func jitterPixels(buf *PixelBuffer, mask *ImportantRegionMask, p TransformParameters, rng *PRNG, cfg PerturbationConfig, complexity float64) (jittered, spiked int) {
	w, h := buf.Width(), buf.Height()
	pix := buf.img.Pix
	maxD := cfg.JitterMaxDelta
	share := cfg.JitterFraction * (0.85 + 0.3*complexity)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			imp := mask.At(x, y)
			o := buf.offset(x, y)

			if rng.Next() < maskedProbability(share, imp, cfg.ImportantFactor) {
				for c := 0; c < 3; c++ {
					v := float64(pix[o+c])
					if v < 3 || v > 252 {
						continue
					}
					d := clamp(rng.Range(-maxD, maxD)*0.5+rng.Gaussian()*p.NoiseSigma, -maxD, maxD)
					pix[o+c] = to8(v + d)
				}
				jittered++
			}

			salt := maskedProbability(p.SaltProbability, imp, cfg.ImportantFactor)
			pepper := maskedProbability(p.PepperProbability, imp, cfg.ImportantFactor)
			u := rng.Next()
			switch {
			case u < salt:
				shiftPixel(pix[o:o+3], maxD)
				spiked++
			case u < salt+pepper:
				shiftPixel(pix[o:o+3], -maxD)
				spiked++
			}
		}
	}
	return jittered, spiked
}

func shiftPixel(px []uint8, d float64) {
	for c := range px {
		px[c] = to8(float64(px[c]) + d)
	}
}

// crossBleed mixes a tiny share of each channel into the next one inside
// randomly chosen small blocks.
func crossBleed(buf *PixelBuffer, mask *ImportantRegionMask, rng *PRNG, cfg PerturbationConfig) int {
	w, h := buf.Width(), buf.Height()
	pix := buf.img.Pix
	bs := 2 + rng.Int(0, 2)
	mix := cfg.BleedMix
	keep := 1 - mix
	count := 0

	for by := 0; by < h; by += bs {
		for bx := 0; bx < w; bx += bs {
			imp := mask.AnyIn(bx, by, bx+bs, by+bs)
			if rng.Next() >= maskedProbability(cfg.BleedFraction, imp, cfg.ImportantFactor) {
				continue
			}
			for y := by; y < min(by+bs, h); y++ {
				for x := bx; x < min(bx+bs, w); x++ {
					o := buf.offset(x, y)
					r, g, b := float64(pix[o]), float64(pix[o+1]), float64(pix[o+2])
					pix[o] = to8(r*keep + g*mix)
					pix[o+1] = to8(g*keep + b*mix)
					pix[o+2] = to8(b*keep + r*mix)
				}
			}
			count++
		}
	}
	return count
}

// sharpen applies one of the near-identity kernels to a sparse share of
// interior pixels. Reads come from a copy so results do not cascade.
func sharpen(buf *PixelBuffer, mask *ImportantRegionMask, rng *PRNG, cfg PerturbationConfig) int {
	w, h := buf.Width(), buf.Height()
	if w < 3 || h < 3 {
		return 0
	}
	kernel := sharpenKernels[rng.Int(0, len(sharpenKernels)-1)]
	strength := rng.Range(cfg.KernelStrengthMin, cfg.KernelStrengthMax)

	src := buf.Clone()
	sp := src.img.Pix
	dp := buf.img.Pix
	count := 0

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			if rng.Next() >= maskedProbability(cfg.KernelFraction, mask.At(x, y), cfg.ImportantFactor) {
				continue
			}
			o := src.offset(x, y)
			for c := 0; c < 3; c++ {
				v := float64(sp[o+c])
				var sum float64
				for _, n := range kernel {
					sum += float64(sp[src.offset(x+n[0], y+n[1])+c])
				}
				dp[o+c] = to8(v + strength*(float64(len(kernel))*v-sum))
			}
			count++
		}
	}
	return count
}

// tileStatistics nudges a share of pixels in non-important tiles toward a
// slightly rescaled tile mean. Tiles holding any important pixel are
// skipped entirely.
func tileStatistics(buf *PixelBuffer, mask *ImportantRegionMask, rng *PRNG, cfg PerturbationConfig) int {
	w, h := buf.Width(), buf.Height()
	pix := buf.img.Pix
	tile := cfg.BatchStatsTile
	gain := 1 + rng.Range(-cfg.BatchStatsGain, cfg.BatchStatsGain)
	bias := rng.Range(-cfg.BatchStatsBias, cfg.BatchStatsBias)
	count := 0

	for ty := 0; ty < h; ty += tile {
		for tx := 0; tx < w; tx += tile {
			x1, y1 := min(tx+tile, w), min(ty+tile, h)
			if mask.AnyIn(tx, ty, x1, y1) {
				continue
			}

			var mean [3]float64
			n := float64((x1 - tx) * (y1 - ty))
			for y := ty; y < y1; y++ {
				for x := tx; x < x1; x++ {
					o := buf.offset(x, y)
					mean[0] += float64(pix[o])
					mean[1] += float64(pix[o+1])
					mean[2] += float64(pix[o+2])
				}
			}
			for c := range mean {
				mean[c] /= n
			}

			for y := ty; y < y1; y++ {
				for x := tx; x < x1; x++ {
					if rng.Next() >= cfg.BatchStatsFraction {
						continue
					}
					o := buf.offset(x, y)
					for c := 0; c < 3; c++ {
						v := float64(pix[o+c])
						pix[o+c] = to8(mean[c] + (v-mean[c])*gain + bias)
					}
					count++
				}
			}
		}
	}
	return count
}

// dropoutInpaint replaces a sparse subset of non-important interior pixels
// with the mean of their eight neighbours plus a little noise.
func dropoutInpaint(buf *PixelBuffer, mask *ImportantRegionMask, rng *PRNG, cfg PerturbationConfig) int {
	w, h := buf.Width(), buf.Height()
	if w < 3 || h < 3 {
		return 0
	}
	rate := rng.Range(cfg.DropoutRateMin, cfg.DropoutRateMax)
	share := rate * cfg.DropoutCandidateFraction

	src := buf.Clone()
	sp := src.img.Pix
	dp := buf.img.Pix
	count := 0

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			if mask.At(x, y) || rng.Next() >= share {
				continue
			}
			o := src.offset(x, y)
			for c := 0; c < 3; c++ {
				var sum float64
				for _, n := range eightNeighbours {
					sum += float64(sp[src.offset(x+n[0], y+n[1])+c])
				}
				dp[o+c] = to8(sum/8 + rng.Range(-cfg.DropoutNoise, cfg.DropoutNoise))
			}
			count++
		}
	}
	return count
}

// limitDelta clamps every channel of out to within maxDelta of in and
// returns the number of channels it had to clamp.
func limitDelta(in, out *PixelBuffer, maxDelta int) int {
	w, h := in.Width(), in.Height()
	ip, op := in.img.Pix, out.img.Pix
	clamped := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := in.offset(x, y)
			for c := 0; c < 3; c++ {
				a, b := int(ip[o+c]), int(op[o+c])
				switch {
				case b-a > maxDelta:
					op[o+c] = uint8(a + maxDelta)
					clamped++
				case a-b > maxDelta:
					op[o+c] = uint8(a - maxDelta)
					clamped++
				}
			}
		}
	}
	return clamped
}
