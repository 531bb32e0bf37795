package variation

// ImportantRegionMask marks blocks of the image that perturbation should
// mostly leave alone: busy, edge-dense blocks and mid-tone blocks, plus a
// random share. It is immutable once built.
type ImportantRegionMask struct {
	width, height int
	blockSize     int
	cols, rows    int
	blocks        []bool
}

// BuildImportantRegionMask classifies buf block by block. The block size is
// MaskBlockMin + Int(0, MaskBlockJitter); the density and mid-tone
// thresholds are jittered per block.
func BuildImportantRegionMask(buf *PixelBuffer, edges *EdgeMap, rng *PRNG, cfg PerturbationConfig) *ImportantRegionMask {
	w, h := buf.Width(), buf.Height()
	bs := cfg.MaskBlockMin + rng.Int(0, cfg.MaskBlockJitter)
	cols := (w + bs - 1) / bs
	rows := (h + bs - 1) / bs

	m := &ImportantRegionMask{
		width:     w,
		height:    h,
		blockSize: bs,
		cols:      cols,
		rows:      rows,
		blocks:    make([]bool, cols*rows),
	}

	pix := buf.img.Pix
	for by := 0; by < rows; by++ {
		for bx := 0; bx < cols; bx++ {
			x0, y0 := bx*bs, by*bs
			x1, y1 := min(x0+bs, w), min(y0+bs, h)

			var edgeCount int
			var sum float64
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					if edges.IsEdge(x, y, cfg.EdgeThreshold) {
						edgeCount++
					}
					o := buf.offset(x, y)
					sum += luminance601(pix[o], pix[o+1], pix[o+2])
				}
			}
			n := float64((x1 - x0) * (y1 - y0))
			density := float64(edgeCount) / n
			mean := sum / n

			densityThreshold := cfg.EdgeDensityThreshold * rng.Range(0.8, 1.2)
			jitter := rng.Range(-10, 10)
			randomShare := cfg.RandomImportantBase + rng.Range(-cfg.RandomImportantJitter, cfg.RandomImportantJitter)

			important := density > densityThreshold ||
				(mean > cfg.MidtoneLow+jitter && mean < cfg.MidtoneHigh+jitter) ||
				rng.Next() < randomShare

			m.blocks[by*cols+bx] = important
		}
	}
	return m
}

// At reports whether pixel (x, y) lies in an important block. Coordinates
// outside the frame are not important.
func (m *ImportantRegionMask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.width || y >= m.height {
		return false
	}
	return m.blocks[(y/m.blockSize)*m.cols+x/m.blockSize]
}

// AnyIn reports whether any pixel of the rectangle [x0,x1) x [y0,y1) is
// important.
func (m *ImportantRegionMask) AnyIn(x0, y0, x1, y1 int) bool {
	x0, y0 = max(x0, 0), max(y0, 0)
	x1, y1 = min(x1, m.width), min(y1, m.height)
	if x0 >= x1 || y0 >= y1 {
		return false
	}
	for by := y0 / m.blockSize; by <= (y1-1)/m.blockSize; by++ {
		for bx := x0 / m.blockSize; bx <= (x1-1)/m.blockSize; bx++ {
			if m.blocks[by*m.cols+bx] {
				return true
			}
		}
	}
	return false
}

// BlockSize returns the side of one mask block in pixels.
func (m *ImportantRegionMask) BlockSize() int { return m.blockSize }

// Coverage returns the share of blocks marked important.
func (m *ImportantRegionMask) Coverage() float64 {
	if len(m.blocks) == 0 {
		return 0
	}
	n := 0
	for _, b := range m.blocks {
		if b {
			n++
		}
	}
	return float64(n) / float64(len(m.blocks))
}

// maskedProbability scales p for important pixels. factor is in [0, 1], so
// an important pixel is never more likely to be touched than a plain one.
func maskedProbability(p float64, important bool, factor float64) float64 {
	if important {
		return p * factor
	}
	return p
}
