package variation

import "math"

// EdgeMap holds Sobel gradient magnitudes of a buffer's luma. Border pixels
// have magnitude 0.
type EdgeMap struct {
	width, height int
	magnitude     []float32
}

// SobelEdges computes the gradient magnitude of every interior pixel.
func SobelEdges(buf *PixelBuffer) *EdgeMap {
	w, h := buf.Width(), buf.Height()
	e := &EdgeMap{width: w, height: h, magnitude: make([]float32, w*h)}
	if w < 3 || h < 3 {
		return e
	}

	gray := make([]float32, w*h)
	p := buf.img.Pix
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := buf.offset(x, y)
			gray[y*w+x] = float32(luminance601(p[o], p[o+1], p[o+2]))
		}
	}

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			tl, tc, tr := gray[(y-1)*w+x-1], gray[(y-1)*w+x], gray[(y-1)*w+x+1]
			ml, mr := gray[y*w+x-1], gray[y*w+x+1]
			bl, bc, br := gray[(y+1)*w+x-1], gray[(y+1)*w+x], gray[(y+1)*w+x+1]

			gx := (tr + 2*mr + br) - (tl + 2*ml + bl)
			gy := (bl + 2*bc + br) - (tl + 2*tc + tr)
			e.magnitude[y*w+x] = float32(math.Sqrt(float64(gx*gx + gy*gy)))
		}
	}
	return e
}

// Magnitude returns |G| at (x, y).
func (e *EdgeMap) Magnitude(x, y int) float64 {
	return float64(e.magnitude[y*e.width+x])
}

// IsEdge reports whether |G| at (x, y) exceeds threshold.
func (e *EdgeMap) IsEdge(x, y int, threshold float64) bool {
	return e.Magnitude(x, y) > threshold
}

// EdgeFraction returns the share of pixels above threshold.
func (e *EdgeMap) EdgeFraction(threshold float64) float64 {
	if len(e.magnitude) == 0 {
		return 0
	}
	n := 0
	for _, m := range e.magnitude {
		if float64(m) > threshold {
			n++
		}
	}
	return float64(n) / float64(len(e.magnitude))
}
