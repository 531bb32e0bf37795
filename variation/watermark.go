package variation

import (
	"errors"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// watermarkGlyphs are drawn from basicfont.Face7x13, which only covers
// printable ASCII.
var watermarkGlyphs = []string{".", "'", "`", ",", ":"}

// watermarkGray is the glyph colour.
const watermarkGray = 220

// cellJitter is the maximum offset of a glyph from its cell centre, as a
// fraction of the cell size.
const cellJitter = 0.3

// ErrWatermarkLayout is returned when the frame is too small for the
// requested glyph grid.
var ErrWatermarkLayout = errors.New("variation: frame too small for watermark grid")

// watermarkLayout places count glyph anchors on a floor(sqrt(n))-column
// grid, each jittered by up to cellJitter of a cell.
func watermarkLayout(count, width, height int, rng *PRNG) ([]image.Point, error) {
	if count <= 0 {
		return nil, nil
	}
	cols := max(1, int(math.Floor(math.Sqrt(float64(count)))))
	rows := (count + cols - 1) / cols

	cellW := float64(width) / float64(cols)
	cellH := float64(height) / float64(rows)
	if cellW < 1 || cellH < 1 {
		return nil, fmt.Errorf("%w: %d glyphs on %dx%d", ErrWatermarkLayout, count, width, height)
	}

	points := make([]image.Point, count)
	for i := range points {
		col, row := i%cols, i/cols
		cx := (float64(col)+0.5)*cellW + rng.Range(-cellJitter, cellJitter)*cellW
		cy := (float64(row)+0.5)*cellH + rng.Range(-cellJitter, cellJitter)*cellH
		points[i] = image.Pt(int(cx), int(cy))
	}
	return points, nil
}

// ApplyWatermark draws WatermarkCount near-transparent glyphs over a copy of
// in. Glyphs are rasterised into a coverage mask and blended at the
// variant's opacity. A panic inside the rasteriser is turned into a
// *StageError.
func ApplyWatermark(in *PixelBuffer, p TransformParameters, rng *PRNG) (out *PixelBuffer, err error) {
	if in == nil || in.Width() == 0 || in.Height() == 0 {
		return nil, &StageError{Stage: StageWatermark, State: StatePerturbed, Reason: "empty input"}
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &StageError{
				Stage:  StageWatermark,
				State:  StatePerturbed,
				Reason: "glyph rasteriser panicked",
				Err:    fmt.Errorf("%v", r),
			}
		}
	}()

	points, err := watermarkLayout(p.WatermarkCount, in.Width(), in.Height(), rng)
	if err != nil {
		return nil, &StageError{Stage: StageWatermark, State: StatePerturbed, Reason: "layout", Err: err}
	}

	glyphs := image.NewAlpha(in.img.Rect)
	d := font.Drawer{
		Dst:  glyphs,
		Src:  image.Opaque,
		Face: basicfont.Face7x13,
	}
	for _, pt := range points {
		d.Dot = fixed.P(pt.X, pt.Y)
		d.DrawString(watermarkGlyphs[rng.Int(0, len(watermarkGlyphs)-1)])
	}

	// At least one 8-bit level of opacity, so a glyph pixel moves by up
	// to one level after rounding.
	alpha := math.Max(1, math.Round(clamp(p.WatermarkOpacity, MinWatermarkOpacity, MaxWatermarkOpacity)*255)) / 255

	out = in.Clone()
	pix := out.img.Pix
	w, h := out.Width(), out.Height()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			cov := glyphs.Pix[y*glyphs.Stride+x]
			if cov == 0 {
				continue
			}
			a := alpha * float64(cov) / 255
			o := out.offset(x, y)
			for c := 0; c < 3; c++ {
				v := float64(pix[o+c])
				pix[o+c] = to8(v + (watermarkGray-v)*a)
			}
		}
	}
	return out, nil
}
