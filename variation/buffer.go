package variation

import (
	"image"
	"image/color"
	"image/draw"
)

// guardRegion is the maximum side of the centre test region sampled by the
// degenerate-output guard.
const guardRegion = 32

// guardSamples is the number of samples per axis in the sparse guard grid.
const guardSamples = 8

// PixelBuffer is a width x height grid of 8-bit non-premultiplied RGBA.
// The underlying image always has its origin at (0, 0).
type PixelBuffer struct {
	img *image.NRGBA
}

// NewPixelBuffer allocates a zeroed buffer.
func NewPixelBuffer(width, height int) *PixelBuffer {
	return &PixelBuffer{img: image.NewNRGBA(image.Rect(0, 0, width, height))}
}

// FromImage copies any image.Image into a new origin-based buffer.
func FromImage(src image.Image) *PixelBuffer {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return &PixelBuffer{img: dst}
}

// wrap adopts img without copying when it is already origin based.
func wrap(img *image.NRGBA) *PixelBuffer {
	if img.Rect.Min == (image.Point{}) {
		return &PixelBuffer{img: img}
	}
	return FromImage(img)
}

// Width returns the buffer width in pixels.
func (b *PixelBuffer) Width() int { return b.img.Rect.Dx() }

// Height returns the buffer height in pixels.
func (b *PixelBuffer) Height() int { return b.img.Rect.Dy() }

// Image exposes the underlying image. Callers must not retain it across
// stages.
func (b *PixelBuffer) Image() *image.NRGBA { return b.img }

// Clone returns a deep copy.
func (b *PixelBuffer) Clone() *PixelBuffer {
	pix := make([]uint8, len(b.img.Pix))
	copy(pix, b.img.Pix)
	return &PixelBuffer{img: &image.NRGBA{Pix: pix, Stride: b.img.Stride, Rect: b.img.Rect}}
}

// Snapshot is Clone under the name the state machine uses.
func (b *PixelBuffer) Snapshot() *PixelBuffer { return b.Clone() }

// Restore overwrites b with the contents of snap.
func (b *PixelBuffer) Restore(snap *PixelBuffer) {
	pix := make([]uint8, len(snap.img.Pix))
	copy(pix, snap.img.Pix)
	b.img = &image.NRGBA{Pix: pix, Stride: snap.img.Stride, Rect: snap.img.Rect}
}

func (b *PixelBuffer) offset(x, y int) int {
	return y*b.img.Stride + x*4
}

// At returns the pixel at (x, y).
func (b *PixelBuffer) At(x, y int) color.NRGBA {
	i := b.offset(x, y)
	p := b.img.Pix[i : i+4 : i+4]
	return color.NRGBA{R: p[0], G: p[1], B: p[2], A: p[3]}
}

// Set writes the pixel at (x, y).
func (b *PixelBuffer) Set(x, y int, c color.NRGBA) {
	i := b.offset(x, y)
	p := b.img.Pix[i : i+4 : i+4]
	p[0], p[1], p[2], p[3] = c.R, c.G, c.B, c.A
}

// luminance601 returns BT.601 luma for 8-bit channels, in [0, 255].
func luminance601(r, g, b uint8) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

// MeanLuminance returns the mean BT.601 luma over all pixels, in [0, 255].
func (b *PixelBuffer) MeanLuminance() float64 {
	w, h := b.Width(), b.Height()
	if w == 0 || h == 0 {
		return 0
	}
	var sum float64
	for y := 0; y < h; y++ {
		row := b.img.Pix[y*b.img.Stride : y*b.img.Stride+w*4]
		for x := 0; x < len(row); x += 4 {
			sum += luminance601(row[x], row[x+1], row[x+2])
		}
	}
	return sum / float64(w*h)
}

// SampleRegion returns the guard samples: the centre region (at most
// 32x32) followed by a sparse grid of samples across the whole frame.
func (b *PixelBuffer) SampleRegion() []color.NRGBA {
	w, h := b.Width(), b.Height()
	if w == 0 || h == 0 {
		return nil
	}

	rw, rh := min(guardRegion, w), min(guardRegion, h)
	x0, y0 := (w-rw)/2, (h-rh)/2

	samples := make([]color.NRGBA, 0, rw*rh+guardSamples*guardSamples)
	for y := y0; y < y0+rh; y++ {
		for x := x0; x < x0+rw; x++ {
			samples = append(samples, b.At(x, y))
		}
	}
	for j := 0; j < guardSamples; j++ {
		py := (2*j + 1) * h / (2 * guardSamples)
		for i := 0; i < guardSamples; i++ {
			px := (2*i + 1) * w / (2 * guardSamples)
			samples = append(samples, b.At(px, py))
		}
	}
	return samples
}

// IsUniform reports whether every guard sample is identical. An empty
// buffer counts as uniform.
func (b *PixelBuffer) IsUniform() bool {
	samples := b.SampleRegion()
	if len(samples) == 0 {
		return true
	}
	first := samples[0]
	for _, s := range samples[1:] {
		if s != first {
			return false
		}
	}
	return true
}

// IsDegenerate reports whether b looks like a failed stage output relative
// to the stage input: a nil or empty buffer, or a uniform sample where the
// input was not uniform. All-zero samples are a special case of uniform.
func (b *PixelBuffer) IsDegenerate(input *PixelBuffer) bool {
	if b == nil || b.img == nil || b.Width() == 0 || b.Height() == 0 {
		return true
	}
	if !b.IsUniform() {
		return false
	}
	return input == nil || !input.IsUniform()
}
