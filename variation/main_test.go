package variation

import (
	"image"
	"image/color"
	"math"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// patternBuffer returns a smooth periodic test image with mean luma near
// 128 and plenty of edges.
func patternBuffer(w, h int) *PixelBuffer {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 128 + 60*math.Sin(2*math.Pi*float64(x)/40)*math.Cos(2*math.Pi*float64(y)/30)
			g := uint8(v)
			img.SetNRGBA(x, y, color.NRGBA{R: g, G: uint8(255 - int(g)/2), B: uint8(int(g) / 2), A: 255})
		}
	}
	return wrap(img)
}

// gradientBuffer returns a vertical grey ramp from black at the top to
// white at the bottom. Any uneven crop moves its mean luma.
func gradientBuffer(w, h int) *PixelBuffer {
	b := NewPixelBuffer(w, h)
	for y := 0; y < h; y++ {
		v := uint8(math.Round(255 * float64(y) / float64(max(h-1, 1))))
		for x := 0; x < w; x++ {
			b.Set(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return b
}

// radialBuffer returns a warm spot in the centre fading to a dark border.
func radialBuffer(w, h int) *PixelBuffer {
	b := NewPixelBuffer(w, h)
	cx, cy := float64(w)/2, float64(h)/2
	rmax := math.Hypot(cx, cy)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			f := 1 - math.Hypot(float64(x)-cx, float64(y)-cy)/rmax
			b.Set(x, y, color.NRGBA{R: uint8(40 + 215*f), G: uint8(30 + 180*f), B: uint8(20 + 120*f), A: 255})
		}
	}
	return b
}

// uniformBuffer returns a w x h buffer filled with c.
func uniformBuffer(w, h int, c color.NRGBA) *PixelBuffer {
	b := NewPixelBuffer(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			b.Set(x, y, c)
		}
	}
	return b
}
