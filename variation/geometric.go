package variation

import (
	"fmt"
	"image"
	stddraw "image/draw"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Geometric stage constants.
const (
	// minRotationMargin is the smallest extra zoom applied on top of the
	// aspect-based rotation scale.
	minRotationMargin = 1.1

	// coverEpsilon pads the exact cover scale so sampling never lands on
	// the source boundary.
	coverEpsilon = 1.002

	// minCroppedDim stops cropping from collapsing tiny sources.
	minCroppedDim = 8
)

// ApplyGeometric crops, rotates, shears and resizes in that order. Rotation
// and shear always zoom far enough that no corner padding is visible.
func ApplyGeometric(in *PixelBuffer, p TransformParameters) (*PixelBuffer, error) {
	if in == nil || in.Width() == 0 || in.Height() == 0 {
		return nil, &StageError{Stage: StageGeometric, State: StateInit, Reason: "empty input"}
	}

	img := cropBuffer(in.img, p)

	if math.Abs(p.RotationDeg) > RotationEpsilonDeg {
		img = rotateCover(img, p.RotationDeg)
	}

	if math.Abs(p.ShearX) > ShearEpsilon || math.Abs(p.ShearY) > ShearEpsilon {
		img = shearCover(img, p.ShearX, p.ShearY)
	}

	tw, th := p.TargetWidth, p.TargetHeight
	if tw <= 0 || th <= 0 {
		return nil, &StageError{
			Stage:  StageGeometric,
			State:  StateInit,
			Reason: fmt.Sprintf("invalid target size %dx%d", tw, th),
		}
	}
	if img.Rect.Dx() != tw || img.Rect.Dy() != th {
		img = imaging.Resize(img, tw, th, imaging.Lanczos)
	}

	return wrap(img), nil
}

// cropBuffer removes the configured margins. Crops that would leave fewer
// than minCroppedDim pixels on an axis are skipped for that axis.
func cropBuffer(src *image.NRGBA, p TransformParameters) *image.NRGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()

	x0, x1 := p.CropLeft, w-p.CropRight
	if x1-x0 < minCroppedDim {
		x0, x1 = 0, w
	}
	y0, y1 := p.CropTop, h-p.CropBottom
	if y1-y0 < minCroppedDim {
		y0, y1 = 0, h
	}
	if x0 == 0 && y0 == 0 && x1 == w && y1 == h {
		return src
	}
	return imaging.Crop(src, image.Rect(x0, y0, x1, y1))
}

// rotationScale is the aspect-based zoom for a rotation of deg degrees:
// (cos + sin/aspect)/cos for landscape frames and (cos + sin*aspect)/cos
// for portrait frames.
func rotationScale(deg float64, width, height int) float64 {
	theta := math.Abs(deg) * math.Pi / 180
	cos, sin := math.Cos(theta), math.Sin(theta)
	aspect := float64(width) / float64(height)
	if aspect >= 1 {
		return (cos + sin/aspect) / cos
	}
	return (cos + sin*aspect) / cos
}

// coverScale returns the smallest s such that s*m, applied about the frame
// centre, maps the w x h source over the whole w x h destination.
func coverScale(m [4]float64, w, h int) float64 {
	det := m[0]*m[3] - m[1]*m[2]
	if det == 0 {
		return math.Inf(1)
	}
	inv := [4]float64{m[3] / det, -m[1] / det, -m[2] / det, m[0] / det}

	hw, hh := float64(w)/2, float64(h)/2
	s := 0.0
	for _, c := range [4][2]float64{{-hw, -hh}, {hw, -hh}, {-hw, hh}, {hw, hh}} {
		sx := inv[0]*c[0] + inv[1]*c[1]
		sy := inv[2]*c[0] + inv[3]*c[1]
		s = math.Max(s, math.Max(math.Abs(sx)/hw, math.Abs(sy)/hh))
	}
	return s
}

// rotateCover rotates src by deg degrees about its centre and zooms by the
// rotation scale times a margin of at least minRotationMargin.
func rotateCover(src *image.NRGBA, deg float64) *image.NRGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	theta := deg * math.Pi / 180
	cos, sin := math.Cos(theta), math.Sin(theta)
	r := [4]float64{cos, -sin, sin, cos}

	scale := rotationScale(deg, w, h) * minRotationMargin
	if cover := coverScale(r, w, h) * coverEpsilon; cover > scale {
		scale = cover
	}
	return affineAboutCentre(src, scaleMatrix(r, scale))
}

// shearCover applies the shear and the compensating zoom that keeps the
// frame covered.
func shearCover(src *image.NRGBA, sx, sy float64) *image.NRGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	m := [4]float64{1, sx, sy, 1}
	scale := math.Max(1, coverScale(m, w, h)*coverEpsilon)
	return affineAboutCentre(src, scaleMatrix(m, scale))
}

func scaleMatrix(m [4]float64, s float64) [4]float64 {
	return [4]float64{m[0] * s, m[1] * s, m[2] * s, m[3] * s}
}

// affineAboutCentre resamples src through the linear map m centred on the
// frame. The output has the same size as src.
func affineAboutCentre(src *image.NRGBA, m [4]float64) *image.NRGBA {
	b := src.Rect
	w, h := b.Dx(), b.Dy()
	cx, cy := float64(b.Min.X)+float64(w)/2, float64(b.Min.Y)+float64(h)/2

	s2d := f64.Aff3{
		m[0], m[1], cx - m[0]*cx - m[1]*cy,
		m[2], m[3], cy - m[2]*cx - m[3]*cy,
	}

	// Prefill with the source so a pixel the kernel skips keeps a real
	// value instead of transparent black.
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	stddraw.Draw(dst, dst.Bounds(), src, b.Min, stddraw.Src)

	shifted := s2d
	shifted[2] -= float64(b.Min.X)
	shifted[5] -= float64(b.Min.Y)
	draw.CatmullRom.Transform(dst, shifted, src, b, draw.Src, nil)

	return toNRGBA(dst)
}

func toNRGBA(src image.Image) *image.NRGBA {
	b := src.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	stddraw.Draw(out, out.Bounds(), src, b.Min, stddraw.Src)
	return out
}
