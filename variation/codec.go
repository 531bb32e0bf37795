package variation

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxSourcePixels bounds the decoded size of a source image unless a
// Generator is given another limit. Each variant holds several full-size
// NRGBA copies, so the limit caps memory per batch.
const DefaultMaxSourcePixels = 24_000_000

// Output quality bounds, as a fraction of the encoder's maximum.
const (
	MinQuality      = 0.88
	MaxQuality      = 0.95
	FallbackQuality = 0.92
)

var (
	// ErrDecodeSource is returned when the source bytes are not a decodable image.
	ErrDecodeSource = errors.New("variation: failed to decode source image")

	// ErrImageTooLarge is returned when the source exceeds the pixel limit.
	ErrImageTooLarge = errors.New("variation: source image too large")

	// ErrEncode is returned when a buffer cannot be encoded.
	ErrEncode = errors.New("variation: failed to encode image")
)

// Format is an output encoding.
type Format int

const (
	FormatJPEG Format = iota
	FormatPNG
)

// MimeType returns the MIME type for f.
func (f Format) MimeType() string {
	if f == FormatPNG {
		return "image/png"
	}
	return "image/jpeg"
}

// Extension returns the file extension for f, including the dot.
func (f Format) Extension() string {
	if f == FormatPNG {
		return ".png"
	}
	return ".jpg"
}

// Decode turns encoded bytes into a PixelBuffer. EXIF orientation is
// applied so the buffer matches what a viewer shows. It returns the
// detected format name alongside the buffer.
func Decode(data []byte) (*PixelBuffer, string, error) {
	return DecodeWithLimit(data, DefaultMaxSourcePixels)
}

// DecodeWithLimit is Decode with a caller-chosen bound on width times
// height, checked from the header before any pixels are allocated.
func DecodeWithLimit(data []byte, maxPixels int64) (*PixelBuffer, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty input", ErrDecodeSource)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecodeSource, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, format, fmt.Errorf("%w: zero-sized image", ErrDecodeSource)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, format, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, format, fmt.Errorf("%w: %v", ErrDecodeSource, err)
	}

	return FromImage(img), format, nil
}

// Encode serialises buf. Quality is a fraction in (0, 1] and only applies
// to JPEG, where it is clamped to [MinQuality, MaxQuality].
func Encode(buf *PixelBuffer, format Format, quality float64) ([]byte, error) {
	if buf == nil || buf.Width() == 0 || buf.Height() == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrEncode)
	}

	var out bytes.Buffer
	var err error
	switch format {
	case FormatPNG:
		err = imaging.Encode(&out, buf.img, imaging.PNG)
	default:
		q := int(math.Round(clamp(quality, MinQuality, MaxQuality) * 100))
		err = imaging.Encode(&out, buf.img, imaging.JPEG, imaging.JPEGQuality(q))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return out.Bytes(), nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
