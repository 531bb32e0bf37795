package variation

import (
	"fmt"
	"time"
)

// ProcessedImageRecord is one finished variant. Records are created once
// by the generator and never modified.
type ProcessedImageRecord struct {
	Index         int
	Label         string
	MimeType      string
	Data          []byte
	UniqueHash    string
	UniqueID      string
	Timestamp     time.Time
	Seed          int64
	Width         int
	Height        int
	AppliedStages []StageName
	SkippedStages []StageName
	Fallback      bool
}

// Filename returns a stable download name for the record.
func (r ProcessedImageRecord) Filename() string {
	ext := ".jpg"
	if r.MimeType == FormatPNG.MimeType() {
		ext = ".png"
	}
	return fmt.Sprintf("variant_%02d_%s%s", r.Index+1, r.UniqueHash, ext)
}

// variantLabel is the alt text shown next to a variant.
func variantLabel(index, total int, level Level) string {
	return fmt.Sprintf("Variant %d of %d (%s)", index+1, total, level)
}
