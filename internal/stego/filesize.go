package stego

import (
	"math"

	"github.com/ironsheep/image-integrity-mcp/internal/config"
	"github.com/ironsheep/image-integrity-mcp/internal/format"
)

// fileSizeDetector flags files much larger than their pixel count
// explains, and files with bytes appended after the end-of-image atom.
type fileSizeDetector struct {
	cfg config.FileSize
}

func (d *fileSizeDetector) Kind() Kind { return FileSize }

func (d *fileSizeDetector) budget(f format.Format) config.FormatBudget {
	switch f {
	case format.JPEG:
		return d.cfg.JPEG
	case format.PNG:
		return d.cfg.PNG
	default:
		return d.cfg.Other
	}
}

func (d *fileSizeDetector) Score(in *Input) Score {
	w, h := in.dimensions()
	if w <= 0 || h <= 0 {
		return NotApplicable(FileSize, "image dimensions unknown")
	}
	if len(in.Data) == 0 {
		return NotApplicable(FileSize, "no file data")
	}

	bud := d.budget(in.Format)
	expected := float64(w) * float64(h) * bud.TypicalBitsPerPixel / 8
	ratio := float64(len(in.Data)) / expected
	sizeTerm := ramp(ratio, bud.Ceiling, 2*bud.Ceiling)

	trailing := 0
	if in.Parse != nil {
		trailing = in.Parse.TrailingBytes
	}
	trailTerm := 0.0
	if trailing > 0 {
		trailTerm = ramp(float64(trailing), 0, float64(d.cfg.TrailingSaturation))
	}

	return Applicable(FileSize, math.Max(sizeTerm, trailTerm),
		"%d bytes, %.2fx the expected %.0f; %d trailing bytes", len(in.Data), ratio, expected, trailing)
}
