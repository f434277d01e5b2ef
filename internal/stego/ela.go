package stego

import (
	"math"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/image-integrity-mcp/internal/config"
)

// elaDetector performs error-level analysis. A JPEG re-saved once at a
// fixed quality shows a roughly even error across blocks; regions edited
// or re-encoded separately stand out as blocks with a different error, so
// a high spread of per-block error is suspicious.
type elaDetector struct {
	cfg config.ELA
}

func (d *elaDetector) Kind() Kind { return ELA }

func (d *elaDetector) Score(in *Input) Score {
	if !in.Format.Lossy() {
		return NotApplicable(ELA, "%s is not a lossy format", in.Format)
	}
	if in.Pixels == nil {
		return NotApplicable(ELA, "no decoded pixels")
	}
	if in.Codec == nil {
		return NotApplicable(ELA, "no codec to re-encode with")
	}
	bs := d.cfg.BlockSize
	b := in.Pixels.Bounds()
	bw, bh := b.Dx()/bs, b.Dy()/bs
	if bw*bh < d.cfg.MinBlocks {
		return NotApplicable(ELA, "%d blocks of %dx%d, need %d", bw*bh, bs, bs, d.cfg.MinBlocks)
	}

	data, err := in.Codec.Reencode(in.Pixels, d.cfg.Quality)
	if err != nil {
		return NotApplicable(ELA, "re-encode failed: %v", err)
	}
	decoded, err := in.Codec.Decode(data)
	if err != nil {
		return NotApplicable(ELA, "re-encoded image did not decode: %v", err)
	}
	re := imaging.Clone(decoded)
	if re.Bounds().Dx() != b.Dx() || re.Bounds().Dy() != b.Dy() {
		return NotApplicable(ELA, "re-encoded image changed size")
	}

	errs := make([]float64, 0, bw*bh)
	for by := 0; by < bh; by++ {
		for bx := 0; bx < bw; bx++ {
			errs = append(errs, blockError(in.Pixels.Pix, in.Pixels.Stride, re.Pix, re.Stride, bx*bs, by*bs, bs))
		}
	}

	mean, std := meanStd(errs)
	if mean == 0 {
		return Applicable(ELA, 0, "re-encode is lossless for this image")
	}
	cv := std / mean
	return Applicable(ELA, ramp(cv, d.cfg.CVBaseline, d.cfg.CVCeiling),
		"block error mean=%.2f cv=%.3f over %d blocks", mean, cv, len(errs))
}

// blockError is the mean absolute RGB difference over one bs×bs block.
func blockError(a []uint8, as int, b []uint8, bstride int, x0, y0, bs int) float64 {
	sum := 0
	for y := y0; y < y0+bs; y++ {
		ra := a[y*as+x0*4:]
		rb := b[y*bstride+x0*4:]
		for i := 0; i < bs*4; i++ {
			if i%4 == 3 {
				continue
			}
			d := int(ra[i]) - int(rb[i])
			if d < 0 {
				d = -d
			}
			sum += d
		}
	}
	return float64(sum) / float64(bs*bs*3)
}

func meanStd(v []float64) (float64, float64) {
	if len(v) == 0 {
		return 0, 0
	}
	mean := 0.0
	for _, x := range v {
		mean += x
	}
	mean /= float64(len(v))
	ss := 0.0
	for _, x := range v {
		ss += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(ss / float64(len(v)))
}
