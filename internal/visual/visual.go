// Package visual detects decoder-visible corruption: images that decode
// without error but show large flat gray or black regions where a damaged
// stream was filled in, or pure noise.
//
// The detector samples a bounded grid of pixels, buckets the samples by
// quantized colour, and reports the share of the largest bucket whose
// colour looks like decoder fill (mid gray or black). White and saturated
// colours are legitimate backgrounds and never count.
package visual

import (
	"fmt"
	"image"
	"image/color"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/image-integrity-mcp/internal/config"
)

// Class is the colour class of a sample bucket.
type Class string

const (
	MidGray Class = "mid-gray"
	Black   Class = "black"
	Other   Class = "other"
)

// Suspect reports whether buckets of this class count towards corruption.
func (c Class) Suspect() bool {
	return c == MidGray || c == Black
}

// Lightness and chroma bounds for the suspect classes, in CIE Lab / HCL
// units where lightness runs from 0 to 1.
const (
	blackMaxL     = 0.12
	whiteMinL     = 0.88
	grayMaxChroma = 0.05
)

// Verdict is the outcome of visual corruption detection.
type Verdict struct {
	Corrupt    bool         `json:"corrupt" cbor:"corrupt"`
	Ratio      float64      `json:"ratio" cbor:"ratio"`
	Class      Class        `json:"class" cbor:"class"`
	Strictness config.Level `json:"strictness" cbor:"strictness"`
	Threshold  float64      `json:"threshold" cbor:"threshold"`
	Samples    int          `json:"samples" cbor:"samples"`
	Buckets    int          `json:"buckets" cbor:"buckets"`

	// Collapsed and Fragmented report the High-strictness checks.
	Collapsed  bool `json:"collapsed,omitempty" cbor:"collapsed,omitempty"`
	Fragmented bool `json:"fragmented,omitempty" cbor:"fragmented,omitempty"`

	Reason string `json:"reason" cbor:"reason"`
}

// Classify returns the colour class of c.
func Classify(c color.Color) Class {
	cf, ok := colorful.MakeColor(c)
	if !ok {
		// Fully transparent pixels carry no colour.
		return Other
	}
	return classify(cf)
}

func classify(c colorful.Color) Class {
	_, chroma, l := c.Hcl()
	switch {
	case l <= blackMaxL:
		return Black
	case chroma < grayMaxChroma && l < whiteMinL:
		return MidGray
	default:
		return Other
	}
}

func toColorful(c color.NRGBA) colorful.Color {
	return colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
}

// Stride returns the sampling step that keeps a w×h image within
// maxSamples samples.
func Stride(w, h, maxSamples int) int {
	if maxSamples < 1 || w*h <= maxSamples {
		return 1
	}
	return int(math.Ceil(math.Sqrt(float64(w) * float64(h) / float64(maxSamples))))
}

type bucketKey [3]uint8

// grid is the sampled pixel lattice, row-major.
type grid struct {
	w, h int
	px   []color.NRGBA
}

func sample(img image.Image, stride int) grid {
	b := img.Bounds()
	g := grid{
		w: (b.Dx() + stride - 1) / stride,
		h: (b.Dy() + stride - 1) / stride,
	}
	g.px = make([]color.NRGBA, 0, g.w*g.h)
	for y := b.Min.Y; y < b.Max.Y; y += stride {
		for x := b.Min.X; x < b.Max.X; x += stride {
			g.px = append(g.px, color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA))
		}
	}
	return g
}

// Detect runs the visual check on img at the given strictness.
func Detect(img image.Image, strictness config.Level, cfg config.Visual) Verdict {
	v := Verdict{
		Class:      Other,
		Strictness: strictness,
		Threshold:  cfg.Thresholds.At(strictness),
	}
	b := img.Bounds()
	if b.Empty() {
		v.Reason = "empty image"
		return v
	}

	g := sample(img, Stride(b.Dx(), b.Dy(), cfg.MaxSamples))
	v.Samples = len(g.px)

	tol := int(cfg.Tolerance.At(strictness))
	if tol < 1 {
		tol = 1
	}
	counts := make(map[bucketKey]int)
	for _, p := range g.px {
		counts[bucketKey{uint8(int(p.R) / tol), uint8(int(p.G) / tol), uint8(int(p.B) / tol)}]++
	}
	v.Buckets = len(counts)

	// Largest suspect bucket. Ties go to the lexically smaller key so the
	// verdict does not depend on map order.
	var best bucketKey
	bestCount := 0
	for k, n := range counts {
		cls := classify(bucketColor(k, tol))
		if !cls.Suspect() {
			continue
		}
		if n > bestCount || n == bestCount && less(k, best) {
			best, bestCount, v.Class = k, n, cls
		}
	}
	v.Ratio = float64(bestCount) / float64(v.Samples)

	if bestCount > 0 && v.Ratio >= v.Threshold {
		v.Corrupt = true
		c := bucketColor(best, tol)
		r, gg, bb := c.RGB255()
		v.Reason = fmt.Sprintf("%.1f%% of sampled pixels are uniform %s (%d,%d,%d)", v.Ratio*100, v.Class, r, gg, bb)
		return v
	}

	if strictness == config.High {
		if frac, ok := collapse(g, cfg); ok {
			v.Corrupt, v.Collapsed = true, true
			v.Reason = fmt.Sprintf("%.1f%% of image tiles have collapsed to flat gray or black", frac*100)
			return v
		}
		if v.Samples > 200 && float64(v.Buckets) > float64(v.Samples)*cfg.FragmentationRatio {
			v.Corrupt, v.Fragmented = true, true
			v.Reason = fmt.Sprintf("excessive colour fragmentation (%d buckets in %d samples)", v.Buckets, v.Samples)
			return v
		}
	}

	if bestCount > 0 {
		v.Reason = fmt.Sprintf("largest uniform %s area is %.1f%%, below %.0f%%", v.Class, v.Ratio*100, v.Threshold*100)
	} else {
		v.Reason = "no uniform gray or black areas"
	}
	return v
}

// bucketColor returns the centre colour of a bucket.
func bucketColor(k bucketKey, tol int) colorful.Color {
	ch := func(q uint8) uint8 {
		c := int(q)*tol + tol/2
		if c > 255 {
			c = 255
		}
		return uint8(c)
	}
	return toColorful(color.NRGBA{ch(k[0]), ch(k[1]), ch(k[2]), 255})
}

func less(a, b bucketKey) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// collapse looks for many flat tiles of suspect colour across the sample
// grid. White tiles are skipped entirely.
func collapse(g grid, cfg config.Visual) (float64, bool) {
	ts := cfg.TileSize
	considered, flat := 0, 0
	for ty := 0; ty+ts <= g.h; ty += ts {
		for tx := 0; tx+ts <= g.w; tx += ts {
			var sum, sq [3]float64
			for y := ty; y < ty+ts; y++ {
				for x := tx; x < tx+ts; x++ {
					p := g.px[y*g.w+x]
					for i, c := range [3]uint8{p.R, p.G, p.B} {
						sum[i] += float64(c)
						sq[i] += float64(c) * float64(c)
					}
				}
			}
			n := float64(ts * ts)
			var mean [3]float64
			maxVar := 0.0
			for i := range sum {
				mean[i] = sum[i] / n
				maxVar = math.Max(maxVar, sq[i]/n-mean[i]*mean[i])
			}
			tile := colorful.Color{R: mean[0] / 255, G: mean[1] / 255, B: mean[2] / 255}
			if _, _, l := tile.Hcl(); l >= whiteMinL {
				continue
			}
			considered++
			if maxVar < cfg.CollapseVariance && classify(tile).Suspect() {
				flat++
			}
		}
	}
	if considered == 0 {
		return 0, false
	}
	frac := float64(flat) / float64(considered)
	return frac, frac >= cfg.CollapseRatio
}
