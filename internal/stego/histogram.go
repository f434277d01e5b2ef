package stego

import (
	"math"

	"github.com/anthonynsimon/bild/histogram"

	"github.com/ironsheep/image-integrity-mcp/internal/config"
)

// histogramDetector scores the shape of each colour channel's histogram.
// Natural photographs have smooth histograms with no preference for even
// or odd values. Payload embedding leaves combs (alternating full and
// empty bins), a skew between even and odd totals, or pairs of bins
// flattened to the same height.
type histogramDetector struct {
	cfg       config.Histogram
	minPixels int
}

func (d *histogramDetector) Kind() Kind { return Histogram }

func (d *histogramDetector) Score(in *Input) Score {
	if in.Pixels == nil {
		return NotApplicable(Histogram, "no decoded pixels")
	}
	b := in.Pixels.Bounds()
	n := b.Dx() * b.Dy()
	if n < d.minPixels || n == 0 {
		return NotApplicable(Histogram, "%d pixels is too few for a histogram", n)
	}

	h := histogram.NewRGBAHistogram(in.Pixels)
	channels := [3][]int{h.R.Bins, h.G.Bins, h.B.Bins}

	var eo, comb, eq, score float64
	for _, bins := range channels {
		e, c, q := histogramShape(bins, n, d.cfg.SmoothnessCeiling)
		te := ramp(e, 0, d.cfg.EvenOddCeiling)
		tc := ramp(c, 0, d.cfg.CombCeiling)
		tq := 0.0
		if q >= 0 {
			tq = q
		}
		score += math.Max(te, math.Max(tc, tq))
		eo += e
		comb += c
		if q > eq {
			eq = q
		}
	}
	return Applicable(Histogram, score/3, "even/odd skew=%.3f comb=%.4f pair flattening=%.3f", eo/3, comb/3, eq)
}

// histogramShape measures one channel histogram of n samples.
//
// skew is |even - odd| / n. comb is the summed absolute second difference
// over 4n, which reaches one for a perfect comb. flat compares differences
// inside pairs (2k, 2k+1) with differences across pairs (2k+1, 2k+2): zero
// when they match, as in
// natural images, approaching one when pairs have been equalised. flat is
// -1 when the across-pair variation is below minAcross·n and the
// comparison would mean nothing.
func histogramShape(bins []int, n int, minAcross float64) (skew, comb, flat float64) {
	if len(bins) < 4 || n == 0 {
		return 0, 0, -1
	}
	total := float64(n)

	even, odd := 0, 0
	for i, c := range bins {
		if i%2 == 0 {
			even += c
		} else {
			odd += c
		}
	}
	skew = math.Abs(float64(even-odd)) / total

	d2 := 0
	for i := 1; i+1 < len(bins); i++ {
		v := bins[i-1] - 2*bins[i] + bins[i+1]
		if v < 0 {
			v = -v
		}
		d2 += v
	}
	comb = float64(d2) / (4 * total)

	within, across := 0, 0
	for k := 0; k+2 < len(bins); k += 2 {
		within += absInt(bins[k] - bins[k+1])
		across += absInt(bins[k+1] - bins[k+2])
	}
	if float64(across) < minAcross*total {
		return skew, comb, -1
	}
	flat = clamp01(1 - float64(within)/float64(across))
	return skew, comb, flat
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
