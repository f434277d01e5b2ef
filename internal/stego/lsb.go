package stego

import (
	"math"

	"github.com/ironsheep/image-integrity-mcp/internal/config"
)

// lsbDetector looks for the signature of LSB replacement: embedding
// random bits equalises each pair of histogram bins (2k, 2k+1) and drives
// the entropy of the least-significant bit plane towards one bit.
type lsbDetector struct {
	cfg config.LSB
}

func (d *lsbDetector) Kind() Kind { return LSB }

func (d *lsbDetector) Score(in *Input) Score {
	if in.Pixels == nil {
		return NotApplicable(LSB, "no decoded pixels")
	}
	b := in.Pixels.Bounds()
	n := b.Dx() * b.Dy()
	if n < d.cfg.MinPixels {
		return NotApplicable(LSB, "%d pixels, need %d", n, d.cfg.MinPixels)
	}

	var hist [3][256]int
	var pairs [3][4]int
	pix, stride := in.Pixels.Pix, in.Pixels.Stride
	for y := 0; y < b.Dy(); y++ {
		row := pix[y*stride : y*stride+b.Dx()*4]
		for x := 0; x < b.Dx(); x++ {
			for c := 0; c < 3; c++ {
				hist[c][row[x*4+c]]++
			}
		}
		// Horizontal bit pairs, non-overlapping.
		for x := 0; x+1 < b.Dx(); x += 2 {
			for c := 0; c < 3; c++ {
				sym := (row[x*4+c]&1)<<1 | row[(x+1)*4+c]&1
				pairs[c][sym]++
			}
		}
	}

	wsum := d.cfg.ChiWeight + d.cfg.EntropyWeight
	if wsum <= 0 {
		return NotApplicable(LSB, "chi and entropy weights are both zero")
	}

	var pSum, hSum, score float64
	for c := 0; c < 3; c++ {
		p := pairEqualisation(hist[c][:])
		h := bitPairEntropy(pairs[c])
		term := ramp(h, d.cfg.EntropyFloor, 1)
		score += (d.cfg.ChiWeight*p + d.cfg.EntropyWeight*term) / wsum
		pSum += p
		hSum += h
	}
	return Applicable(LSB, score/3, "pair-equalisation p=%.3f, LSB entropy=%.3f", pSum/3, hSum/3)
}

// pairEqualisation runs the chi-square pairs-of-values test over a
// 256-bin histogram and returns the upper-tail probability. Values near
// one mean the pairs (2k, 2k+1) are as equal as random LSBs would make
// them.
func pairEqualisation(h []int) float64 {
	chi := 0.0
	df := -1
	for k := 0; k+1 < len(h); k += 2 {
		e := float64(h[k]+h[k+1]) / 2
		if e == 0 {
			continue
		}
		d := float64(h[k]) - e
		chi += d * d / e
		df++
	}
	if df < 1 {
		return 0
	}
	return chiSquareUpper(chi, float64(df))
}

// chiSquareUpper returns P(X ≥ chi) for a chi-square variable with df
// degrees of freedom, using the Wilson–Hilferty cube-root normal
// approximation.
func chiSquareUpper(chi, df float64) float64 {
	if chi <= 0 {
		return 1
	}
	v := 2 / (9 * df)
	z := (math.Cbrt(chi/df) - (1 - v)) / math.Sqrt(v)
	return clamp01(0.5 * math.Erfc(z/math.Sqrt2))
}

// bitPairEntropy returns the Shannon entropy of the pair symbols,
// normalised from [0,2] bits to [0,1].
func bitPairEntropy(counts [4]int) float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return 0
	}
	h := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / float64(total)
		h -= p * math.Log2(p)
	}
	return h / 2
}
