package stego

import (
	"image"
	"math"
	"sort"

	"github.com/anthonynsimon/bild/convolution"
	"github.com/disintegration/imaging"

	"github.com/ironsheep/image-integrity-mcp/internal/config"
)

// noiseBias recentres the signed Laplacian response inside 0..255.
const noiseBias = 128

// laplacian is the 4-neighbour high-pass kernel, scaled so that the
// response of 8-bit input fits around noiseBias without clipping in
// ordinary images.
var laplacian = func() *convolution.Kernel {
	k := convolution.NewKernel(3, 3)
	copy(k.Matrix, []float64{
		0, 0.25, 0,
		0.25, -1, 0.25,
		0, 0.25, 0,
	})
	return k
}()

// noiseDetector compares the high-frequency noise of the colour channels.
// Camera noise is similar across channels; a payload written into one
// channel's low bits lifts that channel's residual above the others.
type noiseDetector struct {
	cfg config.Noise
}

func (d *noiseDetector) Kind() Kind { return Noise }

func (d *noiseDetector) Score(in *Input) Score {
	if in.Pixels == nil {
		return NotApplicable(Noise, "no decoded pixels")
	}
	var img image.Image = in.Pixels
	b := img.Bounds()
	if b.Dx() < 3 || b.Dy() < 3 {
		return NotApplicable(Noise, "image smaller than the 3x3 kernel")
	}
	if m := d.cfg.MaxDimension; m > 0 && (b.Dx() > m || b.Dy() > m) {
		img = imaging.Fit(img, m, m, imaging.Box)
	}

	residual := convolution.Convolve(img, laplacian, &convolution.Options{Bias: noiseBias, KeepAlpha: true})
	sigma := channelSigma(residual)

	div := 0.0
	worst := 0
	for c := 0; c < 3; c++ {
		others := make([]float64, 0, 2)
		for o := 0; o < 3; o++ {
			if o != c {
				others = append(others, sigma[o])
			}
		}
		ref := median(others)
		dc := math.Abs(sigma[c]-ref) / math.Max(ref, 1)
		if dc > div {
			div, worst = dc, c
		}
	}
	return Applicable(Noise, ramp(div, d.cfg.DivergenceFloor, d.cfg.DivergenceCeiling),
		"residual sigma R=%.2f G=%.2f B=%.2f, %s diverges by %.2f",
		sigma[0], sigma[1], sigma[2], [3]string{"R", "G", "B"}[worst], div)
}

// channelSigma returns the standard deviation of each channel's residual
// around noiseBias, skipping the one-pixel border.
func channelSigma(img *image.RGBA) [3]float64 {
	b := img.Bounds()
	var sum, sq [3]float64
	n := 0.0
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := 1; x < b.Dx()-1; x++ {
			for c := 0; c < 3; c++ {
				v := float64(row[x*4+c]) - noiseBias
				sum[c] += v
				sq[c] += v * v
			}
		}
		n += float64(b.Dx() - 2)
	}
	var out [3]float64
	if n == 0 {
		return out
	}
	for c := range out {
		mean := sum[c] / n
		out[c] = math.Sqrt(math.Max(0, sq[c]/n-mean*mean))
	}
	return out
}

func median(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (s[mid-1] + s[mid]) / 2
	}
	return s[mid]
}
