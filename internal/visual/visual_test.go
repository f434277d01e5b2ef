package visual

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/ironsheep/image-integrity-mcp/internal/config"
)

// colourful fills an image with saturated, non-gray colours so that only
// deliberately painted regions count as suspect.
func colourful(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{200, uint8(x * 2), uint8(y * 2), 255})
		}
	}
	return img
}

func fill(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		c    color.Color
		want Class
	}{
		{color.NRGBA{128, 128, 128, 255}, MidGray},
		{color.NRGBA{60, 60, 62, 255}, MidGray},
		{color.NRGBA{0, 0, 0, 255}, Black},
		{color.NRGBA{10, 8, 12, 255}, Black},
		{color.NRGBA{255, 255, 255, 255}, Other},
		{color.NRGBA{250, 250, 248, 255}, Other},
		{color.NRGBA{220, 30, 30, 255}, Other},
		{color.NRGBA{0, 0, 0, 0}, Other},
	}
	for _, tt := range tests {
		if got := Classify(tt.c); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.c, got, tt.want)
		}
	}
}

func TestStride(t *testing.T) {
	tests := []struct {
		w, h, max, want int
	}{
		{100, 100, 22500, 1},
		{150, 150, 22500, 1},
		{3000, 3000, 22500, 20},
		{1000, 10, 100, 10},
	}
	for _, tt := range tests {
		if got := Stride(tt.w, tt.h, tt.max); got != tt.want {
			t.Errorf("Stride(%d, %d, %d) = %d, want %d", tt.w, tt.h, tt.max, got, tt.want)
		}
	}
}

func TestGrayQuarterByStrictness(t *testing.T) {
	img := colourful(100, 100)
	fill(img, image.Rect(0, 0, 50, 50), color.NRGBA{128, 128, 128, 255})
	cfg := config.Default().Visual

	tests := []struct {
		level config.Level
		want  bool
	}{
		{config.Low, false},
		{config.Medium, true},
		{config.High, true},
	}
	for _, tt := range tests {
		v := Detect(img, tt.level, cfg)
		if v.Corrupt != tt.want {
			t.Errorf("%v: corrupt = %v, want %v (%s)", tt.level, v.Corrupt, tt.want, v.Reason)
		}
		if v.Ratio != 0.25 {
			t.Errorf("%v: ratio = %v, want 0.25", tt.level, v.Ratio)
		}
		if v.Class != MidGray {
			t.Errorf("%v: class = %s, want mid-gray", tt.level, v.Class)
		}
		if v.Samples != 10000 {
			t.Errorf("%v: samples = %d, want 10000", tt.level, v.Samples)
		}
	}
}

func TestBlackBlock(t *testing.T) {
	img := colourful(80, 60)
	fill(img, image.Rect(0, 30, 80, 60), color.NRGBA{0, 0, 0, 255})

	v := Detect(img, config.Low, config.Default().Visual)
	if !v.Corrupt || v.Class != Black {
		t.Errorf("verdict = %+v, want corrupt black", v)
	}
}

func TestWhiteBackgroundIsClean(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	fill(img, img.Bounds(), color.NRGBA{255, 255, 255, 255})
	fill(img, image.Rect(10, 10, 20, 20), color.NRGBA{200, 20, 20, 255})

	for _, l := range config.Levels {
		v := Detect(img, l, config.Default().Visual)
		if v.Corrupt {
			t.Errorf("%v: white background flagged: %s", l, v.Reason)
		}
		if v.Class != Other || v.Ratio != 0 {
			t.Errorf("%v: class %s ratio %v", l, v.Class, v.Ratio)
		}
	}
}

func TestCollapseOnlyAtHigh(t *testing.T) {
	// 4×4 flat tiles cycling through twelve gray levels: no single bucket
	// is large, but the whole frame is flat gray.
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for ty := 0; ty < 16; ty++ {
		for tx := 0; tx < 16; tx++ {
			g := uint8(40 + 16*((tx+ty*16)%12))
			fill(img, image.Rect(tx*4, ty*4, tx*4+4, ty*4+4), color.NRGBA{g, g, g, 255})
		}
	}
	cfg := config.Default().Visual

	if v := Detect(img, config.Medium, cfg); v.Corrupt {
		t.Errorf("Medium flagged tiled gray: %s", v.Reason)
	}
	v := Detect(img, config.High, cfg)
	if !v.Corrupt || !v.Collapsed {
		t.Errorf("High verdict = %+v, want collapsed", v)
	}
}

func TestFragmentationOnlyAtHigh(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	img := image.NewNRGBA(image.Rect(0, 0, 20, 20))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	cfg := config.Default().Visual

	if v := Detect(img, config.Medium, cfg); v.Corrupt {
		t.Errorf("Medium flagged noise: %s", v.Reason)
	}
	v := Detect(img, config.High, cfg)
	if !v.Corrupt || !v.Fragmented {
		t.Errorf("High verdict = %+v, want fragmented", v)
	}
}

func TestSamplingBoundsLargeImages(t *testing.T) {
	img := colourful(600, 500)
	cfg := config.Default().Visual
	cfg.MaxSamples = 1000

	v := Detect(img, config.Medium, cfg)
	if v.Samples > 1000 || v.Samples == 0 {
		t.Errorf("samples = %d, want in (0, 1000]", v.Samples)
	}
}

func TestEmptyImage(t *testing.T) {
	v := Detect(image.NewNRGBA(image.Rect(0, 0, 0, 0)), config.High, config.Default().Visual)
	if v.Corrupt || v.Samples != 0 {
		t.Errorf("empty image verdict = %+v", v)
	}
}
