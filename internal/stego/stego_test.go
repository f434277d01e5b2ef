package stego

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"math/rand"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/image-integrity-mcp/internal/codec"
	"github.com/ironsheep/image-integrity-mcp/internal/config"
	"github.com/ironsheep/image-integrity-mcp/internal/format"
)

// smoothCover returns a gradient image whose channel values are all
// multiples of four, so its LSB plane is empty.
func smoothCover(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	q := func(v int) uint8 { return uint8(v) &^ 3 }
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			base := (x*2+y)%200 + 20
			img.SetNRGBA(x, y, color.NRGBA{q(base), q(base + 16), q(255 - base), 255})
		}
	}
	return img
}

// embedLSB overwrites the least-significant bit of every colour sample with
// a seeded pseudo-random payload.
func embedLSB(src *image.NRGBA, seed int64) *image.NRGBA {
	out := imaging.Clone(src)
	rng := rand.New(rand.NewSource(seed))
	for i := range out.Pix {
		if i%4 == 3 {
			continue
		}
		out.Pix[i] = out.Pix[i]&^1 | uint8(rng.Intn(2))
	}
	return out
}

func scoreOf(t *testing.T, scores []Score, k Kind) Score {
	t.Helper()
	for _, s := range scores {
		if s.Kind == k {
			return s
		}
	}
	t.Fatalf("no %s score", k)
	return Score{}
}

func TestBankOrderAndRange(t *testing.T) {
	cfg := config.Default().Steganalysis
	in := &Input{
		Format:   format.PNG,
		Data:     make([]byte, 5000),
		Pixels:   smoothCover(64, 48),
		Metadata: map[string]string{"png:tEXt:Software": "GIMP"},
	}

	scores := NewBank(cfg).Run(in)
	if len(scores) != len(Kinds) {
		t.Fatalf("got %d scores, want %d", len(scores), len(Kinds))
	}
	for i, s := range scores {
		if s.Kind != Kinds[i] {
			t.Errorf("score %d kind = %s, want %s", i, s.Kind, Kinds[i])
		}
		if s.Value < 0 || s.Value > 1 {
			t.Errorf("%s value %v outside [0,1]", s.Kind, s.Value)
		}
		if !s.Applicable && s.Value != 0 {
			t.Errorf("%s not applicable but carries %v", s.Kind, s.Value)
		}
	}
}

func TestWeightsRenormaliseWithoutELA(t *testing.T) {
	cfg := config.Default().Steganalysis
	in := &Input{
		Format:   format.PNG,
		Data:     make([]byte, 5000),
		Pixels:   smoothCover(64, 48),
		Parse:    &format.Result{Format: format.PNG, Width: 64, Height: 48},
		Metadata: map[string]string{"png:tEXt:Comment": "holiday"},
	}

	v := Analyze(in, config.Medium, cfg)
	if _, ok := v.Weights[ELA]; ok {
		t.Fatal("ELA weighted for a PNG")
	}
	if len(v.Weights) != 5 {
		t.Fatalf("weights = %v, want five detectors", v.Weights)
	}
	sum := 0.0
	for _, w := range v.Weights {
		sum += w
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("applied weights sum to %.12f", sum)
	}
	want := cfg.Weights.LSB / (1 - cfg.Weights.ELA)
	if math.Abs(v.Weights[LSB]-want) > 1e-12 {
		t.Errorf("LSB weight = %v, want proportional %v", v.Weights[LSB], want)
	}
}

func TestAggregateNoApplicableDetectors(t *testing.T) {
	scores := []Score{NotApplicable(LSB, "x"), NotApplicable(ELA, "y")}
	v := Aggregate(scores, config.High, config.Default().Steganalysis)
	if v.Confidence != 0 || v.Suspicious() || v.Note == "" || len(v.Weights) != 0 {
		t.Errorf("verdict = %+v", v)
	}
}

func TestAggregateThresholdByStrictness(t *testing.T) {
	cfg := config.Default().Steganalysis
	scores := []Score{
		Applicable(LSB, 0.5, ""),
		Applicable(Histogram, 0.5, ""),
		NotApplicable(ELA, "png"),
	}

	tests := []struct {
		level config.Level
		want  Classification
	}{
		{config.Low, Clean},
		{config.Medium, Suspicious},
		{config.High, Suspicious},
	}
	for _, tt := range tests {
		v := Aggregate(scores, tt.level, cfg)
		if math.Abs(v.Confidence-0.5) > 1e-12 {
			t.Errorf("confidence = %v, want 0.5", v.Confidence)
		}
		if v.Classification != tt.want {
			t.Errorf("%v: %s, want %s", tt.level, v.Classification, tt.want)
		}
	}
}

func TestLSBScoreRisesWithPayload(t *testing.T) {
	cfg := config.Default().Steganalysis
	d := &lsbDetector{cfg: cfg.LSB}

	cover := smoothCover(96, 96)
	stego := embedLSB(cover, 42)

	before := d.Score(&Input{Format: format.PNG, Pixels: cover})
	after := d.Score(&Input{Format: format.PNG, Pixels: stego})
	if !before.Applicable || !after.Applicable {
		t.Fatalf("LSB not applicable: %+v %+v", before, after)
	}
	if after.Value <= before.Value {
		t.Fatalf("LSB score did not rise: %v -> %v", before.Value, after.Value)
	}

	others := []Score{
		NotApplicable(ELA, "png"),
		Applicable(Histogram, 0.3, ""),
		Applicable(Noise, 0.1, ""),
		Applicable(FileSize, 0.0, ""),
		NotApplicable(Metadata, "none"),
	}
	cBefore := Aggregate(append([]Score{before}, others...), config.Medium, cfg).Confidence
	cAfter := Aggregate(append([]Score{after}, others...), config.Medium, cfg).Confidence
	if cAfter <= cBefore {
		t.Errorf("aggregate confidence did not rise: %v -> %v", cBefore, cAfter)
	}
}

func TestLSBNotApplicable(t *testing.T) {
	d := &lsbDetector{cfg: config.Default().Steganalysis.LSB}
	if s := d.Score(&Input{Pixels: smoothCover(7, 7)}); s.Applicable {
		t.Error("49 pixels should be below the minimum")
	}
	if s := d.Score(&Input{}); s.Applicable {
		t.Error("missing pixels should not be applicable")
	}
}

func TestChiSquareUpper(t *testing.T) {
	if p := chiSquareUpper(0, 10); p != 1 {
		t.Errorf("p(0) = %v, want 1", p)
	}
	if p := chiSquareUpper(100, 100); math.Abs(p-0.48) > 0.03 {
		t.Errorf("p(df) = %v, want about one half", p)
	}
	if p := chiSquareUpper(1000, 10); p > 1e-6 {
		t.Errorf("p(1000; 10) = %v, want ~0", p)
	}
}

func jpegInput(t *testing.T, w, h int) *Input {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, smoothCover(w, h), &jpeg.Options{Quality: 92}); err != nil {
		t.Fatalf("failed to encode jpeg: %v", err)
	}
	c := codec.New()
	img, err := c.Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("failed to decode jpeg: %v", err)
	}
	return &Input{Format: format.JPEG, Data: buf.Bytes(), Pixels: imaging.Clone(img), Codec: c}
}

func TestELA(t *testing.T) {
	d := &elaDetector{cfg: config.Default().Steganalysis.ELA}

	s := d.Score(jpegInput(t, 64, 64))
	if !s.Applicable {
		t.Fatalf("ELA not applicable on a JPEG: %s", s.Detail)
	}

	tests := []struct {
		name string
		in   *Input
	}{
		{"png", &Input{Format: format.PNG, Pixels: smoothCover(64, 64), Codec: codec.New()}},
		{"tiny jpeg", jpegInput(t, 12, 12)},
		{"no codec", &Input{Format: format.JPEG, Pixels: smoothCover(64, 64)}},
	}
	for _, tt := range tests {
		if s := d.Score(tt.in); s.Applicable {
			t.Errorf("%s: ELA applied", tt.name)
		}
	}
}

func TestNoiseDivergence(t *testing.T) {
	d := &noiseDetector{cfg: config.Default().Steganalysis.Noise}

	gray := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			v := uint8(x + y*2)
			gray.SetNRGBA(x, y, color.NRGBA{v, v, v, 255})
		}
	}
	flat := d.Score(&Input{Pixels: gray})
	if !flat.Applicable || flat.Value != 0 {
		t.Fatalf("gray image noise score = %+v, want 0", flat)
	}

	noisy := imaging.Clone(gray)
	rng := rand.New(rand.NewSource(3))
	for i := 2; i < len(noisy.Pix); i += 4 {
		noisy.Pix[i] = uint8(int(noisy.Pix[i])/2 + rng.Intn(60))
	}
	s := d.Score(&Input{Pixels: noisy})
	if s.Value <= flat.Value {
		t.Errorf("blue-channel noise did not raise the score: %+v", s)
	}
}

func TestNoiseFitsLargeImages(t *testing.T) {
	cfg := config.Default().Steganalysis.Noise
	cfg.MaxDimension = 32
	d := &noiseDetector{cfg: cfg}
	if s := d.Score(&Input{Pixels: smoothCover(200, 100)}); !s.Applicable {
		t.Errorf("noise not applicable after fitting: %s", s.Detail)
	}
}

func TestFileSize(t *testing.T) {
	d := &fileSizeDetector{cfg: config.Default().Steganalysis.FileSize}
	parse := &format.Result{Format: format.JPEG, Width: 100, Height: 100}

	// 100x100 at 4 bits per pixel is 5000 bytes expected.
	normal := d.Score(&Input{Format: format.JPEG, Data: make([]byte, 6000), Parse: parse})
	bloated := d.Score(&Input{Format: format.JPEG, Data: make([]byte, 27000), Parse: parse})
	if normal.Value != 0 {
		t.Errorf("normal size scored %v", normal.Value)
	}
	if bloated.Value <= 0.5 {
		t.Errorf("5.4x size scored %v", bloated.Value)
	}

	trailing := &format.Result{Format: format.JPEG, Width: 100, Height: 100, TrailingBytes: 2048}
	s := d.Score(&Input{Format: format.JPEG, Data: make([]byte, 6000), Parse: trailing})
	if math.Abs(s.Value-0.5) > 1e-9 {
		t.Errorf("2048 trailing bytes scored %v, want 0.5", s.Value)
	}

	if s := d.Score(&Input{Format: format.JPEG, Data: make([]byte, 10)}); s.Applicable {
		t.Error("unknown dimensions should not be applicable")
	}
}

func TestMetadata(t *testing.T) {
	d := &metadataDetector{cfg: config.Default().Steganalysis.Metadata}

	tests := []struct {
		name       string
		fields     map[string]string
		err        error
		applicable bool
		want       float64
	}{
		{"tool name", map[string]string{"exif:Software": "Made with OpenStego 0.8"}, nil, true, 1},
		{"tool in key", map[string]string{"png:tEXt:steghide": "x"}, nil, true, 1},
		{"unrelated word", map[string]string{"jpeg:COM": "a stegosaurus"}, nil, true, 1.0 / 30},
		{"joined to version", map[string]string{"jpeg:COM": "OutGuess0.2"}, nil, true, 1},
		{"inside a word", map[string]string{"exif:Software": "JPHide&Seek"}, nil, true, 1},
		{"split across words", map[string]string{"exif:Software": "Created with Invisible Secrets 4"}, nil, true, 1},
		{"no fields", map[string]string{}, nil, false, 0},
		{"extraction failed", nil, errors.New("bad"), false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := d.Score(&Input{Metadata: tt.fields, MetadataErr: tt.err})
			if s.Applicable != tt.applicable {
				t.Fatalf("applicable = %v, want %v (%s)", s.Applicable, tt.applicable, s.Detail)
			}
			if math.Abs(s.Value-tt.want) > 1e-9 {
				t.Errorf("value = %v, want %v", s.Value, tt.want)
			}
		})
	}
}

func TestMatchSignature(t *testing.T) {
	tests := []struct {
		name string
		text string
		sigs []string
		want string
		ok   bool
	}{
		{"substring", "outguess0.2", []string{"outguess"}, "outguess", true},
		{"case folded", "Made by STEGHIDE", []string{"SteGHide"}, "steghide", true},
		{"signature with space", "invisiblesecrets v2", []string{"Invisible Secrets"}, "invisible secrets", true},
		{"first listed wins", "steghide and outguess", []string{"outguess", "steghide"}, "outguess", true},
		{"blank signature ignored", "anything", []string{"", "  ", "--"}, "", false},
		{"no match", "GIMP 2.10", config.DefaultSignatures, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := matchSignature(tt.text, tt.sigs)
			if ok != tt.ok || got != tt.want {
				t.Errorf("matchSignature(%q) = %q, %v; want %q, %v", tt.text, got, ok, tt.want, tt.ok)
			}
		})
	}
}

type panicky struct{}

func (panicky) Kind() Kind            { return Noise }
func (panicky) Score(in *Input) Score { panic("boom") }

func TestBankRecoversDetectorPanic(t *testing.T) {
	scores := Bank{panicky{}}.Run(&Input{})
	if len(scores) != 1 || scores[0].Applicable || scores[0].Kind != Noise {
		t.Errorf("scores = %+v", scores)
	}
}
