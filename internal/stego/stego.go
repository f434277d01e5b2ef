// Package stego scores images for signs of hidden payloads.
//
// A fixed bank of six detectors each looks at one statistical or
// structural trait of the file and returns a Score in [0,1], or
// NotApplicable when the trait cannot be measured for this input (ELA on a
// PNG, metadata on a file with none). Detectors never fail: a detector
// that cannot run reports NotApplicable with the reason, and the
// aggregator renormalises the remaining weights.
//
// Scores are calibrated suspicion, not proof. The thresholds and weights
// behind them come from config.Steganalysis and are meant to be retuned.
package stego

import (
	"fmt"
	"image"

	"github.com/ironsheep/image-integrity-mcp/internal/codec"
	"github.com/ironsheep/image-integrity-mcp/internal/config"
	"github.com/ironsheep/image-integrity-mcp/internal/format"
)

// Kind names a detector.
type Kind string

const (
	LSB       Kind = "lsb"
	ELA       Kind = "ela"
	Histogram Kind = "histogram"
	Noise     Kind = "noise"
	FileSize  Kind = "file_size"
	Metadata  Kind = "metadata"
)

// Kinds lists every detector kind in bank order.
var Kinds = []Kind{LSB, ELA, Histogram, Noise, FileSize, Metadata}

// Score is one detector's outcome.
type Score struct {
	Kind       Kind    `json:"kind" cbor:"kind"`
	Applicable bool    `json:"applicable" cbor:"applicable"`
	Value      float64 `json:"value" cbor:"value"`
	// Detail explains the value, or why the detector did not apply.
	Detail string `json:"detail,omitempty" cbor:"detail,omitempty"`
}

// Applicable returns a score for kind, clamped to [0,1].
func Applicable(kind Kind, value float64, detail string, args ...interface{}) Score {
	return Score{Kind: kind, Applicable: true, Value: clamp01(value), Detail: fmt.Sprintf(detail, args...)}
}

// NotApplicable returns a score that the aggregator will drop.
func NotApplicable(kind Kind, reason string, args ...interface{}) Score {
	return Score{Kind: kind, Detail: fmt.Sprintf(reason, args...)}
}

// Input is the artifact view shared by every detector.
type Input struct {
	Format format.Format
	Data   []byte

	// Pixels is nil when the image could not be decoded. Its bounds start
	// at the origin.
	Pixels *image.NRGBA

	Parse       *format.Result
	Metadata    map[string]string
	MetadataErr error

	// Codec is used by detectors that need to re-encode pixels.
	Codec codec.Codec
}

func (in *Input) dimensions() (int, int) {
	if in.Pixels != nil {
		b := in.Pixels.Bounds()
		return b.Dx(), b.Dy()
	}
	if in.Parse != nil {
		return in.Parse.Width, in.Parse.Height
	}
	return 0, 0
}

// Detector is implemented by each member of the bank.
type Detector interface {
	Kind() Kind
	Score(in *Input) Score
}

// Bank is an ordered set of detectors.
type Bank []Detector

// NewBank returns the six detectors configured from cfg.
func NewBank(cfg config.Steganalysis) Bank {
	return Bank{
		&lsbDetector{cfg: cfg.LSB},
		&elaDetector{cfg: cfg.ELA},
		&histogramDetector{cfg: cfg.Histogram, minPixels: cfg.LSB.MinPixels},
		&noiseDetector{cfg: cfg.Noise},
		&fileSizeDetector{cfg: cfg.FileSize},
		&metadataDetector{cfg: cfg.Metadata},
	}
}

// Run scores in with every detector, in bank order.
func (b Bank) Run(in *Input) []Score {
	scores := make([]Score, 0, len(b))
	for _, d := range b {
		scores = append(scores, safeScore(d, in))
	}
	return scores
}

// safeScore turns a detector panic into NotApplicable so that one bad
// input cannot take down the bank.
func safeScore(d Detector, in *Input) (s Score) {
	defer func() {
		if r := recover(); r != nil {
			s = NotApplicable(d.Kind(), "detector failed: %v", r)
		}
	}()
	s = d.Score(in)
	s.Kind = d.Kind()
	return s
}

// Analyze runs the bank and aggregates the scores.
func Analyze(in *Input, strictness config.Level, cfg config.Steganalysis) Verdict {
	return Aggregate(NewBank(cfg).Run(in), strictness, cfg)
}

func clamp01(v float64) float64 {
	switch {
	case v != v, v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// ramp maps v linearly from [lo,hi] onto [0,1].
func ramp(v, lo, hi float64) float64 {
	if hi <= lo {
		if v >= hi {
			return 1
		}
		return 0
	}
	return clamp01((v - lo) / (hi - lo))
}
