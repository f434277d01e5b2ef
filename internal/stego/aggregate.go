package stego

import (
	"fmt"

	"github.com/ironsheep/image-integrity-mcp/internal/config"
)

// Classification is the aggregated outcome.
type Classification string

const (
	Clean      Classification = "clean"
	Suspicious Classification = "suspicious"
)

// Verdict is the aggregated steganalysis result.
type Verdict struct {
	Confidence     float64        `json:"confidence" cbor:"confidence"`
	Classification Classification `json:"classification" cbor:"classification"`
	Strictness     config.Level   `json:"strictness" cbor:"strictness"`
	Threshold      float64        `json:"threshold" cbor:"threshold"`
	Scores         []Score        `json:"scores" cbor:"scores"`

	// Weights holds the weight applied to each applicable detector after
	// renormalisation. They sum to 1 unless no detector applied.
	Weights map[Kind]float64 `json:"weights" cbor:"weights"`

	Note string `json:"note,omitempty" cbor:"note,omitempty"`
}

// Suspicious reports whether the verdict crossed the threshold.
func (v Verdict) Suspicious() bool { return v.Classification == Suspicious }

func baseWeight(w config.Weights, k Kind) float64 {
	switch k {
	case LSB:
		return w.LSB
	case ELA:
		return w.ELA
	case Histogram:
		return w.Histogram
	case Noise:
		return w.Noise
	case FileSize:
		return w.FileSize
	case Metadata:
		return w.Metadata
	default:
		return 0
	}
}

// Aggregate combines detector scores into a confidence. NotApplicable
// scores are dropped and the weights of the rest are scaled up to sum to
// one, so a missing detector never drags the confidence down.
func Aggregate(scores []Score, strictness config.Level, cfg config.Steganalysis) Verdict {
	v := Verdict{
		Classification: Clean,
		Strictness:     strictness,
		Threshold:      cfg.Thresholds.At(strictness),
		Scores:         scores,
		Weights:        make(map[Kind]float64),
	}

	total := 0.0
	for _, s := range scores {
		if s.Applicable {
			total += baseWeight(cfg.Weights, s.Kind)
		}
	}
	if total <= 0 {
		v.Note = "no applicable detectors"
		return v
	}

	for _, s := range scores {
		if !s.Applicable {
			continue
		}
		w := baseWeight(cfg.Weights, s.Kind) / total
		if w == 0 {
			continue
		}
		v.Weights[s.Kind] = w
		v.Confidence += w * s.Value
	}
	v.Confidence = clamp01(v.Confidence)

	if v.Confidence >= v.Threshold {
		v.Classification = Suspicious
	}
	v.Note = fmt.Sprintf("%d of %d detectors applied", len(v.Weights), len(scores))
	return v
}
