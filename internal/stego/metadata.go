package stego

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/ironsheep/image-integrity-mcp/internal/config"
)

// metadataDetector looks for steganography tool names in embedded text
// fields and for metadata that is unusually large.
type metadataDetector struct {
	cfg config.Metadata
}

func (d *metadataDetector) Kind() Kind { return Metadata }

func (d *metadataDetector) Score(in *Input) Score {
	if in.MetadataErr != nil {
		return NotApplicable(Metadata, "metadata extraction failed: %v", in.MetadataErr)
	}
	if len(in.Metadata) == 0 {
		return NotApplicable(Metadata, "no metadata fields")
	}

	// Sorted keys keep the reported match stable.
	keys := make([]string, 0, len(in.Metadata))
	for k := range in.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	size := 0
	for _, k := range keys {
		v := in.Metadata[k]
		size += len(k) + len(v)
		if tok, ok := matchSignature(k+" "+v, d.cfg.Signatures); ok {
			return Applicable(Metadata, 1, "field %s names %q", k, tok)
		}
	}

	fieldTerm := ramp(float64(len(keys)), 0, float64(d.cfg.FieldCeiling))
	sizeTerm := ramp(float64(size), 0, float64(d.cfg.BytesCeiling))
	return Applicable(Metadata, math.Max(fieldTerm, sizeTerm), "%d fields, %d bytes", len(keys), size)
}

// matchSignature reports the first signature that occurs, case-folded,
// anywhere in text. A signature also matches when both sides agree once
// spaces and punctuation are removed, so "invisiblesecrets" finds
// "Invisible Secrets 4".
func matchSignature(text string, sigs []string) (string, bool) {
	lower := strings.ToLower(text)
	compact := alnum(lower)
	for _, sig := range sigs {
		s := strings.ToLower(strings.TrimSpace(sig))
		if s == "" {
			continue
		}
		if strings.Contains(lower, s) {
			return s, true
		}
		if c := alnum(s); c != "" && strings.Contains(compact, c) {
			return s, true
		}
	}
	return "", false
}

func alnum(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
