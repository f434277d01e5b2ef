package engine

import (
	"errors"
	"io"
	"strings"

	"github.com/ironsheep/image-integrity-mcp/internal/format"
)

// Diagnosis names the primary problem with a file.
type Diagnosis string

const (
	DiagnosisEmpty         Diagnosis = "empty_file"
	DiagnosisInvalidHeader Diagnosis = "invalid_header"
	DiagnosisTruncated     Diagnosis = "truncated"
	DiagnosisCorruptData   Diagnosis = "corrupt_data"
	DiagnosisDecoder       Diagnosis = "decoder_issue"
	DiagnosisUnknown       Diagnosis = "unknown"

	// DiagnosisVisual marks a structurally valid file whose pixels look
	// damaged.
	DiagnosisVisual Diagnosis = "visual_corruption"
)

// Diagnose picks the most likely cause of damage from the raw bytes, the
// parsed structure and the decoder error. The checks run from the
// coarsest (no bytes at all) to the finest, and the first hit wins.
func Diagnose(data []byte, parse *format.Result, decodeErr error) Diagnosis {
	if len(data) == 0 {
		return DiagnosisEmpty
	}
	if parse != nil && parse.Format.Parseable() {
		switch {
		case !parse.SignatureOK:
			return DiagnosisInvalidHeader
		case parse.Truncated || !parse.TerminalFound:
			return DiagnosisTruncated
		case hasFinding(parse, format.CodeChecksum, format.CodeInvalidType,
			format.CodeStrayBytes, format.CodeBadLength, format.CodeUnexpectedStart):
			return DiagnosisCorruptData
		}
	}
	if decodeErr == nil {
		return DiagnosisUnknown
	}

	if errors.Is(decodeErr, io.ErrUnexpectedEOF) || errors.Is(decodeErr, io.EOF) {
		return DiagnosisTruncated
	}
	msg := strings.ToLower(decodeErr.Error())
	switch {
	case strings.Contains(msg, "truncat"), strings.Contains(msg, "unexpected eof"):
		return DiagnosisTruncated
	case strings.Contains(msg, "unknown format"), strings.Contains(msg, "unsupported"):
		return DiagnosisDecoder
	case strings.Contains(msg, "invalid"), strings.Contains(msg, "corrupt"), strings.Contains(msg, "checksum"):
		return DiagnosisCorruptData
	}
	return DiagnosisUnknown
}

func hasFinding(r *format.Result, codes ...string) bool {
	for _, c := range codes {
		if len(r.FindingsWithCode(c)) > 0 {
			return true
		}
	}
	return false
}
