package engine

import (
	"fmt"

	"github.com/ironsheep/image-integrity-mcp/internal/format"
	"github.com/ironsheep/image-integrity-mcp/internal/stego"
	"github.com/ironsheep/image-integrity-mcp/internal/validate"
	"github.com/ironsheep/image-integrity-mcp/internal/visual"
)

// Status is the processing outcome of one file.
type Status string

const (
	// StatusComplete means every enabled analysis ran.
	StatusComplete Status = "complete"
	// StatusAnalysisFailed means pixels could not be recovered, so
	// steganalysis was skipped. Validation still ran.
	StatusAnalysisFailed Status = "analysis_failed"
	// StatusRejected means a resource limit refused the file.
	StatusRejected Status = "rejected"
	// StatusError means the file could not be read.
	StatusError Status = "error"
)

// Artifact describes the analysed file.
type Artifact struct {
	Path   string        `json:"path" cbor:"path"`
	Format format.Format `json:"format" cbor:"format"`
	Size   int64         `json:"size" cbor:"size"`
	Atoms  []format.Atom `json:"atoms,omitempty" cbor:"atoms,omitempty"`

	// Width and Height are the decoded dimensions, or the declared ones
	// when decoding failed. Zero when unknown.
	Width  int `json:"width,omitempty" cbor:"width,omitempty"`
	Height int `json:"height,omitempty" cbor:"height,omitempty"`
}

// Report is the full result for one file.
type Report struct {
	Artifact Artifact `json:"artifact" cbor:"artifact"`
	Status   Status   `json:"status" cbor:"status"`

	Validation   *validate.Verdict `json:"validation,omitempty" cbor:"validation,omitempty"`
	Visual       *visual.Verdict   `json:"visual,omitempty" cbor:"visual,omitempty"`
	Steganalysis *stego.Verdict    `json:"steganalysis,omitempty" cbor:"steganalysis,omitempty"`

	// Diagnosis classifies the primary problem of a corrupt or unreadable
	// file. Empty for healthy files.
	Diagnosis Diagnosis `json:"diagnosis,omitempty" cbor:"diagnosis,omitempty"`

	// Reason explains a rejection, a read error or skipped steganalysis.
	Reason string `json:"reason,omitempty" cbor:"reason,omitempty"`
}

// Path returns the analysed file path.
func (r *Report) Path() string { return r.Artifact.Path }

// Final reports whether the report is a settled verdict worth
// checkpointing. Read errors are transient and are retried on resume.
func (r *Report) Final() bool {
	return r.Status != StatusError
}

// Corrupt reports whether structural validation or the visual check
// flagged the file.
func (r *Report) Corrupt() bool {
	if r.Validation != nil && !r.Validation.Valid() {
		return true
	}
	return r.Visual != nil && r.Visual.Corrupt
}

// Suspicious reports whether steganalysis flagged the file.
func (r *Report) Suspicious() bool {
	return r.Steganalysis != nil && r.Steganalysis.Suspicious()
}

// Summary is a one-line description of the report.
func (r *Report) Summary() string {
	switch r.Status {
	case StatusRejected, StatusError:
		return fmt.Sprintf("%s: %s", r.Status, r.Reason)
	}

	s := "valid"
	if r.Corrupt() {
		s = "corrupt"
		if r.Diagnosis != "" {
			s += " (" + string(r.Diagnosis) + ")"
		}
	}
	if r.Steganalysis != nil {
		s += fmt.Sprintf(", %s %.2f", r.Steganalysis.Classification, r.Steganalysis.Confidence)
	} else if r.Status == StatusAnalysisFailed {
		s += ", steganalysis skipped"
	}
	return s
}

// RejectedError reports a file refused by a resource limit. It is not a
// corruption finding.
type RejectedError struct {
	Path  string
	Limit string // "file_bytes", "dimension" or "pixels"
	Value int64
	Max   int64
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected %s: %s %d exceeds limit %d", e.Path, e.Limit, e.Value, e.Max)
}
