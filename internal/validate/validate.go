// Package validate decides whether an image's container structure is
// intact at a chosen sensitivity.
//
// The checks form an explicit table (see RulesFor). Each sensitivity
// level runs every rule of the levels below it plus its own, so a file
// that fails at Low fails at every level. Low and Medium stop at the
// first failing rule; High runs the whole table and reports every
// violation it finds.
//
// Validate is a pure function of its Input: the same parse result,
// decode outcome and settings always give the same Verdict.
package validate

import (
	"github.com/ironsheep/image-integrity-mcp/internal/config"
	"github.com/ironsheep/image-integrity-mcp/internal/format"
)

// Severity grades a finding. Only errors make a verdict Corrupt.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityError Severity = "error"
)

// Status is the overall structural outcome.
type Status string

const (
	Valid   Status = "valid"
	Corrupt Status = "corrupt"
)

// Finding is one rule outcome worth reporting.
type Finding struct {
	Rule     string   `json:"rule" cbor:"rule"`
	Severity Severity `json:"severity" cbor:"severity"`
	Offset   int      `json:"offset" cbor:"offset"`
	Detail   string   `json:"detail" cbor:"detail"`
}

// Verdict is the result of structural validation.
type Verdict struct {
	Status      Status       `json:"status" cbor:"status"`
	Sensitivity config.Level `json:"sensitivity" cbor:"sensitivity"`
	// Reason is the rule id of the first failure. Empty when Valid.
	Reason   string    `json:"reason,omitempty" cbor:"reason,omitempty"`
	Findings []Finding `json:"findings,omitempty" cbor:"findings,omitempty"`
}

// Valid reports whether the verdict is Valid.
func (v Verdict) Valid() bool { return v.Status == Valid }

// Input is everything Validate looks at.
type Input struct {
	Parse *format.Result

	// DecodeErr is the outcome of a truncation-tolerant decode of the same
	// bytes. Nil means pixels were recovered.
	DecodeErr error

	Sensitivity config.Level
	IgnoreEOF   bool
}

// Validate runs the rules for in.Sensitivity.
func Validate(in Input) Verdict {
	v := Verdict{Status: Valid, Sensitivity: in.Sensitivity}
	if in.Parse == nil {
		in.Parse = &format.Result{Format: format.Unknown}
	}

	set := RulesFor(in.Sensitivity)
	if !in.Parse.Format.Parseable() {
		v.Findings = append(v.Findings, note(format.CodeUnsupported, 0,
			"no structural checks for %s; decode only", in.Parse.Format))
		set = []Rule{ruleByID(RuleDecode)}
	}

	stopEarly := in.Sensitivity < config.High
	for _, r := range set {
		found := r.check(in)
		v.Findings = append(v.Findings, found...)

		failed := false
		for _, f := range found {
			if f.Severity == SeverityError {
				failed = true
				break
			}
		}
		if failed {
			if v.Status == Valid {
				v.Status = Corrupt
				v.Reason = r.ID
			}
			if stopEarly {
				break
			}
		}
	}
	return v
}
