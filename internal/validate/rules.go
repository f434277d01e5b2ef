package validate

import (
	"fmt"

	"github.com/ironsheep/image-integrity-mcp/internal/config"
	"github.com/ironsheep/image-integrity-mcp/internal/format"
)

// Rule identifiers, in evaluation order.
const (
	RuleSignature      = "signature"
	RuleDecode         = "decode"
	RuleTerminalMarker = "terminal-marker"
	RuleMandatoryAtoms = "mandatory-atoms"
	RuleChecksum       = "checksum"
	RuleBounds         = "bounds"
	RuleOrdering       = "ordering"
)

// Rule is one structural check. Level is the lowest sensitivity that
// runs it; every higher level runs it too.
type Rule struct {
	ID    string
	Level config.Level
	check func(in Input) []Finding
}

// rules is the full table in evaluation order.
var rules = []Rule{
	{ID: RuleSignature, Level: config.Low, check: checkSignature},
	{ID: RuleDecode, Level: config.Low, check: checkDecode},
	{ID: RuleTerminalMarker, Level: config.Medium, check: checkTerminal},
	{ID: RuleMandatoryAtoms, Level: config.Medium, check: checkMandatory},
	{ID: RuleChecksum, Level: config.High, check: checkChecksums},
	{ID: RuleBounds, Level: config.High, check: checkBounds},
	{ID: RuleOrdering, Level: config.High, check: checkOrdering},
}

func ruleByID(id string) Rule {
	for _, r := range rules {
		if r.ID == id {
			return r
		}
	}
	panic("validate: unknown rule " + id)
}

// RulesFor returns the rules run at sensitivity l, in evaluation order.
func RulesFor(l config.Level) []Rule {
	var out []Rule
	for _, r := range rules {
		if r.Level <= l {
			out = append(out, r)
		}
	}
	return out
}

func fail(rule string, offset int, msg string, args ...interface{}) Finding {
	return Finding{Rule: rule, Severity: SeverityError, Offset: offset, Detail: fmt.Sprintf(msg, args...)}
}

func note(rule string, offset int, msg string, args ...interface{}) Finding {
	return Finding{Rule: rule, Severity: SeverityInfo, Offset: offset, Detail: fmt.Sprintf(msg, args...)}
}

// fromParse converts parser findings with one of codes into rule failures.
func fromParse(rule string, p *format.Result, codes ...string) []Finding {
	var out []Finding
	for _, f := range p.Findings {
		for _, c := range codes {
			if f.Code == c {
				out = append(out, fail(rule, f.Offset, "%s: %s", f.Code, f.Detail))
			}
		}
	}
	return out
}

func checkSignature(in Input) []Finding {
	if in.Parse.SignatureOK {
		return nil
	}
	return []Finding{fail(RuleSignature, 0, "invalid %s signature", in.Parse.Format)}
}

func checkDecode(in Input) []Finding {
	if in.DecodeErr == nil {
		return nil
	}
	return []Finding{fail(RuleDecode, 0, "decoder failed: %v", in.DecodeErr)}
}

func checkTerminal(in Input) []Finding {
	p := in.Parse
	if p.TerminalFound {
		return nil
	}
	name := terminalName(p.Format)
	if in.IgnoreEOF {
		return []Finding{note(RuleTerminalMarker, p.Size, "missing %s marker ignored", name)}
	}
	return []Finding{fail(RuleTerminalMarker, p.Size, "missing %s marker", name)}
}

func terminalName(f format.Format) string {
	if f == format.PNG {
		return "IEND"
	}
	return "EOI"
}

func checkMandatory(in Input) []Finding {
	p := in.Parse
	var missing []Finding
	switch p.Format {
	case format.JPEG:
		if firstSOF(p) < 0 {
			missing = append(missing, fail(RuleMandatoryAtoms, 0, "no SOF segment"))
		}
		for _, name := range []string{"DQT", "SOS"} {
			if !p.Has(name) {
				missing = append(missing, fail(RuleMandatoryAtoms, 0, "no %s segment", name))
			}
		}
	case format.PNG:
		required := []string{"IHDR", "IDAT"}
		if !in.IgnoreEOF {
			required = append(required, "IEND")
		}
		if p.ColorType == format.ColorPalette {
			required = append(required, "PLTE")
		}
		for _, name := range required {
			if !p.Has(name) {
				missing = append(missing, fail(RuleMandatoryAtoms, 0, "no %s chunk", name))
			}
		}
	}
	return missing
}

// firstSOF returns the index of the first frame header, or -1.
func firstSOF(p *format.Result) int {
	for i, a := range p.Atoms {
		if format.IsSOF(a.Marker) {
			return i
		}
	}
	return -1
}

func checkChecksums(in Input) []Finding {
	var out []Finding
	for _, a := range in.Parse.Atoms {
		if a.Checksummed && !a.ChecksumOK {
			out = append(out, fail(RuleChecksum, a.Offset, "%s chunk CRC mismatch", a.Name))
		}
	}
	return out
}

func checkBounds(in Input) []Finding {
	p := in.Parse
	var out []Finding
	for i := 1; i < len(p.Atoms); i++ {
		if p.Atoms[i].Offset <= p.Atoms[i-1].Offset {
			out = append(out, fail(RuleBounds, p.Atoms[i].Offset, "%s does not follow %s",
				p.Atoms[i].Name, p.Atoms[i-1].Name))
		}
	}
	return append(out, fromParse(RuleBounds, p, format.CodeLengthOverrun, format.CodeBadLength, format.CodeInvalidType)...)
}

func checkOrdering(in Input) []Finding {
	p := in.Parse
	var out []Finding
	switch p.Format {
	case format.JPEG:
		out = jpegOrdering(p)
	case format.PNG:
		out = pngOrdering(p)
	}
	return append(out, fromParse(RuleOrdering, p, format.CodeTrailingData)...)
}

func jpegOrdering(p *format.Result) []Finding {
	var out []Finding
	if len(p.Atoms) > 0 && p.Atoms[0].Name != "SOI" {
		out = append(out, fail(RuleOrdering, p.Atoms[0].Offset, "stream does not open with SOI"))
	}
	if sof, sos := firstSOF(p), p.Index("SOS"); sos >= 0 && (sof < 0 || sof > sos) {
		out = append(out, fail(RuleOrdering, p.Atoms[sos].Offset, "SOS before any SOF"))
	}
	if eoi := p.Index("EOI"); eoi >= 0 && eoi != len(p.Atoms)-1 {
		out = append(out, fail(RuleOrdering, p.Atoms[eoi].Offset, "EOI is not the last marker"))
	}
	return append(out, fromParse(RuleOrdering, p, format.CodeStrayBytes, format.CodeUnexpectedStart)...)
}

func pngOrdering(p *format.Result) []Finding {
	var out []Finding
	if len(p.Atoms) > 0 && p.Atoms[0].Name != "IHDR" {
		out = append(out, fail(RuleOrdering, p.Atoms[0].Offset, "first chunk is %s, not IHDR", p.Atoms[0].Name))
	}

	firstIDAT, lastIDAT := -1, -1
	for i, a := range p.Atoms {
		switch a.Name {
		case "IHDR":
			if i != 0 {
				out = append(out, fail(RuleOrdering, a.Offset, "repeated IHDR chunk"))
			}
		case "IDAT":
			if firstIDAT < 0 {
				firstIDAT = i
			} else if lastIDAT != i-1 {
				out = append(out, fail(RuleOrdering, a.Offset, "IDAT chunks are not contiguous"))
			}
			lastIDAT = i
		case "PLTE":
			if firstIDAT >= 0 {
				out = append(out, fail(RuleOrdering, a.Offset, "PLTE after IDAT"))
			}
		}
	}
	return out
}
