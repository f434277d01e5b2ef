package format

import "fmt"

// Finding codes recorded by Parse.
const (
	CodeBadSignature    = "bad-signature"
	CodeTruncated       = "truncated"
	CodeLengthOverrun   = "length-overrun"
	CodeBadLength       = "bad-length"
	CodeStrayBytes      = "stray-bytes"
	CodeInvalidType     = "invalid-chunk-type"
	CodeChecksum        = "checksum-mismatch"
	CodeTrailingData    = "trailing-data"
	CodeUnexpectedStart = "unexpected-start"
	CodeUnsupported     = "unsupported-format"
)

// Atom is one structural unit of a container: a JPEG marker segment or a
// PNG chunk.
type Atom struct {
	// Name is the marker mnemonic ("SOF0", "DQT") or the chunk type tag
	// ("IHDR", "tEXt").
	Name string `json:"name"`

	// Marker is the JPEG marker code. Zero for PNG chunks.
	Marker byte `json:"marker,omitempty"`

	// Offset is the byte position of the atom's first byte (the 0xFF of
	// a JPEG marker, the length field of a PNG chunk).
	Offset int `json:"offset"`

	// Length is the declared length: the segment length field for JPEG
	// (which counts itself), the data length for PNG. Standalone JPEG
	// markers have zero length.
	Length int `json:"length"`

	// Checksummed is set for PNG chunks, whose ChecksumOK is meaningful.
	Checksummed bool `json:"checksummed,omitempty"`
	ChecksumOK  bool `json:"checksum_ok,omitempty"`
}

// Finding is a single structural anomaly noticed during parsing.
type Finding struct {
	Code   string `json:"code"`
	Offset int    `json:"offset"`
	Detail string `json:"detail"`
}

func (f Finding) String() string {
	return fmt.Sprintf("%s at %d: %s", f.Code, f.Offset, f.Detail)
}

// Result is the parsed structure of one buffer.
type Result struct {
	Format Format `json:"format"`
	Size   int    `json:"size"`

	// Atoms are ordered by Offset.
	Atoms []Atom `json:"atoms"`

	SignatureOK   bool `json:"signature_ok"`
	TerminalFound bool `json:"terminal_found"`

	// TrailingBytes counts bytes after the terminal atom.
	TrailingBytes int `json:"trailing_bytes,omitempty"`

	// Truncated is set when the buffer ends inside an atom or inside
	// entropy-coded scan data.
	Truncated bool `json:"truncated,omitempty"`

	// Declared geometry from SOF or IHDR. Zero when absent.
	Width     int `json:"width,omitempty"`
	Height    int `json:"height,omitempty"`
	BitDepth  int `json:"bit_depth,omitempty"`
	ColorType int `json:"color_type,omitempty"`

	Findings []Finding `json:"findings,omitempty"`
}

func (r *Result) addFinding(code string, offset int, format string, args ...interface{}) {
	r.Findings = append(r.Findings, Finding{Code: code, Offset: offset, Detail: fmt.Sprintf(format, args...)})
}

// Has reports whether an atom with the given name was parsed.
func (r *Result) Has(name string) bool {
	return r.Index(name) >= 0
}

// Index returns the position in Atoms of the first atom named name, or -1.
func (r *Result) Index(name string) int {
	for i, a := range r.Atoms {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// FindingsWithCode returns the findings carrying code, in byte order.
func (r *Result) FindingsWithCode(code string) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Code == code {
			out = append(out, f)
		}
	}
	return out
}

// Parse walks data as a container of format f. It never fails: every
// anomaly becomes a Finding on the returned Result.
func Parse(data []byte, f Format) *Result {
	r := &Result{Format: f, Size: len(data)}
	switch f {
	case JPEG:
		parseJPEG(data, r)
	case PNG:
		parsePNG(data, r)
	default:
		r.addFinding(CodeUnsupported, 0, "no structural parser for %s; codec-only validation", f)
	}
	return r
}
