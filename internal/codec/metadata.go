package codec

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zlib"

	"github.com/ironsheep/image-integrity-mcp/internal/format"
)

// MetadataExtractor pulls embedded text fields out of an image container.
type MetadataExtractor interface {
	Extract(data []byte) (map[string]string, error)
}

// maxTextBytes bounds a single decompressed text chunk.
const maxTextBytes = 1 << 20

var (
	exifHeader = []byte("Exif\x00\x00")
	xmpHeader  = []byte("http://ns.adobe.com/xap/1.0/\x00")
)

// Extractor is the default MetadataExtractor. Keys are namespaced by
// origin, for example "png:tEXt:Comment", "jpeg:COM", "exif:Software" or
// "xmp".
type Extractor struct{}

// NewExtractor returns the default metadata extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract implements MetadataExtractor. Formats without a structural
// parser yield an empty map. Individual unreadable fields are skipped; an
// error is returned only when the container itself cannot be walked.
func (Extractor) Extract(data []byte) (map[string]string, error) {
	f := format.Sniff(data)
	fields := make(map[string]string)
	if !f.Parseable() {
		return fields, nil
	}

	r := format.Parse(data, f)
	if !r.SignatureOK {
		return nil, fmt.Errorf("failed to read metadata: %s signature invalid", f)
	}

	switch f {
	case format.JPEG:
		jpegFields(data, r, fields)
	case format.PNG:
		pngFields(data, r, fields)
	}
	return fields, nil
}

// put stores value under key, suffixing the key when it repeats.
func put(fields map[string]string, key, value string) {
	if _, exists := fields[key]; !exists {
		fields[key] = value
		return
	}
	for i := 2; ; i++ {
		k := fmt.Sprintf("%s#%d", key, i)
		if _, exists := fields[k]; !exists {
			fields[k] = value
			return
		}
	}
}

func jpegFields(data []byte, r *format.Result, fields map[string]string) {
	for _, a := range r.Atoms {
		if a.Length < 2 || a.Offset+2+a.Length > len(data) {
			continue
		}
		payload := data[a.Offset+4 : a.Offset+2+a.Length]

		switch {
		case a.Marker == format.MarkerCOM:
			put(fields, "jpeg:COM", string(payload))
		case a.Marker == format.MarkerAPP0+1 && bytes.HasPrefix(payload, exifHeader):
			exifFields(payload[len(exifHeader):], fields)
		case a.Marker == format.MarkerAPP0+1 && bytes.HasPrefix(payload, xmpHeader):
			put(fields, "xmp", string(payload[len(xmpHeader):]))
		case a.Marker >= format.MarkerAPP0 && a.Marker <= format.MarkerAPP0+15:
			put(fields, "jpeg:"+a.Name, appIdentifier(payload))
		}
	}
}

// appIdentifier returns the NUL-terminated identifier that opens most
// APPn payloads ("JFIF", "Adobe", "ICC_PROFILE").
func appIdentifier(payload []byte) string {
	if i := bytes.IndexByte(payload, 0); i >= 0 && i <= 32 {
		return string(payload[:i])
	}
	if len(payload) > 32 {
		payload = payload[:32]
	}
	return strings.ToValidUTF8(string(payload), "")
}

func pngFields(data []byte, r *format.Result, fields map[string]string) {
	for _, a := range r.Atoms {
		end := a.Offset + 8 + a.Length
		if end > len(data) {
			continue
		}
		payload := data[a.Offset+8 : end]

		switch a.Name {
		case "tEXt":
			key, text, ok := bytes.Cut(payload, []byte{0})
			if ok {
				put(fields, "png:tEXt:"+string(key), latin1(text))
			}
		case "zTXt":
			key, rest, ok := bytes.Cut(payload, []byte{0})
			if !ok || len(rest) < 1 || rest[0] != 0 {
				continue
			}
			if text, err := inflate(rest[1:]); err == nil {
				put(fields, "png:zTXt:"+string(key), latin1(text))
			}
		case "iTXt":
			if key, text, ok := parseITXt(payload); ok {
				put(fields, "png:iTXt:"+key, text)
			}
		case "eXIf":
			exifFields(payload, fields)
		}
	}
}

// parseITXt splits keyword, compression flag and method, language tag,
// translated keyword and text.
func parseITXt(payload []byte) (string, string, bool) {
	key, rest, ok := bytes.Cut(payload, []byte{0})
	if !ok || len(rest) < 2 {
		return "", "", false
	}
	compressed, method := rest[0], rest[1]
	rest = rest[2:]
	_, rest, ok = bytes.Cut(rest, []byte{0}) // language tag
	if !ok {
		return "", "", false
	}
	_, text, ok := bytes.Cut(rest, []byte{0}) // translated keyword
	if !ok {
		return "", "", false
	}
	if compressed == 1 {
		if method != 0 {
			return "", "", false
		}
		var err error
		if text, err = inflate(text); err != nil {
			return "", "", false
		}
	}
	return string(key), strings.ToValidUTF8(string(text), "\uFFFD"), true
}

func inflate(compressed []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(io.LimitReader(zr, maxTextBytes))
}

// latin1 converts ISO-8859-1 text, the encoding of tEXt and zTXt, to UTF-8.
func latin1(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		sb.WriteRune(rune(c))
	}
	return sb.String()
}
