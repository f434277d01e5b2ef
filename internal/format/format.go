package format

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Format identifies an image container.
type Format string

const (
	JPEG    Format = "jpeg"
	PNG     Format = "png"
	GIF     Format = "gif"
	BMP     Format = "bmp"
	TIFF    Format = "tiff"
	WebP    Format = "webp"
	Unknown Format = "unknown"
)

// Parseable reports whether Parse understands the container layout.
func (f Format) Parseable() bool {
	return f == JPEG || f == PNG
}

// Lossy reports whether the format stores pixels with lossy compression.
func (f Format) Lossy() bool {
	return f == JPEG
}

// extensions maps each format to the file extensions it is stored under.
var extensions = map[Format][]string{
	JPEG: {".jpg", ".jpeg", ".jpe", ".jif", ".jfif", ".jfi"},
	PNG:  {".png"},
	GIF:  {".gif"},
	BMP:  {".bmp", ".dib"},
	TIFF: {".tiff", ".tif"},
	WebP: {".webp"},
}

// Extensions returns the file extensions for f, lower-case with a leading dot.
func Extensions(f Format) []string {
	return append([]string(nil), extensions[f]...)
}

// ParseName converts a name such as "JPEG" or "png" into a Format.
func ParseName(name string) Format {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "jpeg", "jpg":
		return JPEG
	case "png":
		return PNG
	case "gif":
		return GIF
	case "bmp":
		return BMP
	case "tiff", "tif":
		return TIFF
	case "webp":
		return WebP
	default:
		return Unknown
	}
}

// FromPath returns the format declared by the file extension.
func FromPath(path string) Format {
	ext := strings.ToLower(filepath.Ext(path))
	for f, exts := range extensions {
		for _, e := range exts {
			if e == ext {
				return f
			}
		}
	}
	return Unknown
}

var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte("\x89PNG\r\n\x1a\n")
)

// Sniff identifies a format from its leading magic bytes.
func Sniff(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, jpegMagic):
		return JPEG
	case bytes.HasPrefix(data, pngMagic):
		return PNG
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return GIF
	case bytes.HasPrefix(data, []byte("BM")):
		return BMP
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")):
		return TIFF
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return WebP
	default:
		return Unknown
	}
}

// Detect returns the declared format of a file. The extension wins, since
// a JPEG-named file that does not start with SOI is exactly the kind of
// damage the validator must report; magic bytes are consulted only when
// the extension says nothing.
func Detect(path string, data []byte) Format {
	if f := FromPath(path); f != Unknown {
		return f
	}
	return Sniff(data)
}
