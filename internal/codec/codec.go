// Package codec wraps the pixel decoders and encoders the engine depends
// on, and extracts embedded text metadata from image containers.
//
// The engine never decodes or repairs images itself; it calls a Codec.
// The default implementation sits on disintegration/imaging for JPEG,
// PNG and GIF and registers golang.org/x/image decoders for BMP, TIFF and
// WebP.
package codec

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder

	"github.com/ironsheep/image-integrity-mcp/internal/format"
)

// Codec decodes and re-encodes image data.
type Codec interface {
	// Decode fully decodes data. Any structural damage is an error.
	Decode(data []byte) (image.Image, error)

	// DecodeTolerant decodes data after repairing damage a lenient
	// decoder would forgive: a missing end-of-image marker, stale chunk
	// checksums, a cut-off final chunk. PNG pixel data that fails to
	// inflate is recovered up to the damage and zero-filled after it.
	DecodeTolerant(data []byte) (image.Image, error)

	// DecodeConfig reads the image header without decoding pixels.
	DecodeConfig(data []byte) (image.Config, string, error)

	// Reencode encodes img as a JPEG at the given quality.
	Reencode(img image.Image, quality int) ([]byte, error)
}

// DecodeError reports a decoder failure.
type DecodeError struct {
	Op     string // "decode", "decode-tolerant", "decode-config" or "reencode"
	Format format.Format
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Default is the Codec backed by disintegration/imaging.
type Default struct{}

// New returns the default codec.
func New() *Default {
	return &Default{}
}

// Decode implements Codec.
func (Default) Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Op: "decode", Format: format.Sniff(data), Err: err}
	}
	return img, nil
}

// DecodeTolerant implements Codec. Undamaged data decodes exactly as with
// Decode.
func (c Default) DecodeTolerant(data []byte) (image.Image, error) {
	img, err := c.Decode(data)
	if err == nil {
		return img, nil
	}

	f := format.Sniff(data)
	var repaired []byte
	switch f {
	case format.JPEG:
		repaired = repairJPEG(data)
	case format.PNG:
		repaired = repairPNG(data)
	}
	if repaired != nil {
		img, rerr := imaging.Decode(bytes.NewReader(repaired))
		if rerr == nil {
			return img, nil
		}
		err = rerr
	}

	// Damaged compressed data: recover what inflates and zero the rest.
	if f == format.PNG {
		img, lerr := decodePNGLenient(data)
		if lerr == nil {
			return img, nil
		}
	}
	return nil, &DecodeError{Op: "decode-tolerant", Format: f, Err: unwrap(err)}
}

// DecodeConfig implements Codec.
func (Default) DecodeConfig(data []byte) (image.Config, string, error) {
	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, "", &DecodeError{Op: "decode-config", Format: format.Sniff(data), Err: err}
	}
	return cfg, name, nil
}

// Reencode implements Codec.
func (Default) Reencode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, quality); err != nil {
		return nil, &DecodeError{Op: "reencode", Format: format.JPEG, Err: err}
	}
	return buf.Bytes(), nil
}

// Encode writes img to w as a JPEG at the given quality.
func Encode(w io.Writer, img image.Image, quality int) error {
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
}

func unwrap(err error) error {
	if de, ok := err.(*DecodeError); ok {
		return de.Err
	}
	return err
}
