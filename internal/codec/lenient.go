package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/ironsheep/image-integrity-mcp/internal/format"
)

// lenientMaxPixels bounds the buffer decodePNGLenient allocates.
const lenientMaxPixels = 1 << 28

var (
	errNoHeader   = errors.New("no usable IHDR chunk")
	errNoPixels   = errors.New("no IDAT data to inflate")
	errInterlaced = errors.New("interlaced data cannot be recovered")
	errPixelDepth = errors.New("unsupported bit depth for colour type")
)

// pngHeader is the part of IHDR the lenient decoder needs.
type pngHeader struct {
	width, height int
	depth         int
	colorType     int
	interlace     byte
}

func (h pngHeader) channels() int {
	switch h.colorType {
	case format.ColorGray, format.ColorPalette:
		return 1
	case format.ColorGrayAlpha:
		return 2
	case format.ColorRGB:
		return 3
	case format.ColorRGBA:
		return 4
	}
	return 0
}

func (h pngHeader) validDepth() bool {
	switch h.colorType {
	case format.ColorGray:
		return h.depth == 1 || h.depth == 2 || h.depth == 4 || h.depth == 8 || h.depth == 16
	case format.ColorPalette:
		return h.depth == 1 || h.depth == 2 || h.depth == 4 || h.depth == 8
	case format.ColorRGB, format.ColorGrayAlpha, format.ColorRGBA:
		return h.depth == 8 || h.depth == 16
	}
	return false
}

// decodePNGLenient rebuilds a non-interlaced PNG from its IDAT payloads
// the way a truncation-tolerant decoder does: chunk CRCs and the zlib
// adler32 trailer are ignored, inflation keeps every byte produced before
// the first invalid deflate code, and rows that could not be recovered
// are left zero.
func decodePNGLenient(data []byte) (image.Image, error) {
	r := format.Parse(data, format.PNG)
	if !r.SignatureOK {
		return nil, errNoHeader
	}

	var (
		hdr     pngHeader
		haveHdr bool
		z       []byte
		palette color.Palette
		alpha   []byte
	)
	for _, a := range r.Atoms {
		start := a.Offset + 8
		end := start + a.Length
		if end > len(data) {
			end = len(data)
		}
		if start > end {
			continue
		}
		payload := data[start:end]
		switch a.Name {
		case "IHDR":
			if len(payload) < 13 || haveHdr {
				continue
			}
			hdr = pngHeader{
				width:     int(binary.BigEndian.Uint32(payload[0:])),
				height:    int(binary.BigEndian.Uint32(payload[4:])),
				depth:     int(payload[8]),
				colorType: int(payload[9]),
				interlace: payload[12],
			}
			haveHdr = true
		case "PLTE":
			for i := 0; i+2 < len(payload); i += 3 {
				palette = append(palette, color.NRGBA{payload[i], payload[i+1], payload[i+2], 0xFF})
			}
		case "tRNS":
			alpha = payload
		case "IDAT":
			z = append(z, payload...)
		}
	}

	if !haveHdr || hdr.width <= 0 || hdr.height <= 0 || int64(hdr.width)*int64(hdr.height) > lenientMaxPixels {
		return nil, errNoHeader
	}
	if !hdr.validDepth() {
		return nil, errPixelDepth
	}
	if hdr.interlace != 0 {
		return nil, errInterlaced
	}
	// Two bytes of zlib header and at least one of deflate data.
	if len(z) < 3 {
		return nil, errNoPixels
	}

	bitsPerPixel := hdr.channels() * hdr.depth
	rowBytes := (hdr.width*bitsPerPixel + 7) / 8
	raw := make([]byte, hdr.height*(rowBytes+1))
	fr := flate.NewReader(bytes.NewReader(z[2:]))
	// A short read leaves the tail zero, which is what we want.
	_, _ = io.ReadFull(fr, raw)
	_ = fr.Close()

	unfilter(raw, rowBytes, max(1, bitsPerPixel/8))

	for i, a := range alpha {
		if i < len(palette) {
			c := palette[i].(color.NRGBA)
			c.A = a
			palette[i] = c
		}
	}
	return buildImage(hdr, raw, rowBytes, palette), nil
}

// unfilter reverses the per-row PNG filters in place. An unknown filter
// type is treated as None.
func unfilter(raw []byte, rowBytes, bpp int) {
	stride := rowBytes + 1
	prev := make([]byte, rowBytes)
	for off := 0; off+stride <= len(raw); off += stride {
		cur := raw[off+1 : off+stride]
		switch raw[off] {
		case 1: // Sub
			for i := bpp; i < len(cur); i++ {
				cur[i] += cur[i-bpp]
			}
		case 2: // Up
			for i := range cur {
				cur[i] += prev[i]
			}
		case 3: // Average
			for i := range cur {
				var left int
				if i >= bpp {
					left = int(cur[i-bpp])
				}
				cur[i] += uint8((left + int(prev[i])) / 2)
			}
		case 4: // Paeth
			for i := range cur {
				var a, c int
				if i >= bpp {
					a, c = int(cur[i-bpp]), int(prev[i-bpp])
				}
				cur[i] += paeth(a, int(prev[i]), c)
			}
		}
		prev = cur
	}
}

func paeth(a, b, c int) uint8 {
	p := a + b - c
	pa, pb, pc := abs(p-a), abs(p-b), abs(p-c)
	switch {
	case pa <= pb && pa <= pc:
		return uint8(a)
	case pb <= pc:
		return uint8(b)
	}
	return uint8(c)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// buildImage converts unfiltered scanlines to NRGBA. Sixteen-bit samples
// keep their high byte.
func buildImage(hdr pngHeader, raw []byte, rowBytes int, palette color.Palette) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, hdr.width, hdr.height))
	stride := rowBytes + 1
	mask := 1<<hdr.depth - 1
	step := hdr.depth / 8 // bytes per sample at depth 8 and 16

	for y := 0; y < hdr.height; y++ {
		row := raw[y*stride+1 : (y+1)*stride]
		for x := 0; x < hdr.width; x++ {
			var c color.NRGBA
			if hdr.depth < 8 {
				bit := x * hdr.depth
				v := int(row[bit/8]>>(8-hdr.depth-bit%8)) & mask
				if hdr.colorType == format.ColorPalette {
					c = paletteAt(palette, v)
				} else {
					g := uint8(v * 255 / mask)
					c = color.NRGBA{g, g, g, 0xFF}
				}
			} else {
				p := row[x*hdr.channels()*step:]
				s := func(i int) uint8 { return p[i*step] }
				switch hdr.colorType {
				case format.ColorGray:
					c = color.NRGBA{s(0), s(0), s(0), 0xFF}
				case format.ColorPalette:
					c = paletteAt(palette, int(s(0)))
				case format.ColorGrayAlpha:
					c = color.NRGBA{s(0), s(0), s(0), s(1)}
				case format.ColorRGB:
					c = color.NRGBA{s(0), s(1), s(2), 0xFF}
				case format.ColorRGBA:
					c = color.NRGBA{s(0), s(1), s(2), s(3)}
				}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// paletteAt returns entry i, or opaque black when there is no such entry.
// Without a PLTE chunk the index is shown as gray.
func paletteAt(p color.Palette, i int) color.NRGBA {
	if len(p) == 0 {
		g := uint8(i)
		return color.NRGBA{g, g, g, 0xFF}
	}
	if i < len(p) {
		return p[i].(color.NRGBA)
	}
	return color.NRGBA{0, 0, 0, 0xFF}
}
