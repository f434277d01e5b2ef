package format

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
)

// PNG colour types as declared in IHDR.
const (
	ColorGray      = 0
	ColorRGB       = 2
	ColorPalette   = 3
	ColorGrayAlpha = 4
	ColorRGBA      = 6
)

// pngMaxChunk is the largest chunk length the format allows (2^31-1).
const pngMaxChunk = 1<<31 - 1

func validChunkType(t []byte) bool {
	for _, c := range t {
		if !(c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z') {
			return false
		}
	}
	return true
}

// ChunkCRC computes the CRC-32 stored after a PNG chunk: IEEE polynomial
// over the type tag followed by the data.
func ChunkCRC(typ string, payload []byte) uint32 {
	h := crc32.NewIEEE()
	h.Write([]byte(typ))
	h.Write(payload)
	return h.Sum32()
}

func parsePNG(data []byte, r *Result) {
	if !bytes.HasPrefix(data, pngMagic) {
		r.addFinding(CodeBadSignature, 0, "missing PNG signature")
		return
	}
	r.SignatureOK = true

	pos := len(pngMagic)
	for pos < len(data) {
		if pos+8 > len(data) {
			r.Truncated = true
			r.addFinding(CodeTruncated, pos, "chunk header cut off after %d bytes", len(data)-pos)
			return
		}
		length := binary.BigEndian.Uint32(data[pos:])
		typ := data[pos+4 : pos+8]
		if !validChunkType(typ) {
			r.addFinding(CodeInvalidType, pos+4, "chunk type %q is not four ASCII letters", typ)
			return
		}
		atom := Atom{Name: string(typ), Offset: pos, Length: int(length), Checksummed: true}
		if length > pngMaxChunk {
			r.Atoms = append(r.Atoms, atom)
			r.addFinding(CodeBadLength, pos, "%s declares length %d", atom.Name, length)
			return
		}
		end := pos + 12 + int(length)
		if end > len(data) || end < pos {
			r.Atoms = append(r.Atoms, atom)
			r.Truncated = true
			r.addFinding(CodeLengthOverrun, pos, "%s declares %d bytes, %d remain",
				atom.Name, length, len(data)-pos-8)
			return
		}

		payload := data[pos+8 : pos+8+int(length)]
		stored := binary.BigEndian.Uint32(data[end-4:])
		atom.ChecksumOK = ChunkCRC(atom.Name, payload) == stored
		if !atom.ChecksumOK {
			r.addFinding(CodeChecksum, pos, "%s CRC mismatch (stored %08x)", atom.Name, stored)
		}
		r.Atoms = append(r.Atoms, atom)

		if atom.Name == "IHDR" && length >= 13 && r.Width == 0 {
			r.Width = int(binary.BigEndian.Uint32(payload[0:]))
			r.Height = int(binary.BigEndian.Uint32(payload[4:]))
			r.BitDepth = int(payload[8])
			r.ColorType = int(payload[9])
		}

		pos = end
		if atom.Name == "IEND" {
			r.TerminalFound = true
			if trailing := len(data) - pos; trailing > 0 {
				r.TrailingBytes = trailing
				r.addFinding(CodeTrailingData, pos, "%d bytes after IEND", trailing)
			}
			return
		}
	}

	r.Truncated = true
	r.addFinding(CodeTruncated, len(data), "no IEND chunk before end of buffer")
}
