package codec

import (
	"bytes"
	"encoding/binary"

	"github.com/ironsheep/image-integrity-mcp/internal/format"
)

var iend = []byte{0, 0, 0, 0, 'I', 'E', 'N', 'D', 0xAE, 0x42, 0x60, 0x82}

// repairJPEG appends an EOI marker when the stream lacks one. It returns
// nil when there is nothing to repair.
func repairJPEG(data []byte) []byte {
	if bytes.HasSuffix(data, []byte{0xFF, format.MarkerEOI}) {
		return nil
	}
	out := make([]byte, 0, len(data)+2)
	out = append(out, data...)
	return append(out, 0xFF, format.MarkerEOI)
}

// repairPNG rebuilds the chunk stream: every complete chunk is kept with
// a freshly computed CRC, the walk stops at the first incomplete or
// malformed chunk, and an IEND chunk closes the result.
func repairPNG(data []byte) []byte {
	r := format.Parse(data, format.PNG)
	if !r.SignatureOK {
		return nil
	}

	out := make([]byte, 8, len(data)+len(iend))
	copy(out, data[:8])
	for _, a := range r.Atoms {
		end := a.Offset + 12 + a.Length
		if end > len(data) || a.Name == "IEND" {
			break
		}
		payload := data[a.Offset+8 : end-4]
		out = append(out, data[a.Offset:a.Offset+8]...)
		out = append(out, payload...)
		out = binary.BigEndian.AppendUint32(out, format.ChunkCRC(a.Name, payload))
	}
	return append(out, iend...)
}
