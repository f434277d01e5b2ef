package format

import (
	"encoding/binary"
	"fmt"
)

// JPEG marker codes used by the walker and the validator.
const (
	MarkerSOI  = 0xD8
	MarkerEOI  = 0xD9
	MarkerSOS  = 0xDA
	MarkerDQT  = 0xDB
	MarkerDHT  = 0xC4
	MarkerDRI  = 0xDD
	MarkerCOM  = 0xFE
	MarkerTEM  = 0x01
	MarkerRST0 = 0xD0
	MarkerRST7 = 0xD7
	MarkerAPP0 = 0xE0
)

// IsSOF reports whether code is a start-of-frame marker. C4 (DHT), C8
// (JPG) and CC (DAC) share the range but are not frame headers.
func IsSOF(code byte) bool {
	return code >= 0xC0 && code <= 0xCF && code != 0xC4 && code != 0xC8 && code != 0xCC
}

func isStandalone(code byte) bool {
	return code == MarkerTEM || (code >= MarkerRST0 && code <= MarkerRST7)
}

// MarkerName returns the mnemonic for a JPEG marker code.
func MarkerName(code byte) string {
	switch {
	case code == MarkerSOI:
		return "SOI"
	case code == MarkerEOI:
		return "EOI"
	case code == MarkerSOS:
		return "SOS"
	case code == MarkerDQT:
		return "DQT"
	case code == MarkerDHT:
		return "DHT"
	case code == MarkerDRI:
		return "DRI"
	case code == MarkerCOM:
		return "COM"
	case code == MarkerTEM:
		return "TEM"
	case code == 0xCC:
		return "DAC"
	case code == 0xC8:
		return "JPG"
	case code == 0xDC:
		return "DNL"
	case code == 0xDE:
		return "DHP"
	case code == 0xDF:
		return "EXP"
	case IsSOF(code):
		return fmt.Sprintf("SOF%d", code-0xC0)
	case code >= MarkerRST0 && code <= MarkerRST7:
		return fmt.Sprintf("RST%d", code-MarkerRST0)
	case code >= MarkerAPP0 && code <= 0xEF:
		return fmt.Sprintf("APP%d", code-MarkerAPP0)
	case code >= 0xF0 && code <= 0xFD:
		return fmt.Sprintf("JPG%d", code-0xF0)
	default:
		return fmt.Sprintf("0x%02X", code)
	}
}

func parseJPEG(data []byte, r *Result) {
	if len(data) < 2 || data[0] != 0xFF || data[1] != MarkerSOI {
		r.addFinding(CodeBadSignature, 0, "missing SOI marker")
		return
	}
	r.SignatureOK = true
	r.Atoms = append(r.Atoms, Atom{Name: "SOI", Marker: MarkerSOI, Offset: 0})

	pos := 2
	for pos < len(data) {
		if data[pos] != 0xFF {
			start := pos
			for pos < len(data) && data[pos] != 0xFF {
				pos++
			}
			r.addFinding(CodeStrayBytes, start, "%d bytes where a marker was expected", pos-start)
			continue
		}

		// Any number of 0xFF fill bytes may precede a marker code.
		for pos < len(data) && data[pos] == 0xFF {
			pos++
		}
		if pos >= len(data) {
			r.Truncated = true
			r.addFinding(CodeTruncated, pos-1, "buffer ends inside a marker")
			return
		}
		code := data[pos]
		markerOff := pos - 1
		pos++

		switch {
		case code == 0x00:
			r.addFinding(CodeStrayBytes, markerOff, "stuffed 0xFF00 outside scan data")
			continue
		case code == MarkerSOI:
			r.addFinding(CodeUnexpectedStart, markerOff, "SOI marker inside the stream")
			r.Atoms = append(r.Atoms, Atom{Name: "SOI", Marker: code, Offset: markerOff})
			continue
		case isStandalone(code):
			r.Atoms = append(r.Atoms, Atom{Name: MarkerName(code), Marker: code, Offset: markerOff})
			continue
		case code == MarkerEOI:
			r.Atoms = append(r.Atoms, Atom{Name: "EOI", Marker: code, Offset: markerOff})
			r.TerminalFound = true
			if trailing := len(data) - pos; trailing > 0 {
				r.TrailingBytes = trailing
				r.addFinding(CodeTrailingData, pos, "%d bytes after EOI", trailing)
			}
			return
		}

		if pos+2 > len(data) {
			r.Truncated = true
			r.addFinding(CodeTruncated, markerOff, "%s length field cut off", MarkerName(code))
			return
		}
		segLen := int(binary.BigEndian.Uint16(data[pos:]))
		atom := Atom{Name: MarkerName(code), Marker: code, Offset: markerOff, Length: segLen}
		if segLen < 2 {
			r.Atoms = append(r.Atoms, atom)
			r.addFinding(CodeBadLength, markerOff, "%s declares length %d", atom.Name, segLen)
			return
		}
		if pos+segLen > len(data) {
			r.Atoms = append(r.Atoms, atom)
			r.Truncated = true
			r.addFinding(CodeLengthOverrun, markerOff, "%s declares %d bytes, %d remain",
				atom.Name, segLen, len(data)-pos)
			return
		}
		r.Atoms = append(r.Atoms, atom)

		// Frame header payload: precision(1) height(2) width(2) components(1).
		if IsSOF(code) && segLen >= 8 && r.Width == 0 {
			r.BitDepth = int(data[pos+2])
			r.Height = int(binary.BigEndian.Uint16(data[pos+3:]))
			r.Width = int(binary.BigEndian.Uint16(data[pos+5:]))
		}
		pos += segLen

		if code == MarkerSOS {
			next, ok := skipScan(data, pos)
			if !ok {
				r.Truncated = true
				r.addFinding(CodeTruncated, len(data), "scan data runs to end of buffer without EOI")
				return
			}
			pos = next
		}
	}

	r.Truncated = true
	r.addFinding(CodeTruncated, len(data), "no EOI marker before end of buffer")
}

// skipScan advances over entropy-coded data starting at pos and returns
// the offset of the next real marker. Stuffed 0xFF00 pairs and restart
// markers belong to the scan.
func skipScan(data []byte, pos int) (int, bool) {
	for pos+1 < len(data) {
		if data[pos] != 0xFF {
			pos++
			continue
		}
		next := data[pos+1]
		switch {
		case next == 0x00, next >= MarkerRST0 && next <= MarkerRST7:
			pos += 2
		case next == 0xFF:
			pos++
		default:
			return pos, true
		}
	}
	return len(data), false
}
