package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	tiffASCII     = 2
	tiffUndefined = 7

	tagExifIFD     = 0x8769
	tagUserComment = 0x9286

	maxIFDEntries = 512
)

var exifTagNames = map[uint16]string{
	0x010D: "DocumentName",
	0x010E: "ImageDescription",
	0x010F: "Make",
	0x0110: "Model",
	0x0131: "Software",
	0x0132: "DateTime",
	0x013B: "Artist",
	0x013C: "HostComputer",
	0x8298: "Copyright",
	0x9003: "DateTimeOriginal",
	0x9004: "DateTimeDigitized",
	0x9286: "UserComment",
}

// exifFields reads the ASCII tags of IFD0 and of the Exif sub-IFD from a
// TIFF-structured EXIF block. Malformed blocks yield whatever was read
// before the damage.
func exifFields(tiff []byte, fields map[string]string) {
	if len(tiff) < 8 {
		return
	}
	var order binary.ByteOrder
	switch {
	case bytes.HasPrefix(tiff, []byte("II*\x00")):
		order = binary.LittleEndian
	case bytes.HasPrefix(tiff, []byte("MM\x00*")):
		order = binary.BigEndian
	default:
		return
	}

	sub := readIFD(tiff, order, int(order.Uint32(tiff[4:])), fields)
	if sub > 0 {
		readIFD(tiff, order, sub, fields)
	}
}

// readIFD stores the text entries of one IFD and returns the offset of the
// Exif sub-IFD, or zero.
func readIFD(tiff []byte, order binary.ByteOrder, off int, fields map[string]string) int {
	if off < 8 || off+2 > len(tiff) {
		return 0
	}
	n := int(order.Uint16(tiff[off:]))
	if n > maxIFDEntries {
		return 0
	}

	sub := 0
	for i := 0; i < n; i++ {
		e := off + 2 + i*12
		if e+12 > len(tiff) {
			break
		}
		tag := order.Uint16(tiff[e:])
		typ := order.Uint16(tiff[e+2:])
		count := int(order.Uint32(tiff[e+4:]))

		if tag == tagExifIFD {
			sub = int(order.Uint32(tiff[e+8:]))
			continue
		}
		if typ != tiffASCII && !(typ == tiffUndefined && tag == tagUserComment) {
			continue
		}
		if count < 0 || count > len(tiff) {
			continue
		}

		var raw []byte
		if count <= 4 {
			raw = tiff[e+8 : e+8+count]
		} else {
			start := int(order.Uint32(tiff[e+8:]))
			if start < 0 || start+count > len(tiff) {
				continue
			}
			raw = tiff[start : start+count]
		}
		if tag == tagUserComment && len(raw) >= 8 {
			raw = raw[8:] // character code prefix
		}
		raw = bytes.TrimRight(raw, "\x00 ")
		if len(raw) == 0 {
			continue
		}

		name, ok := exifTagNames[tag]
		if !ok {
			name = fmt.Sprintf("0x%04X", tag)
		}
		put(fields, "exif:"+name, string(bytes.ToValidUTF8(raw, nil)))
	}
	return sub
}
