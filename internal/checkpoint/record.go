package checkpoint

import (
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/ironsheep/image-integrity-mcp/internal/engine"
)

// recordVersion is bumped whenever the record layout changes. Records of
// another version are treated as missing.
const recordVersion = 1

// record is the on-disk form of one checkpoint entry.
type record struct {
	Version  int             `cbor:"v"`
	Identity engine.Identity `cbor:"id"`
	Report   *engine.Report  `cbor:"report"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	// Core Deterministic Encoding: the same report always produces the
	// same bytes. Levels are written through MarshalText as strings, and
	// times keep nanoseconds so identities compare exactly.
	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("checkpoint: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("checkpoint: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("checkpoint: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("checkpoint: zstd decoder initialization failed: " + err.Error())
	}
}

// encodeRecord returns the compressed record for id and rep.
func encodeRecord(id engine.Identity, rep *engine.Report) ([]byte, error) {
	raw, err := encMode.Marshal(record{Version: recordVersion, Identity: id, Report: rep})
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return zstdEncoder.EncodeAll(raw, nil), nil
}

// decodeRecord reverses encodeRecord.
func decodeRecord(data []byte) (record, error) {
	raw, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return record{}, fmt.Errorf("failed to decompress record: %w", err)
	}
	var rec record
	if err := decMode.Unmarshal(raw, &rec); err != nil {
		return record{}, fmt.Errorf("failed to decode record: %w", err)
	}
	return rec, nil
}

// recordName is the file name of the record for id.
func recordName(id engine.Identity) string {
	sum := blake3.Sum256([]byte(id.Key()))
	return hex.EncodeToString(sum[:]) + ".ckpt"
}
