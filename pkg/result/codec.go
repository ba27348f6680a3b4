package result

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// magic is the fixed 4-byte header identifying a .crr file (§6).
var magic = [4]byte{'C', 'R', 'R', 0}

// fileVersion is the .crr format version written by this implementation.
const fileVersion byte = 1

// CodecID selects the compression applied to a .crr file's body.
type CodecID byte

const (
	// CodecNone stores the body uncompressed.
	CodecNone CodecID = 0
	// CodecZstd compresses the body with the standard streaming codec
	// (zstd), per §4.8/§6.
	CodecZstd CodecID = 1
)

// Save serializes r to a .crr container: magic + version + codec-id +
// compressed JSON body. The body is always JSON; only the outer
// compression varies with codec.
func Save(r *RawResult, codec CodecID) ([]byte, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("result: marshal: %w", err)
	}

	var compressed []byte
	switch codec {
	case CodecNone:
		compressed = body
	case CodecZstd:
		var buf bytes.Buffer
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, fmt.Errorf("result: zstd writer: %w", err)
		}
		if _, err := w.Write(body); err != nil {
			w.Close()
			return nil, fmt.Errorf("result: zstd write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("result: zstd close: %w", err)
		}
		compressed = buf.Bytes()
	default:
		return nil, fmt.Errorf("result: unknown codec id %d", codec)
	}

	out := make([]byte, 0, 6+len(compressed))
	out = append(out, magic[:]...)
	out = append(out, fileVersion, byte(codec))
	out = append(out, compressed...)
	return out, nil
}

// Load decodes a .crr container written by Save. Unknown version or
// codec-id values are a hard decode error (§6, §9: "unknown fields ...
// must cause a decode error, not silent ignore").
func Load(data []byte) (*RawResult, error) {
	if len(data) < 6 {
		return nil, fmt.Errorf("result: %w: file too short", errInvalid)
	}
	if !bytes.Equal(data[:4], magic[:]) {
		return nil, fmt.Errorf("result: %w: bad magic", errInvalid)
	}
	version := data[4]
	if version != fileVersion {
		return nil, fmt.Errorf("result: %w: unsupported version %d", errInvalid, version)
	}
	codec := CodecID(data[5])
	body := data[6:]

	var jsonBody []byte
	switch codec {
	case CodecNone:
		jsonBody = body
	case CodecZstd:
		r, err := zstd.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("result: %w: zstd reader: %v", errInvalid, err)
		}
		defer r.Close()
		decoded, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("result: %w: zstd decode: %v", errInvalid, err)
		}
		jsonBody = decoded
	default:
		return nil, fmt.Errorf("result: %w: unsupported codec id %d", errInvalid, codec)
	}

	dec := json.NewDecoder(bytes.NewReader(jsonBody))
	dec.DisallowUnknownFields()
	var r RawResult
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("result: %w: %v", errInvalid, err)
	}
	return &r, nil
}
