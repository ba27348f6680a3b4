// Package wire implements the control-channel codec: length-prefixed
// frames carrying a one-byte tagged message, plus the tagged message
// types themselves (§4.1).
package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxFrameLength is the largest control-channel frame peers will accept.
// Frames larger than this are a protocol violation.
const MaxFrameLength = 16 << 20 // 16 MiB

// ProtocolVersion is the version exchanged in Hello. Peers on different
// versions cannot interoperate (§1 Non-goals: no cross-version
// compatibility).
const ProtocolVersion = 1

// HelloMagic is the fixed magic number exchanged in Hello.
const HelloMagic uint64 = 0x5E75_1000_5E75_1000

// ErrFrameTooLarge is returned when a peer announces a frame length over
// MaxFrameLength.
var ErrFrameTooLarge = errors.New("wire: frame exceeds maximum length")

// Tag identifies the kind of a control message.
type Tag byte

const (
	TagHello Tag = iota + 1
	TagNewClient
	TagNewClientResponse
	TagAssociateLoad
	TagLoadFromServer
	TagLoadFromClient
	TagGetMeasurements
	TagServerMeasurement
	TagDone
	TagScheduledLoads
	TagStopMeasurements
	TagStartPeerLatency
	TagPeerLatencySample
	TagStopPeerLatency
	TagError
	TagTimestamp
	TagTimestampEcho
)

func (t Tag) String() string {
	switch t {
	case TagHello:
		return "Hello"
	case TagNewClient:
		return "NewClient"
	case TagNewClientResponse:
		return "NewClientResponse"
	case TagAssociateLoad:
		return "AssociateLoad"
	case TagLoadFromServer:
		return "LoadFromServer"
	case TagLoadFromClient:
		return "LoadFromClient"
	case TagGetMeasurements:
		return "GetMeasurements"
	case TagServerMeasurement:
		return "ServerMeasurement"
	case TagDone:
		return "Done"
	case TagScheduledLoads:
		return "ScheduledLoads"
	case TagStopMeasurements:
		return "StopMeasurements"
	case TagStartPeerLatency:
		return "StartPeerLatency"
	case TagPeerLatencySample:
		return "PeerLatencySample"
	case TagStopPeerLatency:
		return "StopPeerLatency"
	case TagError:
		return "Error"
	case TagTimestamp:
		return "Timestamp"
	case TagTimestampEcho:
		return "TimestampEcho"
	default:
		return fmt.Sprintf("Tag(%d)", byte(t))
	}
}

// Direction identifies which way bytes flow on a load stream.
type Direction string

const (
	Down Direction = "down"
	Up   Direction = "up"
)

// Frame is a decoded control-channel message: its tag plus the raw JSON
// payload. Callers use Decode to unmarshal Payload into a concrete type
// once they know Tag.
type Frame struct {
	Tag     Tag
	Payload json.RawMessage
}

// WriteFrame encodes tag and msg as a length-prefixed frame and writes it
// to w. msg is marshaled as JSON; nil is encoded as an empty payload.
func WriteFrame(w io.Writer, tag Tag, msg interface{}) error {
	var payload []byte
	var err error
	if msg != nil {
		payload, err = json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("wire: marshal %s: %w", tag, err)
		}
	}
	body := make([]byte, 1+len(payload))
	body[0] = byte(tag)
	copy(body[1:], payload)

	if len(body) > MaxFrameLength {
		return ErrFrameTooLarge
	}

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// ReadFrame reads and decodes a single length-prefixed frame from r. It
// rejects frames whose announced length exceeds MaxFrameLength without
// reading the body, per §4.1.
func ReadFrame(r io.Reader) (Frame, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Frame{}, err
	}
	length := binary.LittleEndian.Uint64(lenBuf[:])
	if length > MaxFrameLength {
		return Frame{}, ErrFrameTooLarge
	}
	if length == 0 {
		return Frame{}, errors.New("wire: empty frame (missing tag byte)")
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, err
	}
	f := Frame{Tag: Tag(body[0])}
	if len(body) > 1 {
		f.Payload = json.RawMessage(body[1:])
	}
	return f, nil
}

// Decode unmarshals f's payload into v.
func (f Frame) Decode(v interface{}) error {
	if len(f.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(f.Payload, v)
}
