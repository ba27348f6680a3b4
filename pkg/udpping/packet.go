// Package udpping implements the fixed-size UDP packet the latency
// channel exchanges (§4.1, §4.3): 24 bytes, seq | client_send_us |
// server_recv_us. It is hand-rolled binary rather than JSON because the
// wire size is fixed and known up front.
package udpping

import (
	"encoding/binary"
	"fmt"
)

// Size is the fixed wire size of a Packet.
const Size = 24

// Packet is one latency probe or echo.
type Packet struct {
	Seq uint64
	// ClientSendUs is the client's send timestamp, in the client's local
	// microsecond timebase.
	ClientSendUs int64
	// ServerRecvUs is the server's receive timestamp. It is zero on the
	// client->server leg and filled in by the server before echoing.
	ServerRecvUs int64
}

// Marshal encodes p into a new 24-byte buffer.
func (p Packet) Marshal() []byte {
	buf := make([]byte, Size)
	p.MarshalTo(buf)
	return buf
}

// MarshalTo encodes p into buf, which must be at least Size bytes long.
func (p Packet) MarshalTo(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], p.Seq)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(p.ClientSendUs))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(p.ServerRecvUs))
}

// Unmarshal decodes a Packet from buf, which must be exactly Size bytes.
func Unmarshal(buf []byte) (Packet, error) {
	if len(buf) != Size {
		return Packet{}, fmt.Errorf("udpping: expected %d bytes, got %d", Size, len(buf))
	}
	return Packet{
		Seq:          binary.LittleEndian.Uint64(buf[0:8]),
		ClientSendUs: int64(binary.LittleEndian.Uint64(buf[8:16])),
		ServerRecvUs: int64(binary.LittleEndian.Uint64(buf[16:24])),
	}, nil
}
