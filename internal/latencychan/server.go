package latencychan

import (
	"net"
	"time"

	"github.com/charmbracelet/log"
	"github.com/richb-hanover/crusader/pkg/udpping"
)

// Echo answers a single raw latency probe datagram: it stamps the
// server's receive time into server_recv_us and returns the packet to
// send back, per §4.3. ok is false if data wasn't a fresh probe (wrong
// size, or a stray echo of the server's own reply).
func Echo(data []byte) (reply []byte, ok bool) {
	pkt, err := udpping.Unmarshal(data)
	if err != nil {
		return nil, false
	}
	if pkt.ServerRecvUs != 0 {
		// Already carries a server timestamp; it is a stray echo of our
		// own reply, not a fresh probe.
		return nil, false
	}
	pkt.ServerRecvUs = time.Now().UnixMicro()
	return pkt.Marshal(), true
}

// ProcessPacketLoop is the server-side UDP latency responder for a
// socket dedicated entirely to latency probes. It runs until conn is
// closed. A server that shares its UDP socket with discovery traffic
// uses Echo directly instead (see pkg/server).
func ProcessPacketLoop(conn net.PacketConn) {
	log.Info("accepting UDP latency probes")
	buf := make([]byte, 512)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			log.Debug("udp latency channel closed", "err", err)
			return
		}
		reply, ok := Echo(buf[:n])
		if !ok {
			continue
		}
		if _, err := conn.WriteTo(reply, addr); err != nil {
			log.Debug("failed to echo latency probe", "addr", addr, "err", err)
		}
	}
}
