package peerlatency

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/richb-hanover/crusader/internal/netx"
	"github.com/richb-hanover/crusader/pkg/crusaderr"
	"github.com/richb-hanover/crusader/pkg/result"
	"github.com/richb-hanover/crusader/pkg/wire"
)

const handshakeTimeout = 5 * time.Second

// Runner is the client-side half of one peer-latency session (§4.7): a
// dedicated control connection to latency_peer_server, streaming
// PeerLatencySamples back until Stop or the session's own duration
// elapses.
type Runner struct {
	conn net.Conn
	done chan []result.PeerLatencySample
	err  error
}

// Start dials server, negotiates the peer-latency sub-protocol, and
// asks the peer to measure latency to target for duration at interval.
// The returned Runner streams samples in the background; call Stop to
// end the session early and collect whatever arrived.
func Start(ctx context.Context, server result.Endpoint, target string, duration, interval time.Duration) (*Runner, error) {
	addr := net.JoinHostPort(server.Host, strconv.Itoa(int(server.Port)))
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		conn = netx.FromTCPConn(tc)
	}

	conn.SetDeadline(time.Now().Add(handshakeTimeout))
	if err := wire.WriteFrame(conn, wire.TagHello, wire.Hello{Magic: wire.HelloMagic, Protocol: wire.ProtocolVersion}); err != nil {
		conn.Close()
		return nil, err
	}
	f, err := wire.ReadFrame(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if f.Tag == wire.TagError {
		var e wire.Error
		f.Decode(&e)
		conn.Close()
		return nil, crusaderr.ErrProtocolMismatch
	}
	var h wire.Hello
	if err := f.Decode(&h); err != nil || h.Magic != wire.HelloMagic || h.Protocol != wire.ProtocolVersion {
		conn.Close()
		return nil, crusaderr.ErrProtocolMismatch
	}

	req := wire.StartPeerLatency{
		Target:     target,
		DurationUs: uint64(duration.Microseconds()),
		IntervalUs: uint64(interval.Microseconds()),
		SessionID:  uuid.NewString(),
	}
	if err := wire.WriteFrame(conn, wire.TagStartPeerLatency, req); err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetDeadline(time.Time{})

	r := &Runner{conn: conn, done: make(chan []result.PeerLatencySample, 1)}
	go r.readLoop()
	return r, nil
}

func (r *Runner) readLoop() {
	var samples []result.PeerLatencySample
	for {
		f, err := wire.ReadFrame(r.conn)
		if err != nil {
			log.Debug("peer latency connection ended", "err", err)
			r.done <- samples
			return
		}
		switch f.Tag {
		case wire.TagPeerLatencySample:
			var s wire.PeerLatencySample
			if f.Decode(&s) == nil {
				samples = append(samples, result.PeerLatencySample{
					Sent: s.Sent, ReceivedRemote: s.ReceivedRemote, Seq: s.Seq,
				})
			}
		case wire.TagDone:
			r.done <- samples
			return
		case wire.TagError:
			var e wire.Error
			f.Decode(&e)
			r.err = crusaderr.ErrPeerLatencyBusy
			r.done <- samples
			return
		default:
			log.Debug("unexpected frame on peer latency connection", "tag", f.Tag)
		}
	}
}

// Stop ends the session and returns every sample collected so far. It
// is safe to call even if the peer ended the session on its own.
func (r *Runner) Stop() ([]result.PeerLatencySample, error) {
	wire.WriteFrame(r.conn, wire.TagStopPeerLatency, wire.StopPeerLatency{})
	samples := <-r.done
	r.conn.Close()
	return samples, r.err
}
