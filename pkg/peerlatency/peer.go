// Package peerlatency implements the optional peer-latency sub-protocol
// (§4.7): a third host that measures UDP latency to the server
// independently from the client and streams its samples back to the
// client's control connection.
package peerlatency

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/richb-hanover/crusader/internal/latencychan"
	"github.com/richb-hanover/crusader/pkg/crusaderr"
	"github.com/richb-hanover/crusader/pkg/result"
	"github.com/richb-hanover/crusader/pkg/wire"
)

// drainInterval is how often the peer forwards newly accumulated
// LatencySamples to the client as PeerLatencySample frames.
const drainInterval = 200 * time.Millisecond

// Peer runs the sub-protocol's server side. It accepts one active
// StartPeerLatency session at a time (§9 Open Question, decided:
// reject a second concurrent session).
type Peer struct {
	mu     sync.Mutex
	active bool
}

// NewPeer returns an idle Peer ready to Serve.
func NewPeer() *Peer {
	return &Peer{}
}

// Serve accepts control connections on listener until ctx is canceled.
func (p *Peer) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go p.handleConn(ctx, conn)
	}
}

func (p *Peer) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	f, err := wire.ReadFrame(conn)
	if err != nil || f.Tag != wire.TagHello {
		return
	}
	var h wire.Hello
	if err := f.Decode(&h); err != nil || h.Magic != wire.HelloMagic {
		return
	}
	if h.Protocol != wire.ProtocolVersion {
		wire.WriteFrame(conn, wire.TagError, wire.Error{Message: crusaderr.ErrProtocolMismatch.Error()})
		return
	}
	if err := wire.WriteFrame(conn, wire.TagHello, wire.Hello{Magic: wire.HelloMagic, Protocol: wire.ProtocolVersion}); err != nil {
		return
	}

	f, err = wire.ReadFrame(conn)
	if err != nil || f.Tag != wire.TagStartPeerLatency {
		return
	}
	var start wire.StartPeerLatency
	if err := f.Decode(&start); err != nil {
		return
	}

	if !p.acquire() {
		wire.WriteFrame(conn, wire.TagError, wire.Error{Message: crusaderr.ErrPeerLatencyBusy.Error()})
		return
	}
	defer p.release()

	p.run(ctx, conn, start)
}

func (p *Peer) acquire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active {
		return false
	}
	p.active = true
	return true
}

func (p *Peer) release() {
	p.mu.Lock()
	p.active = false
	p.mu.Unlock()
}

// run measures latency to start.Target for up to start.DurationUs,
// forwarding samples to conn as they arrive, and stops early if conn
// sends StopPeerLatency or closes.
func (p *Peer) run(ctx context.Context, conn net.Conn, start wire.StartPeerLatency) {
	targetAddr, err := net.ResolveUDPAddr("udp", start.Target)
	if err != nil {
		log.Debug("peer latency target unresolvable", "target", start.Target, "err", err)
		return
	}
	sock, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		log.Debug("peer latency socket failed", "err", err)
		return
	}
	defer sock.Close()

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(start.DurationUs)*time.Microsecond)
	defer cancel()
	go watchStop(conn, cancel)

	interval := time.Duration(start.IntervalUs) * time.Microsecond
	client := latencychan.NewClient(sock, targetAddr, interval, time.Now(), 0)

	resultCh := make(chan struct{})
	go func() {
		defer close(resultCh)
		forwardLoop(runCtx, conn, client, start.SessionID)
	}()

	final := client.Run(runCtx)
	<-resultCh
	for _, s := range final {
		sendSample(conn, start.SessionID, s)
	}
	wire.WriteFrame(conn, wire.TagDone, wire.Done{})
}

// forwardLoop periodically drains newly completed samples from client
// and streams them to conn until runCtx is canceled.
func forwardLoop(runCtx context.Context, conn net.Conn, client *latencychan.Client, sessionID string) {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-runCtx.Done():
			return
		case <-ticker.C:
			for _, s := range client.Drain() {
				sendSample(conn, sessionID, s)
			}
		}
	}
}

// sendSample narrows a LatencySample down to the wire's
// PeerLatencySample shape (§3: no received_back field on the peer
// series, since the peer has no third leg back to the original client).
func sendSample(conn net.Conn, sessionID string, s result.LatencySample) {
	wire.WriteFrame(conn, wire.TagPeerLatencySample, wire.PeerLatencySample{
		SessionID:      sessionID,
		Sent:           s.Sent,
		ReceivedRemote: s.ReceivedRemote,
		Seq:            s.Seq,
	})
}

// watchStop reads conn for a StopPeerLatency message (or connection
// close) and cancels cancel when either occurs.
func watchStop(conn net.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		f, err := wire.ReadFrame(conn)
		if err != nil {
			return
		}
		if f.Tag == wire.TagStopPeerLatency {
			return
		}
	}
}
