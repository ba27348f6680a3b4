package client

import (
	"context"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/richb-hanover/crusader/internal/netx"
	"github.com/richb-hanover/crusader/internal/timesync"
	"github.com/richb-hanover/crusader/pkg/crusaderr"
	"github.com/richb-hanover/crusader/pkg/peerlatency"
	"github.com/richb-hanover/crusader/pkg/result"
	"github.com/richb-hanover/crusader/pkg/wire"
)

const (
	associationTimeout     = 5 * time.Second
	controlReadTimeout     = 30 * time.Second
	getMeasurementsTimeout = 30 * time.Second

	// peerLatencyBudget bounds how long a peer keeps measuring if this
	// engine crashes before calling Stop; the engine always stops the
	// session itself once the test's own timeline ends.
	peerLatencyBudget = 10 * time.Minute
)

// Engine drives one test's phase state machine (§4.5), from a dialed
// control connection through a final RawResult.
type Engine struct {
	cfg Config

	control  net.Conn
	bindIP   net.IP
	testID   uint64
	offset   time.Duration
	residual time.Duration

	mu        sync.Mutex
	phase     Phase
	partial   bool
	lateStart bool

	latencySamples   []result.LatencySample
	peerSamples      []result.PeerLatencySample
	peerLossPct      float64
	throughput       []result.ThroughputSample
	serverThroughput []result.ThroughputSample
}

// New dials the server's control connection, performs the Hello/NewClient
// handshake and clock sync, and returns a ready-to-Run Engine.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	bindIP, err := resolveBindIP(cfg.BindInterface)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(int(cfg.Server.Port)))
	d := net.Dialer{LocalAddr: tcpLocalAddr(bindIP)}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if tconn, ok := conn.(*net.TCPConn); ok {
		conn = netx.FromTCPConn(tconn)
	}

	e := &Engine{cfg: cfg, control: conn, bindIP: bindIP, phase: PhaseSetup}

	if err := e.handshake(); err != nil {
		conn.Close()
		return nil, err
	}

	syncRes, err := timesync.Sync(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	e.offset = syncRes.Offset
	e.residual = syncRes.Residual
	conn.SetReadDeadline(time.Time{})
	return e, nil
}

func (e *Engine) handshake() error {
	e.control.SetDeadline(time.Now().Add(controlReadTimeout))
	defer e.control.SetDeadline(time.Time{})

	if err := wire.WriteFrame(e.control, wire.TagHello, wire.Hello{Magic: wire.HelloMagic, Protocol: wire.ProtocolVersion}); err != nil {
		return err
	}
	f, err := wire.ReadFrame(e.control)
	if err != nil {
		return err
	}
	if f.Tag == wire.TagError {
		var e2 wire.Error
		f.Decode(&e2)
		return crusaderr.ErrProtocolMismatch
	}
	var h wire.Hello
	if err := f.Decode(&h); err != nil || h.Magic != wire.HelloMagic || h.Protocol != wire.ProtocolVersion {
		return crusaderr.ErrProtocolMismatch
	}

	if err := wire.WriteFrame(e.control, wire.TagNewClient, wire.NewClient{}); err != nil {
		return err
	}
	f, err = wire.ReadFrame(e.control)
	if err != nil {
		return err
	}
	var resp wire.NewClientResponse
	if err := f.Decode(&resp); err != nil {
		return err
	}
	if resp.Overload {
		return crusaderr.ErrServerOverload
	}
	e.testID = resp.ID
	return nil
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
	log.Debug("phase transition", "id", e.testID, "phase", p)
}

// Run executes every leg of the test (§4.5's tie-break rules on
// download/upload/bidirectional) and returns the aggregated RawResult.
// The UDP latency channel runs continuously for the whole test, starting
// once the first leg's Setup/association has completed and stopping
// once the last leg's GraceEnd completes (§4.3, §9 decided: one
// timeline, not one per leg, even though each leg gets its own grace
// windows). Its t0 is taken at that same point, right before the first
// leg's own GraceBegin wait, so it shares a virtual zero point with the
// load window's throughput timestamps instead of being anchored before
// dialAndAssociate (which can itself take up to associationTimeout).
func (e *Engine) Run(ctx context.Context) (*result.RawResult, error) {
	legs := e.legs()

	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: e.bindIP})
	if err != nil {
		e.setPhase(PhaseAborted)
		return nil, err
	}
	defer udpConn.Close()

	udpAddr := &net.UDPAddr{IP: resolveServerIP(e.cfg.Server.Host), Port: int(e.cfg.Server.Port)}

	var lat *latencyRunner
	startLat := func() {
		if lat != nil {
			return
		}
		lat = startLatency(udpConn, udpAddr, e.cfg.LatencySampleInterval, e.offset, time.Now().Add(e.cfg.GraceDuration))
	}

	var peer *peerlatency.Runner
	if e.cfg.LatencyPeerServer != nil {
		target := net.JoinHostPort(e.cfg.Server.Host, strconv.Itoa(int(e.cfg.Server.Port)))
		peer, err = peerlatency.Start(ctx, *e.cfg.LatencyPeerServer, target, peerLatencyBudget, e.cfg.LatencySampleInterval)
		if err != nil {
			log.Warn("peer latency session failed to start, continuing without it", "err", err)
			peer = nil
		}
	}

	e.setPhase(PhaseGraceBegin)
	if len(legs) == 0 {
		startLat()
		total := 2*e.cfg.GraceDuration + e.cfg.LoadDuration
		select {
		case <-time.After(total):
		case <-ctx.Done():
		}
	}

	for i, lg := range legs {
		if i > 0 {
			e.setPhase(PhaseIdle)
			time.Sleep(idleGap)
		}
		if err := e.runLeg(ctx, lg, startLat); err != nil {
			e.mu.Lock()
			e.partial = true
			e.mu.Unlock()
			log.Warn("leg aborted, continuing with partial result", "direction", lg, "err", err)
		}
	}

	if lat != nil {
		e.latencySamples = lat.stop()
	}
	if len(e.latencySamples) == 0 {
		e.mu.Lock()
		e.partial = true
		e.mu.Unlock()
	}

	if peer != nil {
		samples, err := peer.Stop()
		if err != nil {
			log.Warn("peer latency session ended with error", "err", err)
		}
		e.peerSamples = samples
		e.peerLossPct = peerLossPct(samples)
	}

	e.setPhase(PhaseAggregate)
	return e.aggregate(), nil
}

// leg names a load leg to run: which direction(s) of streams it dials,
// in the order §4.5's tie-break rules prescribe.
type leg struct {
	download bool
	upload   bool
}

func (l leg) String() string {
	switch {
	case l.download && l.upload:
		return "bidirectional"
	case l.download:
		return "download"
	default:
		return "upload"
	}
}

// legs returns the leg(s) to run, in order, per §4.5's tie-break rules.
func (e *Engine) legs() []leg {
	switch {
	case e.cfg.Bidirectional && e.cfg.Download && e.cfg.Upload:
		return []leg{{download: true, upload: true}}
	case e.cfg.Download && e.cfg.Upload:
		return []leg{{download: true}, {upload: true}}
	case e.cfg.Download:
		return []leg{{download: true}}
	case e.cfg.Upload:
		return []leg{{upload: true}}
	default:
		return nil
	}
}

func resolveServerIP(host string) net.IP {
	if ip := net.ParseIP(host); ip != nil {
		return ip
	}
	addrs, err := net.LookupIP(host)
	if err != nil || len(addrs) == 0 {
		return net.IPv4zero
	}
	return addrs[0]
}

func (e *Engine) clientHostname() string {
	h, _ := os.Hostname()
	return h
}

// peerLossPct computes the fraction of peer-latency probes that went
// unanswered.
func peerLossPct(samples []result.PeerLatencySample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var lost int
	for _, s := range samples {
		if s.ReceivedRemote == nil {
			lost++
		}
	}
	return float64(lost) / float64(len(samples))
}
