// Package server implements the Crusader server side (§4.6): the
// control-channel accept loop, per-test sessions, the shared UDP latency
// responder, and the optional discovery responder.
package server

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/richb-hanover/crusader/internal/fleet"
	"github.com/richb-hanover/crusader/internal/latencychan"
	"github.com/richb-hanover/crusader/internal/netx"
	"github.com/richb-hanover/crusader/internal/timesync"
	"github.com/richb-hanover/crusader/pkg/crusaderr"
	"github.com/richb-hanover/crusader/pkg/result"
	"github.com/richb-hanover/crusader/pkg/udpping"
	"github.com/richb-hanover/crusader/pkg/wire"
)

// Server accepts control connections, associates load streams with the
// Session they belong to, and runs the shared UDP latency/discovery
// responder for its listening port.
type Server struct {
	listener *netx.Listener
	udpConn  net.PacketConn

	fleet  *fleet.Map[*Session]
	nextID atomic.Uint64

	// id is minted once per process so discovery replies let a client
	// that hears more than one server on a shared subnet tell them
	// apart even if their hostnames collide.
	id string
}

// New wraps an already-bound TCP listener and UDP socket. Both must be
// bound to the same port by the caller (§6's "UDP broadcast on the
// server port").
func New(tcpListener *net.TCPListener, udpConn net.PacketConn) *Server {
	fl := fleet.New[*Session](fleet.DefaultCapacity, func(id string, sess *Session) {
		sess.Close()
	})
	return &Server{
		listener: netx.NewListener(tcpListener),
		udpConn:  udpConn,
		fleet:    fl,
		id:       uuid.NewString(),
	}
}

// Serve runs the accept loop, the UDP responder, until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	go s.udpLoop(ctx)

	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handleConn(ctx, conn)
	}
}

// handleConn reads the connection's first frame to decide whether it is
// a fresh control connection (Hello) or a load stream being associated
// to an existing session (AssociateLoad), per §4.1.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	f, err := wire.ReadFrame(conn)
	if err != nil {
		log.Debug("failed to read first frame", "err", err)
		conn.Close()
		return
	}

	switch f.Tag {
	case wire.TagHello:
		s.handleControl(ctx, conn, f)
	case wire.TagAssociateLoad:
		s.handleLoadStream(conn, f)
	default:
		log.Debug("unexpected first frame on new connection", "tag", f.Tag)
		conn.Close()
	}
}

func (s *Server) handleLoadStream(conn net.Conn, f wire.Frame) {
	var assoc wire.AssociateLoad
	if err := f.Decode(&assoc); err != nil {
		log.Debug("malformed AssociateLoad", "err", err)
		conn.Close()
		return
	}
	sess, ok := s.fleet.Get(strconv.FormatUint(assoc.ID, 10))
	if !ok {
		log.Debug("AssociateLoad for unknown test", "id", assoc.ID)
		conn.Close()
		return
	}
	sess.Associate(assoc.Group, result.Direction(assoc.Direction), conn)
}

func (s *Server) handleControl(ctx context.Context, conn net.Conn, hello wire.Frame) {
	var h wire.Hello
	if err := hello.Decode(&h); err != nil || h.Magic != wire.HelloMagic {
		log.Debug("malformed or mismatched Hello", "err", err)
		conn.Close()
		return
	}
	if h.Protocol != wire.ProtocolVersion {
		wire.WriteFrame(conn, wire.TagError, wire.Error{Message: crusaderr.ErrProtocolMismatch.Error()})
		conn.Close()
		return
	}
	if err := wire.WriteFrame(conn, wire.TagHello, wire.Hello{Magic: wire.HelloMagic, Protocol: wire.ProtocolVersion}); err != nil {
		conn.Close()
		return
	}

	f, err := wire.ReadFrame(conn)
	if err != nil || f.Tag != wire.TagNewClient {
		conn.Close()
		return
	}

	id := s.nextID.Add(1)
	sess := NewSession(id, conn)

	overload := s.fleet.Insert(strconv.FormatUint(id, 10), sess)
	if overload {
		sessionsOverloaded.Inc()
		wire.WriteFrame(conn, wire.TagNewClientResponse, wire.NewClientResponse{ID: id, Overload: true})
		conn.Close()
		return
	}
	sessionsTotal.Inc()
	sessionsActive.Inc()
	defer func() {
		sessionsActive.Dec()
		s.fleet.Retire(strconv.FormatUint(id, 10))
	}()

	if err := wire.WriteFrame(conn, wire.TagNewClientResponse, wire.NewClientResponse{ID: id, Overload: false}); err != nil {
		return
	}

	s.runControlLoop(ctx, sess, conn)
}

// runControlLoop dispatches every subsequent control-channel message for
// a session until the connection closes or stays idle for 30 s (§4.1,
// §4.5). StopMeasurements does not end the loop.
func (s *Server) runControlLoop(ctx context.Context, sess *Session, conn net.Conn) {
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	for {
		f, err := wire.ReadFrame(conn)
		if err != nil {
			log.Debug("control connection closed", "id", sess.ID, "err", err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		if handled, err := timesync.HandleFrame(conn, f); handled {
			if err != nil {
				log.Debug("failed to echo time-sync probe", "id", sess.ID, "err", err)
				return
			}
			continue
		}

		switch f.Tag {
		case wire.TagLoadFromServer:
			var m wire.LoadFromServer
			if f.Decode(&m) == nil {
				sess.SetLoadFromServer(m.Stream, m.DurationUs)
			}
		case wire.TagLoadFromClient:
			var m wire.LoadFromClient
			if f.Decode(&m) == nil {
				sess.SetLoadFromClient(m.Stream, m.BandwidthIntervalUs)
			}
		case wire.TagScheduledLoads:
			var m wire.ScheduledLoads
			if f.Decode(&m) == nil {
				startAt := time.UnixMicro(m.StartAtUs)
				go sess.RunLoad(ctx, startAt, m.DurationUs)
			}
		case wire.TagStopMeasurements:
			// Nothing to do beyond letting in-flight stream contexts
			// expire on their own durations; GetMeasurements reads
			// whatever has accumulated so far.
		case wire.TagGetMeasurements:
			s.sendMeasurements(conn, sess)
		default:
			log.Debug("unexpected control message", "id", sess.ID, "tag", f.Tag)
		}
	}
}

func (s *Server) sendMeasurements(conn net.Conn, sess *Session) {
	for _, m := range sess.Measurements() {
		if err := wire.WriteFrame(conn, wire.TagServerMeasurement, m); err != nil {
			return
		}
	}
	wire.WriteFrame(conn, wire.TagDone, wire.Done{LateStart: sess.LateStart()})
}

// udpLoop demultiplexes the shared UDP socket between the latency
// channel's fixed-size binary probes and discovery's JSON datagrams
// (§4.3, §6).
func (s *Server) udpLoop(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.udpConn.Close()
	}()

	buf := make([]byte, 512)
	for {
		n, addr, err := s.udpConn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		if n == udpping.Size {
			s.echoLatencyProbe(buf[:n], addr)
			continue
		}
		s.handleDiscovery(buf[:n], addr)
	}
}

func (s *Server) echoLatencyProbe(data []byte, addr net.Addr) {
	reply, ok := latencychan.Echo(data)
	if !ok {
		return
	}
	s.udpConn.WriteTo(reply, addr)
}

func (s *Server) handleDiscovery(data []byte, addr net.Addr) {
	var hello wire.DiscoveryHello
	if err := json.Unmarshal(data, &hello); err != nil || hello.Magic != wire.HelloMagic {
		return
	}
	hostname, _ := os.Hostname()
	reply, err := json.Marshal(wire.DiscoveryReply{Hostname: hostname, Protocol: wire.ProtocolVersion, ServerID: s.id})
	if err != nil {
		return
	}
	discoveryRepliesTotal.Inc()
	s.udpConn.WriteTo(reply, addr)
}
