package server

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/richb-hanover/crusader/internal/loadchan"
	"github.com/richb-hanover/crusader/internal/netx"
	"github.com/richb-hanover/crusader/pkg/result"
	"github.com/richb-hanover/crusader/pkg/wire"
)

// defaultSampleInterval is used for a download stream's self-measurement
// cadence when the client never supplies one (LoadFromClient's
// bandwidth_interval_us only applies to upload streams).
const defaultSampleInterval = time.Second

// loadStream is one TCP connection associated to a Session via
// AssociateLoad, plus whatever LoadFromServer/LoadFromClient parameters
// the control channel has attached to it so far.
type loadStream struct {
	conn      *netx.Conn
	direction result.Direction

	durationUs  uint64
	intervalUs  uint64
	hasDuration bool
	hasInterval bool

	samples []result.ThroughputSample
}

// Session is the server's state for one test (§4.6): the control socket,
// its arena of load streams keyed by stream id, and the samples collected
// from each once the load phase runs.
type Session struct {
	ID uint64

	control net.Conn

	mu      sync.Mutex
	streams map[uint32]*loadStream

	lateStart bool

	createdAt time.Time
}

// NewSession returns an empty Session bound to a freshly accepted control
// connection.
func NewSession(id uint64, control net.Conn) *Session {
	return &Session{
		ID:        id,
		control:   control,
		streams:   make(map[uint32]*loadStream),
		createdAt: time.Now(),
	}
}

// Associate registers conn as stream group/direction on this session,
// per AssociateLoad (§4.1).
func (s *Session) Associate(group uint32, direction result.Direction, conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[group] = &loadStream{conn: netx.ToConn(conn), direction: direction}
}

// SetLoadFromServer records the planned download duration for a stream.
func (s *Session) SetLoadFromServer(stream uint32, durationUs uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, ok := s.streams[stream]
	if !ok {
		return
	}
	ls.durationUs = durationUs
	ls.hasDuration = true
}

// SetLoadFromClient records the sampling interval the client wants for an
// upload stream's server-side measurement.
func (s *Session) SetLoadFromClient(stream uint32, intervalUs uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, ok := s.streams[stream]
	if !ok {
		return
	}
	ls.intervalUs = intervalUs
	ls.hasInterval = true
}

// RunLoad starts every associated stream's byte pump, per the
// ScheduledLoads start time (§4.5/§5). startAt is in the server's own
// clock; if it has already passed, the session tags itself LateStart and
// begins immediately.
func (s *Session) RunLoad(ctx context.Context, startAt time.Time, totalDurationUs uint64) {
	now := time.Now()
	if now.Before(startAt) {
		select {
		case <-time.After(startAt.Sub(now)):
		case <-ctx.Done():
			return
		}
	} else if now.Sub(startAt) > 0 {
		s.mu.Lock()
		s.lateStart = true
		s.mu.Unlock()
		log.Warn("scheduled load start already elapsed, starting immediately", "id", s.ID)
	}

	t0 := time.Now()

	s.mu.Lock()
	streams := make(map[uint32]*loadStream, len(s.streams))
	for k, v := range s.streams {
		streams[k] = v
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for id, ls := range streams {
		id, ls := id, ls
		durationUs := ls.durationUs
		if durationUs == 0 {
			durationUs = totalDurationUs
		}
		streamCtx, cancel := context.WithTimeout(ctx, time.Duration(durationUs)*time.Microsecond)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancel()
			s.pumpStream(streamCtx, id, ls, t0)
		}()
	}
	wg.Wait()
}

func (s *Session) pumpStream(ctx context.Context, id uint32, ls *loadStream, t0 time.Time) {
	interval := defaultSampleInterval
	if ls.hasInterval && ls.intervalUs > 0 {
		interval = time.Duration(ls.intervalUs) * time.Microsecond
	}
	stream := loadchan.New(ls.conn, id, ls.direction, t0, interval)

	var samples []result.ThroughputSample
	var err error
	switch ls.direction {
	case result.Down:
		samples, _, err = stream.Upload(ctx, loadchan.NewPattern())
	case result.Up:
		samples, _, err = stream.Download(ctx, nil)
	}
	if err != nil {
		log.Debug("load stream ended with error", "id", s.ID, "stream", id, "err", err)
	}

	s.mu.Lock()
	ls.samples = samples
	s.mu.Unlock()
}

// Measurements returns every stream's collected samples as ServerMeasurement
// frames, for GetMeasurements (§4.1).
func (s *Session) Measurements() []wire.ServerMeasurement {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []wire.ServerMeasurement
	for id, ls := range s.streams {
		for _, samp := range ls.samples {
			out = append(out, wire.ServerMeasurement{
				Stream: id,
				TimeUs: samp.Time,
				Bytes:  samp.BytesCumulative,
			})
		}
	}
	return out
}

// LateStart reports whether ScheduledLoads arrived after its announced
// start time.
func (s *Session) LateStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lateStart
}

// Close closes every load stream and the control connection.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ls := range s.streams {
		ls.conn.Close()
	}
	s.control.Close()
}
