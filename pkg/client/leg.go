package client

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/richb-hanover/crusader/internal/loadchan"
	"github.com/richb-hanover/crusader/internal/netx"
	"github.com/richb-hanover/crusader/pkg/crusaderr"
	"github.com/richb-hanover/crusader/pkg/result"
	"github.com/richb-hanover/crusader/pkg/wire"
)

type clientStream struct {
	conn      net.Conn
	id        uint32
	direction result.Direction
}

// runLeg drives one load leg end to end: Setup, GraceBegin, LoadRun,
// GraceEnd, Collect (§4.5). startLat, if non-nil, is called once
// Setup/association has completed and GraceBegin begins; the first
// call to runLeg in a test uses it to start the UDP latency channel at
// this exact instant, so its t0 shares a zero point with this leg's own
// (time.Now() after GraceDuration, computed below).
func (e *Engine) runLeg(ctx context.Context, lg leg, startLat func()) error {
	e.setPhase(PhaseSetup)
	streams, err := e.dialAndAssociate(ctx, lg)
	if err != nil {
		return err
	}
	defer closeStreams(streams)

	e.setPhase(PhaseGraceBegin)
	if startLat != nil {
		startLat()
	}
	select {
	case <-time.After(e.cfg.GraceDuration):
	case <-ctx.Done():
		return ctx.Err()
	}

	e.setPhase(PhaseLoadRun)
	t0 := time.Now()
	startAtUs := t0.UnixMicro() + e.offset.Microseconds()
	durationUs := uint64(e.cfg.LoadDuration.Microseconds())
	if err := wire.WriteFrame(e.control, wire.TagScheduledLoads, wire.ScheduledLoads{StartAtUs: startAtUs, DurationUs: durationUs}); err != nil {
		return err
	}

	legErr := e.runStreams(ctx, streams, t0)

	e.setPhase(PhaseGraceEnd)
	select {
	case <-time.After(e.cfg.GraceDuration):
	case <-ctx.Done():
	}

	e.setPhase(PhaseCollect)
	streamDirs := make(map[uint32]result.Direction, len(streams))
	for _, st := range streams {
		streamDirs[st.id] = st.direction
	}
	if err := e.collect(streamDirs); err != nil && legErr == nil {
		legErr = err
	}

	return legErr
}

func (e *Engine) runStreams(ctx context.Context, streams []clientStream, t0 time.Time) error {
	loadCtx, cancel := context.WithTimeout(ctx, e.cfg.LoadDuration)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var legErr error

	for _, st := range streams {
		st := st
		wg.Add(1)
		go func() {
			defer wg.Done()
			lc := loadchan.New(st.conn, st.id, st.direction, t0, e.cfg.ThroughputSampleInterval)

			var samples []result.ThroughputSample
			var err error
			switch st.direction {
			case result.Down:
				samples, _, err = lc.Download(loadCtx, nil)
			case result.Up:
				samples, _, err = lc.Upload(loadCtx, loadchan.NewPattern())
			}

			mu.Lock()
			e.mu.Lock()
			e.throughput = append(e.throughput, samples...)
			e.mu.Unlock()
			if err != nil {
				log.Debug("load stream ended", "stream", st.id, "direction", st.direction, "err", err)
				legErr = crusaderr.ErrStreamLoss
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	return legErr
}

// dialAndAssociate opens the load streams for lg, staggered by
// StreamStagger if set, and must complete within associationTimeout
// (§4.5, §7 AssociationTimeout).
func (e *Engine) dialAndAssociate(ctx context.Context, lg leg) ([]clientStream, error) {
	ctx, cancel := context.WithTimeout(ctx, associationTimeout)
	defer cancel()

	var directions []result.Direction
	if lg.download {
		directions = append(directions, result.Down)
	}
	if lg.upload {
		directions = append(directions, result.Up)
	}

	var streams []clientStream
	var id uint32
	for _, dir := range directions {
		for i := uint32(0); i < e.cfg.Streams; i++ {
			if e.cfg.StreamStagger > 0 && id > 0 {
				select {
				case <-time.After(e.cfg.StreamStagger):
				case <-ctx.Done():
					closeStreams(streams)
					return nil, crusaderr.ErrAssociationTimeout
				}
			}
			conn, err := e.dialStream(ctx, id, dir)
			if err != nil {
				closeStreams(streams)
				return nil, crusaderr.ErrAssociationTimeout
			}
			streams = append(streams, clientStream{conn: conn, id: id, direction: dir})
			id++
		}
	}
	return streams, nil
}

func (e *Engine) dialStream(ctx context.Context, id uint32, dir result.Direction) (net.Conn, error) {
	addr := net.JoinHostPort(e.cfg.Server.Host, strconv.Itoa(int(e.cfg.Server.Port)))
	d := net.Dialer{LocalAddr: tcpLocalAddr(e.bindIP)}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		conn = netx.FromTCPConn(tc)
	}

	wireDir := wire.Down
	if dir == result.Up {
		wireDir = wire.Up
	}
	if err := wire.WriteFrame(conn, wire.TagAssociateLoad, wire.AssociateLoad{ID: e.testID, Group: id, Direction: wireDir}); err != nil {
		conn.Close()
		return nil, err
	}

	if dir == result.Down {
		err = wire.WriteFrame(e.control, wire.TagLoadFromServer, wire.LoadFromServer{
			Stream: id, DurationUs: uint64(e.cfg.LoadDuration.Microseconds()),
		})
	} else {
		err = wire.WriteFrame(e.control, wire.TagLoadFromClient, wire.LoadFromClient{
			Stream: id, BandwidthIntervalUs: uint64(e.cfg.ThroughputSampleInterval.Microseconds()),
		})
	}
	if err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (e *Engine) collect(streamDirs map[uint32]result.Direction) error {
	if err := wire.WriteFrame(e.control, wire.TagStopMeasurements, wire.StopMeasurements{}); err != nil {
		return err
	}
	if err := wire.WriteFrame(e.control, wire.TagGetMeasurements, wire.GetMeasurements{}); err != nil {
		return err
	}

	e.control.SetReadDeadline(time.Now().Add(getMeasurementsTimeout))
	defer e.control.SetReadDeadline(time.Time{})

	for {
		f, err := wire.ReadFrame(e.control)
		if err != nil {
			return err
		}
		switch f.Tag {
		case wire.TagServerMeasurement:
			var m wire.ServerMeasurement
			if err := f.Decode(&m); err != nil {
				continue
			}
			e.mu.Lock()
			e.serverThroughput = append(e.serverThroughput, result.ThroughputSample{
				Time:            m.TimeUs,
				BytesCumulative: m.Bytes,
				StreamID:        m.Stream,
				Direction:       streamDirs[m.Stream],
			})
			e.mu.Unlock()
		case wire.TagDone:
			var d wire.Done
			f.Decode(&d)
			if d.LateStart {
				e.mu.Lock()
				e.lateStart = true
				e.mu.Unlock()
			}
			return nil
		default:
			log.Debug("unexpected frame during collect", "tag", f.Tag)
		}
	}
}

func closeStreams(streams []clientStream) {
	for _, st := range streams {
		st.conn.Close()
	}
}
