// Package loadchan implements the TCP load channel (§4.4): the byte pump
// for a single associated load stream, with its sampling ring, in both
// the upload and download directions.
package loadchan

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/richb-hanover/crusader/pkg/result"
)

// readBufSize is the chunk size used when draining a download stream. It
// is independent of PatternSize: the sender writes 1 MiB at a time but
// the receiver only needs a modest buffer to keep the byte counter fresh.
const readBufSize = 64 << 10

// Stream drives one direction of one load stream's byte pump and
// collects its throughput samples.
type Stream struct {
	conn     net.Conn
	streamID uint32
	dir      result.Direction
	t0       time.Time
	interval time.Duration
}

// New returns a Stream bound to conn. t0 is the test's time origin (used
// to produce Time-relative-to-t0 samples) and interval is the configured
// throughput_sample_interval.
func New(conn net.Conn, streamID uint32, dir result.Direction, t0 time.Time, interval time.Duration) *Stream {
	return &Stream{conn: conn, streamID: streamID, dir: dir, t0: t0, interval: interval}
}

// Upload writes pattern repeatedly to the stream until ctx is canceled or
// a write fails. It writes in a tight loop driven only by socket
// readiness — no pacing — per §4.4. It returns the down-sampled
// throughput series and the cumulative byte count actually written.
func (s *Stream) Upload(ctx context.Context, pattern []byte) ([]result.ThroughputSample, uint64, error) {
	sampler := newSampler(s.t0)
	var sent uint64

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		s.conn.SetWriteDeadline(time.Now())
		close(done)
	}()

	var writeErr error
	for {
		n, err := s.conn.Write(pattern)
		sent += uint64(n)
		if n > 0 {
			sampler.record(time.Now(), sent)
		}
		if err != nil {
			writeErr = err
			break
		}
	}
	<-done

	if isExpectedStop(writeErr) {
		writeErr = nil
	}
	sampler.finalize(time.Now(), sent)
	return sampler.downsample(s.t0, s.interval, s.streamID, s.dir), sent, writeErr
}

// Download reads from the stream until ctx is canceled, EOF, or a read
// fails. It returns the down-sampled throughput series and the
// cumulative byte count actually read.
func (s *Stream) Download(ctx context.Context, buf []byte) ([]result.ThroughputSample, uint64, error) {
	if buf == nil {
		buf = make([]byte, readBufSize)
	}
	sampler := newSampler(s.t0)
	var received uint64

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		s.conn.SetReadDeadline(time.Now())
		close(done)
	}()

	var readErr error
	for {
		n, err := s.conn.Read(buf)
		received += uint64(n)
		if n > 0 {
			sampler.record(time.Now(), received)
		}
		if err != nil {
			readErr = err
			break
		}
	}
	<-done

	if isExpectedStop(readErr) {
		readErr = nil
	}
	sampler.finalize(time.Now(), received)
	return sampler.downsample(s.t0, s.interval, s.streamID, s.dir), received, readErr
}

// isExpectedStop reports whether err is simply the load stream winding
// down cleanly (context cancellation, deadline, or peer EOF) rather than
// a genuine transport failure worth surfacing as StreamLoss (§7).
func isExpectedStop(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}
