// Package timesync establishes the per-connection clock offset between
// client and server (§4.2): a short burst of round trips, whose results
// are combined into a single offset estimate plus a residual dispersion
// measure.
package timesync

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/richb-hanover/crusader/pkg/crusaderr"
	"github.com/richb-hanover/crusader/pkg/wire"
)

const (
	burstSize       = 100
	burstDuration   = 100 * time.Millisecond
	minTriples      = 20
	syncTimeout     = 3 * time.Second
	drainGracePause = 300 * time.Millisecond
)

// Result is the outcome of a successful Sync.
type Result struct {
	// Offset translates a server wall-clock timestamp (Unix microseconds)
	// into the client's wall-clock timebase: t_client = t_server - Offset.
	Offset time.Duration
	// Residual is the dispersion of the offset estimate across samples,
	// carried in the result as the "sync residual" (GLOSSARY).
	Residual time.Duration
	// Samples is the number of round trips the estimate was built from.
	Samples int
}

type triple struct {
	sendC time.Time
	recvC time.Time
	echoS int64 // server time, microseconds
}

// Sync runs the client side of the time-sync burst over conn. It returns
// crusaderr.ErrSyncFailed if fewer than minTriples round trips complete
// within syncTimeout, per §4.2.
func Sync(ctx context.Context, conn net.Conn) (Result, error) {
	deadline := time.Now().Add(syncTimeout)
	conn.SetDeadline(deadline)

	var sendMu sync.Mutex
	sendTimes := make(map[uint32]time.Time, burstSize)

	writeErrCh := make(chan error, 1)
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		interval := burstDuration / burstSize
		for i := uint32(0); i < burstSize; i++ {
			now := time.Now()
			sendMu.Lock()
			sendTimes[i] = now
			sendMu.Unlock()
			msg := wire.Timestamp{ID: i, ClientTime: now.UnixMicro()}
			if err := wire.WriteFrame(conn, wire.TagTimestamp, msg); err != nil {
				select {
				case writeErrCh <- err:
				default:
				}
				return
			}
			if i < burstSize-1 {
				time.Sleep(interval)
			}
		}
	}()

	var triMu sync.Mutex
	triples := make([]triple, 0, burstSize)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			f, err := wire.ReadFrame(conn)
			if err != nil {
				return
			}
			if f.Tag != wire.TagTimestampEcho {
				continue
			}
			var echo wire.TimestampEcho
			if err := f.Decode(&echo); err != nil {
				continue
			}
			recvC := time.Now()
			sendMu.Lock()
			sendC, ok := sendTimes[echo.ID]
			sendMu.Unlock()
			if !ok {
				continue
			}
			triMu.Lock()
			triples = append(triples, triple{sendC: sendC, recvC: recvC, echoS: echo.ServerTime})
			got := len(triples)
			triMu.Unlock()
			if got >= burstSize {
				return
			}
		}
	}()

	// stopBoth forces both background goroutines to exit and blocks until
	// they have, by pulling the deadline to now (which unblocks a pending
	// Read/Write immediately). Every return path runs this before handing
	// conn back to the caller, so nothing is left reading or writing it
	// behind the caller's back.
	stopBoth := func() {
		now := time.Now()
		conn.SetReadDeadline(now)
		conn.SetWriteDeadline(now)
		<-readDone
		<-writeDone
		conn.SetDeadline(time.Time{})
	}

	select {
	case <-writeDone:
	case err := <-writeErrCh:
		stopBoth()
		return Result{}, err
	case <-ctx.Done():
		stopBoth()
		return Result{}, ctx.Err()
	}

	select {
	case <-readDone:
	case <-time.After(drainGracePause):
	case <-ctx.Done():
	}
	stopBoth()

	triMu.Lock()
	got := append([]triple(nil), triples...)
	triMu.Unlock()

	log.Debug("time sync burst complete", "triples", len(got))
	if len(got) < minTriples {
		return Result{}, crusaderr.ErrSyncFailed
	}
	return estimate(got), nil
}
