package client

import (
	"context"
	"net"
	"time"

	"github.com/richb-hanover/crusader/internal/latencychan"
	"github.com/richb-hanover/crusader/pkg/result"
)

// latencyRunner owns the UDP latency channel's lifetime across the whole
// test (§4.3): one continuous timeline spanning every leg's grace windows
// and the idle gap between sequential legs, not one channel per leg.
type latencyRunner struct {
	cancel context.CancelFunc
	done   chan []result.LatencySample
}

// startLatency opens the latency channel against remote and starts
// sending probes immediately, timestamped relative to t0. The caller
// stops it with stop() once the last leg's GraceEnd has elapsed.
func startLatency(conn net.PacketConn, remote net.Addr, interval time.Duration, offset time.Duration, t0 time.Time) *latencyRunner {
	ctx, cancel := context.WithCancel(context.Background())
	c := latencychan.NewClient(conn, remote, interval, t0, offset)

	done := make(chan []result.LatencySample, 1)
	go func() {
		done <- c.Run(ctx)
	}()

	return &latencyRunner{cancel: cancel, done: done}
}

func (l *latencyRunner) stop() []result.LatencySample {
	l.cancel()
	return <-l.done
}
