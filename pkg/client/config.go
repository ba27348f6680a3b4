// Package client implements the Crusader client engine (§4.5): the phase
// state machine that drives a single test from handshake through result
// aggregation.
package client

import (
	"time"

	"github.com/richb-hanover/crusader/pkg/result"
)

// Config is the client-side test configuration (§3). It mirrors
// result.Config, which is echoed verbatim into the produced RawResult.
type Config struct {
	Server            result.Endpoint
	LatencyPeerServer *result.Endpoint

	// BindInterface, if set, pins every socket the engine opens (control,
	// load streams, the UDP latency channel) to this local interface's
	// address (Design Notes' list_interfaces() capability).
	BindInterface string

	Download      bool
	Upload        bool
	Bidirectional bool

	Streams       uint32
	StreamStagger time.Duration
	LoadDuration  time.Duration
	GraceDuration time.Duration

	LatencySampleInterval    time.Duration
	ThroughputSampleInterval time.Duration
}

// idleGap is the pause between the download and upload legs of a
// non-bidirectional, both-directions test (§4.5).
const idleGap = 2 * time.Second

func (c Config) toResultConfig() result.Config {
	return result.Config{
		Download:                 c.Download,
		Upload:                   c.Upload,
		Bidirectional:            c.Bidirectional,
		Streams:                  c.Streams,
		StreamStagger:            c.StreamStagger,
		LoadDuration:             c.LoadDuration,
		GraceDuration:            c.GraceDuration,
		LatencySampleInterval:    c.LatencySampleInterval,
		ThroughputSampleInterval: c.ThroughputSampleInterval,
		Server:                   &result.Endpoint{Host: c.Server.Host, Port: c.Server.Port},
		LatencyPeerServer:        c.LatencyPeerServer,
		Port:                     c.Server.Port,
	}
}
