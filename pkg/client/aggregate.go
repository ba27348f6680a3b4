package client

import (
	"github.com/richb-hanover/crusader/pkg/result"
	"github.com/richb-hanover/crusader/pkg/wire"
)

// aggregate merges everything collected over the test's lifetime into the
// pure-data RawResult (§3, §4.8).
func (e *Engine) aggregate() *result.RawResult {
	e.mu.Lock()
	r := &result.RawResult{
		ProtocolVersion:  wire.ProtocolVersion,
		Config:           e.cfg.toResultConfig(),
		ServerHostname:   e.cfg.Server.Host,
		ClientHostname:   e.clientHostname(),
		SyncResidual:     e.residual,
		Latency:          e.latencySamples,
		PeerLatency:      e.peerSamples,
		PeerLossPct:      e.peerLossPct,
		Throughput:       e.throughput,
		ServerThroughput: e.serverThroughput,
		Partial:          e.partial,
		LateStart:        e.lateStart,
	}
	e.mu.Unlock()

	e.setPhase(PhaseDone)
	return r
}
