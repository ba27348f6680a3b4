// Package crusaderr defines the error kinds the measurement engine
// surfaces to callers (§7).
package crusaderr

import "errors"

// Sentinel error kinds. Wrap with fmt.Errorf("...: %w", ErrX) to attach
// detail while keeping errors.Is comparisons working.
var (
	// ErrProtocolMismatch means the peers' Hello.Protocol values differ.
	ErrProtocolMismatch = errors.New("crusader: protocol version mismatch")

	// ErrServerOverload means the server refused NewClient with
	// overload=true.
	ErrServerOverload = errors.New("crusader: server overloaded")

	// ErrSyncFailed means fewer than 20 time-sync triples returned within
	// 3 seconds.
	ErrSyncFailed = errors.New("crusader: time sync failed")

	// ErrAssociationTimeout means one or more load streams failed to
	// associate within 5 seconds of dialing.
	ErrAssociationTimeout = errors.New("crusader: load stream association timed out")

	// ErrStreamLoss means one or more load streams closed mid-test. The
	// client engine does not return it from Run: it sets Partial=true on
	// the result and returns that result with a nil error.
	ErrStreamLoss = errors.New("crusader: load stream lost mid-test")

	// ErrLatencyTimeout means no UDP echoes arrived for the entire test.
	ErrLatencyTimeout = errors.New("crusader: no latency echoes received")

	// ErrIoError wraps an underlying socket/file failure during a
	// non-critical phase.
	ErrIoError = errors.New("crusader: io error")

	// ErrInvalidResult means a .crr file failed its magic/version/codec
	// check on load.
	ErrInvalidResult = errors.New("crusader: invalid result file")

	// ErrPeerLatencyBusy means a second StartPeerLatency was requested
	// while one was already active (§9 Open Question, decided: reject).
	ErrPeerLatencyBusy = errors.New("crusader: peer latency already active")
)
