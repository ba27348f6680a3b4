package wire

// Hello is exchanged first, in both directions, on every control
// connection. A protocol mismatch is fatal (§4.1, §7 ProtocolMismatch).
type Hello struct {
	Magic    uint64 `json:"magic"`
	Protocol uint32 `json:"protocol"`
}

// NewClient asks the server to allocate a new TestId.
type NewClient struct{}

// NewClientResponse is the server's reply to NewClient. Overload true
// means the server is at its session cap and the client must abort
// (§4.6, §7 ServerOverload).
type NewClientResponse struct {
	ID       uint64 `json:"id"`
	Overload bool   `json:"overload"`
}

// AssociateLoad binds a newly dialed TCP connection to an existing test,
// before any load bytes flow on it.
type AssociateLoad struct {
	ID        uint64    `json:"id"`
	Group     uint32    `json:"group"`
	Direction Direction `json:"direction"`
}

// LoadFromServer instructs the server to begin downloading (from the
// server's perspective, sending) bytes on the given stream for Duration.
type LoadFromServer struct {
	Stream     uint32 `json:"stream"`
	DurationUs uint64 `json:"duration_us"`
}

// LoadFromClient reserves a stream as an upload stream; the server will
// drain bytes from it and report periodic byte-received samples at the
// given interval.
type LoadFromClient struct {
	Stream              uint32 `json:"stream"`
	BandwidthIntervalUs uint64 `json:"bandwidth_interval_us"`
}

// GetMeasurements asks the server to stream back its ServerMeasurement
// samples, terminated by Done.
type GetMeasurements struct{}

// ServerMeasurement is one server-side throughput sample, sent in
// response to GetMeasurements.
type ServerMeasurement struct {
	Stream uint32 `json:"stream"`
	TimeUs int64  `json:"time_us"`
	Bytes  uint64 `json:"bytes"`
}

// Done terminates a GetMeasurements stream. LateStart carries the
// session's §5 ordering-guarantee flag back to the client.
type Done struct {
	LateStart bool `json:"late_start"`
}

// ScheduledLoads is sent by the client just before its local t=0 to
// announce when (in server time, already translated by the client) the
// server should start producing load bytes.
type ScheduledLoads struct {
	StartAtUs  int64  `json:"start_at_us"`
	DurationUs uint64 `json:"duration_us"`
}

// StopMeasurements marks the end of the client's load window. The server
// takes no action on it: its load streams stop when their own durations
// expire, and GetMeasurements reports whatever has accumulated by then.
type StopMeasurements struct{}

// StartPeerLatency asks a peer-latency server to measure latency to
// target independently from the client (§4.7). SessionID is a
// client-minted correlation id, echoed back on every PeerLatencySample
// so a client juggling more than one peer connection at once can
// demultiplex them.
type StartPeerLatency struct {
	Target     string `json:"target"`
	DurationUs uint64 `json:"duration_us"`
	IntervalUs uint64 `json:"interval_us"`
	SessionID  string `json:"session_id"`
}

// PeerLatencySample is one sample streamed back by a peer-latency server.
type PeerLatencySample struct {
	SessionID      string `json:"session_id"`
	Sent           int64  `json:"sent"`
	ReceivedRemote *int64 `json:"received_remote,omitempty"`
	Seq            uint64 `json:"seq"`
}

// StopPeerLatency tells a peer-latency server to stop and close.
type StopPeerLatency struct{}

// Error carries a fatal error message from one peer to the other.
type Error struct {
	Message string `json:"message"`
}

// DiscoveryHello is broadcast over UDP to the server port when a client
// has been left without an explicit server address (§6). It is a bare
// JSON datagram, not a length-framed control message, since there is no
// connection to frame over.
type DiscoveryHello struct {
	Magic    uint64 `json:"magic"`
	Port     uint16 `json:"port"`
	Protocol uint32 `json:"protocol"`
}

// DiscoveryReply is a server's unicast response to a DiscoveryHello.
// ServerID is a per-process id minted once at startup, letting a client
// that hears more than one reply on a shared subnet tell distinct
// servers apart even if their hostnames collide.
type DiscoveryReply struct {
	Hostname string `json:"hostname"`
	Protocol uint32 `json:"protocol"`
	ServerID string `json:"server_id"`
}

// Timestamp is one probe of the time-sync burst (§4.2).
type Timestamp struct {
	ID         uint32 `json:"id"`
	ClientTime int64  `json:"client_time"`
}

// TimestampEcho is the server's immediate echo of a Timestamp, with its
// own wall-clock time (Unix microseconds) appended.
type TimestampEcho struct {
	ID         uint32 `json:"id"`
	ClientTime int64  `json:"client_time"`
	ServerTime int64  `json:"server_time"`
}
