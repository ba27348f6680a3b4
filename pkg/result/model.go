// Package result holds the canonical RawResult record produced by a test
// (§3, §4.8) and its on-disk .crr codec.
package result

import "time"

// Endpoint is a host:port pair, used for Config.Server and
// Config.LatencyPeerServer.
type Endpoint struct {
	Host string `json:"host"`
	Port uint16 `json:"port"`
}

// Config is the immutable test configuration (§3). It is a fixed
// structure, never a free-form key/value bag, per the Design Notes.
type Config struct {
	Download      bool `json:"download"`
	Upload        bool `json:"upload"`
	Bidirectional bool `json:"bidirectional"`

	Streams uint32 `json:"streams"`

	StreamStagger time.Duration `json:"stream_stagger"`
	LoadDuration  time.Duration `json:"load_duration"`
	GraceDuration time.Duration `json:"grace_duration"`

	LatencySampleInterval    time.Duration `json:"latency_sample_interval"`
	ThroughputSampleInterval time.Duration `json:"throughput_sample_interval"`

	Server            *Endpoint `json:"server,omitempty"`
	LatencyPeerServer *Endpoint `json:"latency_peer_server,omitempty"`

	Port uint16 `json:"port"`
}

// Direction is the direction of bytes on a load stream.
type Direction string

const (
	Down Direction = "down"
	Up   Direction = "up"
)

// ThroughputSample is one point on a load stream's cumulative-bytes
// curve. For a given StreamID, Time is strictly increasing and
// BytesCumulative is non-decreasing (§3 invariant, §8 property 1).
type ThroughputSample struct {
	Time            int64     `json:"time"`
	BytesCumulative uint64    `json:"bytes_cumulative"`
	StreamID        uint32    `json:"stream_id"`
	Direction       Direction `json:"direction"`
}

// LatencySample is one round-trip (or lost) probe on the UDP latency
// channel. ReceivedRemote and ReceivedBack are nil when loss occurred on
// that leg (§3).
type LatencySample struct {
	Sent           int64  `json:"sent"`
	ReceivedRemote *int64 `json:"received_remote,omitempty"`
	ReceivedBack   *int64 `json:"received_back,omitempty"`
	Seq            uint64 `json:"seq"`
}

// PeerLatencySample is one probe from the optional peer-latency
// sub-protocol (§4.7).
type PeerLatencySample struct {
	Sent           int64  `json:"sent"`
	ReceivedRemote *int64 `json:"received_remote,omitempty"`
	Seq            uint64 `json:"seq"`
}

// RawResult is the pure-data record produced at the end of a test,
// whether it completed normally or was aborted with partial data (§3,
// §4.8).
type RawResult struct {
	ProtocolVersion uint32 `json:"protocol_version"`
	Config          Config `json:"config"`

	ServerHostname string `json:"server_hostname"`
	ClientHostname string `json:"client_hostname"`

	// SyncResidual is the dispersion of the clock-offset estimate computed
	// during time sync (§4.2), carried as a measure of timing uncertainty.
	SyncResidual time.Duration `json:"sync_residual"`

	Latency          []LatencySample     `json:"latency"`
	PeerLatency      []PeerLatencySample `json:"peer_latency,omitempty"`
	Throughput       []ThroughputSample  `json:"throughput"`
	ServerThroughput []ThroughputSample  `json:"server_throughput"`

	// Partial is set when one or more load streams failed mid-test but
	// the remaining data is still reported (§7 StreamLoss, GLOSSARY).
	Partial bool `json:"partial"`

	// LateStart is set when ScheduledLoads arrived at the server after
	// its announced start time, forcing the server to start immediately
	// (§5 ordering guarantee).
	LateStart bool `json:"late_start"`

	// PeerLossPct is the fraction of peer-latency probes that went
	// unanswered, if a peer-latency measurement ran.
	PeerLossPct float64 `json:"peer_loss_pct,omitempty"`
}
