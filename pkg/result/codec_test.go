package result_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/richb-hanover/crusader/pkg/crusaderr"
	"github.com/richb-hanover/crusader/pkg/result"
)

func sampleResult() *result.RawResult {
	remote := int64(1500)
	back := int64(3000)
	return &result.RawResult{
		ProtocolVersion: 1,
		Config: result.Config{
			Download:      true,
			Streams:       2,
			LoadDuration:  2 * time.Second,
			GraceDuration: time.Second,
		},
		ServerHostname: "server.example",
		ClientHostname: "client.example",
		SyncResidual:   500 * time.Microsecond,
		Latency: []result.LatencySample{
			{Sent: 0, ReceivedRemote: &remote, ReceivedBack: &back, Seq: 0},
			{Sent: 10000, Seq: 1},
		},
		Throughput: []result.ThroughputSample{
			{Time: 0, BytesCumulative: 1000, StreamID: 0, Direction: result.Down},
		},
		Partial: false,
	}
}

func TestSaveLoadRoundTripZstd(t *testing.T) {
	r := sampleResult()
	data, err := result.Save(r, result.CodecZstd)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := result.Load(data)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.ServerHostname != r.ServerHostname || len(got.Latency) != len(r.Latency) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, r)
	}
}

func TestSaveLoadRoundTripNone(t *testing.T) {
	r := sampleResult()
	data, err := result.Save(r, result.CodecNone)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := result.Load(data)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Config.Streams != r.Config.Streams {
		t.Fatalf("got streams %d, want %d", got.Config.Streams, r.Config.Streams)
	}
}

func TestSaveIsDeterministicForRepeatedSave(t *testing.T) {
	r := sampleResult()
	a, err := result.Save(r, result.CodecZstd)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	b, err := result.Save(r, result.CodecZstd)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	gotA, err := result.Load(a)
	if err != nil {
		t.Fatalf("Load a failed: %v", err)
	}
	gotB, err := result.Load(b)
	if err != nil {
		t.Fatalf("Load b failed: %v", err)
	}
	if gotA.ServerHostname != gotB.ServerHostname {
		t.Fatalf("expected consistent round trips")
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("expected repeated Save of the same result to produce identical bytes")
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	_, err := result.Load([]byte("NOTACRRFILEHEADERBYTES"))
	if !errors.Is(err, crusaderr.ErrInvalidResult) {
		t.Fatalf("expected ErrInvalidResult, got %v", err)
	}
}

func TestLoadRejectsUnknownVersion(t *testing.T) {
	data, err := result.Save(sampleResult(), result.CodecNone)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data[4] = 99
	_, err = result.Load(data)
	if !errors.Is(err, crusaderr.ErrInvalidResult) {
		t.Fatalf("expected ErrInvalidResult for bad version, got %v", err)
	}
}

func TestLoadRejectsUnknownCodec(t *testing.T) {
	data, err := result.Save(sampleResult(), result.CodecNone)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data[5] = 99
	_, err = result.Load(data)
	if !errors.Is(err, crusaderr.ErrInvalidResult) {
		t.Fatalf("expected ErrInvalidResult for bad codec, got %v", err)
	}
}

func TestLoadRejectsTruncatedFile(t *testing.T) {
	_, err := result.Load([]byte("CRR"))
	if !errors.Is(err, crusaderr.ErrInvalidResult) {
		t.Fatalf("expected ErrInvalidResult for truncated file, got %v", err)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	data, err := result.Save(sampleResult(), result.CodecNone)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	// Corrupting the JSON body by appending garbage after a known field
	// name would be brittle; instead verify that the decoder option is
	// active by constructing a body with an extra top-level field.
	body := data[6:]
	withExtra := bytes.Replace(body, []byte(`"partial":false`), []byte(`"partial":false,"bogus_field":1`), 1)
	if bytes.Equal(withExtra, body) {
		t.Skip("fixture did not contain expected marker; skipping")
	}
	rebuilt := append(append([]byte{}, data[:6]...), withExtra...)
	_, err = result.Load(rebuilt)
	if !errors.Is(err, crusaderr.ErrInvalidResult) {
		t.Fatalf("expected ErrInvalidResult for unknown field, got %v", err)
	}
}
