package loadchan

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/richb-hanover/crusader/pkg/result"
)

func TestUploadDownloadTransfersBytes(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	t0 := time.Now()
	pattern := make([]byte, 4096)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	upDone := make(chan struct{})
	var upSamples []result.ThroughputSample
	var upSent uint64
	go func() {
		defer close(upDone)
		up := New(client, 1, result.Up, t0, 5*time.Millisecond)
		upSamples, upSent, _ = up.Upload(ctx, pattern)
	}()

	down := New(server, 1, result.Down, t0, 5*time.Millisecond)
	downSamples, downReceived, err := down.Download(ctx, nil)
	<-upDone

	if err != nil && err != io.EOF {
		t.Fatalf("download returned unexpected error: %v", err)
	}
	if upSent == 0 {
		t.Fatalf("expected some bytes to have been sent")
	}
	if downReceived == 0 {
		t.Fatalf("expected some bytes to have been received")
	}
	if len(upSamples) == 0 {
		t.Fatalf("expected upload samples")
	}
	if len(downSamples) == 0 {
		t.Fatalf("expected download samples")
	}
	for i := 1; i < len(downSamples); i++ {
		if downSamples[i].BytesCumulative < downSamples[i-1].BytesCumulative {
			t.Fatalf("cumulative bytes must be non-decreasing: %+v", downSamples)
		}
		if downSamples[i].Time < downSamples[i-1].Time {
			t.Fatalf("sample times must be non-decreasing: %+v", downSamples)
		}
	}
}

func TestPatternIsFixedSize(t *testing.T) {
	p := NewPattern()
	if len(p) != PatternSize {
		t.Fatalf("expected pattern of size %d, got %d", PatternSize, len(p))
	}
}
