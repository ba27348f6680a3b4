package timesync_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/richb-hanover/crusader/internal/timesync"
	"github.com/richb-hanover/crusader/pkg/wire"
)

// runEchoServer echoes every Timestamp frame it reads until conn closes.
func runEchoServer(t *testing.T, conn net.Conn) {
	t.Helper()
	for {
		f, err := wire.ReadFrame(conn)
		if err != nil {
			return
		}
		if handled, err := timesync.HandleFrame(conn, f); err != nil || !handled {
			return
		}
	}
}

func TestSyncProducesAnOffsetEstimate(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go runEchoServer(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := timesync.Sync(ctx, client)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.Samples < 20 {
		t.Fatalf("expected at least 20 samples, got %d", res.Samples)
	}
}

func TestSyncFailsWithoutServer(t *testing.T) {
	client, server := net.Pipe()
	server.Close() // nothing will ever echo
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := timesync.Sync(ctx, client)
	if err == nil {
		t.Fatalf("expected Sync to fail when no echoes arrive")
	}
}
