package client_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/richb-hanover/crusader/pkg/client"
	"github.com/richb-hanover/crusader/pkg/result"
	"github.com/richb-hanover/crusader/pkg/server"
)

func newTestServer(t *testing.T) (*net.TCPAddr, func()) {
	t.Helper()
	tcpLn, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen tcp: %v", err)
	}
	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: tcpLn.Addr().(*net.TCPAddr).Port})
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}

	srv := server.New(tcpLn, udpConn)
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)

	return tcpLn.Addr().(*net.TCPAddr), func() {
		cancel()
		time.Sleep(20 * time.Millisecond)
	}
}

func TestDownloadOnlyRunProducesResult(t *testing.T) {
	addr, cleanup := newTestServer(t)
	defer cleanup()

	cfg := client.Config{
		Server:                   result.Endpoint{Host: "127.0.0.1", Port: uint16(addr.Port)},
		Download:                 true,
		Streams:                  2,
		LoadDuration:             300 * time.Millisecond,
		GraceDuration:            50 * time.Millisecond,
		LatencySampleInterval:    10 * time.Millisecond,
		ThroughputSampleInterval: 20 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	engine, err := client.New(ctx, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := engine.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Latency) == 0 {
		t.Error("expected latency samples")
	}
	if len(res.Throughput) == 0 {
		t.Error("expected throughput samples")
	}
	if res.Partial {
		t.Error("did not expect a partial result")
	}
	for _, s := range res.Throughput {
		if s.Direction != result.Down {
			t.Errorf("expected only Down-direction throughput, got %s", s.Direction)
		}
	}
}

func TestLatencyOnlyRunSkipsLoad(t *testing.T) {
	addr, cleanup := newTestServer(t)
	defer cleanup()

	cfg := client.Config{
		Server:                   result.Endpoint{Host: "127.0.0.1", Port: uint16(addr.Port)},
		LoadDuration:             100 * time.Millisecond,
		GraceDuration:            50 * time.Millisecond,
		LatencySampleInterval:    10 * time.Millisecond,
		ThroughputSampleInterval: 20 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	engine, err := client.New(ctx, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := engine.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Latency) == 0 {
		t.Error("expected latency samples even with no load legs")
	}
	if len(res.Throughput) != 0 {
		t.Error("expected no throughput samples when neither download nor upload is set")
	}
}
