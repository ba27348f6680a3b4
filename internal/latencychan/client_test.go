package latencychan

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestClientServerRoundTrip(t *testing.T) {
	serverConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	defer serverConn.Close()
	go ProcessPacketLoop(serverConn)

	clientConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	defer clientConn.Close()

	c := NewClient(clientConn, serverConn.LocalAddr(), 10*time.Millisecond, time.Now(), 0)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	samples := c.Run(ctx)
	if len(samples) == 0 {
		t.Fatalf("expected at least one sample")
	}

	var got int
	for _, s := range samples {
		if s.ReceivedBack != nil {
			got++
		}
	}
	if got == 0 {
		t.Fatalf("expected at least one successful echo, got samples=%+v", samples)
	}
}

func TestClientReportsLossWithNoServer(t *testing.T) {
	clientConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	defer clientConn.Close()

	// Nothing is listening on this address, so every probe is lost.
	unreachable, err := net.ResolveUDPAddr("udp", "127.0.0.1:1")
	if err != nil {
		t.Fatalf("resolve addr: %v", err)
	}

	c := NewClient(clientConn, unreachable, 20*time.Millisecond, time.Now(), 0)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	samples := c.Run(ctx)
	if len(samples) == 0 {
		t.Fatalf("expected at least one sample")
	}
	for _, s := range samples {
		if s.ReceivedRemote != nil || s.ReceivedBack != nil {
			t.Fatalf("expected total loss sample, got %+v", s)
		}
	}
}
