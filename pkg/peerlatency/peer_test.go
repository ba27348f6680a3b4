package peerlatency

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/richb-hanover/crusader/internal/latencychan"
	"github.com/richb-hanover/crusader/pkg/result"
)

func startEchoServer(t *testing.T) net.PacketConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	go latencychan.ProcessPacketLoop(conn)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func startPeerListener(t *testing.T) (net.Listener, *Peer) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen tcp: %v", err)
	}
	peer := NewPeer()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go peer.Serve(ctx, ln)
	return ln, peer
}

func TestRunnerCollectsPeerSamples(t *testing.T) {
	echoConn := startEchoServer(t)
	target := echoConn.LocalAddr().String()

	ln, _ := startPeerListener(t)
	server := result.Endpoint{Host: "127.0.0.1", Port: uint16(ln.Addr().(*net.TCPAddr).Port)}

	r, err := Start(context.Background(), server, target, 2*time.Second, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(500 * time.Millisecond)
	samples, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(samples) == 0 {
		t.Fatal("expected at least one peer latency sample")
	}
}

func TestSecondConcurrentSessionIsRejected(t *testing.T) {
	echoConn := startEchoServer(t)
	target := echoConn.LocalAddr().String()

	ln, _ := startPeerListener(t)
	server := result.Endpoint{Host: "127.0.0.1", Port: uint16(ln.Addr().(*net.TCPAddr).Port)}

	r1, err := Start(context.Background(), server, target, 2*time.Second, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Start first: %v", err)
	}
	defer r1.Stop()

	time.Sleep(100 * time.Millisecond)

	r2, err := Start(context.Background(), server, target, 2*time.Second, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Start second: %v", err)
	}
	_, err = r2.Stop()
	if err == nil {
		t.Fatal("expected busy error from second concurrent session")
	}
}
