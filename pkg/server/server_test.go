package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/richb-hanover/crusader/pkg/wire"
)

func newTestServer(t *testing.T) (*Server, *net.TCPAddr, func()) {
	t.Helper()
	tcpLn, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen tcp: %v", err)
	}
	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}

	srv := New(tcpLn, udpConn)
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)

	return srv, tcpLn.Addr().(*net.TCPAddr), func() {
		cancel()
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewClientHandshakeAssignsID(t *testing.T) {
	_, addr, cleanup := newTestServer(t)
	defer cleanup()

	conn, err := net.DialTCP("tcp", nil, addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := wire.WriteFrame(conn, wire.TagHello, wire.Hello{Magic: wire.HelloMagic, Protocol: wire.ProtocolVersion}); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	f, err := wire.ReadFrame(conn)
	if err != nil || f.Tag != wire.TagHello {
		t.Fatalf("expected Hello reply, got %v err=%v", f.Tag, err)
	}

	if err := wire.WriteFrame(conn, wire.TagNewClient, wire.NewClient{}); err != nil {
		t.Fatalf("write NewClient: %v", err)
	}
	f, err = wire.ReadFrame(conn)
	if err != nil || f.Tag != wire.TagNewClientResponse {
		t.Fatalf("expected NewClientResponse, got %v err=%v", f.Tag, err)
	}
	var resp wire.NewClientResponse
	if err := f.Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Overload {
		t.Fatalf("expected overload=false for first client")
	}
	if resp.ID == 0 {
		t.Fatalf("expected a nonzero test id")
	}
}

func TestProtocolMismatchIsRejected(t *testing.T) {
	_, addr, cleanup := newTestServer(t)
	defer cleanup()

	conn, err := net.DialTCP("tcp", nil, addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	wire.WriteFrame(conn, wire.TagHello, wire.Hello{Magic: wire.HelloMagic, Protocol: wire.ProtocolVersion + 1})

	f, err := wire.ReadFrame(conn)
	if err != nil || f.Tag != wire.TagError {
		t.Fatalf("expected Error frame, got %v err=%v", f.Tag, err)
	}
}
