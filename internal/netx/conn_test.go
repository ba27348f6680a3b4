package netx_test

import (
	"net"
	"testing"
	"time"

	"github.com/richb-hanover/crusader/internal/netx"
)

func TestListener_AcceptTracksBytes(t *testing.T) {
	tcpl, err := net.ListenTCP("tcp", &net.TCPAddr{})
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer tcpl.Close()
	ln := netx.NewListener(tcpl)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c, err := net.Dial("tcp", tcpl.Addr().String())
		if err != nil {
			t.Errorf("dial failed: %v", err)
			return
		}
		defer c.Close()
		c.Write([]byte("hello"))
	}()

	conn, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	defer conn.Close()

	nc := conn.(*netx.Conn)
	if nc.AcceptTime().IsZero() {
		t.Fatalf("expected non-zero accept time")
	}

	buf := make([]byte, 5)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 bytes, got %d", n)
	}
	read, written := nc.ByteCounters()
	if read != 5 {
		t.Fatalf("expected 5 bytes read, got %d", read)
	}
	if written != 0 {
		t.Fatalf("expected 0 bytes written, got %d", written)
	}
	<-done
}
