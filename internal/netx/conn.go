// Package netx wraps net.Conn and net.Listener with the bookkeeping the
// measurement engine needs: per-stream byte counters and the time a
// connection was accepted or dialed.
package netx

import (
	"net"
	"sync/atomic"
	"time"
)

// Conn is a net.Conn augmented with atomically-updated read/write byte
// counters and its accept time. A stream never shares its Conn with
// another goroutine's writes/reads, so this one atomic pair is the only
// synchronization needed here (§5: "a single shared counter per stream").
type Conn struct {
	net.Conn

	acceptTime   time.Time
	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
}

// FromTCPConn wraps an already-dialed *net.TCPConn as a *Conn, recording
// the current time as its accept time.
func FromTCPConn(tcpConn *net.TCPConn) *Conn {
	return &Conn{
		Conn:       tcpConn,
		acceptTime: time.Now(),
	}
}

// Read reads from the underlying net.Conn and updates the read counter.
func (c *Conn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	c.bytesRead.Add(uint64(n))
	return n, err
}

// Write writes to the underlying net.Conn and updates the written counter.
func (c *Conn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	c.bytesWritten.Add(uint64(n))
	return n, err
}

// ByteCounters returns the cumulative read and written byte counts, in
// that order.
func (c *Conn) ByteCounters() (uint64, uint64) {
	return c.bytesRead.Load(), c.bytesWritten.Load()
}

// AcceptTime returns the time this connection was accepted or dialed.
func (c *Conn) AcceptTime() time.Time {
	return c.acceptTime
}

// ToConn converts a net.Conn into a *Conn, wrapping it if necessary. A
// *Conn (as the server's Listener returns from Accept) is passed through
// unchanged; a plain *net.TCPConn or any other net.Conn is wrapped.
func ToConn(c net.Conn) *Conn {
	if nc, ok := c.(*Conn); ok {
		return nc
	}
	if tc, ok := c.(*net.TCPConn); ok {
		return FromTCPConn(tc)
	}
	return &Conn{Conn: c, acceptTime: time.Now()}
}
