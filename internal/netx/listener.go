package netx

import (
	"net"
	"time"
)

// Listener is a net.TCPListener whose Accept returns *Conn, so every load
// stream and control connection gets byte counters and an accept time for
// free.
type Listener struct {
	*net.TCPListener
}

// NewListener returns a netx.Listener wrapping l.
func NewListener(l *net.TCPListener) *Listener {
	return &Listener{TCPListener: l}
}

// Accept accepts a connection and returns a *Conn with its accept time set
// to the moment Accept returned.
func (ln *Listener) Accept() (net.Conn, error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return nil, err
	}
	return &Conn{
		Conn:       tc,
		acceptTime: time.Now(),
	}, nil
}
