// Package iface exposes the "bind to interface" capability referenced in
// the engine's Design Notes: enumerating local network interfaces differs
// enough across operating systems that it is worth hiding behind a small
// interface, the same way BBR/TCP_INFO access gets hidden behind
// build-tagged files per OS.
package iface

// Interface describes one local network interface a client may choose to
// bind its sockets to.
type Interface struct {
	Name string
	Addr string
}

// ListInterfaces returns the local network interfaces available for
// binding. The wire protocol itself (§5) is strictly host-independent;
// this capability only affects which local address a client's sockets are
// bound to before dialing.
func ListInterfaces() ([]Interface, error) {
	return listInterfaces()
}
