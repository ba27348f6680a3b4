package client

import (
	"fmt"
	"net"

	"github.com/richb-hanover/crusader/internal/iface"
)

// resolveBindIP looks up the local address of the named interface
// (Design Notes' list_interfaces() capability) so the engine's dialers
// and UDP socket can be pinned to it. An empty name means "let the
// kernel pick," the default.
func resolveBindIP(name string) (net.IP, error) {
	if name == "" {
		return nil, nil
	}
	ifs, err := iface.ListInterfaces()
	if err != nil {
		return nil, err
	}
	for _, i := range ifs {
		if i.Name != name {
			continue
		}
		ip, err := parseInterfaceAddr(i.Addr)
		if err != nil {
			return nil, fmt.Errorf("client: interface %q has no usable address: %w", name, err)
		}
		return ip, nil
	}
	return nil, fmt.Errorf("client: interface %q not found", name)
}

// parseInterfaceAddr accepts both the CIDR form net.Interface.Addrs
// returns ("192.168.1.5/24") and a bare IP, since platform-specific
// listInterfaces implementations may report either.
func parseInterfaceAddr(s string) (net.IP, error) {
	if ip, _, err := net.ParseCIDR(s); err == nil {
		return ip, nil
	}
	if ip := net.ParseIP(s); ip != nil {
		return ip, nil
	}
	return nil, fmt.Errorf("unparseable address %q", s)
}

// tcpLocalAddr turns a (possibly nil) bind IP into the *net.TCPAddr a
// net.Dialer expects; nil leaves the kernel's default source selection.
func tcpLocalAddr(ip net.IP) *net.TCPAddr {
	if ip == nil {
		return nil
	}
	return &net.TCPAddr{IP: ip}
}
