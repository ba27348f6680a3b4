//go:build !linux
// +build !linux

package iface

import "net"

// listInterfaces on non-Linux systems skips the FlagUp check: some
// platforms (notably Windows) do not reliably report it for virtual
// adapters, so every interface with at least one address is reported.
func listInterfaces() ([]Interface, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var out []Interface
	for _, i := range ifs {
		addrs, err := i.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			out = append(out, Interface{Name: i.Name, Addr: a.String()})
		}
	}
	return out, nil
}
