package iface

import "net"

// listInterfaces on Linux walks net.Interfaces and reports every unicast
// address of every interface that is up.
func listInterfaces() ([]Interface, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var out []Interface
	for _, i := range ifs {
		if i.Flags&net.FlagUp == 0 {
			continue
		}
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
