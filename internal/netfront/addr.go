//go:build linux

package netfront

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// resolveAddr turns a "host:port" string (host may be empty, meaning all
// interfaces) into the raw sockaddr Bind needs. Only IPv4 is supported,
// matching the scope of the original listener.
func resolveAddr(addr string) (unix.Sockaddr, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("netfront: invalid address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("netfront: invalid port %q: %w", portStr, err)
	}

	sa := &unix.SockaddrInet4{Port: port}
	if host == "" {
		sa.Addr = [4]byte{0, 0, 0, 0}
		return sa, nil
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return nil, fmt.Errorf("netfront: cannot resolve host %q", host)
		}
		ip = ips[0]
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("netfront: %q is not an IPv4 address", host)
	}
	copy(sa.Addr[:], ip4)
	return sa, nil
}
