package server

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// listenUDP binds a UDP socket for the given address. When v6Only is true
// (used for the IPv6 listener so it never also serves v4-mapped traffic
// handled by the separate v4 listener) IPV6_V6ONLY is set via a Control
// callback before bind.
func listenUDP(ctx context.Context, address string, v6Only bool) (*net.UDPConn, error) {
	lc := net.ListenConfig{}
	if v6Only {
		lc.Control = func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		}
	}

	pc, err := lc.ListenPacket(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("server: listen %s: %w", address, err)
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("server: listen %s: not a UDP socket", address)
	}
	return conn, nil
}
