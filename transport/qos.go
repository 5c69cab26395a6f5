package transport

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// applyQoS sets the type-of-service byte on the socket. An IPv6 socket gets
// the traffic class, and also the IPv4 TOS for mapped traffic when the stack
// allows it.
func applyQoS(conn *net.UDPConn, qos int) error {
	local, _ := conn.LocalAddr().(*net.UDPAddr)
	if local != nil && local.IP.To4() == nil {
		if err := ipv6.NewConn(conn).SetTrafficClass(qos); err != nil {
			return fmt.Errorf("set traffic class: %w", err)
		}
		_ = ipv4.NewConn(conn).SetTOS(qos)
		return nil
	}

	if err := ipv4.NewConn(conn).SetTOS(qos); err != nil {
		return fmt.Errorf("set tos: %w", err)
	}
	return nil
}
