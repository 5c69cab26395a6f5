package transport

import (
	"fmt"
	"math/rand/v2"
	"net"
	"net/netip"

	"github.com/sirupsen/logrus"
)

// Mode selects the binding and dispatch behavior of a datagram transport.
type Mode uint8

const (
	// ModeClient binds within a randomized port window and reports audio
	// status through a ClientAudioSink.
	ModeClient Mode = iota
	// ModeServer binds exactly the requested port and reports audio status
	// through a ServerAudioSink.
	ModeServer
)

// String returns a human-readable representation of the Mode.
func (m Mode) String() string {
	switch m {
	case ModeClient:
		return "client"
	case ModeServer:
		return "server"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// bindParams are the parameters a socket was created with. They are stored so
// that a reinitialization rebinds exactly the same way.
type bindParams struct {
	mode        Mode
	port        uint16
	qos         int
	bindAddress string
	enableIPv6  bool
	retry       int
	portOffset  func(n int) int
}

// listenAddr returns the network and local address for the given port.
func (p bindParams) listenAddr(port int) (string, *net.UDPAddr, error) {
	ip, err := bindIP(p.bindAddress, p.enableIPv6)
	if err != nil {
		return "", nil, err
	}
	return bindNetwork("udp", p.enableIPv6), net.UDPAddrFromAddrPort(netip.AddrPortFrom(ip, uint16(port))), nil
}

// bindIP returns the local address a socket binds to. With IPv6 enabled the
// socket is a dual-stack wildcard and the bind address is ignored; otherwise
// it is the given IPv4 address, or any IPv4 interface when empty.
func bindIP(bindAddress string, enableIPv6 bool) (netip.Addr, error) {
	if enableIPv6 {
		return netip.IPv6Unspecified(), nil
	}
	if bindAddress == "" {
		return netip.IPv4Unspecified(), nil
	}

	addr, err := netip.ParseAddr(bindAddress)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: bind address %q: %v", ErrInvalidAddress, bindAddress, err)
	}
	addr = NormalizeAddr(addr)
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%w: bind address %q is not IPv4 and IPv6 is disabled",
			ErrInvalidAddress, bindAddress)
	}
	return addr, nil
}

// bindNetwork returns the dual-stack network name, or its IPv4-only variant.
func bindNetwork(base string, enableIPv6 bool) string {
	if enableIPv6 {
		return base
	}
	return base + "4"
}

// candidatePorts lists the ports to try, in order. The server, and a client
// asking for an ephemeral port, get exactly one candidate. A client otherwise
// starts at a random offset inside the retry window and walks upwards.
func (p bindParams) candidatePorts() []int {
	if p.mode == ModeServer || p.port == 0 || p.retry <= 0 {
		return []int{int(p.port)}
	}

	var offset int
	if p.portOffset != nil {
		offset = p.portOffset(p.retry)
	} else {
		offset = rand.IntN(p.retry)
	}

	start := int(p.port) + offset
	ports := make([]int, 0, p.retry+1)
	for i := 0; i <= p.retry; i++ {
		if start+i > 0xFFFF {
			break
		}
		ports = append(ports, start+i)
	}
	return ports
}

// bindDatagramSocket opens the datagram socket according to p and applies the
// QoS marking. Exhausting every candidate port returns a wrapped ErrBindFailed.
func bindDatagramSocket(p bindParams) (*net.UDPConn, error) {
	var lastErr error

	for _, port := range p.candidatePorts() {
		network, laddr, err := p.listenAddr(port)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBindFailed, err)
		}

		conn, err := net.ListenUDP(network, laddr)
		if err != nil {
			lastErr = err
			continue
		}

		if err := applyQoS(conn, p.qos); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "bindDatagramSocket",
				"qos":      p.qos,
				"error":    err.Error(),
			}).Warn("Failed to apply QoS marking")
		}

		logrus.WithFields(logrus.Fields{
			"function":   "bindDatagramSocket",
			"mode":       p.mode.String(),
			"local_addr": conn.LocalAddr().String(),
		}).Info("Datagram socket bound")

		return conn, nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "bindDatagramSocket",
		"mode":     p.mode.String(),
		"port":     p.port,
		"retry":    p.retry,
		"error":    fmt.Sprint(lastErr),
	}).Error("Cannot bind the datagram socket")

	return nil, fmt.Errorf("%w: %v", ErrBindFailed, lastErr)
}
