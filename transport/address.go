package transport

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

// HostAddress identifies a remote endpoint. The address is always stored in
// normalized form: IPv4 addresses delivered as IPv4-mapped IPv6 are rewritten
// to plain IPv4. HostAddress is comparable and can be used as a map key.
type HostAddress struct {
	addr netip.Addr
	port uint16
}

// NormalizeAddr rewrites an IPv4-mapped IPv6 address to native IPv4 and
// passes every other address through unchanged. Zones are dropped for
// mapped addresses only, since they carry no meaning for IPv4.
func NormalizeAddr(addr netip.Addr) netip.Addr {
	if addr.Is4In6() {
		return addr.Unmap()
	}
	return addr
}

// NewHostAddress creates a normalized HostAddress.
func NewHostAddress(addr netip.Addr, port uint16) HostAddress {
	return HostAddress{addr: NormalizeAddr(addr), port: port}
}

// HostAddressFromAddrPort creates a normalized HostAddress from the value
// returned by the datagram socket.
func HostAddressFromAddrPort(ap netip.AddrPort) HostAddress {
	return HostAddress{addr: NormalizeAddr(ap.Addr()), port: ap.Port()}
}

// HostAddressFromNetAddr converts a net.Addr (as returned by stream
// connections) into a normalized HostAddress.
func HostAddressFromNetAddr(addr net.Addr) (HostAddress, error) {
	if addr == nil {
		return HostAddress{}, fmt.Errorf("%w: address is nil", ErrInvalidAddress)
	}

	switch a := addr.(type) {
	case *net.TCPAddr:
		return hostAddressFromIP(a.IP, a.Port)
	case *net.UDPAddr:
		return hostAddressFromIP(a.IP, a.Port)
	default:
		return ParseHostAddress(addr.String())
	}
}

// ParseHostAddress parses "host:port" where host is a literal IP address.
func ParseHostAddress(s string) (HostAddress, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return HostAddress{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return HostAddressFromAddrPort(ap), nil
}

// ResolveHostAddress resolves "host:port" where host may be a DNS name.
func ResolveHostAddress(network, s string) (HostAddress, error) {
	udpAddr, err := net.ResolveUDPAddr(network, s)
	if err != nil {
		return HostAddress{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return hostAddressFromIP(udpAddr.IP, udpAddr.Port)
}

// hostAddressFromIP converts a legacy net.IP and int port.
func hostAddressFromIP(ip net.IP, port int) (HostAddress, error) {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return HostAddress{}, fmt.Errorf("%w: invalid IP %q", ErrInvalidAddress, ip.String())
	}
	if port < 0 || port > 0xFFFF {
		return HostAddress{}, fmt.Errorf("%w: port %d out of range", ErrInvalidAddress, port)
	}
	return NewHostAddress(addr, uint16(port)), nil
}

// Addr returns the normalized IP address.
func (h HostAddress) Addr() netip.Addr { return h.addr }

// Port returns the port number.
func (h HostAddress) Port() uint16 { return h.port }

// IsValid reports whether the address holds an IP.
func (h HostAddress) IsValid() bool { return h.addr.IsValid() }

// AddrPort returns the address as a netip.AddrPort.
func (h HostAddress) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(h.addr, h.port)
}

// UDPAddr returns a *net.UDPAddr for APIs that still take one.
func (h HostAddress) UDPAddr() *net.UDPAddr {
	return net.UDPAddrFromAddrPort(h.AddrPort())
}

// String returns "ip:port" ("[ip]:port" for IPv6).
func (h HostAddress) String() string {
	if !h.addr.IsValid() {
		return "invalid:" + strconv.Itoa(int(h.port))
	}
	return h.AddrPort().String()
}
