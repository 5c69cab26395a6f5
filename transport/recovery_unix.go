//go:build unix

package transport

import (
	"errors"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// IsTransientSendError reports whether a send error means the socket itself
// was invalidated and a fresh one may succeed.
func IsTransientSendError(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}

	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}

	switch errno {
	case unix.EBADF, unix.ENOTSOCK, unix.ENOTCONN, unix.EPIPE, unix.ENETDOWN, unix.EADDRNOTAVAIL:
		return true
	default:
		return false
	}
}
