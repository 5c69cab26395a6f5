//go:build !unix

package transport

import (
	"errors"
	"net"
)

// IsTransientSendError reports whether a send error means the socket itself
// was invalidated and a fresh one may succeed.
func IsTransientSendError(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
