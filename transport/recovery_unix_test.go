//go:build unix

package transport

import (
	"errors"
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestIsTransientSendError(t *testing.T) {
	wrap := func(errno error) error {
		return &net.OpError{Op: "write", Net: "udp", Err: os.NewSyscallError("sendto", errno)}
	}

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"closed socket", net.ErrClosed, true},
		{"bad descriptor", wrap(unix.EBADF), true},
		{"broken pipe", wrap(unix.EPIPE), true},
		{"not connected", wrap(unix.ENOTCONN), true},
		{"network down", wrap(unix.ENETDOWN), true},
		{"address gone", wrap(unix.EADDRNOTAVAIL), true},
		{"connection refused", wrap(unix.ECONNREFUSED), false},
		{"buffer full", wrap(unix.ENOBUFS), false},
		{"unrelated", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsTransientSendError(tt.err))
		})
	}
}
