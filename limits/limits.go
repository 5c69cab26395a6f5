// Package limits provides centralized size limits for the audio transport protocol.
// This ensures consistent validation across the datagram and stream paths.
package limits

import (
	"errors"
	"fmt"
)

const (
	// ControlHeaderSize is the fixed control frame header:
	// tag (2) + message id (2) + sequence counter (1) + body length (2).
	ControlHeaderSize = 7

	// ControlCRCSize is the size of the trailing CRC-16.
	ControlCRCSize = 2

	// ControlOverhead is the size of a control frame with an empty body.
	ControlOverhead = ControlHeaderSize + ControlCRCSize

	// MaxControlFrameSize is the largest encoded control frame.
	MaxControlFrameSize = 0xFFFF

	// MaxControlBody is the largest body a control frame can carry so that
	// the whole frame stays within MaxControlFrameSize.
	MaxControlBody = MaxControlFrameSize - ControlOverhead

	// MaxDatagramSize is the receive buffer size for one datagram
	MaxDatagramSize = 20000

	// MinDatagramSize is the smallest configurable receive buffer. It must
	// hold at least one empty control frame.
	MinDatagramSize = ControlOverhead
)

const (
	// DefaultPort is the well-known server port.
	DefaultPort = 22124

	// DefaultQoS is the default type-of-service byte (CS4 class selector).
	DefaultQoS = 128

	// NumSocketPortsToTry is the width of the client port retry window.
	NumSocketPortsToTry = 100

	// DefaultDispatchQueueSize bounds the number of control events waiting
	// for the dispatcher goroutine.
	DefaultDispatchQueueSize = 256
)

var (
	// ErrMessageEmpty indicates an empty message was provided
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")
)

// ValidateMessageSize validates a message against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateMessageSize(message []byte, maxSize int) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrMessageTooLarge, len(message), maxSize)
	}
	return nil
}

// ValidateDatagramSize validates a read count returned by the datagram socket.
// A non-positive count means there is nothing to dispatch.
func ValidateDatagramSize(n, maxSize int) error {
	if n <= 0 {
		return ErrMessageEmpty
	}
	if n > maxSize {
		return fmt.Errorf("%w: datagram size %d exceeds limit %d", ErrMessageTooLarge, n, maxSize)
	}
	return nil
}

// ValidateStreamBodyLength validates the body length declared by a stream
// frame header. The declared length includes the trailing CRC, so it can
// never be shorter than ControlCRCSize.
func ValidateStreamBodyLength(declared, maxFrameSize int) error {
	if declared < ControlCRCSize {
		return fmt.Errorf("%w: declared body %d shorter than crc", ErrMessageEmpty, declared)
	}
	if ControlHeaderSize+declared > maxFrameSize {
		return fmt.Errorf("%w: frame size %d exceeds limit %d",
			ErrMessageTooLarge, ControlHeaderSize+declared, maxFrameSize)
	}
	return nil
}

// ClampDatagramSize returns size bounded to [MinDatagramSize, MaxDatagramSize].
// Zero selects MaxDatagramSize.
func ClampDatagramSize(size int) int {
	switch {
	case size == 0:
		return MaxDatagramSize
	case size < MinDatagramSize:
		return MinDatagramSize
	case size > MaxDatagramSize:
		return MaxDatagramSize
	}
	return size
}
