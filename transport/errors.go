package transport

import "errors"

var (
	// ErrBindFailed is returned when the datagram socket cannot be bound.
	// It is fatal: the caller must not start the transport.
	ErrBindFailed = errors.New("cannot bind the socket (maybe the software is already running)")

	// ErrTransportClosed is returned by operations on a closed transport.
	ErrTransportClosed = errors.New("transport closed")

	// ErrFrameTooLarge indicates a stream header declared a body beyond the limit.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrFramingViolation indicates the stream byte sequence can no longer be trusted.
	ErrFramingViolation = errors.New("stream framing violation")

	// ErrNotControlFrame indicates bytes did not form a valid control envelope.
	ErrNotControlFrame = errors.New("not a control frame")

	// ErrNilSink is returned when a transport is constructed without an audio sink.
	ErrNilSink = errors.New("audio sink cannot be nil")

	// ErrInvalidAddress indicates an address could not be parsed or normalized.
	ErrInvalidAddress = errors.New("invalid host address")
)
