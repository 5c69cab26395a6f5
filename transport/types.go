package transport

import (
	"net"
)

// AudioStatus is the client audio sink's verdict on one audio frame.
type AudioStatus uint8

const (
	// AudioOK means the frame was accepted and nothing else is needed.
	AudioOK AudioStatus = iota
	// AudioNewConnection means the frame established the connection.
	AudioNewConnection
	// AudioBufferError means the jitter buffer rejected the frame.
	AudioBufferError
	// AudioGenericError means the frame could not be processed.
	AudioGenericError
	// AudioInvalidPacket means the frame was not a valid audio packet.
	AudioInvalidPacket
)

// NoChannelAvailable is the channel id a server sink returns when it has no
// free channel for the sender.
const NoChannelAvailable = -1

// ClientAudioSink consumes audio frames on the client side. PutAudioData is
// called synchronously on the receive goroutine; data aliases the receive
// buffer and is only valid for the duration of the call.
type ClientAudioSink interface {
	PutAudioData(data []byte, from HostAddress) AudioStatus
}

// ServerAudioSink consumes audio frames on the server side. PutAudioData is
// called synchronously on the receive goroutine; data aliases the receive
// buffer and is only valid for the duration of the call.
type ServerAudioSink interface {
	// PutAudioData returns whether the frame created a new connection and the
	// channel it was assigned to, or NoChannelAvailable.
	PutAudioData(data []byte, from HostAddress) (newConnection bool, channelID int)

	// IsRunning reports whether the server processing loop is active.
	IsRunning() bool

	// ConnectedClientCount returns the number of occupied channels.
	ConnectedClientCount() int
}

// EventKind identifies an event emitted to the application layer.
type EventKind uint8

const (
	// EventConnectionlessControl carries a connectionless control message.
	EventConnectionlessControl EventKind = iota
	// EventSessionControl carries a connection-oriented control message.
	EventSessionControl
	// EventNewConnection reports that an audio sender established a connection.
	EventNewConnection
	// EventCapacityExceeded reports that the server had no free channel.
	EventCapacityExceeded
	// EventInvalidPacket reports an audio frame the sink rejected as invalid.
	EventInvalidPacket
	// EventWakeRequested asks an idle server to start processing.
	EventWakeRequested
)

// String returns a human-readable representation of the EventKind.
func (k EventKind) String() string {
	switch k {
	case EventConnectionlessControl:
		return "connectionless_control"
	case EventSessionControl:
		return "session_control"
	case EventNewConnection:
		return "new_connection"
	case EventCapacityExceeded:
		return "capacity_exceeded"
	case EventInvalidPacket:
		return "invalid_packet"
	case EventWakeRequested:
		return "wake_requested"
	default:
		return "unknown"
	}
}

// Event is delivered to handlers on the dispatcher goroutine. Body is owned
// by the event.
type Event struct {
	Kind     EventKind
	ID       MessageID
	Sequence uint32
	Body     []byte
	From     HostAddress

	// Conn is the connection the message arrived on when it came through a
	// stream transport. It can be used to reply on the same connection.
	Conn *StreamConn

	// ChannelID and ClientCount are set for EventNewConnection in server mode.
	ChannelID   int
	ClientCount int
}

// EventHandler processes an event.
type EventHandler func(ev Event)

// Transport defines the surface shared by the datagram and stream transports.
type Transport interface {
	// Close shuts down the transport.
	Close() error

	// LocalAddr returns the local address the transport is bound to.
	LocalAddr() net.Addr

	// RegisterHandler registers a handler for a specific event kind.
	RegisterHandler(kind EventKind, handler EventHandler)
}
