// Package transport moves audio frames and control messages between a client
// and a server. Audio travels only over the datagram transport; control
// messages travel over the datagram transport or, when middleboxes block it,
// over a reliable stream transport (TCP or WebSocket).
//
// # Architecture
//
// Both transports satisfy the Transport interface:
//
//	type Transport interface {
//	    Close() error
//	    LocalAddr() net.Addr
//	    RegisterHandler(kind EventKind, handler EventHandler)
//	}
//
// Every received byte sequence goes through Classify, which separates audio
// frames from control frames, and control frames are further split by
// message id into connectionless and connection-oriented messages:
//
//	bytes --> Classify --+-- audio   --> audio sink (synchronous)
//	                     +-- control --> Dispatcher --> EventHandler
//
// # Datagram Transport
//
// A server binds exactly the requested port; a client tries a window of
// ports starting at a random offset so that clients sharing one default
// configuration do not all converge on the same port:
//
//	cfg := transport.DefaultDatagramConfig()
//	server, err := transport.NewServerDatagramTransport(cfg, table)
//	if errors.Is(err, transport.ErrBindFailed) {
//	    // must not proceed
//	}
//
// Send is serialized and best-effort. A failed write is retried once, after
// a socket reinitialization when the RecoveryPolicy classifies the error as
// transient. No send error is ever returned.
//
// The receive goroutine reads one datagram per iteration into a reused
// buffer. Audio frames are handed to the ClientAudioSink or ServerAudioSink
// on that goroutine, without allocating or taking locks. The sink's verdict
// turns into events (new connection, invalid packet, capacity exceeded) or
// into a JitterHealth error mark.
//
// # Stream Transport
//
// Each accepted connection owns a FrameReader that rebuilds frames from
// fragments: it reads the 7-byte header, trusts the declared body length
// only once the header is complete, then reads exactly that many bytes.
// Any framing violation closes the connection. Events from a stream carry
// the StreamConn, so a handler can answer on the same connection:
//
//	stream.RegisterHandler(transport.EventConnectionlessControl, func(ev transport.Event) {
//	    if ev.ID == transport.MsgCLPing && ev.Conn != nil {
//	        _ = ev.Conn.SendControl(transport.MsgCLPing, 0, ev.Body)
//	    }
//	})
//
// # Addresses
//
// HostAddress normalizes IPv4-mapped IPv6 addresses to plain IPv4 on every
// ingress path, so a peer has the same identity whether it reached a
// dual-stack or an IPv4 socket.
//
// # Thread Safety
//
// Handlers run on the dispatcher goroutine, one at a time. Audio sinks are
// called from the datagram receive goroutine. Send, StreamConn methods and
// JitterHealth are safe for concurrent use.
//
// # Error Handling
//
// Construction errors wrap sentinel errors that callers match with
// errors.Is:
//
//	var (
//	    ErrBindFailed        // no port in the bind window was available
//	    ErrInvalidAddress    // address could not be parsed
//	    ErrNilSink           // no audio sink given
//	    ErrFrameTooLarge     // stream header declared an oversized body
//	    ErrFramingViolation  // stream bytes can no longer be trusted
//	)
//
// Runtime failures on the receive and send paths are logged with
// logrus.WithFields and counted in Metrics rather than returned.
package transport
