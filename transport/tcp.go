package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultStreamWriteTimeout bounds a single frame write on a stream connection.
const DefaultStreamWriteTimeout = 5 * time.Second

// StreamConfig holds the construction parameters of a stream transport.
type StreamConfig struct {
	// BindAddress restricts the listener to one local IPv4 address. Empty
	// means any interface. Ignored when EnableIPv6 is set.
	BindAddress string

	// Port is the listening port; 0 picks an ephemeral port.
	Port uint16

	// EnableIPv6 listens dual-stack.
	EnableIPv6 bool

	// MaxFrameSize bounds a reconstructed frame. Zero selects
	// DefaultMaxStreamFrameSize.
	MaxFrameSize int

	// WriteTimeout bounds one frame write. Zero selects
	// DefaultStreamWriteTimeout.
	WriteTimeout time.Duration

	// Dispatcher receives the control events. When nil the transport creates
	// and owns one.
	Dispatcher *Dispatcher

	// Metrics receives the transport counters. When nil, unregistered
	// collectors are used.
	Metrics *Metrics
}

// StreamTransport accepts reliable connections that carry control frames
// when the datagram path is blocked. Each connection runs its own read
// goroutine and framing state. Messages are posted to the dispatcher with
// the connection handle, so a handler can answer on the same connection.
// It satisfies the Transport interface.
type StreamTransport struct {
	listener     net.Listener
	maxFrameSize int
	writeTimeout time.Duration

	dispatcher     *Dispatcher
	ownsDispatcher bool
	metrics        *Metrics

	conns map[uuid.UUID]*StreamConn
	mu    sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewStreamTransport starts listening and accepting connections.
func NewStreamTransport(cfg StreamConfig) (*StreamTransport, error) {
	ip, err := bindIP(cfg.BindAddress, cfg.EnableIPv6)
	if err != nil {
		return nil, err
	}

	listenAddr := netip.AddrPortFrom(ip, cfg.Port).String()
	listener, err := net.Listen(bindNetwork("tcp", cfg.EnableIPv6), listenAddr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewStreamTransport",
			"addr":     listenAddr,
			"error":    err.Error(),
		}).Error("Unable to start stream listener")
		return nil, fmt.Errorf("listen %s: %w", listenAddr, err)
	}

	t := newStreamTransport(cfg)
	t.listener = listener

	logrus.WithFields(logrus.Fields{
		"function":   "NewStreamTransport",
		"local_addr": listener.Addr().String(),
	}).Info("Stream transport listening")

	t.wg.Add(1)
	go t.acceptConnections()

	return t, nil
}

func newStreamTransport(cfg StreamConfig) *StreamTransport {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultStreamWriteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	t := &StreamTransport{
		maxFrameSize: cfg.MaxFrameSize,
		writeTimeout: writeTimeout,
		dispatcher:   cfg.Dispatcher,
		metrics:      metrics,
		conns:        make(map[uuid.UUID]*StreamConn),
		ctx:          ctx,
		cancel:       cancel,
	}

	if t.dispatcher == nil {
		t.dispatcher = NewDispatcher(0, metrics)
		t.ownsDispatcher = true
	}

	return t
}

// RegisterHandler registers a handler for a specific event kind.
func (t *StreamTransport) RegisterHandler(kind EventKind, handler EventHandler) {
	t.dispatcher.RegisterHandler(kind, handler)
}

// Dispatcher returns the dispatcher events are posted to.
func (t *StreamTransport) Dispatcher() *Dispatcher {
	return t.dispatcher
}

// LocalAddr returns the local address the transport is listening on.
func (t *StreamTransport) LocalAddr() net.Addr {
	return t.listener.Addr()
}

// ConnectionCount returns the number of open connections.
func (t *StreamTransport) ConnectionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.conns)
}

// Dial opens an outgoing stream connection. Frames the peer sends back are
// dispatched exactly like frames on accepted connections.
func (t *StreamTransport) Dial(ctx context.Context, address string) (*StreamConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	sc, err := t.attach(conn)
	if err != nil {
		return nil, err
	}
	go t.serveConn(conn, sc)

	return sc, nil
}

// Close stops accepting, closes every open connection and waits for their
// goroutines to finish. It is safe to call more than once.
func (t *StreamTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.cancel()
		if t.listener != nil {
			err = t.listener.Close()
		}

		t.mu.Lock()
		for _, sc := range t.conns {
			_ = sc.Close()
		}
		t.mu.Unlock()

		t.wg.Wait()

		if t.ownsDispatcher {
			t.dispatcher.Close()
		}

		logrus.WithFields(logrus.Fields{
			"function": "StreamTransport.Close",
		}).Info("Stream transport closed")
	})
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// acceptConnections handles incoming connections.
func (t *StreamTransport) acceptConnections() {
	defer t.wg.Done()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if t.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logrus.WithFields(logrus.Fields{
				"function": "StreamTransport.acceptConnections",
				"error":    err.Error(),
			}).Debug("Accept failed")
			continue
		}

		sc, err := t.attach(conn)
		if err != nil {
			continue
		}
		go t.serveConn(conn, sc)
	}
}

// attach wraps a connection in a StreamConn and tracks it. On success the
// caller must serve the connection and call release when done.
func (t *StreamTransport) attach(conn net.Conn) (*StreamConn, error) {
	remote, err := HostAddressFromNetAddr(conn.RemoteAddr())
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	sc := newStreamConn(remote, &netConnWriter{conn: conn, timeout: t.writeTimeout})
	if err := t.track(sc); err != nil {
		_ = conn.Close()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "StreamTransport.attach",
		"conn_id":  sc.ID().String(),
		"remote":   remote.String(),
	}).Debug("Stream connection opened")

	return sc, nil
}

// track registers a connection so Close can reach it and wait for it.
func (t *StreamTransport) track(sc *StreamConn) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ctx.Err() != nil {
		return ErrTransportClosed
	}
	t.conns[sc.ID()] = sc
	t.wg.Add(1)
	t.metrics.streamConnections.Inc()
	return nil
}

// release closes a connection and forgets it.
func (t *StreamTransport) release(sc *StreamConn) {
	defer t.wg.Done()

	_ = sc.Close()

	t.mu.Lock()
	delete(t.conns, sc.ID())
	t.metrics.streamConnections.Dec()
	t.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "StreamTransport.release",
		"conn_id":  sc.ID().String(),
		"remote":   sc.RemoteAddr().String(),
	}).Debug("Stream connection closed")
}

// serveConn reads frames from one connection until it ends or violates the
// framing, then releases it together with its read state.
func (t *StreamTransport) serveConn(conn net.Conn, sc *StreamConn) {
	defer t.release(sc)

	reader := NewFrameReader(t.maxFrameSize)
	defer reader.Close()

	for {
		n, readErr := conn.Read(reader.Next())

		frame, err := reader.Advance(n)
		if err != nil {
			t.framingError(sc, err)
			return
		}
		if frame != nil {
			if err := t.handleFrame(frame, sc); err != nil {
				t.framingError(sc, err)
				return
			}
		}

		if readErr != nil {
			t.readEnded(sc, reader, readErr)
			return
		}
	}
}

// readEnded reports the end of a connection. Ending in the middle of a frame
// is a framing violation; ending between frames is a normal disconnect.
func (t *StreamTransport) readEnded(sc *StreamConn, reader *FrameReader, err error) {
	if reader.Pending() {
		t.framingError(sc, fmt.Errorf("%w: connection ended mid-frame: %v", ErrFramingViolation, err))
		return
	}

	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || t.ctx.Err() != nil {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "StreamTransport.readEnded",
		"conn_id":  sc.ID().String(),
		"error":    err.Error(),
	}).Debug("Stream read failed")
}

// framingError counts and logs a connection torn down for a framing error.
func (t *StreamTransport) framingError(sc *StreamConn, err error) {
	if sc.IsClosed() {
		return
	}
	t.metrics.framingErrors.Inc()
	logrus.WithFields(logrus.Fields{
		"function": "StreamTransport.framingError",
		"conn_id":  sc.ID().String(),
		"remote":   sc.RemoteAddr().String(),
		"error":    err.Error(),
	}).Warn("Closing stream connection after framing error")
}

// handleFrame classifies a reconstructed frame and posts it with the
// connection handle. The stream path never carries audio, so a frame that
// is not a valid control envelope is a framing error.
func (t *StreamTransport) handleFrame(frame []byte, sc *StreamConn) error {
	cf, ok := ParseControlFrame(frame)
	if !ok {
		return ErrNotControlFrame
	}

	postControl(t.dispatcher, t.metrics, cf, sc.RemoteAddr(), sc)
	return nil
}
