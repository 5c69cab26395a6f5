package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/audiocore/limits"
	"github.com/sirupsen/logrus"
)

// reinitBackoff is how long the receive loop waits before looking again for
// a replacement socket after the current one was closed underneath it.
const reinitBackoff = 100 * time.Millisecond

// DatagramConfig holds the construction parameters of a datagram transport.
type DatagramConfig struct {
	// Port is the requested local port. A client with port 0 binds an
	// ephemeral port.
	Port uint16

	// QoS is the type-of-service byte applied to outgoing datagrams.
	QoS int

	// BindAddress restricts the socket to one local IPv4 address. Empty means
	// any interface. Ignored when EnableIPv6 is set.
	BindAddress string

	// EnableIPv6 binds a dual-stack socket.
	EnableIPv6 bool

	// PortRetryCount is the client port window: the client tries
	// PortRetryCount+1 successive ports starting at a random offset below
	// PortRetryCount. Zero means a single attempt at Port.
	PortRetryCount int

	// MaxDatagramSize bounds the receive buffer.
	MaxDatagramSize int

	// Recovery controls socket reinitialization after a failed send.
	Recovery RecoveryPolicy

	// Dispatcher receives the control and status events. When nil the
	// transport creates and owns one.
	Dispatcher *Dispatcher

	// Metrics receives the transport counters. When nil, unregistered
	// collectors are used.
	Metrics *Metrics

	portOffset func(n int) int
}

// DefaultDatagramConfig returns the configuration used when nothing is
// overridden.
func DefaultDatagramConfig() DatagramConfig {
	return DatagramConfig{
		Port:            limits.DefaultPort,
		QoS:             limits.DefaultQoS,
		PortRetryCount:  limits.NumSocketPortsToTry,
		MaxDatagramSize: limits.MaxDatagramSize,
		Recovery:        DefaultRecoveryPolicy(),
	}
}

// DatagramTransport owns one UDP socket in client or server mode. Audio
// frames are handed to the audio sink synchronously on the receive goroutine;
// everything else is posted to the dispatcher.
// It satisfies the Transport interface.
type DatagramTransport struct {
	params bindParams
	conn   atomic.Pointer[net.UDPConn]

	clientSink ClientAudioSink
	serverSink ServerAudioSink
	health     JitterHealth

	dispatcher     *Dispatcher
	ownsDispatcher bool
	metrics        *Metrics
	recovery       RecoveryPolicy
	bufSize        int

	sendMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewClientDatagramTransport binds a client socket and starts receiving.
// A bind failure is returned as a wrapped ErrBindFailed and leaves nothing
// running.
func NewClientDatagramTransport(cfg DatagramConfig, sink ClientAudioSink) (*DatagramTransport, error) {
	if sink == nil {
		return nil, ErrNilSink
	}
	t := newDatagramTransport(ModeClient, cfg)
	t.clientSink = sink
	if err := t.start(); err != nil {
		return nil, err
	}
	return t, nil
}

// NewServerDatagramTransport binds a server socket on exactly cfg.Port and
// starts receiving. A bind failure is returned as a wrapped ErrBindFailed and
// leaves nothing running.
func NewServerDatagramTransport(cfg DatagramConfig, sink ServerAudioSink) (*DatagramTransport, error) {
	if sink == nil {
		return nil, ErrNilSink
	}
	t := newDatagramTransport(ModeServer, cfg)
	t.serverSink = sink
	if err := t.start(); err != nil {
		return nil, err
	}
	return t, nil
}

func newDatagramTransport(mode Mode, cfg DatagramConfig) *DatagramTransport {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &DatagramTransport{
		params: bindParams{
			mode:        mode,
			port:        cfg.Port,
			qos:         cfg.QoS,
			bindAddress: cfg.BindAddress,
			enableIPv6:  cfg.EnableIPv6,
			retry:       cfg.PortRetryCount,
			portOffset:  cfg.portOffset,
		},
		dispatcher: cfg.Dispatcher,
		metrics:    metrics,
		recovery:   cfg.Recovery,
		bufSize:    limits.ClampDatagramSize(cfg.MaxDatagramSize),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// start binds the socket and launches the receive goroutine.
func (t *DatagramTransport) start() error {
	conn, err := bindDatagramSocket(t.params)
	if err != nil {
		t.cancel()
		return err
	}
	t.conn.Store(conn)

	if t.dispatcher == nil {
		t.dispatcher = NewDispatcher(limits.DefaultDispatchQueueSize, t.metrics)
		t.ownsDispatcher = true
	}

	t.wg.Add(1)
	go t.receiveLoop()

	return nil
}

// Mode returns the binding mode of the transport.
func (t *DatagramTransport) Mode() Mode {
	return t.params.mode
}

// Health returns the jitter health signal fed by the client audio path.
func (t *DatagramTransport) Health() *JitterHealth {
	return &t.health
}

// Dispatcher returns the dispatcher events are posted to.
func (t *DatagramTransport) Dispatcher() *Dispatcher {
	return t.dispatcher
}

// RegisterHandler registers a handler for a specific event kind.
func (t *DatagramTransport) RegisterHandler(kind EventKind, handler EventHandler) {
	t.dispatcher.RegisterHandler(kind, handler)
}

// LocalAddr returns the local address the socket is bound to.
func (t *DatagramTransport) LocalAddr() net.Addr {
	return t.conn.Load().LocalAddr()
}

// Send writes one datagram to the given address. Sends are serialized and
// best-effort: an empty payload is ignored, a failed write is retried once
// (after a socket reinitialization if the recovery policy calls for it), and
// a second failure drops the datagram without reporting an error.
func (t *DatagramTransport) Send(data []byte, to HostAddress) {
	if len(data) == 0 {
		return
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	if t.ctx.Err() != nil {
		return
	}

	dst := to.AddrPort()
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if _, err = t.conn.Load().WriteToUDPAddrPort(data, dst); err == nil {
			t.metrics.framesSent.Inc()
			return
		}

		if attempt == 0 && t.recovery.shouldReinit(err) {
			t.reinitLocked()
		}
	}

	t.metrics.sendDrops.Inc()
	logrus.WithFields(logrus.Fields{
		"function": "DatagramTransport.Send",
		"to":       to.String(),
		"size":     len(data),
		"error":    err.Error(),
	}).Debug("Dropping datagram after failed send attempts")
}

// SendControl encodes a control message and sends it to the given address.
// The encoded frame must fit the configured maximum datagram size.
func (t *DatagramTransport) SendControl(to HostAddress, id MessageID, sequence uint8, body []byte) error {
	frame, err := EncodeControlFrame(id, sequence, body)
	if err != nil {
		return err
	}
	if err := limits.ValidateMessageSize(frame, t.bufSize); err != nil {
		return err
	}
	t.Send(frame, to)
	return nil
}

// reinitLocked closes the current socket and binds a new one with the
// original parameters. The caller must hold sendMu.
func (t *DatagramTransport) reinitLocked() {
	old := t.conn.Load()
	_ = old.Close()

	conn, err := bindDatagramSocket(t.params)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "DatagramTransport.reinitLocked",
			"error":    err.Error(),
		}).Error("Socket reinitialization failed")
		return
	}

	t.conn.Store(conn)
	t.metrics.socketReinits.Inc()
}

// Close stops the receive goroutine and closes the socket. It is safe to call
// more than once.
func (t *DatagramTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.cancel()

		t.sendMu.Lock()
		err = t.conn.Load().Close()
		t.sendMu.Unlock()

		t.wg.Wait()

		if t.ownsDispatcher {
			t.dispatcher.Close()
		}

		logrus.WithFields(logrus.Fields{
			"function": "DatagramTransport.Close",
			"mode":     t.params.mode.String(),
		}).Info("Datagram transport closed")
	})
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// receiveLoop reads one datagram per iteration into a reused buffer.
func (t *DatagramTransport) receiveLoop() {
	defer t.wg.Done()

	buffer := make([]byte, t.bufSize)

	for {
		conn := t.conn.Load()
		n, from, err := conn.ReadFromUDPAddrPort(buffer)
		if err != nil {
			if t.ctx.Err() != nil {
				return
			}
			t.handleReadError(conn, err)
			continue
		}

		t.receive(buffer[:n], HostAddressFromAddrPort(from))
	}
}

// handleReadError decides how the receive loop proceeds after a failed read.
func (t *DatagramTransport) handleReadError(conn *net.UDPConn, err error) {
	if errors.Is(err, net.ErrClosed) {
		if t.conn.Load() != conn {
			return
		}
		// The socket was closed by a reinitialization that has not produced
		// a replacement yet.
		select {
		case <-t.ctx.Done():
		case <-time.After(reinitBackoff):
		}
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "DatagramTransport.handleReadError",
		"error":    err.Error(),
	}).Debug("Datagram read failed")
}

// receive classifies and dispatches one datagram. data aliases the receive
// buffer and is only valid until receive returns.
func (t *DatagramTransport) receive(data []byte, from HostAddress) {
	if limits.ValidateDatagramSize(len(data), t.bufSize) != nil {
		return
	}

	if cf, ok := ParseControlFrame(data); ok {
		postControl(t.dispatcher, t.metrics, cf, from, nil)
		return
	}

	t.metrics.audioFrames.Inc()
	if t.params.mode == ModeServer {
		t.dispatchServerAudio(data, from)
		return
	}
	t.dispatchClientAudio(data, from)
}

// dispatchClientAudio hands an audio frame to the client sink and reacts to
// its verdict.
func (t *DatagramTransport) dispatchClientAudio(data []byte, from HostAddress) {
	switch t.clientSink.PutAudioData(data, from) {
	case AudioBufferError, AudioGenericError:
		t.health.MarkUnhealthy()
		t.metrics.jitterErrors.Inc()

	case AudioNewConnection:
		t.metrics.newConnections.Inc()
		t.dispatcher.Post(Event{Kind: EventNewConnection, From: from})

	case AudioInvalidPacket:
		t.metrics.invalidPackets.Inc()
		t.dispatcher.Post(Event{Kind: EventInvalidPacket, From: from})
	}
}

// dispatchServerAudio hands an audio frame to the server sink, reports new
// connections and wakes an idle server, and reports exhausted capacity.
func (t *DatagramTransport) dispatchServerAudio(data []byte, from HostAddress) {
	isNew, channelID := t.serverSink.PutAudioData(data, from)

	if isNew {
		t.metrics.newConnections.Inc()
		t.dispatcher.Post(Event{
			Kind:        EventNewConnection,
			From:        from,
			ChannelID:   channelID,
			ClientCount: t.serverSink.ConnectedClientCount(),
		})

		if !t.serverSink.IsRunning() {
			t.dispatcher.Post(Event{Kind: EventWakeRequested, From: from})
		}
	}

	if channelID == NoChannelAvailable {
		t.metrics.capacityExceeded.Inc()
		t.dispatcher.Post(Event{Kind: EventCapacityExceeded, From: from})
	}
}

// postControl routes a decoded control frame to the dispatcher as a
// connectionless or session event. The body is copied out of the caller's
// buffer before it crosses goroutines.
func postControl(d *Dispatcher, m *Metrics, cf ControlFrame, from HostAddress, conn *StreamConn) {
	cat := cf.Category()
	m.observeControl(cat)

	ev := Event{
		ID:   cf.ID,
		Body: append([]byte(nil), cf.Body...),
		From: from,
		Conn: conn,
	}
	if cat == Connectionless {
		ev.Kind = EventConnectionlessControl
	} else {
		ev.Kind = EventSessionControl
		ev.Sequence = cf.Sequence
	}

	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		logrus.WithFields(logrus.Fields{
			"function": "postControl",
			"id":       cf.ID.String(),
			"category": cat.String(),
			"from":     from.String(),
			"size":     len(cf.Body),
		}).Debug("Control message received")
	}

	d.Post(ev)
}
