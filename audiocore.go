package audiocore

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/audiocore/config"
	"github.com/opd-ai/audiocore/limits"
	"github.com/opd-ai/audiocore/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Options contains configuration options for creating a Node.
type Options struct {
	Datagram transport.DatagramConfig

	// StreamEnabled starts the reliable stream transport next to the
	// datagram socket.
	StreamEnabled bool
	Stream        transport.StreamConfig

	WebSocket HTTPEndpoint
	Metrics   HTTPEndpoint

	DispatchQueueSize  int
	HealthPollInterval time.Duration
}

// HTTPEndpoint describes an optional HTTP handler mount. Endpoints sharing a
// listen address are served by one HTTP server.
type HTTPEndpoint struct {
	Enabled bool
	Listen  string
	Path    string
}

// NewOptions creates a new default Options.
func NewOptions() *Options {
	return &Options{
		Datagram: transport.DefaultDatagramConfig(),
		Stream: transport.StreamConfig{
			Port:         limits.DefaultPort,
			WriteTimeout: transport.DefaultStreamWriteTimeout,
		},
		WebSocket:          HTTPEndpoint{Listen: ":8080", Path: "/ws"},
		Metrics:            HTTPEndpoint{Listen: ":9090", Path: "/metrics"},
		DispatchQueueSize:  limits.DefaultDispatchQueueSize,
		HealthPollInterval: time.Second,
	}
}

// NewOptionsFromConfig converts a validated configuration into Options.
func NewOptionsFromConfig(cfg *config.Config) *Options {
	recovery := transport.DefaultRecoveryPolicy()
	recovery.ReinitOnTransient = cfg.Datagram.ReinitOnSendFailure

	return &Options{
		Datagram: transport.DatagramConfig{
			Port:            uint16(cfg.Datagram.Port),
			QoS:             cfg.Datagram.QoS,
			BindAddress:     cfg.Datagram.BindAddress,
			EnableIPv6:      cfg.Datagram.EnableIPv6,
			PortRetryCount:  cfg.Datagram.PortRetryCount,
			MaxDatagramSize: cfg.Datagram.MaxDatagramSize,
			Recovery:        recovery,
		},
		StreamEnabled: cfg.Stream.Enabled,
		Stream: transport.StreamConfig{
			BindAddress:  cfg.Stream.BindAddress,
			Port:         uint16(cfg.Stream.Port),
			EnableIPv6:   cfg.Datagram.EnableIPv6,
			MaxFrameSize: cfg.Stream.MaxFrameSize,
			WriteTimeout: cfg.Stream.WriteTimeout,
		},
		WebSocket: HTTPEndpoint{
			Enabled: cfg.Stream.WebSocket.Enabled,
			Listen:  cfg.Stream.WebSocket.Listen,
			Path:    cfg.Stream.WebSocket.Path,
		},
		Metrics: HTTPEndpoint{
			Enabled: cfg.Metrics.Enabled,
			Listen:  cfg.Metrics.Listen,
			Path:    cfg.Metrics.Path,
		},
		DispatchQueueSize:  cfg.Dispatch.QueueSize,
		HealthPollInterval: cfg.Health.PollInterval,
	}
}

// Node bundles the transports of one client or server process: a datagram
// socket, an optional stream listener with its WebSocket variant, the shared
// event dispatcher and the metrics registry.
type Node struct {
	options *Options
	mode    transport.Mode

	registry   *prometheus.Registry
	metrics    *transport.Metrics
	dispatcher *transport.Dispatcher
	datagram   *transport.DatagramTransport
	stream     *transport.StreamTransport
	endpoints  *httpEndpoints

	jitterHealthCallback func(ok bool)
	callbackMu           sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	killed  sync.Once
}

// NewServer creates a server node. The datagram socket binds exactly
// options.Datagram.Port; a bind failure is fatal and returned as a wrapped
// transport.ErrBindFailed.
func NewServer(options *Options, sink transport.ServerAudioSink) (*Node, error) {
	if sink == nil {
		return nil, transport.ErrNilSink
	}
	n := newNode(options, transport.ModeServer)

	cfg := n.datagramConfig()
	datagram, err := transport.NewServerDatagramTransport(cfg, sink)
	if err != nil {
		n.dispatcher.Close()
		return nil, err
	}
	n.datagram = datagram

	if err := n.startStream(n.options.Stream.Port); err != nil {
		n.Kill()
		return nil, err
	}
	return n, nil
}

// NewClient creates a client node. The datagram socket binds within the
// randomized client port window. A client stream transport listens on an
// ephemeral port and is used through DialStream.
func NewClient(options *Options, sink transport.ClientAudioSink) (*Node, error) {
	if sink == nil {
		return nil, transport.ErrNilSink
	}
	n := newNode(options, transport.ModeClient)

	cfg := n.datagramConfig()
	datagram, err := transport.NewClientDatagramTransport(cfg, sink)
	if err != nil {
		n.dispatcher.Close()
		return nil, err
	}
	n.datagram = datagram

	if err := n.startStream(0); err != nil {
		n.Kill()
		return nil, err
	}
	return n, nil
}

func newNode(options *Options, mode transport.Mode) *Node {
	if options == nil {
		options = NewOptions()
	}

	registry := prometheus.NewRegistry()
	metrics := transport.NewMetrics(registry)
	ctx, cancel := context.WithCancel(context.Background())

	return &Node{
		options:    options,
		mode:       mode,
		registry:   registry,
		metrics:    metrics,
		dispatcher: transport.NewDispatcher(options.DispatchQueueSize, metrics),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (n *Node) datagramConfig() transport.DatagramConfig {
	cfg := n.options.Datagram
	cfg.Dispatcher = n.dispatcher
	cfg.Metrics = n.metrics
	return cfg
}

func (n *Node) startStream(port uint16) error {
	if !n.options.StreamEnabled {
		return nil
	}

	cfg := n.options.Stream
	cfg.Port = port
	cfg.Dispatcher = n.dispatcher
	cfg.Metrics = n.metrics

	stream, err := transport.NewStreamTransport(cfg)
	if err != nil {
		return fmt.Errorf("failed to start stream transport: %w", err)
	}
	n.stream = stream
	return nil
}

// Mode returns whether the node runs as client or server.
func (n *Node) Mode() transport.Mode {
	return n.mode
}

// Datagram returns the datagram transport.
func (n *Node) Datagram() *transport.DatagramTransport {
	return n.datagram
}

// Stream returns the stream transport, or nil when it is disabled.
func (n *Node) Stream() *transport.StreamTransport {
	return n.stream
}

// Registry returns the registry holding the node's metrics.
func (n *Node) Registry() *prometheus.Registry {
	return n.registry
}

// LocalAddr returns the address of the datagram socket.
func (n *Node) LocalAddr() net.Addr {
	return n.datagram.LocalAddr()
}

// EndpointAddr returns the address the HTTP server for the given listen
// address is bound to, once Start has run.
func (n *Node) EndpointAddr(listen string) (net.Addr, bool) {
	if n.endpoints == nil {
		return nil, false
	}
	return n.endpoints.addr(listen)
}

// OnConnectionlessMessage sets the handler for connectionless control
// messages. When the message arrived over a stream connection, ev.Conn is the
// reply handle; otherwise the reply goes to ev.From over the datagram socket.
func (n *Node) OnConnectionlessMessage(handler transport.EventHandler) {
	n.dispatcher.RegisterHandler(transport.EventConnectionlessControl, handler)
}

// OnSessionMessage sets the handler for connection-oriented control messages.
func (n *Node) OnSessionMessage(handler transport.EventHandler) {
	n.dispatcher.RegisterHandler(transport.EventSessionControl, handler)
}

// OnNewConnection sets the handler called when an audio sender establishes a
// connection.
func (n *Node) OnNewConnection(handler transport.EventHandler) {
	n.dispatcher.RegisterHandler(transport.EventNewConnection, handler)
}

// OnCapacityExceeded sets the handler called when a server has no free
// channel for a sender.
func (n *Node) OnCapacityExceeded(handler transport.EventHandler) {
	n.dispatcher.RegisterHandler(transport.EventCapacityExceeded, handler)
}

// OnInvalidPacket sets the handler called when the client audio sink rejects
// a frame.
func (n *Node) OnInvalidPacket(handler transport.EventHandler) {
	n.dispatcher.RegisterHandler(transport.EventInvalidPacket, handler)
}

// OnWakeRequested sets the handler called when a new connection arrives
// while the server processing loop is idle.
func (n *Node) OnWakeRequested(handler transport.EventHandler) {
	n.dispatcher.RegisterHandler(transport.EventWakeRequested, handler)
}

// OnJitterHealth sets the callback invoked on every health poll with
// whether the jitter buffer stayed error free since the previous poll.
func (n *Node) OnJitterHealth(callback func(ok bool)) {
	n.callbackMu.Lock()
	defer n.callbackMu.Unlock()

	n.jitterHealthCallback = callback
}

// Start serves the enabled HTTP endpoints and runs the jitter health poll
// until ctx is done or Kill is called.
func (n *Node) Start(ctx context.Context) error {
	if !n.running.CompareAndSwap(false, true) {
		return fmt.Errorf("node already started")
	}
	if n.ctx.Err() != nil {
		return transport.ErrTransportClosed
	}

	endpoints, err := n.serveEndpoints()
	if err != nil {
		n.running.Store(false)
		return err
	}
	n.endpoints = endpoints

	n.wg.Add(1)
	go n.pollHealth(ctx)

	logrus.WithFields(logrus.Fields{
		"function":   "Node.Start",
		"mode":       n.mode.String(),
		"local_addr": n.LocalAddr().String(),
	}).Info("Node started")

	return nil
}

// pollHealth reads and resets the jitter health flag at the configured
// interval.
func (n *Node) pollHealth(ctx context.Context) {
	defer n.wg.Done()

	interval := n.options.HealthPollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			ok := n.datagram.Health().PollAndReset()

			n.callbackMu.RLock()
			callback := n.jitterHealthCallback
			n.callbackMu.RUnlock()

			if callback != nil {
				callback(ok)
			}
		}
	}
}

// Send writes one datagram. It never reports an error; see
// transport.DatagramTransport.Send.
func (n *Node) Send(data []byte, to transport.HostAddress) {
	n.datagram.Send(data, to)
}

// SendControl encodes a control message and sends it over the datagram
// socket.
func (n *Node) SendControl(to transport.HostAddress, id transport.MessageID, sequence uint8, body []byte) error {
	return n.datagram.SendControl(to, id, sequence, body)
}

// DialStream opens a stream connection to a server's stream transport.
func (n *Node) DialStream(ctx context.Context, address string) (*transport.StreamConn, error) {
	if n.stream == nil {
		return nil, fmt.Errorf("stream transport is disabled")
	}
	return n.stream.Dial(ctx, address)
}

// IsRunning reports whether Start has been called and Kill has not.
func (n *Node) IsRunning() bool {
	return n.running.Load() && n.ctx.Err() == nil
}

// Kill stops the node and releases all resources. It is safe to call more
// than once.
func (n *Node) Kill() {
	n.killed.Do(func() {
		n.cancel()

		if n.endpoints != nil {
			n.endpoints.shutdown()
		}
		if n.stream != nil {
			if err := n.stream.Close(); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Node.Kill",
					"error":    err.Error(),
				}).Warn("Failed to close stream transport")
			}
		}
		if n.datagram != nil {
			if err := n.datagram.Close(); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Node.Kill",
					"error":    err.Error(),
				}).Warn("Failed to close datagram transport")
			}
		}

		n.wg.Wait()
		n.dispatcher.Close()
		n.running.Store(false)

		logrus.WithFields(logrus.Fields{
			"function": "Node.Kill",
			"mode":     n.mode.String(),
		}).Info("Node stopped")
	})
}
