package transport

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "audiocore"
	metricsSubsystem = "transport"
)

// Metrics holds the transport collectors. The hot-path counters are resolved
// once at construction so that incrementing them never allocates.
//
// A single Metrics value is meant to be shared by every transport of a
// process; registering two instances on the same Registerer panics.
type Metrics struct {
	framesReceived *prometheus.CounterVec
	framesSent     prometheus.Counter
	sendDrops      prometheus.Counter
	socketReinits  prometheus.Counter

	jitterErrors     prometheus.Counter
	newConnections   prometheus.Counter
	capacityExceeded prometheus.Counter
	invalidPackets   prometheus.Counter

	framingErrors     prometheus.Counter
	streamConnections prometheus.Gauge
	eventsDropped     prometheus.Counter

	audioFrames          prometheus.Counter
	connectionlessFrames prometheus.Counter
	sessionFrames        prometheus.Counter
}

// NewMetrics creates the transport collectors and registers them on reg.
// A nil reg leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "frames_received_total",
			Help:      "Frames received, by classification",
		}, []string{"kind"}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "frames_sent_total",
			Help:      "Datagrams written to the socket",
		}),
		sendDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "send_drops_total",
			Help:      "Datagrams dropped after all send attempts failed",
		}),
		socketReinits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "socket_reinits_total",
			Help:      "Datagram socket reinitializations after a transient send failure",
		}),
		jitterErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "jitter_errors_total",
			Help:      "Audio frames the client sink rejected with an error",
		}),
		newConnections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "new_connections_total",
			Help:      "Connections established by an audio frame",
		}),
		capacityExceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "capacity_exceeded_total",
			Help:      "Audio frames for which the server had no free channel",
		}),
		invalidPackets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "invalid_packets_total",
			Help:      "Audio frames the sink reported as invalid",
		}),
		framingErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "stream_framing_errors_total",
			Help:      "Stream connections closed because of a framing violation",
		}),
		streamConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "stream_connections_active",
			Help:      "Currently open stream connections",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "events_dropped_total",
			Help:      "Events dropped because the dispatch queue was full",
		}),
	}

	m.audioFrames = m.framesReceived.WithLabelValues("audio")
	m.connectionlessFrames = m.framesReceived.WithLabelValues("connectionless")
	m.sessionFrames = m.framesReceived.WithLabelValues("session")

	if reg != nil {
		reg.MustRegister(
			m.framesReceived,
			m.framesSent,
			m.sendDrops,
			m.socketReinits,
			m.jitterErrors,
			m.newConnections,
			m.capacityExceeded,
			m.invalidPackets,
			m.framingErrors,
			m.streamConnections,
			m.eventsDropped,
		)
	}

	return m
}

// observeControl counts a control frame by category.
func (m *Metrics) observeControl(cat Category) {
	if cat == Connectionless {
		m.connectionlessFrames.Inc()
		return
	}
	m.sessionFrames.Inc()
}
