package transport

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/opd-ai/audiocore/limits"
	"github.com/sirupsen/logrus"
)

// Dispatcher moves events off the receive goroutines onto a single worker
// goroutine, where the registered handlers run. Posting never blocks: when
// the queue is full the event is dropped. Drops are counted on the posting
// goroutine and reported in the log by the worker.
type Dispatcher struct {
	queue    chan Event
	handlers map[EventKind]EventHandler
	mu       sync.RWMutex
	metrics  *Metrics
	dropped  atomic.Uint64

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewDispatcher creates a dispatcher with the given queue size and starts its
// worker. A non-positive size selects limits.DefaultDispatchQueueSize; a nil
// metrics value selects unregistered collectors.
func NewDispatcher(queueSize int, metrics *Metrics) *Dispatcher {
	if queueSize <= 0 {
		queueSize = limits.DefaultDispatchQueueSize
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		queue:    make(chan Event, queueSize),
		handlers: make(map[EventKind]EventHandler),
		metrics:  metrics,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go d.run()

	return d
}

// RegisterHandler registers a handler for a specific event kind, replacing
// any previous handler for that kind.
func (d *Dispatcher) RegisterHandler(kind EventKind, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[kind] = handler
}

// Post queues an event for delivery. It reports whether the event was
// accepted. The caller must not retain or mutate ev.Body afterwards.
func (d *Dispatcher) Post(ev Event) bool {
	select {
	case <-d.ctx.Done():
		return false
	default:
	}

	select {
	case d.queue <- ev:
		return true
	default:
		d.metrics.eventsDropped.Inc()
		d.dropped.Add(1)
		return false
	}
}

// Close stops the worker. Events still queued are discarded.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.cancel()
		<-d.done
	})
}

// run delivers queued events until the dispatcher is closed.
func (d *Dispatcher) run() {
	defer close(d.done)

	for {
		select {
		case <-d.ctx.Done():
			return
		case ev := <-d.queue:
			d.deliver(ev)
			d.reportDropped()
		}
	}
}

// reportDropped logs the events dropped since the last report.
func (d *Dispatcher) reportDropped() {
	n := d.dropped.Swap(0)
	if n == 0 {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "Dispatcher.reportDropped",
		"dropped":  n,
	}).Warn("Dispatch queue full, dropped events")
}

// deliver invokes the handler registered for the event kind.
func (d *Dispatcher) deliver(ev Event) {
	d.mu.RLock()
	handler, exists := d.handlers[ev.Kind]
	d.mu.RUnlock()

	if !exists {
		logrus.WithFields(logrus.Fields{
			"function": "Dispatcher.deliver",
			"kind":     ev.Kind.String(),
		}).Debug("No handler registered for event kind")
		return
	}

	handler(ev)
}
