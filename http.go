package audiocore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/opd-ai/audiocore/transport"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const endpointShutdownTimeout = 5 * time.Second

// httpEndpoints runs one HTTP server per distinct listen address.
type httpEndpoints struct {
	servers   map[string]*http.Server
	listeners map[string]net.Listener
}

// serveEndpoints mounts the enabled endpoints and starts serving them.
func (n *Node) serveEndpoints() (*httpEndpoints, error) {
	muxes := make(map[string]*http.ServeMux)
	mount := func(ep HTTPEndpoint, handler http.Handler) {
		mux, ok := muxes[ep.Listen]
		if !ok {
			mux = http.NewServeMux()
			muxes[ep.Listen] = mux
		}
		mux.Handle(ep.Path, handler)
	}

	if n.options.WebSocket.Enabled {
		if n.stream == nil {
			return nil, fmt.Errorf("websocket endpoint requires the stream transport")
		}
		mount(n.options.WebSocket, transport.NewWebSocketHandler(n.stream))
	}
	if n.options.Metrics.Enabled {
		mount(n.options.Metrics, promhttp.HandlerFor(n.registry, promhttp.HandlerOpts{}))
	}

	e := &httpEndpoints{
		servers:   make(map[string]*http.Server, len(muxes)),
		listeners: make(map[string]net.Listener, len(muxes)),
	}

	for listen, mux := range muxes {
		listener, err := net.Listen("tcp", listen)
		if err != nil {
			e.shutdown()
			return nil, fmt.Errorf("listen %s: %w", listen, err)
		}

		server := &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		e.servers[listen] = server
		e.listeners[listen] = listener

		logrus.WithFields(logrus.Fields{
			"function": "Node.serveEndpoints",
			"addr":     listener.Addr().String(),
		}).Info("Serving HTTP endpoints")

		go func() {
			if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.WithFields(logrus.Fields{
					"function": "Node.serveEndpoints",
					"addr":     listener.Addr().String(),
					"error":    err.Error(),
				}).Error("HTTP server error")
			}
		}()
	}

	return e, nil
}

// addr returns the bound address for a configured listen address.
func (e *httpEndpoints) addr(listen string) (net.Addr, bool) {
	listener, ok := e.listeners[listen]
	if !ok {
		return nil, false
	}
	return listener.Addr(), true
}

// shutdown stops every server, closing listeners that never started serving.
func (e *httpEndpoints) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), endpointShutdownTimeout)
	defer cancel()

	for listen, listener := range e.listeners {
		server, ok := e.servers[listen]
		if !ok {
			_ = listener.Close()
			continue
		}
		if err := server.Shutdown(ctx); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "httpEndpoints.shutdown",
				"addr":     listen,
				"error":    err.Error(),
			}).Warn("HTTP server shutdown failed")
		}
	}
}
