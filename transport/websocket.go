package transport

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// DefaultWebSocketMessageLimit bounds a single WebSocket message. It is
// independent of the frame size: a message may carry several frames, and the
// frame reader enforces the per-frame limit.
const DefaultWebSocketMessageLimit = 1 << 20

// wsWriter writes each frame as one binary WebSocket message.
type wsWriter struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func (w *wsWriter) WriteFrame(frame []byte) error {
	if w.timeout > 0 {
		if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
			return err
		}
	}
	return w.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (w *wsWriter) Close() error {
	return w.conn.Close()
}

// WebSocketHandler serves stream connections tunneled through WebSocket, for
// networks that only let HTTP through. Binary messages are fed into the same
// framed reader as TCP connections, so a frame may span messages and one
// message may carry several frames. Events are posted to the dispatcher of
// the stream transport the handler belongs to.
type WebSocketHandler struct {
	stream       *StreamTransport
	upgrader     websocket.Upgrader
	messageLimit int64
}

// NewWebSocketHandler returns an http.Handler serving WebSocket stream
// connections on behalf of stream.
func NewWebSocketHandler(stream *StreamTransport) *WebSocketHandler {
	return &WebSocketHandler{
		stream: stream,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		messageLimit: DefaultWebSocketMessageLimit,
	}
}

// ServeHTTP upgrades the request and serves the connection until it ends.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.stream.ctx.Err() != nil {
		http.Error(w, ErrTransportClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "WebSocketHandler.ServeHTTP",
			"remote":   r.RemoteAddr,
			"error":    err.Error(),
		}).Debug("WebSocket upgrade failed")
		return
	}

	remote, err := HostAddressFromNetAddr(conn.RemoteAddr())
	if err != nil {
		_ = conn.Close()
		return
	}

	sc := newStreamConn(remote, &wsWriter{conn: conn, timeout: h.stream.writeTimeout})
	if err := h.stream.track(sc); err != nil {
		_ = conn.Close()
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "WebSocketHandler.ServeHTTP",
		"conn_id":  sc.ID().String(),
		"remote":   remote.String(),
	}).Debug("WebSocket stream connection opened")

	h.serve(conn, sc)
}

// serve reads messages until the connection ends or violates the framing.
func (h *WebSocketHandler) serve(conn *websocket.Conn, sc *StreamConn) {
	t := h.stream
	defer t.release(sc)

	reader := NewFrameReader(t.maxFrameSize)
	defer reader.Close()

	conn.SetReadLimit(h.messageLimit)

	emit := func(frame []byte) error {
		return t.handleFrame(frame, sc)
	}

	for {
		messageType, msg, err := conn.ReadMessage()
		if errors.Is(err, websocket.ErrReadLimit) {
			t.framingError(sc, fmt.Errorf("%w: websocket message exceeds %d bytes", ErrFramingViolation, h.messageLimit))
			return
		}
		if err != nil {
			t.readEnded(sc, reader, err)
			return
		}

		if messageType != websocket.BinaryMessage {
			t.framingError(sc, fmt.Errorf("%w: unexpected websocket message type %d", ErrFramingViolation, messageType))
			return
		}

		if err := reader.Feed(msg, emit); err != nil {
			t.framingError(sc, err)
			return
		}
	}
}
