package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// frameWriter writes complete frames to the peer of a stream connection.
type frameWriter interface {
	WriteFrame(frame []byte) error
	Close() error
}

// netConnWriter writes frames to a byte-stream connection.
type netConnWriter struct {
	conn    net.Conn
	timeout time.Duration
}

func (w *netConnWriter) WriteFrame(frame []byte) error {
	if w.timeout > 0 {
		if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
			return err
		}
	}
	_, err := w.conn.Write(frame)
	return err
}

func (w *netConnWriter) Close() error {
	return w.conn.Close()
}

// StreamConn is the handle of one stream connection. It travels with every
// event received on the connection so that handlers can reply on it.
// Methods are safe for concurrent use.
type StreamConn struct {
	id     uuid.UUID
	remote HostAddress
	w      frameWriter

	mu     sync.Mutex
	closed atomic.Bool
}

func newStreamConn(remote HostAddress, w frameWriter) *StreamConn {
	return &StreamConn{
		id:     uuid.New(),
		remote: remote,
		w:      w,
	}
}

// ID returns the unique id of the connection.
func (c *StreamConn) ID() uuid.UUID {
	return c.id
}

// RemoteAddr returns the normalized address of the peer.
func (c *StreamConn) RemoteAddr() HostAddress {
	return c.remote
}

// IsClosed reports whether the connection has been closed.
func (c *StreamConn) IsClosed() bool {
	return c.closed.Load()
}

// Send writes an encoded control frame. The stream path never carries audio,
// so anything that is not a valid control envelope is rejected with
// ErrNotControlFrame.
func (c *StreamConn) Send(frame []byte) error {
	if _, ok := ParseControlFrame(frame); !ok {
		return ErrNotControlFrame
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrTransportClosed
	}
	return c.w.WriteFrame(frame)
}

// SendControl encodes and writes a control message.
func (c *StreamConn) SendControl(id MessageID, sequence uint8, body []byte) error {
	frame, err := EncodeControlFrame(id, sequence, body)
	if err != nil {
		return err
	}
	return c.Send(frame)
}

// Close closes the connection. It is safe to call more than once.
func (c *StreamConn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.w.Close()
}
