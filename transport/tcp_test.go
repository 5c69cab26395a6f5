package transport

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoopbackStream(t *testing.T) *StreamTransport {
	t.Helper()

	st, err := NewStreamTransport(StreamConfig{BindAddress: "127.0.0.1"})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestStreamTransport_ConnectionlessWithReplyHandle(t *testing.T) {
	st := newLoopbackStream(t)
	rec := recordEvents(st)

	conn, err := net.Dial("tcp", st.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(mustEncode(t, MsgCLPing, 0, nil))
	require.NoError(t, err)

	ev := rec.next(t)
	assert.Equal(t, EventConnectionlessControl, ev.Kind)
	assert.Equal(t, MsgCLPing, ev.ID)
	assert.Empty(t, ev.Body)
	assert.Equal(t, hostAddressOf(t, conn.LocalAddr()), ev.From)
	require.NotNil(t, ev.Conn)
	assert.Equal(t, ev.From, ev.Conn.RemoteAddr())

	reply := mustEncode(t, MsgCLPing, 0, []byte{7, 7})
	require.NoError(t, ev.Conn.Send(reply))

	buf := make([]byte, len(reply))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)

	got := Classify(buf)
	require.Equal(t, FrameControl, got.Kind)
	assert.Equal(t, MsgCLPing, got.Control.ID)
	assert.Equal(t, []byte{7, 7}, got.Control.Body)
}

func TestStreamTransport_RoutesConnectionOrientedMessages(t *testing.T) {
	st := newLoopbackStream(t)
	rec := recordEvents(st)

	conn, err := net.Dial("tcp", st.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(mustEncode(t, MessageID(7), 5, nil))
	require.NoError(t, err)

	ev := rec.next(t)
	assert.Equal(t, EventSessionControl, ev.Kind)
	assert.Equal(t, MessageID(7), ev.ID)
	assert.Equal(t, uint32(5), ev.Sequence)
	assert.Empty(t, ev.Body)
	assert.NotNil(t, ev.Conn)
}

func TestStreamTransport_DialBothWays(t *testing.T) {
	server := newLoopbackStream(t)
	serverEvents := recordEvents(server)

	client := newLoopbackStream(t)
	clientEvents := recordEvents(client)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sc, err := client.Dial(ctx, server.LocalAddr().String())
	require.NoError(t, err)
	require.NoError(t, sc.SendControl(MsgCLRequestVersionAndOS, 0, nil))

	ev := serverEvents.next(t)
	assert.Equal(t, MsgCLRequestVersionAndOS, ev.ID)
	require.NoError(t, ev.Conn.SendControl(MsgCLVersionAndOS, 0, []byte("linux")))

	ev = clientEvents.next(t)
	assert.Equal(t, EventConnectionlessControl, ev.Kind)
	assert.Equal(t, MsgCLVersionAndOS, ev.ID)
	assert.Equal(t, []byte("linux"), ev.Body)
	assert.Same(t, sc, ev.Conn)
}

func TestStreamTransport_ReleasesConnections(t *testing.T) {
	st := newLoopbackStream(t)

	conn, err := net.Dial("tcp", st.LocalAddr().String())
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return st.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return st.ConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStreamTransport_CloseClosesConnections(t *testing.T) {
	st, err := NewStreamTransport(StreamConfig{BindAddress: "127.0.0.1"})
	require.NoError(t, err)

	conn, err := net.Dial("tcp", st.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	assert.Eventually(t, func() bool { return st.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, st.Close())
	require.NoError(t, st.Close())
	assert.Equal(t, 0, st.ConnectionCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamConn_RejectsNonControlFrames(t *testing.T) {
	conn := newScriptedConn()
	sc := newStreamConn(loopback(1), &netConnWriter{conn: conn})

	assert.ErrorIs(t, sc.Send(audioPayload(32)), ErrNotControlFrame)
	assert.Empty(t, conn.written)

	require.NoError(t, sc.SendControl(MsgCLPing, 0, nil))
	assert.Equal(t, mustEncode(t, MsgCLPing, 0, nil), conn.written)

	require.NoError(t, sc.Close())
	require.NoError(t, sc.Close())
	assert.ErrorIs(t, sc.SendControl(MsgCLPing, 0, nil), ErrTransportClosed)
}

func TestNewStreamTransport_InvalidBindAddress(t *testing.T) {
	_, err := NewStreamTransport(StreamConfig{BindAddress: "not-an-ip"})
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = NewStreamTransport(StreamConfig{BindAddress: "::1"})
	assert.ErrorIs(t, err, ErrInvalidAddress)
}
