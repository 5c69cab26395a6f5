package main

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/opd-ai/audiocore"
	"github.com/opd-ai/audiocore/channel"
	"github.com/opd-ai/audiocore/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loopbackOptions() *audiocore.Options {
	opts := audiocore.NewOptions()
	opts.Datagram.Port = 0
	opts.Datagram.BindAddress = "127.0.0.1"
	return opts
}

func hostAddress(t *testing.T, addr net.Addr) transport.HostAddress {
	t.Helper()

	h, err := transport.HostAddressFromNetAddr(addr)
	require.NoError(t, err)
	return h
}

func waitEvent(t *testing.T, ch <-chan transport.Event) transport.Event {
	t.Helper()

	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return transport.Event{}
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "audiocore "+version)
}

func TestClientCommand_RequiresServer(t *testing.T) {
	serverAddress = ""
	rootCmd.SetArgs([]string{"client"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--server")
}

func TestServerHandlers(t *testing.T) {
	table := channel.NewTable(1)
	server, err := audiocore.NewServer(loopbackOptions(), table)
	require.NoError(t, err)
	defer server.Kill()
	registerServerHandlers(server, table)

	client, err := audiocore.NewClient(loopbackOptions(), discardSink{})
	require.NoError(t, err)
	defer client.Kill()

	replies := make(chan transport.Event, 8)
	client.OnConnectionlessMessage(func(ev transport.Event) { replies <- ev })

	serverAddr := hostAddress(t, server.LocalAddr())

	t.Run("ping is echoed", func(t *testing.T) {
		body := pingTimestamp(time.Now())
		require.NoError(t, client.SendControl(serverAddr, transport.MsgCLPing, 0, body))

		ev := waitEvent(t, replies)
		assert.Equal(t, transport.MsgCLPing, ev.ID)
		assert.Equal(t, body, ev.Body)
	})

	t.Run("version request", func(t *testing.T) {
		require.NoError(t, client.SendControl(serverAddr, transport.MsgCLRequestVersionAndOS, 0, nil))

		ev := waitEvent(t, replies)
		assert.Equal(t, transport.MsgCLVersionAndOS, ev.ID)
		assert.Equal(t, versionAndOS(), ev.Body)
	})

	t.Run("audio occupies the only channel", func(t *testing.T) {
		client.Send([]byte{1, 2, 3}, serverAddr)

		require.Eventually(t, func() bool { return table.IsRunning() }, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, 1, table.ConnectedClientCount())
	})

	t.Run("ping with client count", func(t *testing.T) {
		require.NoError(t, client.SendControl(serverAddr, transport.MsgCLPingWithClientCount, 0, []byte{9}))

		ev := waitEvent(t, replies)
		assert.Equal(t, transport.MsgCLPingWithClientCount, ev.ID)
		assert.Equal(t, []byte{9, 1}, ev.Body)
	})

	t.Run("second sender is told the server is full", func(t *testing.T) {
		other, err := audiocore.NewClient(loopbackOptions(), discardSink{})
		require.NoError(t, err)
		defer other.Kill()

		full := make(chan transport.Event, 1)
		other.OnConnectionlessMessage(func(ev transport.Event) { full <- ev })

		other.Send([]byte{4, 5, 6}, serverAddr)
		assert.Equal(t, transport.MsgCLServerFull, waitEvent(t, full).ID)
	})

	t.Run("disconnection releases the channel", func(t *testing.T) {
		require.NoError(t, client.SendControl(serverAddr, transport.MsgCLDisconnection, 0, nil))

		require.Eventually(t, func() bool { return table.ConnectedClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	})
}

func TestPingTimestamp(t *testing.T) {
	start := time.Now().Add(-1500 * time.Millisecond)
	ms := binary.LittleEndian.Uint32(pingTimestamp(start))
	assert.GreaterOrEqual(t, ms, uint32(1500))
}
