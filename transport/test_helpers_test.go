package transport

import (
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var allEventKinds = []EventKind{
	EventConnectionlessControl,
	EventSessionControl,
	EventNewConnection,
	EventCapacityExceeded,
	EventInvalidPacket,
	EventWakeRequested,
}

// receivedAudio is one PutAudioData call seen by a fake sink.
type receivedAudio struct {
	data []byte
	from HostAddress
}

// fakeClientSink records audio frames and answers with a fixed status.
type fakeClientSink struct {
	mu     sync.Mutex
	status AudioStatus
	frames []receivedAudio
}

func (s *fakeClientSink) PutAudioData(data []byte, from HostAddress) AudioStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frames = append(s.frames, receivedAudio{data: append([]byte(nil), data...), from: from})
	return s.status
}

func (s *fakeClientSink) received() []receivedAudio {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]receivedAudio(nil), s.frames...)
}

// fakeServerSink records audio frames and answers with a fixed verdict.
type fakeServerSink struct {
	mu        sync.Mutex
	isNew     bool
	channelID int
	running   bool
	clients   int
	frames    []receivedAudio
}

func (s *fakeServerSink) PutAudioData(data []byte, from HostAddress) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frames = append(s.frames, receivedAudio{data: append([]byte(nil), data...), from: from})
	return s.isNew, s.channelID
}

func (s *fakeServerSink) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

func (s *fakeServerSink) ConnectedClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.clients
}

func (s *fakeServerSink) received() []receivedAudio {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]receivedAudio(nil), s.frames...)
}

// eventRecorder collects every event a transport emits.
type eventRecorder struct {
	events chan Event
}

func recordEvents(tr interface {
	RegisterHandler(EventKind, EventHandler)
}) *eventRecorder {
	r := &eventRecorder{events: make(chan Event, 64)}
	for _, kind := range allEventKinds {
		tr.RegisterHandler(kind, func(ev Event) { r.events <- ev })
	}
	return r
}

func (r *eventRecorder) next(t *testing.T) Event {
	t.Helper()

	select {
	case ev := <-r.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func (r *eventRecorder) none(t *testing.T, wait time.Duration) {
	t.Helper()

	select {
	case ev := <-r.events:
		t.Fatalf("unexpected %s event from %s", ev.Kind, ev.From)
	case <-time.After(wait):
	}
}

func mustEncode(t *testing.T, id MessageID, sequence uint8, body []byte) []byte {
	t.Helper()

	frame, err := EncodeControlFrame(id, sequence, body)
	require.NoError(t, err)
	return frame
}

func loopback(port uint16) HostAddress {
	return NewHostAddress(netip.MustParseAddr("127.0.0.1"), port)
}

func hostAddressOf(t *testing.T, addr net.Addr) HostAddress {
	t.Helper()

	h, err := HostAddressFromNetAddr(addr)
	require.NoError(t, err)
	return h
}

// audioPayload returns bytes that never parse as a control frame.
func audioPayload(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(0xA0 + i%16)
	}
	return data
}
