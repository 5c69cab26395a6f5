package transport

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_DeliversInOrder(t *testing.T) {
	d := NewDispatcher(16, nil)
	defer d.Close()

	got := make(chan MessageID, 16)
	d.RegisterHandler(EventSessionControl, func(ev Event) { got <- ev.ID })

	for id := MessageID(1); id <= 10; id++ {
		require.True(t, d.Post(Event{Kind: EventSessionControl, ID: id}))
	}

	for id := MessageID(1); id <= 10; id++ {
		select {
		case g := <-got:
			assert.Equal(t, id, g)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestDispatcher_UnhandledKindIsIgnored(t *testing.T) {
	d := NewDispatcher(4, nil)
	defer d.Close()

	delivered := make(chan struct{}, 1)
	d.RegisterHandler(EventInvalidPacket, func(Event) { delivered <- struct{}{} })

	assert.True(t, d.Post(Event{Kind: EventWakeRequested}))
	assert.True(t, d.Post(Event{Kind: EventInvalidPacket}))

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("handled event not delivered after unhandled one")
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	metrics := NewMetrics(nil)
	d := NewDispatcher(1, metrics)
	defer d.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	d.RegisterHandler(EventNewConnection, func(Event) {
		started <- struct{}{}
		<-release
	})

	require.True(t, d.Post(Event{Kind: EventNewConnection}))
	<-started

	assert.True(t, d.Post(Event{Kind: EventNewConnection}), "queue has room for one")
	assert.False(t, d.Post(Event{Kind: EventNewConnection}), "full queue must drop")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.eventsDropped))

	close(release)
	<-started
}

func TestDispatcher_DropBurstLogsOnce(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	metrics := NewMetrics(nil)
	d := NewDispatcher(1, metrics)
	defer d.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	d.RegisterHandler(EventNewConnection, func(Event) {
		started <- struct{}{}
		<-release
	})

	require.True(t, d.Post(Event{Kind: EventNewConnection}))
	<-started
	require.True(t, d.Post(Event{Kind: EventNewConnection}))

	for i := 0; i < 50; i++ {
		assert.False(t, d.Post(Event{Kind: EventNewConnection}))
	}
	assert.Equal(t, 50.0, testutil.ToFloat64(metrics.eventsDropped))
	assert.Empty(t, dropReports(hook), "posting must not log")

	close(release)
	<-started

	require.Eventually(t, func() bool {
		return len(dropReports(hook)) > 0
	}, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	entries := dropReports(hook)
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(50), entries[0].Data["dropped"])
}

func dropReports(hook *logtest.Hook) []*logrus.Entry {
	var out []*logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["function"] == "Dispatcher.reportDropped" {
			out = append(out, e)
		}
	}
	return out
}

func TestDispatcher_PostAfterClose(t *testing.T) {
	d := NewDispatcher(0, nil)
	d.Close()
	d.Close()

	assert.False(t, d.Post(Event{Kind: EventWakeRequested}))
}

func TestEventKind_String(t *testing.T) {
	expected := map[EventKind]string{
		EventConnectionlessControl: "connectionless_control",
		EventSessionControl:        "session_control",
		EventNewConnection:         "new_connection",
		EventCapacityExceeded:      "capacity_exceeded",
		EventInvalidPacket:         "invalid_packet",
		EventWakeRequested:         "wake_requested",
		EventKind(99):              "unknown",
	}
	for kind, name := range expected {
		assert.Equal(t, name, kind.String())
	}
}
