// Package channel provides a server-side channel table that assigns each
// audio sender a channel slot. It is the reference ServerAudioSink used by
// the server command.
package channel

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/audiocore/transport"
)

// Channel is a snapshot of one occupied slot.
type Channel struct {
	ID       int
	Addr     transport.HostAddress
	Joined   time.Time
	LastSeen time.Time
	Frames   uint64
	Bytes    uint64
}

type slot struct {
	used     bool
	addr     transport.HostAddress
	joined   time.Time
	lastSeen time.Time
	frames   uint64
	bytes    uint64
}

// Table maps sender addresses to a bounded set of channels.
// It satisfies transport.ServerAudioSink.
type Table struct {
	mu     sync.Mutex
	slots  []slot
	byAddr map[transport.HostAddress]int
	count  int

	running atomic.Bool
	now     func() time.Time
}

// NewTable creates a table with capacity channels.
func NewTable(capacity int) *Table {
	if capacity < 1 {
		capacity = 1
	}
	return &Table{
		slots:  make([]slot, capacity),
		byAddr: make(map[transport.HostAddress]int, capacity),
		now:    time.Now,
	}
}

// PutAudioData assigns the sender a channel on first contact and accounts
// the frame. It reports whether the channel is new, and the channel id or
// transport.NoChannelAvailable when the table is full.
func (t *Table) PutAudioData(data []byte, from transport.HostAddress) (bool, int) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if id, ok := t.byAddr[from]; ok {
		s := &t.slots[id]
		s.lastSeen = now
		s.frames++
		s.bytes += uint64(len(data))
		return false, id
	}

	for id := range t.slots {
		s := &t.slots[id]
		if s.used {
			continue
		}
		*s = slot{
			used:     true,
			addr:     from,
			joined:   now,
			lastSeen: now,
			frames:   1,
			bytes:    uint64(len(data)),
		}
		t.byAddr[from] = id
		t.count++
		return true, id
	}

	return false, transport.NoChannelAvailable
}

// IsRunning reports whether the server processing loop is active.
func (t *Table) IsRunning() bool {
	return t.running.Load()
}

// SetRunning records whether the server processing loop is active.
func (t *Table) SetRunning(running bool) {
	t.running.Store(running)
}

// ConnectedClientCount returns the number of occupied channels.
func (t *Table) ConnectedClientCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.count
}

// Capacity returns the number of channels.
func (t *Table) Capacity() int {
	return len(t.slots)
}

// Lookup returns the channel assigned to addr.
func (t *Table) Lookup(addr transport.HostAddress) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.byAddr[addr]
	return id, ok
}

// Release frees the channel assigned to addr. It reports whether addr held
// a channel.
func (t *Table) Release(addr transport.HostAddress) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.byAddr[addr]
	if !ok {
		return false
	}
	t.releaseLocked(id)
	return true
}

// ExpireIdle frees every channel that has not received audio for longer
// than timeout and returns the freed channels.
func (t *Table) ExpireIdle(timeout time.Duration) []Channel {
	cutoff := t.now().Add(-timeout)

	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []Channel
	for id := range t.slots {
		s := &t.slots[id]
		if s.used && s.lastSeen.Before(cutoff) {
			expired = append(expired, snapshot(id, s))
			t.releaseLocked(id)
		}
	}
	return expired
}

// Channels returns a snapshot of the occupied channels ordered by id.
func (t *Table) Channels() []Channel {
	t.mu.Lock()
	defer t.mu.Unlock()

	channels := make([]Channel, 0, t.count)
	for id := range t.slots {
		if s := &t.slots[id]; s.used {
			channels = append(channels, snapshot(id, s))
		}
	}
	return channels
}

func (t *Table) releaseLocked(id int) {
	delete(t.byAddr, t.slots[id].addr)
	t.slots[id] = slot{}
	t.count--
}

func snapshot(id int, s *slot) Channel {
	return Channel{
		ID:       id,
		Addr:     s.addr,
		Joined:   s.joined,
		LastSeen: s.lastSeen,
		Frames:   s.frames,
		Bytes:    s.bytes,
	}
}
