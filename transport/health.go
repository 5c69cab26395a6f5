package transport

import "sync/atomic"

// JitterHealth is a read-and-reset error flag. The datagram receive path
// marks it when the audio sink reports a jitter buffer or generic error; a
// periodic poller reads it from another goroutine. A poll observes whether
// any error happened since the previous poll, never how many.
type JitterHealth struct {
	unhealthy atomic.Bool
}

// MarkUnhealthy records an audio dispatch error. It is idempotent and
// allocation-free, so it is safe on the audio path.
func (h *JitterHealth) MarkUnhealthy() {
	h.unhealthy.Store(true)
}

// PollAndReset returns true if no error was recorded since the previous
// poll, and unconditionally resets the flag to healthy.
func (h *JitterHealth) PollAndReset() bool {
	return !h.unhealthy.Swap(false)
}
