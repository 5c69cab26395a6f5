package transport

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJitterHealth_InitiallyHealthy(t *testing.T) {
	var h JitterHealth
	assert.True(t, h.PollAndReset())
	assert.True(t, h.PollAndReset())
}

func TestJitterHealth_ReportsErrorExactlyOnce(t *testing.T) {
	var h JitterHealth

	h.MarkUnhealthy()
	h.MarkUnhealthy()
	h.MarkUnhealthy()

	assert.False(t, h.PollAndReset(), "first poll after errors must report unhealthy")
	for i := 0; i < 5; i++ {
		assert.True(t, h.PollAndReset(), "poll %d without new errors must report healthy", i)
	}

	h.MarkUnhealthy()
	assert.False(t, h.PollAndReset())
	assert.True(t, h.PollAndReset())
}

func TestJitterHealth_ConcurrentMarkAndPoll(t *testing.T) {
	var h JitterHealth
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			h.MarkUnhealthy()
		}
	}()

	unhealthyPolls := 0
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if !h.PollAndReset() {
				unhealthyPolls++
			}
		}
	}()
	wg.Wait()

	// Drain whatever the writer left behind; afterwards the flag is clean.
	h.PollAndReset()
	assert.True(t, h.PollAndReset())
	assert.LessOrEqual(t, unhealthyPolls, 1000)
}
