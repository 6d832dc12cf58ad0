package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/commlink/clock"
	"github.com/opd-ai/commlink/protocol"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []protocol.Envelope
	down bool
}

func (r *recordingSender) Send(env protocol.Envelope) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return false
	}
	r.sent = append(r.sent, env)
	return true
}

func (r *recordingSender) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, env := range r.sent {
		out = append(out, env.Type)
	}
	return out
}

func newClock() *clock.Manual {
	return clock.NewManual(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
}

func TestTrackerStartStop(t *testing.T) {
	clk := newClock()
	tr := NewTracker(clk, 0, 0)

	var changes [][]int64
	tr.OnChange(func(conv int64, users []int64) {
		assert.Equal(t, int64(1), conv)
		changes = append(changes, users)
	})

	tr.Started(1, 7)
	tr.Started(1, 3)
	tr.Started(1, 7) // refresh, no change
	assert.Equal(t, []int64{3, 7}, tr.Typing(1))
	assert.Empty(t, tr.Typing(2))

	tr.Stopped(1, 7)
	tr.Stopped(1, 7)
	assert.Equal(t, []int64{3}, tr.Typing(1))
	assert.Equal(t, [][]int64{{7}, {3, 7}, {3}}, changes)
}

func TestTrackerStopRemovesRegardlessOfAge(t *testing.T) {
	clk := newClock()
	tr := NewTracker(clk, 0, 0)
	tr.Started(1, 7)
	clk.Advance(100 * time.Millisecond)
	tr.Stopped(1, 7)
	assert.Empty(t, tr.Typing(1))
}

func TestTrackerExpiredEntriesHiddenBeforeSweep(t *testing.T) {
	clk := newClock()
	tr := NewTracker(clk, 0, 0)
	tr.Started(1, 7)

	clk.Advance(5900 * time.Millisecond)
	assert.Equal(t, []int64{7}, tr.Typing(1))

	clk.Advance(100 * time.Millisecond)
	assert.Empty(t, tr.Typing(1), "stale entry reported before the sweep ran")
}

func TestTrackerSweepPurgesWithoutStop(t *testing.T) {
	clk := newClock()
	tr := NewTracker(clk, 0, 0)
	tr.Start()
	defer tr.Stop()

	var last []int64
	notified := 0
	tr.OnChange(func(_ int64, users []int64) {
		notified++
		last = users
	})

	tr.Started(1, 7)
	clk.Advance(2 * time.Second)
	tr.Started(1, 8)

	// 7 became stale at 6s; the sweep at 6s removes it while 8 stays.
	clk.Advance(4 * time.Second)
	assert.Equal(t, []int64{8}, tr.Typing(1))
	assert.Equal(t, []int64{8}, last)

	clk.Advance(3 * time.Second)
	assert.Empty(t, tr.Typing(1))
	assert.Empty(t, last)
	assert.Equal(t, 4, notified)

	tr.mu.Lock()
	assert.Empty(t, tr.entries)
	tr.mu.Unlock()
}

func TestTrackerStopCancelsSweep(t *testing.T) {
	clk := newClock()
	tr := NewTracker(clk, 0, 0)
	tr.Start()
	tr.Start()
	assert.Equal(t, 1, clk.Pending())
	tr.Stop()
	assert.Equal(t, 0, clk.Pending())
}

func TestNotifierRateLimitsStarts(t *testing.T) {
	clk := newClock()
	s := &recordingSender{}
	n := NewNotifier(s, NotifierOptions{Clock: clk})
	defer n.Close()

	n.Keystroke(5)
	clk.Advance(300 * time.Millisecond)
	n.Keystroke(5)
	clk.Advance(300 * time.Millisecond)
	n.Keystroke(5)
	assert.Equal(t, []string{protocol.TypeTypingStarted}, s.types())

	clk.Advance(700 * time.Millisecond)
	n.Keystroke(5)
	assert.Equal(t, []string{protocol.TypeTypingStarted, protocol.TypeTypingStarted}, s.types())

	// Independent per conversation.
	n.Keystroke(6)
	assert.Len(t, s.types(), 3)
	assert.Equal(t, int64(6), s.sent[2].Conversation())
}

func TestNotifierAutoStopsAfterIdle(t *testing.T) {
	clk := newClock()
	s := &recordingSender{}
	n := NewNotifier(s, NotifierOptions{Clock: clk})

	n.Keystroke(5)
	clk.Advance(2 * time.Second)
	n.Keystroke(5) // rearms the idle timer
	clk.Advance(2 * time.Second)
	assert.Equal(t, []string{protocol.TypeTypingStarted, protocol.TypeTypingStarted}, s.types())

	clk.Advance(200 * time.Millisecond)
	assert.Equal(t, []string{protocol.TypeTypingStarted, protocol.TypeTypingStarted, protocol.TypeTypingStopped}, s.types())
	assert.Equal(t, 0, clk.Pending())
}

func TestNotifierClear(t *testing.T) {
	clk := newClock()
	s := &recordingSender{}
	n := NewNotifier(s, NotifierOptions{Clock: clk})

	n.Clear(5)
	assert.Empty(t, s.types(), "no stop without an outstanding start")

	n.Keystroke(5)
	n.Clear(5)
	n.Clear(5)
	require.Equal(t, []string{protocol.TypeTypingStarted, protocol.TypeTypingStopped}, s.types())
	assert.Equal(t, 0, clk.Pending())

	// Typing again right after a stop announces a new start at once.
	n.Keystroke(5)
	assert.Equal(t, protocol.TypeTypingStarted, s.types()[2])
}

func TestNotifierCloseCancelsTimers(t *testing.T) {
	clk := newClock()
	s := &recordingSender{}
	n := NewNotifier(s, NotifierOptions{Clock: clk})
	n.Keystroke(1)
	n.Keystroke(2)
	n.Close()
	assert.Equal(t, 0, clk.Pending())
	clk.Advance(time.Minute)
	assert.Len(t, s.types(), 2)
}
