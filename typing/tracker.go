package typing

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/commlink/clock"
)

const (
	// DefaultStaleAfter is how long a started entry lives without refresh.
	DefaultStaleAfter = 6 * time.Second
	// DefaultSweepInterval is the period of the expiry sweep.
	DefaultSweepInterval = 1500 * time.Millisecond
)

// ChangeFunc receives the users currently typing in a conversation after the
// set changed.
type ChangeFunc func(conversationID int64, userIDs []int64)

// Tracker is the per-conversation, per-user typing state.
type Tracker struct {
	clk        clock.Clock
	staleAfter time.Duration
	interval   time.Duration

	mu       sync.Mutex
	entries  map[int64]map[int64]time.Time
	sweeper  clock.Timer
	running  bool
	onChange []ChangeFunc
}

// NewTracker creates a tracker. Zero durations select the defaults.
func NewTracker(clk clock.Clock, staleAfter, sweepInterval time.Duration) *Tracker {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	return &Tracker{
		clk:        clock.Or(clk),
		staleAfter: staleAfter,
		interval:   sweepInterval,
		entries:    make(map[int64]map[int64]time.Time),
	}
}

// OnChange registers a change callback. Callbacks run without the tracker's
// lock held.
func (t *Tracker) OnChange(fn ChangeFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = append(t.onChange, fn)
}

// Started records or refreshes a user's typing entry.
func (t *Tracker) Started(conversationID, userID int64) {
	t.mu.Lock()
	users := t.entries[conversationID]
	if users == nil {
		users = make(map[int64]time.Time)
		t.entries[conversationID] = users
	}
	now := t.clk.Now()
	prev, existed := users[userID]
	existed = existed && now.Sub(prev) < t.staleAfter
	users[userID] = now
	snapshot := t.typingLocked(conversationID)
	fns := t.onChange
	t.mu.Unlock()

	if !existed {
		notify(fns, conversationID, snapshot)
	}
}

// Stopped removes a user's entry regardless of its age.
func (t *Tracker) Stopped(conversationID, userID int64) {
	t.mu.Lock()
	users := t.entries[conversationID]
	if _, ok := users[userID]; !ok {
		t.mu.Unlock()
		return
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(t.entries, conversationID)
	}
	snapshot := t.typingLocked(conversationID)
	fns := t.onChange
	t.mu.Unlock()

	notify(fns, conversationID, snapshot)
}

// Typing returns the users typing in a conversation, sorted by id. Expired
// entries are never reported, even before the sweep removes them.
func (t *Tracker) Typing(conversationID int64) []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typingLocked(conversationID)
}

func (t *Tracker) typingLocked(conversationID int64) []int64 {
	now := t.clk.Now()
	var out []int64
	for userID, at := range t.entries[conversationID] {
		if now.Sub(at) < t.staleAfter {
			out = append(out, userID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Sweep purges every entry older than the staleness window.
func (t *Tracker) Sweep() {
	t.mu.Lock()
	now := t.clk.Now()
	changed := make(map[int64][]int64)
	for convID, users := range t.entries {
		for userID, at := range users {
			if now.Sub(at) >= t.staleAfter {
				delete(users, userID)
				changed[convID] = nil
			}
		}
		if len(users) == 0 {
			delete(t.entries, convID)
		}
	}
	for convID := range changed {
		changed[convID] = t.typingLocked(convID)
	}
	fns := t.onChange
	t.mu.Unlock()

	if len(changed) > 0 {
		logrus.WithFields(logrus.Fields{
			"function":      "Sweep",
			"conversations": len(changed),
		}).Debug("Expired stale typing entries")
	}
	for convID, users := range changed {
		notify(fns, convID, users)
	}
}

// Forget drops all entries for a conversation without notifying.
func (t *Tracker) Forget(conversationID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, conversationID)
}

// Start begins the periodic sweep.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.armLocked()
}

// Stop ends the periodic sweep.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	if t.sweeper != nil {
		t.sweeper.Stop()
		t.sweeper = nil
	}
}

func (t *Tracker) armLocked() {
	t.sweeper = t.clk.AfterFunc(t.interval, t.tick)
}

func (t *Tracker) tick() {
	t.Sweep()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		t.armLocked()
	}
}

func notify(fns []ChangeFunc, conversationID int64, users []int64) {
	for _, fn := range fns {
		fn(conversationID, users)
	}
}
