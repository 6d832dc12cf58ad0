package clock

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Clock whose time only moves when Advance is called. Timers and
// tickers that become due during Advance run synchronously on the caller's
// goroutine, in due-time order.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	waiters []*manualWaiter
}

type manualWaiter struct {
	clock    *Manual
	id       uint64
	due      time.Time
	period   time.Duration
	fn       func()
	ch       chan time.Time
	stopped  bool
	finished bool
}

// NewManual creates a manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the manual clock's current time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc schedules f to run when the clock has been advanced by d.
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := &manualWaiter{clock: m, due: m.now.Add(d), fn: f}
	m.add(w)
	return manualTimer{w: w}
}

// NewTicker creates a ticker that delivers on its channel each time the clock
// passes a multiple of d. Ticks are dropped if the channel is full, like
// time.Ticker.
func (m *Manual) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w := &manualWaiter{clock: m, due: m.now.Add(d), period: d, ch: make(chan time.Time, 1)}
	m.add(w)
	return manualTicker{w: w}
}

// Advance moves the clock forward by d, firing everything that becomes due.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		w := m.nextDue(target)
		if w == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = w.due
		if w.period > 0 {
			w.due = w.due.Add(w.period)
		} else {
			w.finished = true
			m.remove(w)
		}
		now := m.now
		m.mu.Unlock()

		if w.ch != nil {
			select {
			case w.ch <- now:
			default:
			}
			continue
		}
		w.fn()
	}
}

// Pending returns the number of timers and tickers still scheduled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}

func (m *Manual) add(w *manualWaiter) {
	m.seq++
	w.id = m.seq
	m.waiters = append(m.waiters, w)
}

func (m *Manual) remove(w *manualWaiter) {
	for i, other := range m.waiters {
		if other == w {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			return
		}
	}
}

func (m *Manual) nextDue(target time.Time) *manualWaiter {
	due := make([]*manualWaiter, 0, len(m.waiters))
	for _, w := range m.waiters {
		if !w.due.After(target) {
			due = append(due, w)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].id < due[j].id
		}
		return due[i].due.Before(due[j].due)
	})
	return due[0]
}

func (w *manualWaiter) cancel() bool {
	w.clock.mu.Lock()
	defer w.clock.mu.Unlock()
	if w.stopped || w.finished {
		return false
	}
	w.stopped = true
	w.clock.remove(w)
	return true
}

type manualTimer struct{ w *manualWaiter }

// Stop cancels the timer.
func (t manualTimer) Stop() bool { return t.w.cancel() }

type manualTicker struct{ w *manualWaiter }

// C returns the tick channel.
func (t manualTicker) C() <-chan time.Time { return t.w.ch }

// Stop cancels the ticker.
func (t manualTicker) Stop() { t.w.cancel() }
