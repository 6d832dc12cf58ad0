// Package clock provides the time source used by every timer-driven component
// in commlink: typing expiry, reveal expiry, mention debounce and the polling
// fallback.
//
// Components never call time.AfterFunc or time.NewTicker directly. They take a
// Clock so tests can substitute a Manual clock and advance time explicitly.
package clock

import "time"

// Clock is an interface for getting the current time and scheduling work.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// AfterFunc calls f in its own goroutine after d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
	// NewTicker creates a ticker that fires at the given interval.
	NewTicker(d time.Duration) Ticker
}

// Timer is a cancellable one-shot timer created by AfterFunc.
type Timer interface {
	// Stop prevents the timer from firing. It returns false if the timer
	// already fired or was already stopped.
	Stop() bool
}

// Ticker delivers ticks on a channel until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real implements Clock using the actual system time.
type Real struct{}

// Now returns the current system time.
func (Real) Now() time.Time {
	return time.Now()
}

// AfterFunc wraps time.AfterFunc.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// NewTicker wraps time.NewTicker.
func (Real) NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Or returns c if non-nil, otherwise Real.
func Or(c Clock) Clock {
	if c != nil {
		return c
	}
	return Real{}
}
