package poll

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/commlink/clock"
	"github.com/opd-ai/commlink/metrics"
	"github.com/opd-ai/commlink/transport"
)

// DefaultInterval is the refetch period while in fallback mode.
const DefaultInterval = 10 * time.Second

// RefreshFunc refetches the state the realtime channel would have pushed.
type RefreshFunc func(ctx context.Context) error

// Options configures a Supervisor.
type Options struct {
	Interval time.Duration
	Clock    clock.Clock
	Metrics  *metrics.Metrics
}

// Supervisor owns the polling fallback.
type Supervisor struct {
	refresh  RefreshFunc
	clk      clock.Clock
	interval time.Duration
	metrics  *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	active   bool
	gen      uint64
	timer    clock.Timer
	inFlight bool
	closed   bool
	wg       sync.WaitGroup
}

// New creates an inactive supervisor.
func New(refresh RefreshFunc, opts Options) *Supervisor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		refresh:  refresh,
		clk:      clock.Or(opts.Clock),
		interval: opts.Interval,
		metrics:  opts.Metrics,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Active reports whether the fallback is currently polling.
func (s *Supervisor) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Observe feeds a transport status change. It matches transport.Client's
// status callback.
func (s *Supervisor) Observe(status transport.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	switch status {
	case transport.StatusConnected:
		if !s.active {
			return
		}
		s.active = false
		s.gen++
		s.stopTimerLocked()
		logrus.WithFields(logrus.Fields{
			"function": "Observe",
			"status":   status,
		}).Info("Realtime channel back, stopping polling fallback")
		s.triggerLocked("catch_up")

	case transport.StatusDisconnected, transport.StatusError:
		if s.active {
			return
		}
		s.active = true
		s.gen++
		logrus.WithFields(logrus.Fields{
			"function": "Observe",
			"status":   status,
			"interval": s.interval,
		}).Info("Realtime channel unavailable, starting polling fallback")
		s.armLocked(s.gen)
	}
}

// Close stops polling and waits for a running refresh to return.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.active = false
	s.gen++
	s.stopTimerLocked()
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Supervisor) armLocked(gen uint64) {
	s.timer = s.clk.AfterFunc(s.interval, func() { s.tick(gen) })
}

func (s *Supervisor) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Supervisor) tick(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.active || gen != s.gen {
		return
	}
	s.armLocked(gen)
	s.triggerLocked("tick")
}

// triggerLocked starts a refresh unless one is already running.
func (s *Supervisor) triggerLocked(reason string) {
	if s.inFlight {
		s.metrics.PollRefresh("skipped")
		logrus.WithFields(logrus.Fields{
			"function": "trigger",
			"reason":   reason,
		}).Debug("Refresh still running, skipping")
		return
	}
	s.inFlight = true
	s.wg.Add(1)
	go s.run(reason)
}

func (s *Supervisor) run(reason string) {
	defer s.wg.Done()
	err := s.refresh(s.ctx)

	fields := logrus.Fields{
		"function": "run",
		"reason":   reason,
	}
	if err != nil {
		s.metrics.PollRefresh("error")
		fields["error"] = err.Error()
		logrus.WithFields(fields).Warn("Fallback refresh failed")
	} else {
		s.metrics.PollRefresh("ok")
		logrus.WithFields(fields).Debug("Fallback refresh completed")
	}

	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}
