package typing

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/opd-ai/commlink/clock"
	"github.com/opd-ai/commlink/metrics"
	"github.com/opd-ai/commlink/protocol"
)

const (
	// DefaultStartInterval is the minimum spacing of typing.started sends
	// for one conversation.
	DefaultStartInterval = 1200 * time.Millisecond
	// DefaultIdleTimeout is how long after the last keystroke typing.stopped
	// is sent automatically.
	DefaultIdleTimeout = 2200 * time.Millisecond
)

// Sender delivers an outbound event. It matches transport.Client.Send.
type Sender interface {
	Send(env protocol.Envelope) bool
}

type outbound struct {
	limiter *rate.Limiter
	timer   clock.Timer
	gen     uint64
	active  bool
}

// Notifier announces the local user's typing.
type Notifier struct {
	sender   Sender
	clk      clock.Clock
	interval time.Duration
	idle     time.Duration
	metrics  *metrics.Metrics

	mu    sync.Mutex
	convs map[int64]*outbound
}

// NotifierOptions configures a Notifier. Zero values select the defaults.
type NotifierOptions struct {
	StartInterval time.Duration
	IdleTimeout   time.Duration
	Clock         clock.Clock
	Metrics       *metrics.Metrics
}

// NewNotifier creates a notifier sending through s.
func NewNotifier(s Sender, opts NotifierOptions) *Notifier {
	if opts.StartInterval <= 0 {
		opts.StartInterval = DefaultStartInterval
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	return &Notifier{
		sender:   s,
		clk:      clock.Or(opts.Clock),
		interval: opts.StartInterval,
		idle:     opts.IdleTimeout,
		metrics:  opts.Metrics,
		convs:    make(map[int64]*outbound),
	}
}

// Keystroke records local typing in a conversation.
func (n *Notifier) Keystroke(conversationID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	// Entries are dropped once a stop is sent, so the first keystroke after
	// a stop always announces a fresh start.
	o := n.convs[conversationID]
	if o == nil {
		o = &outbound{limiter: rate.NewLimiter(rate.Every(n.interval), 1)}
		n.convs[conversationID] = o
	}
	if o.limiter.AllowN(n.clk.Now(), 1) {
		n.sendLocked(protocol.TypingStarted(conversationID), "started")
		o.active = true
	}

	if o.timer != nil {
		o.timer.Stop()
	}
	o.gen++
	gen := o.gen
	o.timer = n.clk.AfterFunc(n.idle, func() { n.expire(conversationID, gen) })
}

// Clear cancels the idle timer and sends typing.stopped if a start is
// outstanding.
func (n *Notifier) Clear(conversationID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked(conversationID)
}

// Close cancels every pending timer without sending anything.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, o := range n.convs {
		if o.timer != nil {
			o.timer.Stop()
		}
		delete(n.convs, id)
	}
}

func (n *Notifier) expire(conversationID int64, gen uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	o := n.convs[conversationID]
	if o == nil || o.gen != gen {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function":        "expire",
		"conversation_id": conversationID,
	}).Debug("Typing idle timeout")
	n.stopLocked(conversationID)
}

func (n *Notifier) stopLocked(conversationID int64) {
	o := n.convs[conversationID]
	if o == nil {
		return
	}
	if o.timer != nil {
		o.timer.Stop()
	}
	if o.active {
		n.sendLocked(protocol.TypingStopped(conversationID), "stopped")
	}
	delete(n.convs, conversationID)
}

func (n *Notifier) sendLocked(env protocol.Envelope, kind string) {
	if n.sender.Send(env) {
		n.metrics.TypingSent(kind)
	}
}
