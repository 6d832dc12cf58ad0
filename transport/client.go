package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"

	"github.com/opd-ai/commlink/clock"
	"github.com/opd-ai/commlink/limits"
	"github.com/opd-ai/commlink/metrics"
	"github.com/opd-ai/commlink/protocol"
)

// Status is the connection status published to OnStatus callbacks.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

const (
	defaultReconnectDelay = 5 * time.Second
	defaultWriteTimeout   = 10 * time.Second
	defaultPingInterval   = 30 * time.Second
	defaultDialTimeout    = 10 * time.Second
	defaultSendBuffer     = 256
	defaultReadLimit      = limits.MaxFrame
)

// Options configures a Client.
type Options struct {
	URL   string
	Token string

	// ReconnectPolicy is PolicyConstant (default) or PolicyExponential.
	ReconnectPolicy   string
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration

	WriteTimeout time.Duration
	PingInterval time.Duration
	DialTimeout  time.Duration
	SendBuffer   int
	ReadLimit    int64

	Clock   clock.Clock
	Metrics *metrics.Metrics
}

func (o *Options) setDefaults() {
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = defaultReconnectDelay
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = defaultPingInterval
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = defaultDialTimeout
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = defaultReadLimit
	}
	o.Clock = clock.Or(o.Clock)
}

// conn is one live websocket with its pumps.
type conn struct {
	id     string
	ws     *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func (c *conn) close(code websocket.StatusCode, reason string) {
	c.once.Do(func() {
		c.cancel()
		c.ws.Close(code, reason) //nolint:errcheck
	})
}

// Client is the realtime transport.
type Client struct {
	opts   Options
	clk    clock.Clock
	policy backoff.BackOff

	mu        sync.Mutex
	status    Status
	cur       *conn
	wanted    bool
	dialing   bool
	epoch     uint64
	reconnect clock.Timer

	statusFns []func(Status)
	eventFn   func(protocol.Envelope)
	eventMu   sync.Mutex

	notifyMu  sync.Mutex
	notifyQ   []Status
	notifying bool
}

// New creates a disconnected client.
func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, ErrMissingURL
	}
	opts.setDefaults()
	policy, err := newPolicy(opts.ReconnectPolicy, opts.ReconnectDelay, opts.MaxReconnectDelay)
	if err != nil {
		return nil, err
	}
	return &Client{
		opts:   opts,
		clk:    opts.Clock,
		policy: policy,
		status: StatusDisconnected,
	}, nil
}

// OnStatus registers a status callback. Callbacks run in transition order and
// never while the client's lock is held, so they may call back into the
// client.
func (c *Client) OnStatus(fn func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusFns = append(c.statusFns, fn)
}

// OnEvent sets the inbound event callback. Events are delivered serially in
// arrival order.
func (c *Client) OnEvent(fn func(protocol.Envelope)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventFn = fn
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Connect dials the server. On failure the status becomes error, a reconnect
// is scheduled and the dial error is returned. Connecting an already
// connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.cur != nil {
		c.mu.Unlock()
		return nil
	}
	if c.dialing {
		c.mu.Unlock()
		return ErrDialInProgress
	}
	c.wanted = true
	c.stopReconnectLocked()
	c.dialing = true
	epoch := c.epoch
	c.mu.Unlock()

	return c.dial(ctx, epoch)
}

// Disconnect closes the connection and cancels any pending reconnect. It is
// safe to call repeatedly.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.wanted = false
	c.epoch++
	c.stopReconnectLocked()
	cur := c.cur
	c.cur = nil
	changed := c.setStatusLocked(StatusDisconnected)
	c.mu.Unlock()

	if cur != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Disconnect",
			"conn_id":  cur.id,
		}).Info("Closing realtime connection")
		cur.close(websocket.StatusNormalClosure, "client disconnect")
	}
	if changed {
		c.flushStatus()
	}
}

// Send enqueues env for writing. It returns false without side effects when
// the client is not connected or the send buffer is full.
func (c *Client) Send(env protocol.Envelope) bool {
	data, err := protocol.Encode(env)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Send",
			"type":     env.Type,
			"error":    err.Error(),
		}).Warn("Dropping unencodable event")
		c.opts.Metrics.EventDropped("encode")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil || c.status != StatusConnected {
		logrus.WithFields(logrus.Fields{
			"function": "Send",
			"type":     env.Type,
		}).Debug("Not connected, dropping outbound event")
		c.opts.Metrics.EventDropped("disconnected")
		return false
	}
	select {
	case c.cur.send <- data:
		return true
	default:
		logrus.WithFields(logrus.Fields{
			"function": "Send",
			"type":     env.Type,
			"buffer":   c.opts.SendBuffer,
		}).Warn("Send buffer full, dropping outbound event")
		c.opts.Metrics.EventDropped("buffer_full")
		return false
	}
}

func (c *Client) dial(ctx context.Context, epoch uint64) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()

	var header http.Header
	if c.opts.Token != "" {
		header = http.Header{"Authorization": []string{"Bearer " + c.opts.Token}}
	}
	ws, _, err := websocket.Dial(dialCtx, c.opts.URL, &websocket.DialOptions{HTTPHeader: header})

	c.mu.Lock()
	c.dialing = false
	if epoch != c.epoch || !c.wanted {
		c.mu.Unlock()
		if ws != nil {
			ws.Close(websocket.StatusNormalClosure, "client disconnect") //nolint:errcheck
		}
		if err != nil {
			return err
		}
		return context.Canceled
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "dial",
			"url":      c.opts.URL,
			"error":    err.Error(),
		}).Warn("Realtime dial failed")
		changed := c.setStatusLocked(StatusError)
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		if changed {
			c.flushStatus()
		}
		return err
	}

	ws.SetReadLimit(c.opts.ReadLimit)
	connCtx, connCancel := context.WithCancel(context.Background())
	cur := &conn{
		id:     uuid.NewString(),
		ws:     ws,
		send:   make(chan []byte, c.opts.SendBuffer),
		ctx:    connCtx,
		cancel: connCancel,
	}
	c.cur = cur
	c.policy.Reset()
	changed := c.setStatusLocked(StatusConnected)
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "dial",
		"url":      c.opts.URL,
		"conn_id":  cur.id,
	}).Info("Realtime connection established")

	go c.writePump(cur)
	go c.readPump(cur)

	if changed {
		c.flushStatus()
	}
	return nil
}

func (c *Client) readPump(cur *conn) {
	defer c.lost(cur)

	for {
		_, frame, err := cur.ws.Read(cur.ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				logrus.WithFields(logrus.Fields{
					"function": "readPump",
					"conn_id":  cur.id,
					"code":     websocket.CloseStatus(err),
				}).Info("Realtime connection closed")
			} else {
				logrus.WithFields(logrus.Fields{
					"function": "readPump",
					"conn_id":  cur.id,
					"error":    err.Error(),
				}).Warn("Realtime read failed")
			}
			return
		}

		env, err := protocol.Decode(frame)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "readPump",
				"conn_id":  cur.id,
				"size":     len(frame),
				"error":    err.Error(),
			}).Warn("Dropping malformed frame")
			c.opts.Metrics.EventDropped("malformed")
			continue
		}
		c.opts.Metrics.EventReceived(env.Type)
		c.deliver(env)
	}
}

func (c *Client) deliver(env protocol.Envelope) {
	c.mu.Lock()
	fn := c.eventFn
	c.mu.Unlock()
	if fn == nil {
		return
	}
	c.eventMu.Lock()
	defer c.eventMu.Unlock()
	fn(env)
}

func (c *Client) writePump(cur *conn) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		cur.close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case data := <-cur.send:
			ctx, cancel := context.WithTimeout(cur.ctx, c.opts.WriteTimeout)
			err := cur.ws.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "writePump",
					"conn_id":  cur.id,
					"error":    err.Error(),
				}).Warn("Realtime write failed")
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(cur.ctx, c.opts.WriteTimeout)
			err := cur.ws.Ping(ctx)
			cancel()
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "writePump",
					"conn_id":  cur.id,
					"error":    err.Error(),
				}).Warn("Realtime ping failed")
				return
			}

		case <-cur.ctx.Done():
			return
		}
	}
}

// lost handles the end of a connection's read loop.
func (c *Client) lost(cur *conn) {
	cur.close(websocket.StatusGoingAway, "")

	c.mu.Lock()
	if c.cur != cur {
		c.mu.Unlock()
		return
	}
	c.cur = nil
	changed := c.setStatusLocked(StatusDisconnected)
	c.scheduleReconnectLocked()
	c.mu.Unlock()

	if changed {
		c.flushStatus()
	}
}

// scheduleReconnectLocked arms the reconnect timer unless one is pending.
func (c *Client) scheduleReconnectLocked() {
	if !c.wanted || c.reconnect != nil {
		return
	}
	delay := c.policy.NextBackOff()
	if delay == backoff.Stop {
		logrus.WithFields(logrus.Fields{
			"function": "scheduleReconnect",
		}).Warn("Reconnect policy exhausted")
		return
	}
	epoch := c.epoch
	c.opts.Metrics.Reconnect()
	logrus.WithFields(logrus.Fields{
		"function": "scheduleReconnect",
		"delay":    delay.String(),
	}).Info("Scheduling reconnect")
	c.reconnect = c.clk.AfterFunc(delay, func() { c.retry(epoch) })
}

func (c *Client) stopReconnectLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

func (c *Client) retry(epoch uint64) {
	c.mu.Lock()
	c.reconnect = nil
	if epoch != c.epoch || !c.wanted || c.cur != nil || c.dialing {
		c.mu.Unlock()
		return
	}
	c.dialing = true
	c.mu.Unlock()

	c.dial(context.Background(), epoch) //nolint:errcheck
}

// setStatusLocked records s and queues a notification if it changed.
func (c *Client) setStatusLocked(s Status) bool {
	if c.status == s {
		return false
	}
	c.status = s
	switch s {
	case StatusConnected:
		c.opts.Metrics.TransportStatus(metrics.StatusConnected)
	case StatusError:
		c.opts.Metrics.TransportStatus(metrics.StatusError)
	default:
		c.opts.Metrics.TransportStatus(metrics.StatusDisconnected)
	}
	c.notifyMu.Lock()
	c.notifyQ = append(c.notifyQ, s)
	c.notifyMu.Unlock()
	return true
}

// flushStatus delivers queued status changes. Only one goroutine drains at a
// time, which keeps callbacks ordered.
func (c *Client) flushStatus() {
	c.notifyMu.Lock()
	if c.notifying {
		c.notifyMu.Unlock()
		return
	}
	c.notifying = true
	for len(c.notifyQ) > 0 {
		s := c.notifyQ[0]
		c.notifyQ = c.notifyQ[1:]
		c.notifyMu.Unlock()

		c.mu.Lock()
		fns := append([]func(Status){}, c.statusFns...)
		c.mu.Unlock()
		for _, fn := range fns {
			fn(s)
		}

		c.notifyMu.Lock()
	}
	c.notifying = false
	c.notifyMu.Unlock()
}
