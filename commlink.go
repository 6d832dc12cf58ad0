package commlink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/commlink/api"
	"github.com/opd-ai/commlink/call"
	"github.com/opd-ai/commlink/chat"
	"github.com/opd-ai/commlink/clock"
	"github.com/opd-ai/commlink/composer"
	"github.com/opd-ai/commlink/config"
	"github.com/opd-ai/commlink/mention"
	"github.com/opd-ai/commlink/messages"
	"github.com/opd-ai/commlink/metrics"
	"github.com/opd-ai/commlink/poll"
	"github.com/opd-ai/commlink/protocol"
	"github.com/opd-ai/commlink/reveal"
	"github.com/opd-ai/commlink/transport"
	"github.com/opd-ai/commlink/typing"
)

// Realtime is the event channel the client runs on. transport.Client
// implements it.
type Realtime interface {
	OnStatus(fn func(transport.Status))
	OnEvent(fn func(protocol.Envelope))
	Status() transport.Status
	Connect(ctx context.Context) error
	Disconnect()
	Send(env protocol.Envelope) bool
}

// Deps overrides collaborators that New would otherwise build from the
// options. Every field is optional.
type Deps struct {
	// SelfID is the current user. When zero it is read from the token's
	// subject claim.
	SelfID int64

	Backend  api.Backend
	Realtime Realtime

	Media call.MediaSource
	Peers call.PeerFactory
	Sinks call.SinkFactory

	Transcriber composer.Transcriber
	Clock       clock.Clock
	Metrics     *metrics.Metrics
}

// Notice reports a user action that failed, or an inbound call that was
// declined (Action "IncomingCall", Err wrapping call.ErrDeclinedBusy). Local
// state is unchanged when a notice is published.
type Notice struct {
	Action         string
	ConversationID int64
	Err            error
}

// Client wires the realtime core together.
type Client struct {
	opts    config.Options
	selfID  int64
	clk     clock.Clock
	metrics *metrics.Metrics

	backend   api.Backend
	rt        Realtime
	store     *messages.Store
	directory *messages.Directory
	tracker   *typing.Tracker
	notifier  *typing.Notifier
	engine    *call.Engine
	poller    *poll.Supervisor
	reveals   *reveal.Cache
	mentions  *mention.Controller
	composer  *composer.Composer

	mu      sync.Mutex
	active  int64
	switchN uint64
	started bool
	stopped bool

	noticeMu  sync.Mutex
	noticeFns []func(Notice)
}

// New validates opts and builds a client. Nothing touches the network until
// Start.
func New(opts config.Options, deps Deps) (*Client, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	selfID := deps.SelfID
	if selfID == 0 {
		id, err := config.SubjectID(opts.Token)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMissingSelf, err)
		}
		selfID = id
	}

	c := &Client{
		opts:    opts,
		selfID:  selfID,
		clk:     clock.Or(deps.Clock),
		metrics: deps.Metrics,
		backend: deps.Backend,
		rt:      deps.Realtime,
	}

	if c.backend == nil {
		backend, err := api.New(api.Config{
			BaseURL: opts.APIURL,
			Token:   opts.Token,
			Timeout: opts.RequestTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("create api client: %w", err)
		}
		c.backend = backend
	}

	if c.rt == nil {
		rt, err := transport.New(transport.Options{
			URL:               opts.RealtimeURL,
			Token:             opts.Token,
			ReconnectPolicy:   opts.Transport.ReconnectPolicy,
			ReconnectDelay:    opts.Transport.ReconnectDelay,
			MaxReconnectDelay: opts.Transport.MaxReconnectDelay,
			PingInterval:      opts.Transport.PingInterval,
			WriteTimeout:      opts.Transport.WriteTimeout,
			Clock:             deps.Clock,
			Metrics:           deps.Metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("create transport: %w", err)
		}
		c.rt = rt
	}

	c.store = messages.NewStore(c.backend, c.clk, opts.PageSize)
	c.directory = messages.NewDirectory(c.backend)
	c.tracker = typing.NewTracker(c.clk, opts.Typing.StaleAfter, opts.Typing.SweepInterval)
	c.notifier = typing.NewNotifier(c.rt, typing.NotifierOptions{
		StartInterval: opts.Typing.StartInterval,
		IdleTimeout:   opts.Typing.IdleTimeout,
		Clock:         deps.Clock,
		Metrics:       deps.Metrics,
	})

	reveals, err := reveal.New(c.backend, c.clk, opts.RevealTTL)
	if err != nil {
		return nil, fmt.Errorf("create reveal cache: %w", err)
	}
	c.reveals = reveals

	c.mentions = mention.NewController(c.directory, c.backend, composerTarget{c}, mention.Options{
		SelfID:   selfID,
		Debounce: opts.Mention.Debounce,
		Limit:    opts.Mention.Limit,
		Clock:    deps.Clock,
	})
	c.composer = composer.New(composer.Deps{
		Sender:      c.backend,
		Files:       c.backend,
		Store:       c.store,
		Typing:      c.notifier,
		Mentions:    c.mentions,
		Transcriber: deps.Transcriber,
	})

	if err := c.buildCalls(deps); err != nil {
		c.reveals.Close()
		return nil, err
	}

	c.poller = poll.New(c.refresh, poll.Options{
		Interval: opts.PollInterval,
		Clock:    deps.Clock,
		Metrics:  deps.Metrics,
	})

	c.rt.OnStatus(c.poller.Observe)
	c.rt.OnEvent(c.dispatch)

	logrus.WithFields(logrus.Fields{
		"function": "New",
		"self_id":  selfID,
		"api_url":  opts.APIURL,
	}).Info("Client created")
	return c, nil
}

func (c *Client) buildCalls(deps Deps) error {
	peers := deps.Peers
	if peers == nil {
		factory, err := call.NewWebRTCFactory(c.opts.ICEServers)
		if err != nil {
			return fmt.Errorf("create peer factory: %w", err)
		}
		peers = factory
	}
	media := deps.Media
	if media == nil {
		media = &call.SampleSource{}
	}
	sinks := deps.Sinks
	if sinks == nil {
		sinks = &call.OpusSinkFactory{}
	}

	engine, err := call.NewEngine(call.Options{
		SelfID:   c.selfID,
		Signaler: c.rt,
		Media:    media,
		Peers:    peers,
		Sinks:    sinks,
		Roster:   roster{c.directory},
		Metrics:  c.metrics,
	})
	if err != nil {
		return fmt.Errorf("create call engine: %w", err)
	}
	engine.OnWarning(func(w call.Warning) {
		c.notice("IncomingCall", w.ConversationID, fmt.Errorf("%w: user %d", call.ErrDeclinedBusy, w.FromUserID))
	})
	c.engine = engine
	return nil
}

// Start loads the conversation list, starts the typing sweeper and connects
// the realtime channel. A failed connection is returned but the client keeps
// retrying in the background and polls meanwhile.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.stopped:
		c.mu.Unlock()
		return ErrStopped
	case c.started:
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	c.tracker.Start()

	if err := c.directory.Load(ctx); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Start",
			"error":    err.Error(),
		}).Warn("Failed to load conversations")
		c.notice("load_conversations", 0, err)
	}

	if err := c.rt.Connect(ctx); err != nil {
		return fmt.Errorf("connect realtime: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Start",
		"self_id":  c.selfID,
	}).Info("Client started")
	return nil
}

// Stop hangs up any call, sends a typing stop for the active conversation,
// disconnects and cancels every timer. It is safe to call more than once and
// must not be called from a client callback.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	active := c.active
	c.mu.Unlock()

	c.engine.Close()
	if active != 0 {
		c.notifier.Clear(active)
	}
	c.notifier.Close()
	c.poller.Close()
	c.rt.Disconnect()
	c.tracker.Stop()
	c.reveals.Close()
	c.mentions.Close()

	logrus.WithFields(logrus.Fields{
		"function": "Stop",
	}).Info("Client stopped")
}

// SelfID returns the current user's id.
func (c *Client) SelfID() int64 { return c.selfID }

// Active returns the active conversation or 0.
func (c *Client) Active() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// SwitchConversation makes conversationID active. Typing in the conversation
// being left is stopped, the draft is reset, and members and the latest page
// of messages are loaded. A switch overtaken by a newer one returns nil and
// leaves the newer conversation in place.
func (c *Client) SwitchConversation(ctx context.Context, conversationID int64) error {
	if conversationID == 0 {
		return ErrInvalidConversation
	}
	c.mu.Lock()
	previous := c.active
	c.active = conversationID
	c.switchN++
	n := c.switchN
	c.mu.Unlock()

	c.composer.Reset(conversationID)
	if previous != 0 && previous != conversationID {
		c.tracker.Forget(previous)
	}

	logrus.WithFields(logrus.Fields{
		"function":        "SwitchConversation",
		"conversation_id": conversationID,
		"previous":        previous,
	}).Debug("Switching conversation")

	if _, err := c.directory.LoadMembers(ctx, conversationID); err != nil {
		if !c.current(n) {
			return nil
		}
		logrus.WithFields(logrus.Fields{
			"function":        "SwitchConversation",
			"conversation_id": conversationID,
			"error":           err.Error(),
		}).Warn("Failed to load members")
		c.notice("load_members", conversationID, err)
	}

	if err := c.store.Load(ctx, conversationID); err != nil {
		if errors.Is(err, messages.ErrSuperseded) || !c.current(n) {
			return nil
		}
		c.notice("load_messages", conversationID, err)
		return err
	}
	return nil
}

func (c *Client) current(n uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.switchN == n
}

// refresh is the polling fallback: it reloads the conversation list and the
// active conversation.
func (c *Client) refresh(ctx context.Context) error {
	dirErr := c.directory.Load(ctx)
	storeErr := c.store.Refresh(ctx)
	if errors.Is(storeErr, messages.ErrNoConversation) || errors.Is(storeErr, messages.ErrSuperseded) {
		storeErr = nil
	}
	return errors.Join(dirErr, storeErr)
}

// OnNotice registers a callback for failed user actions and declined calls.
func (c *Client) OnNotice(fn func(Notice)) {
	c.noticeMu.Lock()
	defer c.noticeMu.Unlock()
	c.noticeFns = append(c.noticeFns, fn)
}

func (c *Client) notice(action string, conversationID int64, err error) {
	c.noticeMu.Lock()
	fns := append(([]func(Notice))(nil), c.noticeFns...)
	c.noticeMu.Unlock()

	n := Notice{Action: action, ConversationID: conversationID, Err: err}
	for _, fn := range fns {
		fn(n)
	}
}

// OnStatus registers a callback for realtime connection status changes.
func (c *Client) OnStatus(fn func(transport.Status)) { c.rt.OnStatus(fn) }

// Status returns the realtime connection status.
func (c *Client) Status() transport.Status { return c.rt.Status() }

// Polling reports whether the polling fallback is active.
func (c *Client) Polling() bool { return c.poller.Active() }

// Store returns the message log of the active conversation.
func (c *Client) Store() *messages.Store { return c.store }

// Directory returns the conversation list and member cache.
func (c *Client) Directory() *messages.Directory { return c.directory }

// Typing returns the inbound typing tracker.
func (c *Client) Typing() *typing.Tracker { return c.tracker }

// Calls returns the call engine.
func (c *Client) Calls() *call.Engine { return c.engine }

// Reveals returns the sensitive-content reveal cache.
func (c *Client) Reveals() *reveal.Cache { return c.reveals }

// Mentions returns the mention autocomplete controller.
func (c *Client) Mentions() *mention.Controller { return c.mentions }

// Composer returns the draft of the active conversation.
func (c *Client) Composer() *composer.Composer { return c.composer }

// TypingNames returns display names of the users typing in a conversation.
// Users missing from the member cache are shown by id.
func (c *Client) TypingNames(conversationID int64) []string {
	ids := c.tracker.Typing(conversationID)
	if len(ids) == 0 {
		return nil
	}
	byID := make(map[int64]chat.Member)
	for _, m := range c.directory.Members(conversationID) {
		byID[m.UserID] = m
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			names = append(names, m.Name())
			continue
		}
		names = append(names, fmt.Sprintf("user %d", id))
	}
	return names
}

// composerTarget defers to the client's composer, which is built after the
// mention controller that targets it.
type composerTarget struct{ c *Client }

func (t composerTarget) ApplyMention(start, end int, insert string, file *chat.File) {
	t.c.composer.ApplyMention(start, end, insert, file)
}
