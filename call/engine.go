package call

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/commlink/metrics"
	"github.com/opd-ai/commlink/protocol"
)

// maxEarlyCandidates bounds the candidates buffered for a peer that has no
// connection yet.
const maxEarlyCandidates = 64

// Options configures an Engine. Every collaborator except Metrics is
// required.
type Options struct {
	SelfID   int64
	Signaler Signaler
	Media    MediaSource
	Peers    PeerFactory
	Sinks    SinkFactory
	Roster   Roster
	Metrics  *metrics.Metrics
}

// internal events
type (
	cmdStart struct {
		ctx            context.Context
		conversationID int64
		reply          chan error
	}
	cmdAbort    struct {
		reply chan error
		err   error
	}
	cmdHangup struct{ reply chan error }
	cmdMute     struct {
		muted bool
		reply chan error
	}
	cmdSnapshot struct{ reply chan Snapshot }
	cmdClose    struct{}

	evSignal struct{ env protocol.Envelope }
	evMedia  struct {
		attempt      uint64
		stream       LocalStream
		participants []int64
		err          error
	}
	evICE struct {
		p    *peer
		cand protocol.ICECandidate
	}
	evTrack struct {
		p     *peer
		track RemoteTrack
	}
	evPeerState struct {
		p     *peer
		state PeerState
	}
)

// Engine is the call signaling state machine.
type Engine struct {
	opts Options

	mu     sync.Mutex
	queue  []any
	closed bool
	wake   chan struct{}
	done   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	// Owned by the loop goroutine.
	state   State
	sess    *session
	attempt uint64

	pubMu     sync.Mutex
	published State

	cbMu     sync.Mutex
	stateFns []func(State, error)
	warnFns  []func(Warning)
	notes    *notifier
}

// NewEngine validates opts and starts the engine goroutine.
func NewEngine(opts Options) (*Engine, error) {
	switch {
	case opts.Signaler == nil:
		return nil, fmt.Errorf("call engine: signaler is required")
	case opts.Media == nil:
		return nil, fmt.Errorf("call engine: media source is required")
	case opts.Peers == nil:
		return nil, fmt.Errorf("call engine: peer factory is required")
	case opts.Sinks == nil:
		return nil, fmt.Errorf("call engine: sink factory is required")
	case opts.Roster == nil:
		return nil, fmt.Errorf("call engine: roster is required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		opts:      opts,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		state:     StateIdle,
		published: StateIdle,
		notes:     newNotifier(),
	}
	opts.Metrics.CallState(string(StateIdle), allStates)
	go e.run()
	return e, nil
}

// OnState registers a state callback. err is set when entering StateError.
// Callbacks run in order on a dedicated goroutine and may call the engine.
func (e *Engine) OnState(fn func(State, error)) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.stateFns = append(e.stateFns, fn)
}

// OnWarning registers a callback for refused inbound calls.
func (e *Engine) OnWarning(fn func(Warning)) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.warnFns = append(e.warnFns, fn)
}

// Start begins a call in a conversation. It returns once the local stream is
// open and an offer went out to every other participant, or with the reason
// the attempt failed. A failed attempt always leaves the engine idle.
// Cancelling ctx abandons an attempt that has not reached StateCalling; an
// attempt that already did is kept and Start returns nil.
func (e *Engine) Start(ctx context.Context, conversationID int64) error {
	if conversationID == 0 {
		return ErrInvalidConversation
	}
	reply := make(chan error, 1)
	if !e.post(cmdStart{ctx: ctx, conversationID: conversationID, reply: reply}) {
		return ErrEngineClosed
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		if !e.post(cmdAbort{reply: reply, err: ctx.Err()}) {
			return ctx.Err()
		}
		return e.await(reply)
	case <-e.done:
		return ErrEngineClosed
	}
}

// Hangup ends the active call and tells the other participants.
func (e *Engine) Hangup() error {
	reply := make(chan error, 1)
	if !e.post(cmdHangup{reply: reply}) {
		return ErrEngineClosed
	}
	return e.await(reply)
}

// SetMuted enables or disables the local audio tracks without renegotiating.
func (e *Engine) SetMuted(muted bool) error {
	reply := make(chan error, 1)
	if !e.post(cmdMute{muted: muted, reply: reply}) {
		return ErrEngineClosed
	}
	return e.await(reply)
}

// Snapshot returns the engine state after every previously posted event has
// been processed.
func (e *Engine) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	if !e.post(cmdSnapshot{reply: reply}) {
		return Snapshot{State: StateIdle}
	}
	select {
	case s := <-reply:
		return s
	case <-e.done:
		return Snapshot{State: StateIdle}
	}
}

// Status returns the most recently entered state without waiting for queued
// events.
func (e *Engine) Status() State {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	return e.published
}

// HandleSignal queues an inbound call.* event. Other types are ignored.
func (e *Engine) HandleSignal(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeCallOffer, protocol.TypeCallAnswer, protocol.TypeCallICE,
		protocol.TypeCallHangup, protocol.TypeCallDecline:
		e.post(evSignal{env: env})
	}
}

// Close hangs up any call, releases everything and stops the engine. It must
// not be called from an engine callback.
func (e *Engine) Close() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		e.queue = append(e.queue, cmdClose{})
	}
	e.mu.Unlock()
	e.kick()
	<-e.done
	e.notes.close()
}

func (e *Engine) await(reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-e.done:
		return ErrEngineClosed
	}
}

func (e *Engine) post(ev any) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.queue = append(e.queue, ev)
	e.mu.Unlock()
	e.kick()
	return true
}

func (e *Engine) kick() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) run() {
	defer close(e.done)
	for range e.wake {
		for {
			e.mu.Lock()
			if len(e.queue) == 0 {
				e.mu.Unlock()
				break
			}
			ev := e.queue[0]
			e.queue[0] = nil
			e.queue = e.queue[1:]
			e.mu.Unlock()

			if e.handle(ev) {
				return
			}
		}
	}
}

// handle is the single transition function. It reports whether the loop
// must stop.
func (e *Engine) handle(ev any) bool {
	switch ev := ev.(type) {
	case cmdStart:
		e.handleStart(ev)
	case cmdAbort:
		e.handleAbort(ev)
	case cmdHangup:
		ev.reply <- e.handleHangup()
	case cmdMute:
		ev.reply <- e.handleMute(ev.muted)
	case cmdSnapshot:
		ev.reply <- e.snapshot()
	case cmdClose:
		e.handleClose()
		return true
	case evSignal:
		e.handleSignal(ev.env)
	case evMedia:
		e.handleMedia(ev)
	case evICE:
		if e.current(ev.p) {
			e.opts.Signaler.Send(protocol.CallICE(e.sess.conversationID, ev.p.userID, ev.cand))
		}
	case evTrack:
		e.handleTrack(ev)
	case evPeerState:
		e.handlePeerState(ev)
	}
	return false
}

func (e *Engine) handleStart(c cmdStart) {
	if e.sess != nil {
		logrus.WithFields(logrus.Fields{
			"function":        "Start",
			"conversation_id": c.conversationID,
			"active_id":       e.sess.conversationID,
			"state":           e.state,
		}).Warn("Rejecting call start, a call is already active")
		c.reply <- ErrCallAlreadyActive
		return
	}

	e.attempt++
	s := newSession(uuid.NewString(), c.conversationID, true, e.attempt)
	s.startReply = c.reply
	e.sess = s

	logrus.WithFields(logrus.Fields{
		"function":        "Start",
		"conversation_id": c.conversationID,
		"call_id":         s.id,
	}).Info("Starting call")
	e.setState(StateStarting, nil)
	go e.acquire(c.ctx, s.attempt, c.conversationID, true)
}

// acquire runs off the loop and reports back with evMedia.
func (e *Engine) acquire(ctx context.Context, attempt uint64, conversationID int64, outgoing bool) {
	var others []int64
	if outgoing {
		ids, err := e.opts.Roster.Participants(ctx, conversationID)
		if err != nil {
			e.post(evMedia{attempt: attempt, err: fmt.Errorf("load participants: %w", err)})
			return
		}
		seen := map[int64]bool{e.opts.SelfID: true}
		for _, id := range ids {
			if id == 0 || seen[id] {
				continue
			}
			seen[id] = true
			others = append(others, id)
		}
		if len(others) == 0 {
			e.post(evMedia{attempt: attempt, err: ErrNoParticipants})
			return
		}
	}

	stream, err := e.opts.Media.Acquire(ctx)
	if err != nil {
		e.post(evMedia{attempt: attempt, err: fmt.Errorf("%w: %v", ErrMediaUnavailable, err)})
		return
	}
	if !e.post(evMedia{attempt: attempt, stream: stream, participants: others}) {
		stream.Stop()
	}
}

func (e *Engine) handleMedia(ev evMedia) {
	s := e.sess
	if s == nil || ev.attempt != s.attempt || e.state != StateStarting {
		if ev.stream != nil {
			ev.stream.Stop()
		}
		return
	}

	if ev.err != nil {
		logrus.WithFields(logrus.Fields{
			"function":        "handleMedia",
			"conversation_id": s.conversationID,
			"call_id":         s.id,
			"error":           ev.err.Error(),
		}).Error("Call start failed")
		s.reply(ev.err)
		e.teardown(ev.err)
		return
	}

	s.stream = ev.stream
	s.stream.SetEnabled(!s.muted)

	if s.outgoing {
		e.setState(StateCalling, nil)
		for _, id := range ev.participants {
			e.offer(s, id)
		}
	}
	offers := s.offers
	s.offers = nil
	for _, o := range offers {
		e.answer(s, o.from, o.sdp)
	}

	if len(s.peers) == 0 {
		s.reply(ErrNoPeers)
		e.teardown(ErrNoPeers)
		return
	}
	s.reply(nil)
}

// newPeer creates a peer connection whose callbacks post into the loop.
func (e *Engine) newPeer(s *session, userID int64) (*peer, error) {
	p := &peer{userID: userID}
	pc, err := e.opts.Peers.NewPeer(userID, PeerEvents{
		OnICECandidate: func(c protocol.ICECandidate) { e.post(evICE{p: p, cand: c}) },
		OnTrack:        func(t RemoteTrack) { e.post(evTrack{p: p, track: t}) },
		OnStateChange:  func(st PeerState) { e.post(evPeerState{p: p, state: st}) },
	})
	if err != nil {
		return nil, err
	}
	p.pc = pc
	if err := pc.AddStream(s.stream); err != nil {
		p.release()
		return nil, err
	}
	s.peers[userID] = p
	e.opts.Metrics.CallPeers(len(s.peers))
	return p, nil
}

func (e *Engine) offer(s *session, userID int64) {
	fields := logrus.Fields{
		"function":        "offer",
		"conversation_id": s.conversationID,
		"peer_id":         userID,
	}
	p, err := e.newPeer(s, userID)
	if err != nil {
		fields["error"] = err.Error()
		logrus.WithFields(fields).Warn("Creating peer connection failed")
		return
	}
	sdp, err := p.pc.CreateOffer()
	if err == nil {
		err = p.pc.SetLocalDescription(SDPOffer, sdp)
	}
	if err != nil {
		fields["error"] = err.Error()
		logrus.WithFields(fields).Warn("Creating offer failed")
		e.removePeer(s, userID)
		return
	}
	p.offered = true
	if !e.opts.Signaler.Send(protocol.CallOffer(s.conversationID, userID, sdp)) {
		logrus.WithFields(fields).Warn("Offer not sent, transport unavailable")
		e.removePeer(s, userID)
		return
	}
	fields["sdp_size"] = len(sdp)
	logrus.WithFields(fields).Debug("Sent offer")
}

func (e *Engine) answer(s *session, from int64, offerSDP string) {
	fields := logrus.Fields{
		"function":        "answer",
		"conversation_id": s.conversationID,
		"peer_id":         from,
	}

	p := s.peers[from]
	if p != nil && p.offered && !p.remoteSet {
		// Both sides offered at once. The lower user id yields.
		if e.opts.SelfID > from {
			logrus.WithFields(fields).Debug("Ignoring glare offer, waiting for answer")
			return
		}
		e.removePeer(s, from)
		p = nil
	}

	created := false
	if p == nil {
		var err error
		p, err = e.newPeer(s, from)
		if err != nil {
			fields["error"] = err.Error()
			logrus.WithFields(fields).Warn("Creating peer connection failed")
			return
		}
		created = true
	}

	if err := p.pc.SetRemoteDescription(SDPOffer, offerSDP); err != nil {
		fields["error"] = err.Error()
		logrus.WithFields(fields).Warn("Discarding unusable offer")
		if created {
			e.removePeer(s, from)
		}
		return
	}
	p.remoteSet = true
	e.flushCandidates(s, p)

	sdp, err := p.pc.CreateAnswer()
	if err == nil {
		err = p.pc.SetLocalDescription(SDPAnswer, sdp)
	}
	if err != nil {
		fields["error"] = err.Error()
		logrus.WithFields(fields).Warn("Creating answer failed")
		e.removePeer(s, from)
		return
	}
	e.opts.Signaler.Send(protocol.CallAnswer(s.conversationID, from, sdp))
	logrus.WithFields(fields).Debug("Sent answer")
	e.setState(StateInCall, nil)
}

func (e *Engine) flushCandidates(s *session, p *peer) {
	pending := append(s.earlyICE[p.userID], p.pendingICE...)
	delete(s.earlyICE, p.userID)
	p.pendingICE = nil
	for _, c := range pending {
		e.applyCandidate(p, c)
	}
}

func (e *Engine) applyCandidate(p *peer, c protocol.ICECandidate) {
	if err := p.pc.AddICECandidate(c); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "applyCandidate",
			"peer_id":  p.userID,
			"error":    err.Error(),
		}).Debug("Ignoring candidate that could not be applied")
	}
}

func (e *Engine) handleSignal(env protocol.Envelope) {
	sig, err := protocol.SignalOf(env)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleSignal",
			"type":     env.Type,
			"error":    err.Error(),
		}).Warn("Dropping malformed call signal")
		return
	}
	if sig.FromUserID == e.opts.SelfID {
		return
	}
	conversationID := env.Conversation()

	switch env.Type {
	case protocol.TypeCallOffer:
		e.onOffer(conversationID, sig)
	case protocol.TypeCallAnswer:
		e.onAnswer(conversationID, sig)
	case protocol.TypeCallICE:
		e.onCandidate(conversationID, sig)
	case protocol.TypeCallHangup:
		e.onHangup(conversationID, sig)
	case protocol.TypeCallDecline:
		e.onDecline(conversationID, sig)
	}
}

func (e *Engine) onOffer(conversationID int64, sig protocol.CallSignal) {
	fields := logrus.Fields{
		"function":        "onOffer",
		"conversation_id": conversationID,
		"peer_id":         sig.FromUserID,
	}
	if conversationID == 0 || sig.SDP == "" {
		logrus.WithFields(fields).Warn("Dropping offer without conversation or SDP")
		return
	}

	s := e.sess
	if s == nil {
		e.attempt++
		s = newSession(uuid.NewString(), conversationID, false, e.attempt)
		s.queueOffer(sig.FromUserID, sig.SDP)
		e.sess = s
		fields["call_id"] = s.id
		logrus.WithFields(fields).Info("Accepting incoming call")
		e.setState(StateStarting, nil)
		go e.acquire(e.ctx, s.attempt, conversationID, false)
		return
	}

	if s.conversationID != conversationID {
		fields["active_id"] = s.conversationID
		logrus.WithFields(fields).Warn("Declining offer, busy in another call")
		w := Warning{
			ConversationID:       conversationID,
			FromUserID:           sig.FromUserID,
			ActiveConversationID: s.conversationID,
			Reason:               protocol.DeclineBusy,
		}
		e.emitWarning(w)
		e.opts.Signaler.Send(protocol.CallDecline(conversationID, sig.FromUserID, protocol.DeclineBusy))
		return
	}

	if e.state == StateStarting {
		s.queueOffer(sig.FromUserID, sig.SDP)
		return
	}
	e.answer(s, sig.FromUserID, sig.SDP)
}

func (e *Engine) onAnswer(conversationID int64, sig protocol.CallSignal) {
	fields := logrus.Fields{
		"function":        "onAnswer",
		"conversation_id": conversationID,
		"peer_id":         sig.FromUserID,
	}
	s := e.sess
	if s == nil || s.conversationID != conversationID {
		logrus.WithFields(fields).Debug("Ignoring answer for no active call")
		return
	}
	p := s.peers[sig.FromUserID]
	if p == nil || !p.offered || p.remoteSet {
		logrus.WithFields(fields).Debug("Ignoring stale answer")
		return
	}
	if err := p.pc.SetRemoteDescription(SDPAnswer, sig.SDP); err != nil {
		fields["error"] = err.Error()
		logrus.WithFields(fields).Debug("Ignoring answer that could not be applied")
		return
	}
	p.remoteSet = true
	e.flushCandidates(s, p)
	e.setState(StateInCall, nil)
}

func (e *Engine) onCandidate(conversationID int64, sig protocol.CallSignal) {
	s := e.sess
	if s == nil || s.conversationID != conversationID || sig.Candidate == nil {
		return
	}
	p := s.peers[sig.FromUserID]
	if p == nil {
		if e.state == StateStarting && len(s.earlyICE[sig.FromUserID]) < maxEarlyCandidates {
			s.earlyICE[sig.FromUserID] = append(s.earlyICE[sig.FromUserID], *sig.Candidate)
		}
		return
	}
	if !p.remoteSet {
		p.pendingICE = append(p.pendingICE, *sig.Candidate)
		return
	}
	e.applyCandidate(p, *sig.Candidate)
}

func (e *Engine) onHangup(conversationID int64, sig protocol.CallSignal) {
	s := e.sess
	if s == nil || s.conversationID != conversationID {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function":        "onHangup",
		"conversation_id": conversationID,
		"peer_id":         sig.FromUserID,
		"call_id":         s.id,
	}).Info("Remote hangup, ending call")
	s.reply(ErrCallEnded)
	e.teardown(nil)
}

func (e *Engine) onDecline(conversationID int64, sig protocol.CallSignal) {
	s := e.sess
	if s == nil || s.conversationID != conversationID {
		return
	}
	if !e.removePeer(s, sig.FromUserID) {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function":        "onDecline",
		"conversation_id": conversationID,
		"peer_id":         sig.FromUserID,
		"reason":          sig.Reason,
	}).Info("Peer declined the call")
	e.endIfEmpty(s)
}

func (e *Engine) handleTrack(ev evTrack) {
	if !e.current(ev.p) {
		return
	}
	sink, err := e.opts.Sinks.NewSink(ev.p.userID, ev.track)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleTrack",
			"peer_id":  ev.p.userID,
			"error":    err.Error(),
		}).Warn("Attaching remote audio failed")
		return
	}
	if ev.p.sink != nil {
		ev.p.sink.Close() //nolint:errcheck
	}
	ev.p.sink = sink
	logrus.WithFields(logrus.Fields{
		"function": "handleTrack",
		"peer_id":  ev.p.userID,
		"track_id": ev.track.ID(),
	}).Debug("Remote audio attached")
}

func (e *Engine) handlePeerState(ev evPeerState) {
	if !e.current(ev.p) {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "handlePeerState",
		"peer_id":  ev.p.userID,
		"state":    ev.state,
	}).Debug("Peer connection state changed")
	if !ev.state.Terminal() {
		return
	}
	s := e.sess
	e.removePeer(s, ev.p.userID)
	e.endIfEmpty(s)
}

// handleAbort ends a start attempt whose caller stopped waiting. Attempts
// that already replied are left alone.
func (e *Engine) handleAbort(ev cmdAbort) {
	s := e.sess
	if s == nil || s.startReply == nil || s.startReply != ev.reply {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function":        "Start",
		"conversation_id": s.conversationID,
		"call_id":         s.id,
		"error":           ev.err.Error(),
	}).Warn("Call start abandoned")
	s.reply(ev.err)
	e.teardown(ev.err)
}

func (e *Engine) handleHangup() error {
	s := e.sess
	if s == nil {
		return ErrNoActiveCall
	}
	logrus.WithFields(logrus.Fields{
		"function":        "Hangup",
		"conversation_id": s.conversationID,
		"call_id":         s.id,
	}).Info("Hanging up")
	e.opts.Signaler.Send(protocol.CallHangup(s.conversationID))
	s.reply(ErrCallEnded)
	e.teardown(nil)
	return nil
}

func (e *Engine) handleMute(muted bool) error {
	s := e.sess
	if s == nil {
		return ErrNoActiveCall
	}
	s.muted = muted
	if s.stream != nil {
		s.stream.SetEnabled(!muted)
	}
	return nil
}

func (e *Engine) handleClose() {
	if s := e.sess; s != nil {
		e.opts.Signaler.Send(protocol.CallHangup(s.conversationID))
		s.reply(ErrEngineClosed)
		e.teardown(nil)
	}
	e.cancel()
	logrus.WithFields(logrus.Fields{
		"function": "Close",
	}).Info("Call engine stopped")
}

func (e *Engine) snapshot() Snapshot {
	s := e.sess
	if s == nil {
		return Snapshot{State: e.state}
	}
	return Snapshot{
		State:          e.state,
		ConversationID: s.conversationID,
		Peers:          sortedIDs(s.peers, false),
		Sinks:          sortedIDs(s.peers, true),
		Muted:          s.muted,
		Outgoing:       s.outgoing,
	}
}

func (e *Engine) current(p *peer) bool {
	return e.sess != nil && e.sess.peers[p.userID] == p
}

func (e *Engine) removePeer(s *session, userID int64) bool {
	if !s.remove(userID) {
		return false
	}
	e.opts.Metrics.CallPeers(len(s.peers))
	return true
}

// endIfEmpty ends a ringing or running call that has lost its last peer.
func (e *Engine) endIfEmpty(s *session) {
	if len(s.peers) > 0 || (e.state != StateCalling && e.state != StateInCall) {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function":        "endIfEmpty",
		"conversation_id": s.conversationID,
		"call_id":         s.id,
	}).Info("Last peer left, ending call")
	e.teardown(nil)
}

// teardown releases the session. A non-nil cause is reported as StateError
// before settling in idle.
func (e *Engine) teardown(cause error) {
	s := e.sess
	if s == nil {
		return
	}
	s.release()
	e.sess = nil
	e.opts.Metrics.CallPeers(0)
	if cause != nil {
		e.setState(StateError, cause)
	}
	e.setState(StateIdle, nil)
}

func (e *Engine) setState(st State, err error) {
	if st == e.state && err == nil {
		return
	}
	prev := e.state
	e.state = st
	e.pubMu.Lock()
	e.published = st
	e.pubMu.Unlock()
	e.opts.Metrics.CallState(string(st), allStates)

	logrus.WithFields(logrus.Fields{
		"function":  "setState",
		"old_state": prev,
		"new_state": st,
	}).Info("Call state changed")

	e.cbMu.Lock()
	fns := append([]func(State, error){}, e.stateFns...)
	e.cbMu.Unlock()
	e.notes.submit(func() {
		for _, fn := range fns {
			fn(st, err)
		}
	})
}

func (e *Engine) emitWarning(w Warning) {
	e.cbMu.Lock()
	fns := append([]func(Warning){}, e.warnFns...)
	e.cbMu.Unlock()
	e.notes.submit(func() {
		for _, fn := range fns {
			fn(w)
		}
	})
}
