package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/commlink/protocol"
)

const selfID = 1

type fakeSignaler struct {
	mu   sync.Mutex
	sent []protocol.Envelope
	down bool
}

func (s *fakeSignaler) Send(env protocol.Envelope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return false
	}
	s.sent = append(s.sent, env)
	return true
}

func (s *fakeSignaler) ofType(typ string) []protocol.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []protocol.Envelope
	for _, env := range s.sent {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

func targets(envs []protocol.Envelope) []int64 {
	var out []int64
	for _, env := range envs {
		if env.TargetUserID != nil {
			out = append(out, *env.TargetUserID)
		}
	}
	return out
}

type fakeStream struct {
	mu      sync.Mutex
	enabled bool
	stopped int
}

func (s *fakeStream) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

func (s *fakeStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped++
}

func (s *fakeStream) state() (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled, s.stopped
}

type fakeMedia struct {
	mu      sync.Mutex
	err     error
	gate    chan struct{}
	deaf    bool // gate ignores ctx
	streams []*fakeStream
}

func (m *fakeMedia) Acquire(ctx context.Context) (LocalStream, error) {
	if m.gate != nil && m.deaf {
		<-m.gate
	} else if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	s := &fakeStream{}
	m.streams = append(m.streams, s)
	return s, nil
}

func (m *fakeMedia) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

func (m *fakeMedia) last() *fakeStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams[len(m.streams)-1]
}

type fakePC struct {
	mu         sync.Mutex
	userID     int64
	stream     LocalStream
	local      []SDPType
	remote     []string
	candidates []protocol.ICECandidate
	closed     int
	remoteErr  error
}

func (p *fakePC) AddStream(stream LocalStream) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stream = stream
	return nil
}

func (p *fakePC) CreateOffer() (string, error) {
	return fmt.Sprintf("offer-%d-%d", selfID, p.userID), nil
}

func (p *fakePC) CreateAnswer() (string, error) {
	return fmt.Sprintf("answer-%d-%d", selfID, p.userID), nil
}

func (p *fakePC) SetLocalDescription(t SDPType, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local = append(p.local, t)
	return nil
}

func (p *fakePC) SetRemoteDescription(_ SDPType, sdp string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remoteErr != nil {
		return p.remoteErr
	}
	p.remote = append(p.remote, sdp)
	return nil
}

func (p *fakePC) AddICECandidate(c protocol.ICECandidate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePC) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakePC) snapshot() (remote []string, candidates int, closed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.remote...), len(p.candidates), p.closed
}

type fakePeers struct {
	mu     sync.Mutex
	pcs    map[int64][]*fakePC
	events map[int64]PeerEvents
	fail   map[int64]bool
}

func newFakePeers() *fakePeers {
	return &fakePeers{
		pcs:    make(map[int64][]*fakePC),
		events: make(map[int64]PeerEvents),
		fail:   make(map[int64]bool),
	}
}

func (f *fakePeers) NewPeer(userID int64, events PeerEvents) (PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[userID] {
		return nil, errors.New("ice setup failed")
	}
	pc := &fakePC{userID: userID}
	f.pcs[userID] = append(f.pcs[userID], pc)
	f.events[userID] = events
	return pc, nil
}

func (f *fakePeers) last(userID int64) *fakePC {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.pcs[userID]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

func (f *fakePeers) all() []*fakePC {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakePC
	for _, list := range f.pcs {
		out = append(out, list...)
	}
	return out
}

func (f *fakePeers) eventsFor(userID int64) PeerEvents {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[userID]
}

type fakeTrack struct{ id string }

func (t fakeTrack) ID() string                    { return t.id }
func (t fakeTrack) ReadRTP() (*rtp.Packet, error) { return nil, errors.New("unused") }

type fakeSink struct {
	mu     sync.Mutex
	closed int
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSink) closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeSinks struct {
	mu    sync.Mutex
	sinks []*fakeSink
}

func (f *fakeSinks) NewSink(int64, RemoteTrack) (Sink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSink{}
	f.sinks = append(f.sinks, s)
	return s, nil
}

func (f *fakeSinks) all() []*fakeSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeSink(nil), f.sinks...)
}

type fakeRoster struct {
	ids []int64
	err error
}

func (r fakeRoster) Participants(context.Context, int64) ([]int64, error) {
	return r.ids, r.err
}

type harness struct {
	engine *Engine
	self   int64
	sig    *fakeSignaler
	media  *fakeMedia
	peers  *fakePeers
	sinks  *fakeSinks

	mu       sync.Mutex
	states   []State
	errs     []error
	warnings []Warning
}

func newHarness(t *testing.T, roster fakeRoster, configure func(*harness)) *harness {
	t.Helper()
	h := &harness{
		sig:   &fakeSignaler{},
		media: &fakeMedia{},
		peers: newFakePeers(),
		sinks: &fakeSinks{},
		self:  selfID,
	}
	if configure != nil {
		configure(h)
	}
	e, err := NewEngine(Options{
		SelfID:   h.self,
		Signaler: h.sig,
		Media:    h.media,
		Peers:    h.peers,
		Sinks:    h.sinks,
		Roster:   roster,
	})
	require.NoError(t, err)
	e.OnState(func(s State, err error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.states = append(h.states, s)
		h.errs = append(h.errs, err)
	})
	e.OnWarning(func(w Warning) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.warnings = append(h.warnings, w)
	})
	h.engine = e
	t.Cleanup(e.Close)
	return h
}

func (h *harness) observed() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State(nil), h.states...)
}

func (h *harness) warned() []Warning {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Warning(nil), h.warnings...)
}

func signal(t *testing.T, typ string, conv int64, sig protocol.CallSignal) protocol.Envelope {
	t.Helper()
	env, err := protocol.WithData(typ, conv, sig)
	require.NoError(t, err)
	return env
}

// establish starts a call in conv and has every participant answer and
// send a track.
func (h *harness) establish(t *testing.T, conv int64, others []int64) {
	t.Helper()
	require.NoError(t, h.engine.Start(context.Background(), conv))
	for _, id := range others {
		h.engine.HandleSignal(signal(t, protocol.TypeCallAnswer, conv, protocol.CallSignal{FromUserID: id, SDP: "answer"}))
		h.peers.eventsFor(id).OnTrack(fakeTrack{id: fmt.Sprint(id)})
	}
	snap := h.engine.Snapshot()
	require.Equal(t, StateInCall, snap.State)
	require.Equal(t, others, snap.Peers)
	require.Equal(t, others, snap.Sinks)
}

func TestNewEngineValidation(t *testing.T) {
	_, err := NewEngine(Options{})
	assert.Error(t, err)
}

func TestStartOffersEveryOtherParticipant(t *testing.T) {
	h := newHarness(t, fakeRoster{ids: []int64{selfID, 2, 3, 3}}, nil)

	require.NoError(t, h.engine.Start(context.Background(), 10))

	snap := h.engine.Snapshot()
	assert.Equal(t, StateCalling, snap.State)
	assert.Equal(t, int64(10), snap.ConversationID)
	assert.Equal(t, []int64{2, 3}, snap.Peers)
	assert.True(t, snap.Outgoing)
	assert.ElementsMatch(t, []int64{2, 3}, targets(h.sig.ofType(protocol.TypeCallOffer)))
	assert.Equal(t, StateCalling, h.engine.Status())

	enabled, _ := h.media.last().state()
	assert.True(t, enabled)
}

func TestStartRejectedWhileActive(t *testing.T) {
	h := newHarness(t, fakeRoster{ids: []int64{2}}, nil)
	require.NoError(t, h.engine.Start(context.Background(), 10))

	for _, conv := range []int64{10, 11} {
		err := h.engine.Start(context.Background(), conv)
		assert.ErrorIs(t, err, ErrCallAlreadyActive)
	}

	snap := h.engine.Snapshot()
	assert.Equal(t, int64(10), snap.ConversationID)
	assert.Equal(t, []int64{2}, snap.Peers)
	assert.Len(t, h.sig.ofType(protocol.TypeCallOffer), 1)
	assert.Equal(t, 1, h.media.count())
}

func TestStartRejectsZeroConversation(t *testing.T) {
	h := newHarness(t, fakeRoster{ids: []int64{2}}, nil)
	assert.ErrorIs(t, h.engine.Start(context.Background(), 0), ErrInvalidConversation)
}

func TestMediaFailureEndsIdle(t *testing.T) {
	h := newHarness(t, fakeRoster{ids: []int64{2}}, func(h *harness) {
		h.media.err = errors.New("permission denied")
	})

	err := h.engine.Start(context.Background(), 10)
	require.ErrorIs(t, err, ErrMediaUnavailable)

	snap := h.engine.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.Peers)
	assert.Empty(t, h.peers.all())
	assert.Empty(t, h.sig.ofType(protocol.TypeCallOffer))

	require.Eventually(t, func() bool { return len(h.observed()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []State{StateStarting, StateError, StateIdle}, h.observed())
	h.mu.Lock()
	assert.ErrorIs(t, h.errs[1], ErrMediaUnavailable)
	h.mu.Unlock()

	// A new attempt is allowed after a failure.
	h.media.mu.Lock()
	h.media.err = nil
	h.media.mu.Unlock()
	assert.NoError(t, h.engine.Start(context.Background(), 10))
}

func TestStartWithoutParticipants(t *testing.T) {
	h := newHarness(t, fakeRoster{ids: []int64{selfID}}, nil)
	assert.ErrorIs(t, h.engine.Start(context.Background(), 10), ErrNoParticipants)
	assert.Zero(t, h.media.count())
	assert.Equal(t, StateIdle, h.engine.Snapshot().State)
}

func TestStartFailsWhenNoPeerCanBeCreated(t *testing.T) {
	h := newHarness(t, fakeRoster{ids: []int64{2, 3}}, func(h *harness) {
		h.peers.fail[2] = true
		h.peers.fail[3] = true
	})

	assert.ErrorIs(t, h.engine.Start(context.Background(), 10), ErrNoPeers)
	assert.Equal(t, StateIdle, h.engine.Snapshot().State)
	_, stopped := h.media.last().state()
	assert.Equal(t, 1, stopped)
}

func TestOnePeerFailingDoesNotAbortStart(t *testing.T) {
	h := newHarness(t, fakeRoster{ids: []int64{2, 3}}, func(h *harness) {
		h.peers.fail[3] = true
	})

	require.NoError(t, h.engine.Start(context.Background(), 10))
	snap := h.engine.Snapshot()
	assert.Equal(t, []int64{2}, snap.Peers)
	assert.Equal(t, []int64{2}, targets(h.sig.ofType(protocol.TypeCallOffer)))
}

func TestStartFailsWhenSignalingIsDown(t *testing.T) {
	h := newHarness(t, fakeRoster{ids: []int64{2}}, func(h *harness) {
		h.sig.down = true
	})
	assert.ErrorIs(t, h.engine.Start(context.Background(), 10), ErrNoPeers)
	for _, pc := range h.peers.all() {
		_, _, closed := pc.snapshot()
		assert.Equal(t, 1, closed)
	}
}

func TestTeardownReleasesEverything(t *testing.T) {
	tests := []struct {
		name   string
		others []int64
		remote bool
	}{
		{"local hangup one peer", []int64{2}, false},
		{"local hangup three peers", []int64{2, 3, 4}, false},
		{"remote hangup one peer", []int64{2}, true},
		{"remote hangup three peers", []int64{2, 3, 4}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, fakeRoster{ids: tt.others}, nil)
			h.establish(t, 10, tt.others)

			if tt.remote {
				h.engine.HandleSignal(signal(t, protocol.TypeCallHangup, 10, protocol.CallSignal{FromUserID: tt.others[0]}))
				assert.Empty(t, h.sig.ofType(protocol.TypeCallHangup))
			} else {
				require.NoError(t, h.engine.Hangup())
				assert.Len(t, h.sig.ofType(protocol.TypeCallHangup), 1)
			}

			// Late callbacks from closed connections are ignored.
			for _, id := range tt.others {
				h.peers.eventsFor(id).OnStateChange(PeerClosed)
			}

			snap := h.engine.Snapshot()
			assert.Equal(t, StateIdle, snap.State)
			assert.Empty(t, snap.Peers)
			assert.Empty(t, snap.Sinks)
			assert.Zero(t, snap.ConversationID)

			for _, pc := range h.peers.all() {
				_, _, closed := pc.snapshot()
				assert.Equal(t, 1, closed, "peer %d", pc.userID)
			}
			for _, s := range h.sinks.all() {
				assert.Equal(t, 1, s.closes())
			}
			_, stopped := h.media.last().state()
			assert.Equal(t, 1, stopped)
		})
	}
}

func TestHangupWithoutCall(t *testing.T) {
	h := newHarness(t, fakeRoster{}, nil)
	assert.ErrorIs(t, h.engine.Hangup(), ErrNoActiveCall)
	assert.ErrorIs(t, h.engine.SetMuted(true), ErrNoActiveCall)
}

func TestHangupForOtherConversationIgnored(t *testing.T) {
	h := newHarness(t, fakeRoster{ids: []int64{2}}, nil)
	h.establish(t, 10, []int64{2})

	h.engine.HandleSignal(signal(t, protocol.TypeCallHangup, 11, protocol.CallSignal{FromUserID: 2}))
	assert.Equal(t, StateInCall, h.engine.Snapshot().State)
}

func TestIncomingOfferIsAnswered(t *testing.T) {
	h := newHarness(t, fakeRoster{}, nil)

	h.engine.HandleSignal(signal(t, protocol.TypeCallOffer, 10, protocol.CallSignal{FromUserID: 2, SDP: "remote-offer"}))

	require.Eventually(t, func() bool { return h.engine.Snapshot().State == StateInCall }, time.Second, 5*time.Millisecond)
	snap := h.engine.Snapshot()
	assert.False(t, snap.Outgoing)
	assert.Equal(t, []int64{2}, snap.Peers)

	answers := h.sig.ofType(protocol.TypeCallAnswer)
	require.Len(t, answers, 1)
	assert.Equal(t, []int64{2}, targets(answers))
	remote, _, _ := h.peers.last(2).snapshot()
	assert.Equal(t, []string{"remote-offer"}, remote)
}

func TestSelfEchoIgnored(t *testing.T) {
	h := newHarness(t, fakeRoster{}, nil)
	h.engine.HandleSignal(signal(t, protocol.TypeCallOffer, 10, protocol.CallSignal{FromUserID: selfID, SDP: "x"}))
	assert.Equal(t, StateIdle, h.engine.Snapshot().State)
	assert.Zero(t, h.media.count())
}

func TestOfferDuringOtherCallIsDeclined(t *testing.T) {
	h := newHarness(t, fakeRoster{ids: []int64{2}}, nil)
	h.establish(t, 10, []int64{2})

	h.engine.HandleSignal(signal(t, protocol.TypeCallOffer, 20, protocol.CallSignal{FromUserID: 7, SDP: "other"}))

	snap := h.engine.Snapshot()
	assert.Equal(t, int64(10), snap.ConversationID)
	assert.Equal(t, []int64{2}, snap.Peers)

	declines := h.sig.ofType(protocol.TypeCallDecline)
	require.Len(t, declines, 1)
	assert.Equal(t, int64(20), declines[0].Conversation())
	assert.Equal(t, []int64{7}, targets(declines))
	assert.Equal(t, protocol.DeclineBusy, declines[0].Reason)

	require.Eventually(t, func() bool { return len(h.warned()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, Warning{ConversationID: 20, FromUserID: 7, ActiveConversationID: 10, Reason: protocol.DeclineBusy}, h.warned()[0])
}

func TestCandidatesWaitForRemoteDescription(t *testing.T) {
	h := newHarness(t, fakeRoster{ids: []int64{2}}, nil)
	require.NoError(t, h.engine.Start(context.Background(), 10))

	cand := protocol.CallSignal{FromUserID: 2, Candidate: &protocol.ICECandidate{Candidate: "candidate:1"}}
	h.engine.HandleSignal(signal(t, protocol.TypeCallICE, 10, cand))
	h.engine.Snapshot()
	_, applied, _ := h.peers.last(2).snapshot()
	assert.Zero(t, applied)

	h.engine.HandleSignal(signal(t, protocol.TypeCallAnswer, 10, protocol.CallSignal{FromUserID: 2, SDP: "answer"}))
	h.engine.HandleSignal(signal(t, protocol.TypeCallICE, 10, cand))
	h.engine.Snapshot()
	_, applied, _ = h.peers.last(2).snapshot()
	assert.Equal(t, 2, applied)
}

func TestCandidatesBeforePeerAreBuffered(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, fakeRoster{}, func(h *harness) {
		h.media.gate = gate
	})

	h.engine.HandleSignal(signal(t, protocol.TypeCallOffer, 10, protocol.CallSignal{FromUserID: 2, SDP: "offer"}))
	h.engine.HandleSignal(signal(t, protocol.TypeCallICE, 10, protocol.CallSignal{
		FromUserID: 2,
		Candidate:  &protocol.ICECandidate{Candidate: "candidate:early"},
	}))
	assert.Equal(t, StateStarting, h.engine.Snapshot().State)
	assert.Nil(t, h.peers.last(2))

	close(gate)
	require.Eventually(t, func() bool { return h.engine.Snapshot().State == StateInCall }, time.Second, 5*time.Millisecond)
	_, applied, _ := h.peers.last(2).snapshot()
	assert.Equal(t, 1, applied)
}

func TestLocalCandidatesAreSignaled(t *testing.T) {
	h := newHarness(t, fakeRoster{ids: []int64{2}}, nil)
	require.NoError(t, h.engine.Start(context.Background(), 10))

	h.peers.eventsFor(2).OnICECandidate(protocol.ICECandidate{Candidate: "candidate:local"})
	h.engine.Snapshot()

	sent := h.sig.ofType(protocol.TypeCallICE)
	require.Len(t, sent, 1)
	assert.Equal(t, []int64{2}, targets(sent))
	assert.Equal(t, "candidate:local", sent[0].Candidate.Candidate)
}

func TestStaleAnswerIgnored(t *testing.T) {
	h := newHarness(t, fakeRoster{ids: []int64{2}}, nil)
	require.NoError(t, h.engine.Start(context.Background(), 10))

	h.engine.HandleSignal(signal(t, protocol.TypeCallAnswer, 10, protocol.CallSignal{FromUserID: 9, SDP: "who"}))
	h.engine.HandleSignal(signal(t, protocol.TypeCallAnswer, 11, protocol.CallSignal{FromUserID: 2, SDP: "wrong-conv"}))
	assert.Equal(t, StateCalling, h.engine.Snapshot().State)

	h.engine.HandleSignal(signal(t, protocol.TypeCallAnswer, 10, protocol.CallSignal{FromUserID: 2, SDP: "first"}))
	h.engine.HandleSignal(signal(t, protocol.TypeCallAnswer, 10, protocol.CallSignal{FromUserID: 2, SDP: "second"}))
	assert.Equal(t, StateInCall, h.engine.Snapshot().State)

	remote, _, _ := h.peers.last(2).snapshot()
	assert.Equal(t, []string{"first"}, remote)
}

func TestPeerFailureRemovesOnlyThatPeer(t *testing.T) {
	others := []int64{2, 3, 4}
	h := newHarness(t, fakeRoster{ids: others}, nil)
	h.establish(t, 10, others)

	h.peers.eventsFor(3).OnStateChange(PeerFailed)
	snap := h.engine.Snapshot()
	assert.Equal(t, StateInCall, snap.State)
	assert.Equal(t, []int64{2, 4}, snap.Peers)
	_, _, closed := h.peers.last(3).snapshot()
	assert.Equal(t, 1, closed)

	h.peers.eventsFor(2).OnStateChange(PeerConnected)
	h.peers.eventsFor(2).OnStateChange(PeerDisconnected)
	h.engine.HandleSignal(signal(t, protocol.TypeCallDecline, 10, protocol.CallSignal{FromUserID: 4, Reason: "busy"}))

	snap = h.engine.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.Peers)
}

func TestGlareLowerIDYields(t *testing.T) {
	h := newHarness(t, fakeRoster{ids: []int64{2}}, nil)
	require.NoError(t, h.engine.Start(context.Background(), 10))
	first := h.peers.last(2)

	h.engine.HandleSignal(signal(t, protocol.TypeCallOffer, 10, protocol.CallSignal{FromUserID: 2, SDP: "their-offer"}))

	snap := h.engine.Snapshot()
	assert.Equal(t, StateInCall, snap.State)
	assert.Equal(t, []int64{2}, snap.Peers)
	_, _, closed := first.snapshot()
	assert.Equal(t, 1, closed)

	second := h.peers.last(2)
	assert.NotSame(t, first, second)
	remote, _, _ := second.snapshot()
	assert.Equal(t, []string{"their-offer"}, remote)
	assert.Len(t, h.sig.ofType(protocol.TypeCallAnswer), 1)
}

func TestGlareHigherIDKeepsOffer(t *testing.T) {
	h := newHarness(t, fakeRoster{ids: []int64{2}}, func(h *harness) {
		h.self = 5
	})
	require.NoError(t, h.engine.Start(context.Background(), 10))
	first := h.peers.last(2)

	h.engine.HandleSignal(signal(t, protocol.TypeCallOffer, 10, protocol.CallSignal{FromUserID: 2, SDP: "their-offer"}))
	assert.Equal(t, StateCalling, h.engine.Snapshot().State)
	assert.Same(t, first, h.peers.last(2))
	assert.Empty(t, h.sig.ofType(protocol.TypeCallAnswer))

	h.engine.HandleSignal(signal(t, protocol.TypeCallAnswer, 10, protocol.CallSignal{FromUserID: 2, SDP: "answer"}))
	assert.Equal(t, StateInCall, h.engine.Snapshot().State)
}

func TestMuteTogglesLocalStream(t *testing.T) {
	h := newHarness(t, fakeRoster{ids: []int64{2}}, nil)
	require.NoError(t, h.engine.Start(context.Background(), 10))
	stream := h.media.last()

	require.NoError(t, h.engine.SetMuted(true))
	enabled, _ := stream.state()
	assert.False(t, enabled)
	assert.True(t, h.engine.Snapshot().Muted)

	require.NoError(t, h.engine.SetMuted(false))
	enabled, _ = stream.state()
	assert.True(t, enabled)
}

func TestHangupWhileStartingCancelsAttempt(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, fakeRoster{ids: []int64{2}}, func(h *harness) {
		h.media.gate = gate
	})

	errc := make(chan error, 1)
	go func() { errc <- h.engine.Start(context.Background(), 10) }()
	require.Eventually(t, func() bool { return h.engine.Status() == StateStarting }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.engine.Hangup())
	assert.ErrorIs(t, <-errc, ErrCallEnded)

	close(gate)
	require.Eventually(t, func() bool { return h.media.count() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		_, stopped := h.media.last().state()
		return stopped == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateIdle, h.engine.Snapshot().State)
	assert.Empty(t, h.peers.all())
}

func TestCancelledStartDoesNotGoLive(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, fakeRoster{ids: []int64{2}}, func(h *harness) {
		h.media.gate = gate
		h.media.deaf = true
	})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- h.engine.Start(ctx, 10) }()
	require.Eventually(t, func() bool { return h.engine.Status() == StateStarting }, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
	assert.Equal(t, StateIdle, h.engine.Snapshot().State)

	close(gate)
	require.Eventually(t, func() bool { return h.media.count() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		_, stopped := h.media.last().state()
		return stopped == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateIdle, h.engine.Snapshot().State)
	assert.Empty(t, h.sig.ofType(protocol.TypeCallOffer))
	assert.Empty(t, h.peers.all())

	// The engine accepts a fresh attempt afterwards.
	h.media.mu.Lock()
	h.media.gate = nil
	h.media.mu.Unlock()
	require.NoError(t, h.engine.Start(context.Background(), 10))
	assert.Equal(t, StateCalling, h.engine.Snapshot().State)
}

func TestCancelAfterStartKeepsCall(t *testing.T) {
	h := newHarness(t, fakeRoster{ids: []int64{2}}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.engine.Start(ctx, 10))
	cancel()
	assert.Equal(t, StateCalling, h.engine.Snapshot().State)
}

func TestCloseHangsUpActiveCall(t *testing.T) {
	h := newHarness(t, fakeRoster{ids: []int64{2}}, nil)
	h.establish(t, 10, []int64{2})

	h.engine.Close()
	assert.Len(t, h.sig.ofType(protocol.TypeCallHangup), 1)
	_, _, closed := h.peers.last(2).snapshot()
	assert.Equal(t, 1, closed)

	assert.ErrorIs(t, h.engine.Start(context.Background(), 10), ErrEngineClosed)
	assert.ErrorIs(t, h.engine.Hangup(), ErrEngineClosed)
	assert.Equal(t, StateIdle, h.engine.Snapshot().State)
}
