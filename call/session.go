package call

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/commlink/protocol"
)

// peer is one remote participant of the mesh.
type peer struct {
	userID     int64
	pc         PeerConnection
	sink       Sink
	offered    bool
	remoteSet  bool
	pendingICE []protocol.ICECandidate
	released   bool
}

// release closes the sink and the connection. It is safe to call twice.
func (p *peer) release() {
	if p.released {
		return
	}
	p.released = true
	if p.sink != nil {
		if err := p.sink.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "peer.release",
				"peer_id":  p.userID,
				"error":    err.Error(),
			}).Debug("Closing remote audio sink failed")
		}
		p.sink = nil
	}
	if p.pc != nil {
		if err := p.pc.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "peer.release",
				"peer_id":  p.userID,
				"error":    err.Error(),
			}).Debug("Closing peer connection failed")
		}
	}
}

// pendingOffer is an offer received while local media was still being
// acquired.
type pendingOffer struct {
	from int64
	sdp  string
}

// session owns every resource of one call. Only the engine goroutine
// touches it.
type session struct {
	id             string
	conversationID int64
	outgoing       bool
	attempt        uint64
	stream         LocalStream
	streamReleased bool
	muted          bool
	peers          map[int64]*peer
	offers         []pendingOffer
	earlyICE       map[int64][]protocol.ICECandidate
	startReply     chan error
}

func newSession(id string, conversationID int64, outgoing bool, attempt uint64) *session {
	return &session{
		id:             id,
		conversationID: conversationID,
		outgoing:       outgoing,
		attempt:        attempt,
		peers:          make(map[int64]*peer),
		earlyICE:       make(map[int64][]protocol.ICECandidate),
	}
}

// queueOffer records an offer to answer once media is ready. A newer offer
// from the same user replaces the older one.
func (s *session) queueOffer(from int64, sdp string) {
	for i := range s.offers {
		if s.offers[i].from == from {
			s.offers[i].sdp = sdp
			return
		}
	}
	s.offers = append(s.offers, pendingOffer{from: from, sdp: sdp})
}

// remove releases one peer and drops it from the session.
func (s *session) remove(userID int64) bool {
	p, ok := s.peers[userID]
	if !ok {
		return false
	}
	delete(s.peers, userID)
	delete(s.earlyICE, userID)
	p.release()
	return true
}

// release tears down every peer and stops the local stream.
func (s *session) release() {
	for id := range s.peers {
		s.remove(id)
	}
	s.offers = nil
	s.earlyICE = make(map[int64][]protocol.ICECandidate)
	if s.stream != nil && !s.streamReleased {
		s.streamReleased = true
		s.stream.Stop()
	}
}

// reply answers a blocked Start exactly once.
func (s *session) reply(err error) {
	if s.startReply == nil {
		return
	}
	s.startReply <- err
	s.startReply = nil
}
