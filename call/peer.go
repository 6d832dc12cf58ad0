package call

import (
	"context"

	"github.com/pion/rtp"

	"github.com/opd-ai/commlink/protocol"
)

// SDPType distinguishes offers from answers.
type SDPType string

const (
	SDPOffer  SDPType = "offer"
	SDPAnswer SDPType = "answer"
)

// PeerState is a peer connection's state as reported by WebRTC.
type PeerState string

const (
	PeerNew          PeerState = "new"
	PeerConnecting   PeerState = "connecting"
	PeerConnected    PeerState = "connected"
	PeerDisconnected PeerState = "disconnected"
	PeerFailed       PeerState = "failed"
	PeerClosed       PeerState = "closed"
)

// Terminal reports whether the peer is gone for good.
func (s PeerState) Terminal() bool {
	return s == PeerFailed || s == PeerDisconnected || s == PeerClosed
}

// PeerConnection is the subset of RTCPeerConnection the engine drives.
type PeerConnection interface {
	AddStream(stream LocalStream) error
	CreateOffer() (string, error)
	CreateAnswer() (string, error)
	SetLocalDescription(t SDPType, sdp string) error
	SetRemoteDescription(t SDPType, sdp string) error
	AddICECandidate(c protocol.ICECandidate) error
	Close() error
}

// PeerEvents receives a peer connection's callbacks. The engine turns each
// into an internal event.
type PeerEvents struct {
	OnICECandidate func(protocol.ICECandidate)
	OnTrack        func(RemoteTrack)
	OnStateChange  func(PeerState)
}

// PeerFactory creates peer connections for remote users.
type PeerFactory interface {
	NewPeer(userID int64, events PeerEvents) (PeerConnection, error)
}

// RemoteTrack is an inbound media track.
type RemoteTrack interface {
	ID() string
	ReadRTP() (*rtp.Packet, error)
}

// Sink consumes one peer's remote audio.
type Sink interface {
	Close() error
}

// SinkFactory attaches a sink to a remote track.
type SinkFactory interface {
	NewSink(userID int64, track RemoteTrack) (Sink, error)
}

// LocalStream is the local microphone stream.
type LocalStream interface {
	SetEnabled(enabled bool)
	Stop()
}

// MediaSource opens the local microphone.
type MediaSource interface {
	Acquire(ctx context.Context) (LocalStream, error)
}

// Roster lists the user ids taking part in a conversation.
type Roster interface {
	Participants(ctx context.Context, conversationID int64) ([]int64, error)
}

// Signaler delivers outbound signaling. It matches transport.Client.Send.
type Signaler interface {
	Send(env protocol.Envelope) bool
}
