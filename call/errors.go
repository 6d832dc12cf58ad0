package call

import "errors"

// Call start errors.
var (
	// ErrCallAlreadyActive indicates a call is starting, ringing or running.
	ErrCallAlreadyActive = errors.New("call already active")

	// ErrMediaUnavailable indicates the local microphone could not be opened.
	ErrMediaUnavailable = errors.New("local media unavailable")

	// ErrNoParticipants indicates the conversation has nobody else to call.
	ErrNoParticipants = errors.New("no other participants in conversation")

	// ErrNoPeers indicates no peer connection could be established.
	ErrNoPeers = errors.New("no peer connection could be created")

	// ErrInvalidConversation indicates a zero conversation id.
	ErrInvalidConversation = errors.New("invalid conversation id")
)

// Call control errors.
var (
	// ErrNoActiveCall indicates there is no call to act on.
	ErrNoActiveCall = errors.New("no active call")

	// ErrCallEnded indicates the call ended before the start completed.
	ErrCallEnded = errors.New("call ended")

	// ErrEngineClosed indicates the engine has been closed.
	ErrEngineClosed = errors.New("call engine closed")

	// ErrDeclinedBusy indicates an inbound call was declined because
	// another call is active.
	ErrDeclinedBusy = errors.New("incoming call declined, busy in another call")
)

// Peer errors.
var (
	// ErrIncompatibleStream indicates a local stream the peer connection
	// implementation cannot send.
	ErrIncompatibleStream = errors.New("local stream not supported by peer connection")
)
