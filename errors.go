package commlink

import "errors"

// Lifecycle errors.
var (
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("client already started")

	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("client stopped")
)

// Conversation errors.
var (
	// ErrNoConversation is returned by operations that act on the active
	// conversation when none has been selected.
	ErrNoConversation = errors.New("no active conversation")

	// ErrInvalidConversation indicates a zero conversation id.
	ErrInvalidConversation = errors.New("invalid conversation id")
)

// Construction errors.
var (
	// ErrMissingSelf indicates neither Deps.SelfID nor a token subject
	// identifies the current user.
	ErrMissingSelf = errors.New("current user id unknown")
)
