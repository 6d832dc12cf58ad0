package messages

import "errors"

var (
	// ErrSuperseded is returned when a fetch finished after the active
	// conversation changed or a newer fetch started. The result was
	// discarded.
	ErrSuperseded = errors.New("fetch superseded by a newer one")

	// ErrNoConversation is returned by operations that need an active
	// conversation when none is loaded.
	ErrNoConversation = errors.New("no active conversation")

	// ErrNoMoreHistory is returned by LoadOlder at the start of history.
	ErrNoMoreHistory = errors.New("no older messages")
)
