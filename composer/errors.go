package composer

import "errors"

var (
	// ErrNoConversation indicates no conversation is active.
	ErrNoConversation = errors.New("no active conversation")

	// ErrEmptyDraft indicates a send with neither text nor attachments.
	ErrEmptyDraft = errors.New("draft is empty")

	// ErrSendInProgress indicates a previous send has not completed.
	ErrSendInProgress = errors.New("send already in progress")

	// ErrConversationChanged indicates the active conversation changed while
	// an upload or send was in flight.
	ErrConversationChanged = errors.New("conversation changed")

	// ErrEmptyVoiceNote indicates a voice note without audio.
	ErrEmptyVoiceNote = errors.New("voice note has no audio")
)
