package api

import (
	"context"
	"io"

	"github.com/opd-ai/commlink/chat"
)

// Page is one page of message history, oldest first.
type Page struct {
	Messages   []chat.Message `json:"messages"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// SendRequest is the body of a send-message call.
type SendRequest struct {
	Body        string            `json:"body"`
	Attachments []chat.Attachment `json:"attachments,omitempty"`
	Nonce       string            `json:"nonce,omitempty"`
}

// ConversationDetail is a conversation together with its members.
type ConversationDetail struct {
	Conversation chat.Conversation `json:"conversation"`
	Members      []chat.Member     `json:"members"`
}

// CreateConversationRequest creates a conversation. Exactly one of UserIDs
// and TeamID is set, except for self conversations which use neither.
type CreateConversationRequest struct {
	Type    chat.ConversationType `json:"type"`
	Name    string                `json:"name,omitempty"`
	Topic   string                `json:"topic,omitempty"`
	UserIDs []int64               `json:"user_ids,omitempty"`
	TeamID  int64                 `json:"team_id,omitempty"`
}

// MessageSource loads message history.
type MessageSource interface {
	GetMessages(ctx context.Context, conversationID int64, cursor string, limit int) (Page, error)
}

// MessageSender sends a message and returns the stored message.
type MessageSender interface {
	SendMessage(ctx context.Context, conversationID int64, req SendRequest) (chat.Message, error)
}

// MessageSearcher runs a server-side search.
type MessageSearcher interface {
	SearchMessages(ctx context.Context, filter chat.SearchFilter) ([]chat.SearchResult, error)
}

// Reactor adds and removes the current user's reactions.
type Reactor interface {
	AddReaction(ctx context.Context, messageID int64, emoji string) error
	RemoveReaction(ctx context.Context, messageID int64, emoji string) error
}

// SuggestionActor resolves a pending suggestion and returns the updated message.
type SuggestionActor interface {
	AcceptSuggestion(ctx context.Context, messageID, suggestionID int64) (chat.Message, error)
	DismissSuggestion(ctx context.Context, messageID, suggestionID int64) (chat.Message, error)
}

// Revealer fetches the plaintext of a sensitive message.
type Revealer interface {
	RevealMessage(ctx context.Context, messageID int64) (string, error)
}

// FileService lists and uploads files that can be attached to messages.
type FileService interface {
	ListFiles(ctx context.Context, query string, limit int) ([]chat.File, error)
	UploadFile(ctx context.Context, name, contentType string, r io.Reader) (chat.File, error)
}

// ConversationDirectory lists, inspects and creates conversations.
type ConversationDirectory interface {
	ListConversations(ctx context.Context) ([]chat.Conversation, error)
	GetConversation(ctx context.Context, conversationID int64) (ConversationDetail, error)
	CreateConversation(ctx context.Context, req CreateConversationRequest) (chat.Conversation, error)
}

// Backend is everything the REST collaborator provides.
type Backend interface {
	MessageSource
	MessageSender
	MessageSearcher
	Reactor
	SuggestionActor
	Revealer
	FileService
	ConversationDirectory
}

var _ Backend = (*Client)(nil)
