package chat

import (
	"strings"
	"time"
)

// ConversationType distinguishes direct messages, ad-hoc groups, team
// channels and the user's private notes-to-self conversation.
type ConversationType string

const (
	ConversationDM    ConversationType = "dm"
	ConversationGroup ConversationType = "group"
	ConversationTeam  ConversationType = "team"
	ConversationSelf  ConversationType = "self"
)

// Valid reports whether t is one of the known conversation types.
func (t ConversationType) Valid() bool {
	switch t {
	case ConversationDM, ConversationGroup, ConversationTeam, ConversationSelf:
		return true
	}
	return false
}

// Conversation is owned by the server. The client only changes it through
// conversation.updated events or a create request.
type Conversation struct {
	ID            int64            `json:"id"`
	Type          ConversationType `json:"type"`
	Name          string           `json:"name"`
	Topic         string           `json:"topic,omitempty"`
	LastMessageAt *time.Time       `json:"last_message_at,omitempty"`
}

// Member is a conversation membership with denormalized user fields.
type Member struct {
	ConversationID int64  `json:"conversation_id"`
	UserID         int64  `json:"user_id"`
	DisplayName    string `json:"display_name"`
	Handle         string `json:"handle"`
	AvatarURL      string `json:"avatar_url,omitempty"`
}

// Name returns the best label for the member.
func (m Member) Name() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Handle
}

// AttachmentKind classifies an attachment.
type AttachmentKind string

const (
	AttachmentImage     AttachmentKind = "image"
	AttachmentFile      AttachmentKind = "file"
	AttachmentVoiceNote AttachmentKind = "voice_note"
	AttachmentVideo     AttachmentKind = "video"
)

// Attachment references a stored file.
type Attachment struct {
	Kind       AttachmentKind `json:"kind"`
	FileID     int64          `json:"file_id"`
	URL        string         `json:"url,omitempty"`
	Name       string         `json:"name,omitempty"`
	Size       int64          `json:"size,omitempty"`
	Duration   float64        `json:"duration_seconds,omitempty"`
	Transcript string         `json:"transcript,omitempty"`
}

// Reference is a typed deep link from a message to another entity such as a
// task, note, bookmark or time entry.
type Reference struct {
	Type  string `json:"type"`
	ID    int64  `json:"id"`
	Label string `json:"label,omitempty"`
}

// Reaction is a single user's emoji on a message.
type Reaction struct {
	UserID int64  `json:"user_id"`
	Emoji  string `json:"emoji"`
}

// SuggestionStatus is the lifecycle of an action proposal.
type SuggestionStatus string

const (
	SuggestionPending   SuggestionStatus = "pending"
	SuggestionAccepted  SuggestionStatus = "accepted"
	SuggestionDismissed SuggestionStatus = "dismissed"
)

// CanTransition reports whether a suggestion may move from s to next.
// The only legal moves are pending to accepted and pending to dismissed.
func (s SuggestionStatus) CanTransition(next SuggestionStatus) bool {
	if s != SuggestionPending {
		return false
	}
	return next == SuggestionAccepted || next == SuggestionDismissed
}

// Suggestion is a typed action proposal attached to a message, for example
// "create a task from this message".
type Suggestion struct {
	ID      int64            `json:"id"`
	Type    string           `json:"type"`
	Title   string           `json:"title,omitempty"`
	Payload map[string]any   `json:"payload,omitempty"`
	Status  SuggestionStatus `json:"status"`
}

// DeletedBody replaces the body of a tombstoned message.
const DeletedBody = "[message deleted]"

// Message is a single chat message.
type Message struct {
	ID             int64        `json:"id"`
	ConversationID int64        `json:"conversation_id"`
	SenderID       int64        `json:"sender_id"`
	Body           string       `json:"body"`
	CreatedAt      time.Time    `json:"created_at"`
	EditedAt       *time.Time   `json:"edited_at,omitempty"`
	DeletedAt      *time.Time   `json:"deleted_at,omitempty"`
	IsSensitive    bool         `json:"is_sensitive"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	References     []Reference  `json:"references,omitempty"`
	Reactions      []Reaction   `json:"reactions,omitempty"`
	Suggestions    []Suggestion `json:"suggestions,omitempty"`
}

// Deleted reports whether the message is a tombstone.
func (m *Message) Deleted() bool {
	return m.DeletedAt != nil
}

// HasReaction reports whether user already reacted with emoji.
func (m *Message) HasReaction(userID int64, emoji string) bool {
	for _, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can hand messages out of a store
// without sharing slices.
func (m Message) Clone() Message {
	out := m
	if m.EditedAt != nil {
		t := *m.EditedAt
		out.EditedAt = &t
	}
	if m.DeletedAt != nil {
		t := *m.DeletedAt
		out.DeletedAt = &t
	}
	out.Attachments = append([]Attachment(nil), m.Attachments...)
	out.References = append([]Reference(nil), m.References...)
	out.Reactions = append([]Reaction(nil), m.Reactions...)
	if m.Suggestions != nil {
		out.Suggestions = make([]Suggestion, len(m.Suggestions))
		for i, s := range m.Suggestions {
			out.Suggestions[i] = s
			if s.Payload != nil {
				p := make(map[string]any, len(s.Payload))
				for k, v := range s.Payload {
					p[k] = v
				}
				out.Suggestions[i].Payload = p
			}
		}
	}
	return out
}

// File is an entry in the user's file library that can be attached to a
// message by id.
type File struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int64     `json:"size"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AttachmentKindFor guesses the attachment kind from a MIME type.
func AttachmentKindFor(contentType string) AttachmentKind {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return AttachmentImage
	case strings.HasPrefix(contentType, "video/"):
		return AttachmentVideo
	default:
		return AttachmentFile
	}
}
