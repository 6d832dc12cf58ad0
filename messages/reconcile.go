package messages

import (
	"time"

	"github.com/opd-ai/commlink/chat"
	"github.com/opd-ai/commlink/protocol"
)

// mergePatch applies the non-nil fields of p. A tombstone keeps its marker
// body, and suggestion statuses only move forward.
func mergePatch(m *chat.Message, p protocol.MessagePatch) bool {
	changed := false
	if p.DeletedAt != nil && !m.Deleted() {
		return tombstone(m, *p.DeletedAt)
	}
	if p.Body != nil && !m.Deleted() && *p.Body != m.Body {
		m.Body = *p.Body
		changed = true
	}
	if p.EditedAt != nil {
		t := *p.EditedAt
		m.EditedAt = &t
		changed = true
	}
	if p.IsSensitive != nil && *p.IsSensitive != m.IsSensitive {
		m.IsSensitive = *p.IsSensitive
		changed = true
	}
	if p.Attachments != nil {
		m.Attachments = append([]chat.Attachment(nil), (*p.Attachments)...)
		changed = true
	}
	if p.References != nil {
		m.References = append([]chat.Reference(nil), (*p.References)...)
		changed = true
	}
	if p.Reactions != nil {
		m.Reactions = append([]chat.Reaction(nil), (*p.Reactions)...)
		changed = true
	}
	if p.Suggestions != nil {
		m.Suggestions = mergeSuggestions(m.Suggestions, *p.Suggestions)
		changed = true
	}
	return changed
}

// mergeSuggestions takes the incoming list but refuses backward status moves
// for suggestions that are already resolved locally.
func mergeSuggestions(current, incoming []chat.Suggestion) []chat.Suggestion {
	prev := make(map[int64]chat.SuggestionStatus, len(current))
	for _, s := range current {
		prev[s.ID] = s.Status
	}
	out := make([]chat.Suggestion, len(incoming))
	for i, s := range incoming {
		out[i] = s
		if old, ok := prev[s.ID]; ok && old != s.Status && !old.CanTransition(s.Status) {
			out[i].Status = old
		}
	}
	return out
}

func tombstone(m *chat.Message, at time.Time) bool {
	if m.Deleted() {
		return false
	}
	m.Body = chat.DeletedBody
	m.DeletedAt = &at
	return true
}

func addReaction(m *chat.Message, userID int64, emoji string) bool {
	if m.HasReaction(userID, emoji) {
		return false
	}
	m.Reactions = append(m.Reactions, chat.Reaction{UserID: userID, Emoji: emoji})
	return true
}

func removeReaction(m *chat.Message, userID int64, emoji string) bool {
	var kept []chat.Reaction
	for _, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) == len(m.Reactions) {
		return false
	}
	m.Reactions = kept
	return true
}
