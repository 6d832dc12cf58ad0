package chat

import (
	"regexp"
	"strings"
	"time"
)

// TriState is a search flag that can be ignored, required or excluded.
type TriState string

const (
	Any TriState = "any"
	Yes TriState = "yes"
	No  TriState = "no"
)

// accepts reports whether a property with value has satisfies the flag.
func (t TriState) accepts(has bool) bool {
	switch t {
	case Yes:
		return has
	case No:
		return !has
	default:
		return true
	}
}

// SearchFilter is the full filter set accepted by message search. Zero values
// mean "no constraint".
type SearchFilter struct {
	Text            string           `json:"q,omitempty"`
	ConversationIDs []int64          `json:"conversation_ids,omitempty"`
	SenderID        int64            `json:"sender_id,omitempty"`
	From            *time.Time       `json:"from,omitempty"`
	To              *time.Time       `json:"to,omitempty"`
	AttachmentKinds []AttachmentKind `json:"attachment_kinds,omitempty"`
	ReferenceTypes  []string         `json:"reference_types,omitempty"`
	HasLinks        TriState         `json:"has_links,omitempty"`
	HasAttachments  TriState         `json:"has_attachments,omitempty"`
	HasSuggestions  TriState         `json:"has_suggestions,omitempty"`
	MentionsOnly    bool             `json:"mentions_only,omitempty"`
	Limit           int              `json:"limit,omitempty"`
}

// SearchResult is one hit of a search. Results are a snapshot and are never
// reconciled against realtime events.
type SearchResult struct {
	Message          Message `json:"message"`
	ConversationName string  `json:"conversation_name,omitempty"`
	Score            float64 `json:"score"`
}

var linkPattern = regexp.MustCompile(`(?i)\bhttps?://\S+`)

// HasLinks reports whether the message body contains an http(s) URL or the
// message carries a typed reference.
func (m *Message) HasLinks() bool {
	return len(m.References) > 0 || linkPattern.MatchString(m.Body)
}

// Mentions reports whether the body mentions @handle as a whole token.
func (m *Message) Mentions(handle string) bool {
	if handle == "" {
		return false
	}
	needle := "@" + strings.ToLower(handle)
	body := strings.ToLower(m.Body)
	for i := strings.Index(body, needle); i >= 0; {
		end := i + len(needle)
		startOK := i == 0 || isSpace(body[i-1])
		endOK := end == len(body) || !isHandleByte(body[end])
		if startOK && endOK {
			return true
		}
		next := strings.Index(body[i+1:], needle)
		if next < 0 {
			break
		}
		i += next + 1
	}
	return false
}

// Matches applies the filter to a single message. selfHandle is used for
// MentionsOnly. Tombstoned messages never match.
func (f *SearchFilter) Matches(m *Message, selfHandle string) bool {
	if m.Deleted() {
		return false
	}
	if f.Text != "" && !strings.Contains(strings.ToLower(m.Body), strings.ToLower(strings.TrimSpace(f.Text))) {
		return false
	}
	if len(f.ConversationIDs) > 0 && !containsID(f.ConversationIDs, m.ConversationID) {
		return false
	}
	if f.SenderID != 0 && m.SenderID != f.SenderID {
		return false
	}
	if f.From != nil && m.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && m.CreatedAt.After(*f.To) {
		return false
	}
	if len(f.AttachmentKinds) > 0 && !hasAttachmentKind(m.Attachments, f.AttachmentKinds) {
		return false
	}
	if len(f.ReferenceTypes) > 0 && !hasReferenceType(m.References, f.ReferenceTypes) {
		return false
	}
	if !f.HasLinks.accepts(m.HasLinks()) {
		return false
	}
	if !f.HasAttachments.accepts(len(m.Attachments) > 0) {
		return false
	}
	if !f.HasSuggestions.accepts(len(m.Suggestions) > 0) {
		return false
	}
	if f.MentionsOnly && !m.Mentions(selfHandle) {
		return false
	}
	return true
}

// Validate reports whether every tri-state flag holds a known value.
func (f *SearchFilter) Validate() error {
	for _, t := range []TriState{f.HasLinks, f.HasAttachments, f.HasSuggestions} {
		switch t {
		case "", Any, Yes, No:
		default:
			return ErrInvalidTriState
		}
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return ErrInvalidDateRange
	}
	return nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func hasAttachmentKind(atts []Attachment, kinds []AttachmentKind) bool {
	for _, a := range atts {
		for _, k := range kinds {
			if a.Kind == k {
				return true
			}
		}
	}
	return false
}

func hasReferenceType(refs []Reference, types []string) bool {
	for _, r := range refs {
		for _, t := range types {
			if r.Type == t {
				return true
			}
		}
	}
	return false
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func isHandleByte(b byte) bool {
	return b == '_' || b == '-' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
