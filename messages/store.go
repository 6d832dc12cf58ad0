package messages

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/commlink/api"
	"github.com/opd-ai/commlink/chat"
	"github.com/opd-ai/commlink/clock"
	"github.com/opd-ai/commlink/protocol"
)

// DefaultPageSize is the number of messages fetched per page.
const DefaultPageSize = 50

// ChangeFunc is called after the active conversation's messages changed.
type ChangeFunc func(conversationID int64)

// Store is the message log of the active conversation.
type Store struct {
	source   api.MessageSource
	clk      clock.Clock
	pageSize int

	mu       sync.Mutex
	active   int64
	gen      uint64
	msgs     []chat.Message
	index    map[int64]int
	cursor   string
	onChange []ChangeFunc
}

// NewStore creates an empty store reading history from source.
func NewStore(source api.MessageSource, clk clock.Clock, pageSize int) *Store {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Store{
		source:   source,
		clk:      clock.Or(clk),
		pageSize: pageSize,
		index:    make(map[int64]int),
	}
}

// OnChange registers a change callback. Callbacks run without the store's
// lock held.
func (s *Store) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// Active returns the active conversation id, or 0.
func (s *Store) Active() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Messages returns a copy of the log in display order.
func (s *Store) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Message, len(s.msgs))
	for i, m := range s.msgs {
		out[i] = m.Clone()
	}
	return out
}

// Message returns a copy of one loaded message.
func (s *Store) Message(id int64) (chat.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return chat.Message{}, false
	}
	return s.msgs[i].Clone(), true
}

// Len returns the number of loaded messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

// HasOlder reports whether the server indicated older history exists.
func (s *Store) HasOlder() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor != ""
}

// Load makes conversationID active and replaces the log with the latest
// page from the server. The log is cleared immediately so the previous
// conversation's messages are never shown under the new one.
func (s *Store) Load(ctx context.Context, conversationID int64) error {
	s.mu.Lock()
	switchedFrom := s.active
	s.active = conversationID
	s.gen++
	gen := s.gen
	if switchedFrom != conversationID {
		s.resetLocked()
	}
	fns := s.onChange
	s.mu.Unlock()

	if switchedFrom != conversationID {
		notify(fns, conversationID)
	}
	return s.fetchLatest(ctx, conversationID, gen)
}

// Refresh reloads the active conversation, replacing the log.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	conversationID := s.active
	if conversationID == 0 {
		s.mu.Unlock()
		return ErrNoConversation
	}
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	return s.fetchLatest(ctx, conversationID, gen)
}

// Open switches to the conversation of a search result and reloads it.
func (s *Store) Open(ctx context.Context, result chat.SearchResult) error {
	return s.Load(ctx, result.Message.ConversationID)
}

func (s *Store) fetchLatest(ctx context.Context, conversationID int64, gen uint64) error {
	page, err := s.source.GetMessages(ctx, conversationID, "", s.pageSize)
	if err != nil {
		return fmt.Errorf("load messages for conversation %d: %w", conversationID, err)
	}

	s.mu.Lock()
	if gen != s.gen || conversationID != s.active {
		s.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function":        "fetchLatest",
			"conversation_id": conversationID,
		}).Debug("Discarding superseded message snapshot")
		return ErrSuperseded
	}
	s.resetLocked()
	for _, m := range page.Messages {
		s.appendLocked(m)
	}
	s.cursor = page.NextCursor
	count := len(s.msgs)
	fns := s.onChange
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":        "fetchLatest",
		"conversation_id": conversationID,
		"count":           count,
	}).Debug("Loaded message snapshot")
	notify(fns, conversationID)
	return nil
}

// LoadOlder prepends the previous page of history.
func (s *Store) LoadOlder(ctx context.Context) error {
	s.mu.Lock()
	conversationID, cursor, gen := s.active, s.cursor, s.gen
	s.mu.Unlock()
	if conversationID == 0 {
		return ErrNoConversation
	}
	if cursor == "" {
		return ErrNoMoreHistory
	}

	page, err := s.source.GetMessages(ctx, conversationID, cursor, s.pageSize)
	if err != nil {
		return fmt.Errorf("load older messages for conversation %d: %w", conversationID, err)
	}

	s.mu.Lock()
	if gen != s.gen || conversationID != s.active || cursor != s.cursor {
		s.mu.Unlock()
		return ErrSuperseded
	}
	older := make([]chat.Message, 0, len(page.Messages))
	seen := make(map[int64]struct{}, len(page.Messages))
	for _, m := range page.Messages {
		if _, dup := s.index[m.ID]; dup {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		older = append(older, m.Clone())
	}
	s.msgs = append(older, s.msgs...)
	s.reindexLocked()
	s.cursor = page.NextCursor
	fns := s.onChange
	s.mu.Unlock()

	notify(fns, conversationID)
	return nil
}

// Append adds a message acknowledged by the server after a send. Messages
// for another conversation, or already delivered by a realtime event, are
// ignored.
func (s *Store) Append(m chat.Message) bool {
	s.mu.Lock()
	if m.ConversationID != s.active {
		s.mu.Unlock()
		return false
	}
	if !s.appendLocked(m) {
		s.mu.Unlock()
		return false
	}
	fns := s.onChange
	s.mu.Unlock()

	notify(fns, m.ConversationID)
	return true
}

// Apply reconciles one realtime event. It reports whether the log changed.
// Events that do not concern messages are ignored.
func (s *Store) Apply(env protocol.Envelope) (bool, error) {
	switch env.Type {
	case protocol.TypeMessageCreated:
		m, err := protocol.DecodeData[chat.Message](env)
		if err != nil {
			return false, err
		}
		if m.ConversationID == 0 {
			m.ConversationID = env.Conversation()
		}
		return s.Append(m), nil

	case protocol.TypeMessageUpdated:
		patch, err := protocol.DecodeData[protocol.MessagePatch](env)
		if err != nil {
			return false, err
		}
		return s.mutate(patch.ID, func(m *chat.Message) bool { return mergePatch(m, patch) }), nil

	case protocol.TypeMessageDeleted:
		del, err := protocol.DecodeData[protocol.MessageDeleted](env)
		if err != nil {
			return false, err
		}
		at := s.clk.Now()
		if del.DeletedAt != nil {
			at = *del.DeletedAt
		}
		return s.mutate(del.ID, func(m *chat.Message) bool { return tombstone(m, at) }), nil

	case protocol.TypeReactionAdded, protocol.TypeReactionRemoved:
		r, err := protocol.DecodeData[protocol.ReactionEvent](env)
		if err != nil {
			return false, err
		}
		if env.Type == protocol.TypeReactionAdded {
			return s.mutate(r.MessageID, func(m *chat.Message) bool { return addReaction(m, r.UserID, r.Emoji) }), nil
		}
		return s.mutate(r.MessageID, func(m *chat.Message) bool { return removeReaction(m, r.UserID, r.Emoji) }), nil
	}
	return false, nil
}

// Replace merges a server copy of a message returned by an action such as
// accepting a suggestion. Unknown ids are ignored.
func (s *Store) Replace(m chat.Message) bool {
	patch := protocol.MessagePatch{
		ID:          m.ID,
		Body:        &m.Body,
		EditedAt:    m.EditedAt,
		DeletedAt:   m.DeletedAt,
		IsSensitive: &m.IsSensitive,
		Attachments: &m.Attachments,
		References:  &m.References,
		Reactions:   &m.Reactions,
		Suggestions: &m.Suggestions,
	}
	return s.mutate(m.ID, func(existing *chat.Message) bool { return mergePatch(existing, patch) })
}

// mutate applies fn to the loaded message with id, if any.
func (s *Store) mutate(id int64, fn func(*chat.Message) bool) bool {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	changed := fn(&s.msgs[i])
	conversationID := s.active
	fns := s.onChange
	s.mu.Unlock()

	if changed {
		notify(fns, conversationID)
	}
	return changed
}

func (s *Store) appendLocked(m chat.Message) bool {
	if _, dup := s.index[m.ID]; dup {
		return false
	}
	s.index[m.ID] = len(s.msgs)
	s.msgs = append(s.msgs, m.Clone())
	return true
}

func (s *Store) resetLocked() {
	s.msgs = nil
	s.index = make(map[int64]int)
	s.cursor = ""
}

func (s *Store) reindexLocked() {
	s.index = make(map[int64]int, len(s.msgs))
	for i, m := range s.msgs {
		s.index[m.ID] = i
	}
}

func notify(fns []ChangeFunc, conversationID int64) {
	for _, fn := range fns {
		fn(conversationID)
	}
}
