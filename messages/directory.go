package messages

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/commlink/api"
	"github.com/opd-ai/commlink/chat"
	"github.com/opd-ai/commlink/protocol"
)

// Directory caches the conversation list and per-conversation members.
// Conversations are kept most recently active first.
type Directory struct {
	backend api.ConversationDirectory

	mu       sync.Mutex
	convs    []chat.Conversation
	members  map[int64][]chat.Member
	onChange []func()
}

// NewDirectory creates an empty directory.
func NewDirectory(backend api.ConversationDirectory) *Directory {
	return &Directory{
		backend: backend,
		members: make(map[int64][]chat.Member),
	}
}

// OnChange registers a callback for conversation list changes.
func (d *Directory) OnChange(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChange = append(d.onChange, fn)
}

// Load replaces the conversation list from the server.
func (d *Directory) Load(ctx context.Context) error {
	convs, err := d.backend.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	d.mu.Lock()
	d.convs = append([]chat.Conversation(nil), convs...)
	d.sortLocked()
	fns := d.onChange
	d.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Directory.Load",
		"count":    len(convs),
	}).Debug("Loaded conversations")
	notifyAll(fns)
	return nil
}

// Conversations returns a copy of the list.
func (d *Directory) Conversations() []chat.Conversation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]chat.Conversation(nil), d.convs...)
}

// Conversation looks up one conversation.
func (d *Directory) Conversation(id int64) (chat.Conversation, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.convs {
		if c.ID == id {
			return c, true
		}
	}
	return chat.Conversation{}, false
}

// LoadMembers fetches a conversation with its members and caches both.
func (d *Directory) LoadMembers(ctx context.Context, conversationID int64) ([]chat.Member, error) {
	detail, err := d.backend.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation %d: %w", conversationID, err)
	}
	d.mu.Lock()
	d.members[conversationID] = append([]chat.Member(nil), detail.Members...)
	if detail.Conversation.ID == conversationID {
		d.upsertLocked(detail.Conversation)
	}
	fns := d.onChange
	d.mu.Unlock()

	notifyAll(fns)
	return append([]chat.Member(nil), detail.Members...), nil
}

// Members returns the cached members of a conversation.
func (d *Directory) Members(conversationID int64) []chat.Member {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]chat.Member(nil), d.members[conversationID]...)
}

// Create creates a conversation on the server and adds it to the list.
func (d *Directory) Create(ctx context.Context, req api.CreateConversationRequest) (chat.Conversation, error) {
	conv, err := d.backend.CreateConversation(ctx, req)
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	d.mu.Lock()
	d.upsertLocked(conv)
	fns := d.onChange
	d.mu.Unlock()

	notifyAll(fns)
	return conv, nil
}

// Apply handles conversation.updated. Other events are ignored.
func (d *Directory) Apply(env protocol.Envelope) (bool, error) {
	if env.Type != protocol.TypeConversationUpdated {
		return false, nil
	}
	conv, err := protocol.DecodeData[chat.Conversation](env)
	if err != nil {
		return false, err
	}
	if conv.ID == 0 {
		conv.ID = env.Conversation()
	}
	if conv.ID == 0 {
		return false, fmt.Errorf("%w: conversation.updated without id", protocol.ErrMalformed)
	}
	d.mu.Lock()
	d.upsertLocked(conv)
	fns := d.onChange
	d.mu.Unlock()

	notifyAll(fns)
	return true, nil
}

// Touch moves a conversation's last activity forward to at.
func (d *Directory) Touch(conversationID int64, at time.Time) {
	d.mu.Lock()
	changed := false
	for i := range d.convs {
		c := &d.convs[i]
		if c.ID != conversationID {
			continue
		}
		if c.LastMessageAt == nil || at.After(*c.LastMessageAt) {
			t := at
			c.LastMessageAt = &t
			changed = true
		}
		break
	}
	if changed {
		d.sortLocked()
	}
	fns := d.onChange
	d.mu.Unlock()

	if changed {
		notifyAll(fns)
	}
}

func (d *Directory) upsertLocked(conv chat.Conversation) {
	for i := range d.convs {
		if d.convs[i].ID == conv.ID {
			if conv.LastMessageAt == nil {
				conv.LastMessageAt = d.convs[i].LastMessageAt
			}
			d.convs[i] = conv
			d.sortLocked()
			return
		}
	}
	d.convs = append(d.convs, conv)
	d.sortLocked()
}

func (d *Directory) sortLocked() {
	sort.SliceStable(d.convs, func(i, j int) bool {
		a, b := d.convs[i].LastMessageAt, d.convs[j].LastMessageAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}

func notifyAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
