package messages

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/commlink/api"
	"github.com/opd-ai/commlink/chat"
	"github.com/opd-ai/commlink/protocol"
)

type fakeDirectory struct {
	convs   []chat.Conversation
	details map[int64]api.ConversationDetail
	created []api.CreateConversationRequest
}

func (f *fakeDirectory) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	return f.convs, nil
}

func (f *fakeDirectory) GetConversation(ctx context.Context, id int64) (api.ConversationDetail, error) {
	d, ok := f.details[id]
	if !ok {
		return api.ConversationDetail{}, &api.Error{Status: 404}
	}
	return d, nil
}

func (f *fakeDirectory) CreateConversation(ctx context.Context, req api.CreateConversationRequest) (chat.Conversation, error) {
	if err := req.Validate(); err != nil {
		return chat.Conversation{}, err
	}
	f.created = append(f.created, req)
	return chat.Conversation{ID: 100, Type: req.Type, Name: req.Name}, nil
}

func at(sec int64) *time.Time {
	t := time.Unix(sec, 0).UTC()
	return &t
}

func convIDs(convs []chat.Conversation) []int64 {
	out := make([]int64, 0, len(convs))
	for _, c := range convs {
		out = append(out, c.ID)
	}
	return out
}

func TestDirectoryOrdersByActivity(t *testing.T) {
	fd := &fakeDirectory{convs: []chat.Conversation{
		{ID: 1, Type: chat.ConversationDM, LastMessageAt: at(10)},
		{ID: 2, Type: chat.ConversationGroup},
		{ID: 3, Type: chat.ConversationTeam, LastMessageAt: at(30)},
	}}
	d := NewDirectory(fd)
	require.NoError(t, d.Load(context.Background()))
	assert.Equal(t, []int64{3, 1, 2}, convIDs(d.Conversations()))

	d.Touch(2, time.Unix(40, 0))
	assert.Equal(t, []int64{2, 3, 1}, convIDs(d.Conversations()))

	// Older activity never moves a conversation back.
	d.Touch(2, time.Unix(5, 0))
	c, ok := d.Conversation(2)
	require.True(t, ok)
	assert.Equal(t, int64(40), c.LastMessageAt.Unix())
}

func TestDirectoryApplyUpdate(t *testing.T) {
	fd := &fakeDirectory{convs: []chat.Conversation{{ID: 1, Type: chat.ConversationGroup, Name: "old", LastMessageAt: at(10)}}}
	d := NewDirectory(fd)
	require.NoError(t, d.Load(context.Background()))
	calls := 0
	d.OnChange(func() { calls++ })

	env, err := protocol.WithData(protocol.TypeConversationUpdated, 1, map[string]any{"id": 1, "type": "group", "name": "renamed", "topic": "q3"})
	require.NoError(t, err)
	changed, err := d.Apply(env)
	require.NoError(t, err)
	assert.True(t, changed)

	c, _ := d.Conversation(1)
	assert.Equal(t, "renamed", c.Name)
	assert.Equal(t, "q3", c.Topic)
	require.NotNil(t, c.LastMessageAt, "activity survives a metadata update")
	assert.Equal(t, 1, calls)

	env, err = protocol.WithData(protocol.TypeConversationUpdated, 7, map[string]any{"type": "dm"})
	require.NoError(t, err)
	_, err = d.Apply(env)
	require.NoError(t, err)
	_, ok := d.Conversation(7)
	assert.True(t, ok)

	changed, err = d.Apply(protocol.Envelope{Type: protocol.TypeMessageCreated})
	assert.NoError(t, err)
	assert.False(t, changed)
}

func TestDirectoryMembers(t *testing.T) {
	fd := &fakeDirectory{details: map[int64]api.ConversationDetail{
		4: {
			Conversation: chat.Conversation{ID: 4, Type: chat.ConversationGroup, Name: "ops"},
			Members:      []chat.Member{{ConversationID: 4, UserID: 1, Handle: "me"}, {ConversationID: 4, UserID: 2, Handle: "ali"}},
		},
	}}
	d := NewDirectory(fd)
	assert.Empty(t, d.Members(4))

	members, err := d.LoadMembers(context.Background(), 4)
	require.NoError(t, err)
	assert.Len(t, members, 2)
	assert.Len(t, d.Members(4), 2)
	_, ok := d.Conversation(4)
	assert.True(t, ok)

	_, err = d.LoadMembers(context.Background(), 5)
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestDirectoryCreate(t *testing.T) {
	fd := &fakeDirectory{}
	d := NewDirectory(fd)

	_, err := d.Create(context.Background(), api.CreateConversationRequest{Type: chat.ConversationGroup})
	assert.ErrorIs(t, err, api.ErrInvalidConversation)
	assert.Empty(t, d.Conversations())

	conv, err := d.Create(context.Background(), api.CreateConversationRequest{Type: chat.ConversationGroup, Name: "x", UserIDs: []int64{2}})
	require.NoError(t, err)
	assert.Equal(t, int64(100), conv.ID)
	assert.Equal(t, []int64{100}, convIDs(d.Conversations()))
}
