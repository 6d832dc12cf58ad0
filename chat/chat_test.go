package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSuggestionTransitions(t *testing.T) {
	tests := []struct {
		from, to SuggestionStatus
		want     bool
	}{
		{SuggestionPending, SuggestionAccepted, true},
		{SuggestionPending, SuggestionDismissed, true},
		{SuggestionPending, SuggestionPending, false},
		{SuggestionAccepted, SuggestionDismissed, false},
		{SuggestionAccepted, SuggestionPending, false},
		{SuggestionDismissed, SuggestionAccepted, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestMessageCloneIsDeep(t *testing.T) {
	edited := time.Unix(10, 0)
	orig := Message{
		ID:          1,
		EditedAt:    &edited,
		Reactions:   []Reaction{{UserID: 1, Emoji: "👍"}},
		Suggestions: []Suggestion{{ID: 5, Status: SuggestionPending, Payload: map[string]any{"title": "x"}}},
	}

	cp := orig.Clone()
	cp.Reactions[0].Emoji = "🎉"
	cp.Suggestions[0].Payload["title"] = "y"
	*cp.EditedAt = time.Unix(20, 0)

	assert.Equal(t, "👍", orig.Reactions[0].Emoji)
	assert.Equal(t, "x", orig.Suggestions[0].Payload["title"])
	assert.Equal(t, time.Unix(10, 0), *orig.EditedAt)
}

func TestMentions(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{"hey @ali", true},
		{"@ali can you look", true},
		{"@ALI shouting", true},
		{"hey @alice", false},
		{"mail ali@ali.com", false},
		{"done, thanks @ali.", true},
		{"nothing here", false},
	}
	for _, tt := range tests {
		m := Message{Body: tt.body}
		assert.Equal(t, tt.want, m.Mentions("ali"), tt.body)
	}
}

func TestSearchFilterAttachmentKinds(t *testing.T) {
	voice := Message{ID: 1, Attachments: []Attachment{{Kind: AttachmentImage}, {Kind: AttachmentVoiceNote}}}
	image := Message{ID: 2, Attachments: []Attachment{{Kind: AttachmentImage}}}
	bare := Message{ID: 3, Body: "voice note later"}

	f := SearchFilter{HasAttachments: Yes, AttachmentKinds: []AttachmentKind{AttachmentVoiceNote}}

	assert.True(t, f.Matches(&voice, ""))
	assert.False(t, f.Matches(&image, ""))
	assert.False(t, f.Matches(&bare, ""))
}

func TestSearchFilterTriStates(t *testing.T) {
	linked := Message{Body: "see https://example.com/doc"}
	referenced := Message{Body: "see task", References: []Reference{{Type: "task", ID: 9}}}
	plain := Message{Body: "plain"}
	suggested := Message{Body: "x", Suggestions: []Suggestion{{ID: 1, Status: SuggestionPending}}}

	yesLinks := SearchFilter{HasLinks: Yes}
	noLinks := SearchFilter{HasLinks: No}
	assert.True(t, yesLinks.Matches(&linked, ""))
	assert.True(t, yesLinks.Matches(&referenced, ""))
	assert.False(t, yesLinks.Matches(&plain, ""))
	assert.True(t, noLinks.Matches(&plain, ""))
	assert.False(t, noLinks.Matches(&linked, ""))

	noSuggestions := SearchFilter{HasSuggestions: No}
	assert.False(t, noSuggestions.Matches(&suggested, ""))
	assert.True(t, noSuggestions.Matches(&plain, ""))

	anything := SearchFilter{HasLinks: Any, HasAttachments: Any}
	assert.True(t, anything.Matches(&plain, ""))
}

func TestSearchFilterScalars(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := Message{ID: 1, ConversationID: 7, SenderID: 3, Body: "Quarterly Report ready", CreatedAt: at,
		References: []Reference{{Type: "note", ID: 2}}}

	before := at.Add(-time.Hour)
	after := at.Add(time.Hour)

	assert.True(t, (&SearchFilter{Text: "report"}).Matches(&m, ""))
	assert.False(t, (&SearchFilter{Text: "invoice"}).Matches(&m, ""))
	assert.True(t, (&SearchFilter{ConversationIDs: []int64{1, 7}}).Matches(&m, ""))
	assert.False(t, (&SearchFilter{ConversationIDs: []int64{1}}).Matches(&m, ""))
	assert.False(t, (&SearchFilter{SenderID: 4}).Matches(&m, ""))
	assert.True(t, (&SearchFilter{From: &before, To: &after}).Matches(&m, ""))
	assert.False(t, (&SearchFilter{From: &after}).Matches(&m, ""))
	assert.True(t, (&SearchFilter{ReferenceTypes: []string{"note"}}).Matches(&m, ""))
	assert.False(t, (&SearchFilter{ReferenceTypes: []string{"task"}}).Matches(&m, ""))
	assert.False(t, (&SearchFilter{MentionsOnly: true}).Matches(&m, "bob"))
}

func TestSearchFilterSkipsTombstones(t *testing.T) {
	now := time.Now()
	m := Message{Body: DeletedBody, DeletedAt: &now}
	assert.False(t, (&SearchFilter{}).Matches(&m, ""))
}

func TestSearchFilterValidate(t *testing.T) {
	assert.NoError(t, (&SearchFilter{HasLinks: Yes}).Validate())
	assert.ErrorIs(t, (&SearchFilter{HasLinks: "maybe"}).Validate(), ErrInvalidTriState)

	from := time.Unix(100, 0)
	to := time.Unix(50, 0)
	assert.ErrorIs(t, (&SearchFilter{From: &from, To: &to}).Validate(), ErrInvalidDateRange)
}

func TestConversationTypeValid(t *testing.T) {
	assert.True(t, ConversationTeam.Valid())
	assert.False(t, ConversationType("channel").Valid())
}

func TestAttachmentKindFor(t *testing.T) {
	assert.Equal(t, AttachmentImage, AttachmentKindFor("image/png"))
	assert.Equal(t, AttachmentVideo, AttachmentKindFor("video/mp4"))
	assert.Equal(t, AttachmentFile, AttachmentKindFor("application/pdf"))
}
