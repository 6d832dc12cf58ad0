package composer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/commlink/api"
	"github.com/opd-ai/commlink/chat"
	"github.com/opd-ai/commlink/limits"
)

type fakeSender struct {
	mu     sync.Mutex
	reqs   []api.SendRequest
	err    error
	gate   chan struct{}
	nextID int64
}

func (f *fakeSender) SendMessage(_ context.Context, conv int64, req api.SendRequest) (chat.Message, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return chat.Message{}, f.err
	}
	f.nextID++
	return chat.Message{ID: f.nextID, ConversationID: conv, Body: req.Body, Attachments: req.Attachments}, nil
}

type fakeFiles struct {
	mu      sync.Mutex
	uploads []string
	err     error
	gate    chan struct{}
	entered int
}

func (f *fakeFiles) ListFiles(context.Context, string, int) ([]chat.File, error) { return nil, nil }

func (f *fakeFiles) UploadFile(_ context.Context, name, contentType string, r io.Reader) (chat.File, error) {
	f.mu.Lock()
	f.entered++
	f.mu.Unlock()
	if f.gate != nil {
		<-f.gate
	}
	data, _ := io.ReadAll(r)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return chat.File{}, f.err
	}
	f.uploads = append(f.uploads, name)
	return chat.File{ID: int64(len(f.uploads)), Name: name, ContentType: contentType, Size: int64(len(data))}, nil
}

type fakeStore struct{ appended []chat.Message }

func (f *fakeStore) Append(m chat.Message) bool {
	f.appended = append(f.appended, m)
	return true
}

type fakeTyping struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeTyping) Keystroke(conv int64) { f.record("key", conv) }
func (f *fakeTyping) Clear(conv int64)     { f.record("clear", conv) }

func (f *fakeTyping) record(kind string, conv int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, fmt.Sprintf("%s:%d", kind, conv))
}

type fakeMentions struct {
	updates []string
	convs   []int64
}

func (f *fakeMentions) Update(text string, _ int)  { f.updates = append(f.updates, text) }
func (f *fakeMentions) SetConversation(conv int64) { f.convs = append(f.convs, conv) }

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	return f.text, f.err
}

type fixture struct {
	c        *Composer
	sender   *fakeSender
	files    *fakeFiles
	store    *fakeStore
	typing   *fakeTyping
	mentions *fakeMentions
}

func newFixture(tr Transcriber) *fixture {
	f := &fixture{
		sender:   &fakeSender{},
		files:    &fakeFiles{},
		store:    &fakeStore{},
		typing:   &fakeTyping{},
		mentions: &fakeMentions{},
	}
	f.c = New(Deps{
		Sender:      f.sender,
		Files:       f.files,
		Store:       f.store,
		Typing:      f.typing,
		Mentions:    f.mentions,
		Transcriber: tr,
	})
	f.c.Reset(1)
	return f
}

func TestInputDrivesTypingAndMentions(t *testing.T) {
	f := newFixture(nil)

	f.c.Input("h", 1)
	f.c.Input("hi", 2)
	f.c.Input("hi", 1)
	f.c.Input("", 0)

	assert.Equal(t, []string{"key:1", "key:1", "clear:1"}, f.typing.events)
	assert.Equal(t, []string{"h", "hi", "hi", ""}, f.mentions.updates)
	assert.Equal(t, 0, f.c.Draft().Caret)
}

func TestSendSuccessClearsDraft(t *testing.T) {
	f := newFixture(nil)
	f.c.Input("  hello  ", 9)

	msg, err := f.c.Send(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Body)

	require.Len(t, f.sender.reqs, 1)
	assert.NotEmpty(t, f.sender.reqs[0].Nonce)
	assert.Equal(t, []chat.Message{msg}, f.store.appended)

	d := f.c.Draft()
	assert.Empty(t, d.Text)
	assert.Empty(t, d.Attachments)
	assert.Equal(t, "clear:1", f.typing.events[len(f.typing.events)-1])
}

func TestSendFailureKeepsDraft(t *testing.T) {
	f := newFixture(nil)
	f.sender.err = errors.New("503")
	f.c.Input("draft", 5)
	_, err := f.c.AttachFile(context.Background(), "a.png", "image/png", strings.NewReader("png"))
	require.NoError(t, err)

	_, err = f.c.Send(context.Background())
	require.ErrorIs(t, err, f.sender.err)

	d := f.c.Draft()
	assert.Equal(t, "draft", d.Text)
	assert.Len(t, d.Attachments, 1)
	assert.False(t, d.Sending)
	assert.Empty(t, f.store.appended)
}

func TestSendValidation(t *testing.T) {
	c := New(Deps{Sender: &fakeSender{}, Files: &fakeFiles{}})
	_, err := c.Send(context.Background())
	assert.ErrorIs(t, err, ErrNoConversation)

	c.Reset(2)
	c.Input("   ", 3)
	_, err = c.Send(context.Background())
	assert.ErrorIs(t, err, ErrEmptyDraft)

	c.Input(strings.Repeat("x", limits.MaxMessageBody+1), -1)
	_, err = c.Send(context.Background())
	assert.ErrorIs(t, err, limits.ErrTooLarge)
	assert.NotEmpty(t, c.Draft().Text)
}

func TestSendInProgressRejected(t *testing.T) {
	f := newFixture(nil)
	f.sender.gate = make(chan struct{})
	f.c.Input("one", 3)

	done := make(chan error, 1)
	go func() {
		_, err := f.c.Send(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return f.c.Draft().Sending }, time.Second, 2*time.Millisecond)

	_, err := f.c.Send(context.Background())
	assert.ErrorIs(t, err, ErrSendInProgress)

	close(f.sender.gate)
	assert.NoError(t, <-done)
}

func TestAttachmentOnlyMessage(t *testing.T) {
	f := newFixture(nil)
	att, err := f.c.AttachFile(context.Background(), "notes.txt", "text/plain", strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Equal(t, chat.AttachmentFile, att.Kind)
	assert.Equal(t, int64(3), att.Size)

	msg, err := f.c.Send(context.Background())
	require.NoError(t, err)
	assert.Empty(t, msg.Body)
	assert.Len(t, msg.Attachments, 1)
}

func TestUploadAfterSwitchIsDropped(t *testing.T) {
	f := newFixture(nil)
	f.files.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.c.AttachFile(context.Background(), "late.pdf", "application/pdf", strings.NewReader("x"))
		done <- err
	}()
	require.Eventually(t, func() bool {
		f.files.mu.Lock()
		defer f.files.mu.Unlock()
		return f.files.entered == 1
	}, time.Second, 2*time.Millisecond)
	f.c.Reset(2)
	close(f.files.gate)

	assert.ErrorIs(t, <-done, ErrConversationChanged)
	assert.Empty(t, f.c.Draft().Attachments)
}

func TestVoiceNoteTranscript(t *testing.T) {
	tests := []struct {
		name string
		tr   Transcriber
		want string
	}{
		{"no transcriber", nil, ""},
		{"transcriber fails", fakeTranscriber{err: errors.New("unsupported")}, ""},
		{"transcript", fakeTranscriber{text: " call me back "}, "call me back"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.tr)
			att, err := f.c.AttachVoiceNote(context.Background(), []byte{1, 2, 3}, "audio/ogg", 4500*time.Millisecond)
			require.NoError(t, err)
			assert.Equal(t, chat.AttachmentVoiceNote, att.Kind)
			assert.Equal(t, tt.want, att.Transcript)
			assert.InDelta(t, 4.5, att.Duration, 1e-9)
			assert.Equal(t, []string{"voice-note.ogg"}, f.files.uploads)
		})
	}

	f := newFixture(nil)
	_, err := f.c.AttachVoiceNote(context.Background(), nil, "audio/ogg", time.Second)
	assert.ErrorIs(t, err, ErrEmptyVoiceNote)

	_, err = f.c.AttachVoiceNote(context.Background(), make([]byte, limits.MaxVoiceNote+1), "audio/ogg", time.Second)
	assert.ErrorIs(t, err, limits.ErrTooLarge)
}

func TestApplyMention(t *testing.T) {
	f := newFixture(nil)
	f.c.Input("ping @al now", 9)

	f.c.ApplyMention(5, 8, "@alice ", nil)
	d := f.c.Draft()
	assert.Equal(t, "ping @alice  now", d.Text)
	assert.Equal(t, 12, d.Caret)
	assert.Empty(t, d.Attachments)

	file := &chat.File{ID: 42, Name: "plan.pdf", ContentType: "application/pdf"}
	f.c.Input("see @pl", 7)
	f.c.ApplyMention(4, 7, "@plan.pdf ", file)
	f.c.ApplyMention(0, 0, "", file)
	d = f.c.Draft()
	assert.Equal(t, "see @plan.pdf ", d.Text)
	require.Len(t, d.Attachments, 1)
	assert.Equal(t, int64(42), d.Attachments[0].FileID)

	f.c.ApplyMention(3, 99, "x", nil)
	assert.Equal(t, "see @plan.pdf ", f.c.Draft().Text)

	assert.True(t, f.c.RemoveAttachment(42))
	assert.False(t, f.c.RemoveAttachment(42))
}

func TestResetClearsAndStopsTyping(t *testing.T) {
	f := newFixture(nil)
	f.c.Input("half written", 12)
	f.c.Reset(2)

	d := f.c.Draft()
	assert.Equal(t, int64(2), d.ConversationID)
	assert.Empty(t, d.Text)
	assert.Equal(t, "clear:1", f.typing.events[len(f.typing.events)-1])
	assert.Equal(t, []int64{1, 2}, f.mentions.convs)
}
