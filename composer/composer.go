package composer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/commlink/api"
	"github.com/opd-ai/commlink/chat"
	"github.com/opd-ai/commlink/limits"
)

// DefaultTranscribeTimeout bounds the advisory transcription.
const DefaultTranscribeTimeout = 10 * time.Second

// Typing receives keystrokes and explicit clears. typing.Notifier implements
// it.
type Typing interface {
	Keystroke(conversationID int64)
	Clear(conversationID int64)
}

// Mentions follows the draft for autocomplete. mention.Controller
// implements it.
type Mentions interface {
	Update(text string, caret int)
	SetConversation(conversationID int64)
}

// Appender receives acknowledged messages. messages.Store implements it.
type Appender interface {
	Append(m chat.Message) bool
}

// Transcriber produces a best-effort transcript of recorded audio.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, contentType string) (string, error)
}

// Deps are the composer's collaborators. Sender and Files are required;
// the others may be nil.
type Deps struct {
	Sender      api.MessageSender
	Files       api.FileService
	Store       Appender
	Typing      Typing
	Mentions    Mentions
	Transcriber Transcriber
}

// Draft is a copy of the composer state.
type Draft struct {
	ConversationID int64
	Text           string
	Caret          int
	Attachments    []chat.Attachment
	Sending        bool
}

// Composer is the draft of the active conversation.
type Composer struct {
	deps Deps

	mu          sync.Mutex
	conv        int64
	gen         uint64
	text        string
	caret       int
	attachments []chat.Attachment
	sending     bool
	onChange    []func(Draft)
}

// New creates a composer with no active conversation.
func New(deps Deps) *Composer {
	return &Composer{deps: deps}
}

// OnChange registers a callback fired after the draft changes.
func (c *Composer) OnChange(fn func(Draft)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// Draft returns the current draft.
func (c *Composer) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draftLocked()
}

// Reset clears the draft for a newly active conversation and stops typing
// in the conversation being left.
func (c *Composer) Reset(conversationID int64) {
	c.mu.Lock()
	prev := c.conv
	c.conv = conversationID
	c.gen++
	c.text, c.caret, c.attachments = "", 0, nil
	d, fns := c.draftLocked(), c.onChange
	c.mu.Unlock()

	if prev != 0 && prev != conversationID && c.deps.Typing != nil {
		c.deps.Typing.Clear(prev)
	}
	if c.deps.Mentions != nil {
		c.deps.Mentions.SetConversation(conversationID)
	}
	publish(fns, d)
}

// Input records an edit or caret move. caret is a rune offset.
func (c *Composer) Input(text string, caret int) {
	if n := len([]rune(text)); caret < 0 || caret > n {
		caret = n
	}
	c.mu.Lock()
	conv := c.conv
	changed := text != c.text
	c.text, c.caret = text, caret
	d, fns := c.draftLocked(), c.onChange
	c.mu.Unlock()

	if conv != 0 && changed && c.deps.Typing != nil {
		if text == "" {
			c.deps.Typing.Clear(conv)
		} else {
			c.deps.Typing.Keystroke(conv)
		}
	}
	if c.deps.Mentions != nil {
		c.deps.Mentions.Update(text, caret)
	}
	publish(fns, d)
}

// ApplyMention replaces the runes [start, end) with insert and, for file
// mentions, adds the file as a pending attachment.
func (c *Composer) ApplyMention(start, end int, insert string, file *chat.File) {
	c.mu.Lock()
	runes := []rune(c.text)
	if start < 0 || end > len(runes) || start > end {
		c.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "ApplyMention",
			"start":    start,
			"end":      end,
			"length":   len(runes),
		}).Warn("Ignoring mention outside the draft")
		return
	}
	ins := []rune(insert)
	out := make([]rune, 0, len(runes)-(end-start)+len(ins))
	out = append(out, runes[:start]...)
	out = append(out, ins...)
	out = append(out, runes[end:]...)
	c.text = string(out)
	c.caret = start + len(ins)
	if file != nil {
		c.addLocked(chat.Attachment{
			Kind:   chat.AttachmentKindFor(file.ContentType),
			FileID: file.ID,
			URL:    file.URL,
			Name:   file.Name,
			Size:   file.Size,
		})
	}
	d, fns := c.draftLocked(), c.onChange
	c.mu.Unlock()
	publish(fns, d)
}

// AttachFile uploads r and adds it to the draft.
func (c *Composer) AttachFile(ctx context.Context, name, contentType string, r io.Reader) (chat.Attachment, error) {
	conv, gen, err := c.current()
	if err != nil {
		return chat.Attachment{}, err
	}
	f, err := c.deps.Files.UploadFile(ctx, name, contentType, r)
	if err != nil {
		return chat.Attachment{}, fmt.Errorf("upload %s: %w", name, err)
	}
	att := chat.Attachment{
		Kind:   chat.AttachmentKindFor(contentType),
		FileID: f.ID,
		URL:    f.URL,
		Name:   f.Name,
		Size:   f.Size,
	}
	if err := c.attach(conv, gen, att); err != nil {
		return chat.Attachment{}, err
	}
	logrus.WithFields(logrus.Fields{
		"function":        "AttachFile",
		"conversation_id": conv,
		"file_id":         f.ID,
		"size":            f.Size,
	}).Debug("File attached")
	return att, nil
}

// AttachVoiceNote uploads recorded audio as a voice note. When a
// transcriber is available its transcript is stored with the attachment.
func (c *Composer) AttachVoiceNote(ctx context.Context, audio []byte, contentType string, duration time.Duration) (chat.Attachment, error) {
	if len(audio) == 0 {
		return chat.Attachment{}, ErrEmptyVoiceNote
	}
	if err := limits.ValidateVoiceNote(audio); err != nil {
		return chat.Attachment{}, err
	}
	conv, gen, err := c.current()
	if err != nil {
		return chat.Attachment{}, err
	}

	name := voiceNoteName(contentType)
	f, err := c.deps.Files.UploadFile(ctx, name, contentType, bytes.NewReader(audio))
	if err != nil {
		return chat.Attachment{}, fmt.Errorf("upload voice note: %w", err)
	}
	att := chat.Attachment{
		Kind:       chat.AttachmentVoiceNote,
		FileID:     f.ID,
		URL:        f.URL,
		Name:       f.Name,
		Size:       f.Size,
		Duration:   duration.Seconds(),
		Transcript: c.transcribe(ctx, audio, contentType),
	}
	if err := c.attach(conv, gen, att); err != nil {
		return chat.Attachment{}, err
	}
	return att, nil
}

// RemoveAttachment drops a pending attachment by file id.
func (c *Composer) RemoveAttachment(fileID int64) bool {
	c.mu.Lock()
	removed := false
	kept := c.attachments[:0]
	for _, a := range c.attachments {
		if a.FileID == fileID {
			removed = true
			continue
		}
		kept = append(kept, a)
	}
	c.attachments = kept
	d, fns := c.draftLocked(), c.onChange
	c.mu.Unlock()
	if removed {
		publish(fns, d)
	}
	return removed
}

// Send sends the draft. On success the acknowledged message is appended to
// the store, the draft is cleared and typing stops. On failure the draft is
// left as it was.
func (c *Composer) Send(ctx context.Context) (chat.Message, error) {
	c.mu.Lock()
	conv, gen := c.conv, c.gen
	body := strings.TrimSpace(c.text)
	atts := append([]chat.Attachment(nil), c.attachments...)
	switch {
	case conv == 0:
		c.mu.Unlock()
		return chat.Message{}, ErrNoConversation
	case c.sending:
		c.mu.Unlock()
		return chat.Message{}, ErrSendInProgress
	case body == "" && len(atts) == 0:
		c.mu.Unlock()
		return chat.Message{}, ErrEmptyDraft
	case len(body) > limits.MaxMessageBody:
		c.mu.Unlock()
		return chat.Message{}, limits.ValidateBody(body)
	}
	c.sending = true
	c.mu.Unlock()

	nonce := uuid.NewString()
	msg, err := c.deps.Sender.SendMessage(ctx, conv, api.SendRequest{Body: body, Attachments: atts, Nonce: nonce})

	c.mu.Lock()
	c.sending = false
	if err != nil {
		c.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function":        "Send",
			"conversation_id": conv,
			"nonce":           nonce,
			"error":           err.Error(),
		}).Error("Send failed, draft kept")
		return chat.Message{}, fmt.Errorf("send message: %w", err)
	}
	stale := gen != c.gen
	if !stale {
		c.text, c.caret, c.attachments = "", 0, nil
	}
	d, fns := c.draftLocked(), c.onChange
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":        "Send",
		"conversation_id": conv,
		"message_id":      msg.ID,
		"attachments":     len(atts),
		"nonce":           nonce,
	}).Debug("Message acknowledged")

	if c.deps.Store != nil {
		c.deps.Store.Append(msg)
	}
	if c.deps.Typing != nil {
		c.deps.Typing.Clear(conv)
	}
	if !stale {
		if c.deps.Mentions != nil {
			c.deps.Mentions.Update("", 0)
		}
		publish(fns, d)
	}
	return msg, nil
}

func (c *Composer) current() (int64, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conv == 0 {
		return 0, 0, ErrNoConversation
	}
	return c.conv, c.gen, nil
}

func (c *Composer) attach(conv int64, gen uint64, att chat.Attachment) error {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function":        "attach",
			"conversation_id": conv,
			"file_id":         att.FileID,
		}).Debug("Dropping upload for a conversation no longer active")
		return ErrConversationChanged
	}
	c.addLocked(att)
	d, fns := c.draftLocked(), c.onChange
	c.mu.Unlock()
	publish(fns, d)
	return nil
}

func (c *Composer) addLocked(att chat.Attachment) {
	for _, a := range c.attachments {
		if a.FileID == att.FileID {
			return
		}
	}
	c.attachments = append(c.attachments, att)
}

func (c *Composer) transcribe(ctx context.Context, audio []byte, contentType string) string {
	if c.deps.Transcriber == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, DefaultTranscribeTimeout)
	defer cancel()
	text, err := c.deps.Transcriber.Transcribe(ctx, audio, contentType)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "transcribe",
			"error":    err.Error(),
		}).Debug("Transcription unavailable")
		return ""
	}
	return strings.TrimSpace(text)
}

func (c *Composer) draftLocked() Draft {
	return Draft{
		ConversationID: c.conv,
		Text:           c.text,
		Caret:          c.caret,
		Attachments:    append([]chat.Attachment(nil), c.attachments...),
		Sending:        c.sending,
	}
}

func voiceNoteName(contentType string) string {
	ext := "webm"
	switch {
	case strings.Contains(contentType, "ogg"):
		ext = "ogg"
	case strings.Contains(contentType, "mp4"), strings.Contains(contentType, "m4a"):
		ext = "m4a"
	case strings.Contains(contentType, "wav"):
		ext = "wav"
	}
	return "voice-note." + ext
}

func publish(fns []func(Draft), d Draft) {
	for _, fn := range fns {
		fn(d)
	}
}
