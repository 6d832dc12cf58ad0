package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opd-ai/commlink/chat"
)

// Event types recognized on the realtime channel.
const (
	TypeMessageCreated      = "message.created"
	TypeMessageUpdated      = "message.updated"
	TypeMessageDeleted      = "message.deleted"
	TypeReactionAdded       = "reaction.added"
	TypeReactionRemoved     = "reaction.removed"
	TypeTypingStarted       = "typing.started"
	TypeTypingStopped       = "typing.stopped"
	TypeCallOffer           = "call.offer"
	TypeCallAnswer          = "call.answer"
	TypeCallICE             = "call.ice"
	TypeCallHangup          = "call.hangup"
	TypeCallDecline         = "call.decline"
	TypeConversationUpdated = "conversation.updated"
)

var knownTypes = map[string]struct{}{
	TypeMessageCreated:      {},
	TypeMessageUpdated:      {},
	TypeMessageDeleted:      {},
	TypeReactionAdded:       {},
	TypeReactionRemoved:     {},
	TypeTypingStarted:       {},
	TypeTypingStopped:       {},
	TypeCallOffer:           {},
	TypeCallAnswer:          {},
	TypeCallICE:             {},
	TypeCallHangup:          {},
	TypeCallDecline:         {},
	TypeConversationUpdated: {},
}

// DeclineBusy is the reason sent when an offer is rejected because another
// call is active.
const DeclineBusy = "busy"

// ICECandidate mirrors the JSON form of an RTCIceCandidateInit.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// Envelope is a single realtime event.
type Envelope struct {
	Type           string          `json:"type"`
	ConversationID *int64          `json:"conversation_id,omitempty"`
	TargetUserID   *int64          `json:"target_user_id,omitempty"`
	SDP            string          `json:"sdp,omitempty"`
	Candidate      *ICECandidate   `json:"candidate,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
}

// Known reports whether the envelope type is one the client handles.
func (e Envelope) Known() bool {
	_, ok := knownTypes[e.Type]
	return ok
}

// Conversation returns the conversation id, or 0 when absent.
func (e Envelope) Conversation() int64 {
	if e.ConversationID == nil {
		return 0
	}
	return *e.ConversationID
}

// Decode parses a single frame. Frames without a type, and frames whose data
// is present but not a JSON object, are malformed.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if len(env.Data) > 0 {
		trimmed := bytes.TrimSpace(env.Data)
		if !bytes.Equal(trimmed, []byte("null")) && (len(trimmed) == 0 || trimmed[0] != '{') {
			return Envelope{}, fmt.Errorf("%w: data must be an object", ErrMalformed)
		}
	}
	return env, nil
}

// Encode serializes an envelope for sending.
func Encode(env Envelope) ([]byte, error) {
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return json.Marshal(env)
}

// DecodeData unmarshals the envelope's data into a value of type T.
func DecodeData[T any](env Envelope) (T, error) {
	var out T
	if len(env.Data) == 0 {
		return out, fmt.Errorf("%w: %s has no data", ErrMalformed, env.Type)
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, fmt.Errorf("%w: %s data: %v", ErrMalformed, env.Type, err)
	}
	return out, nil
}

// WithData returns an inbound-style envelope carrying payload as data. It is
// used by tests and by local loopback of acknowledged sends.
func WithData(eventType string, conversationID int64, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{Type: eventType, ConversationID: &conversationID, Data: data}, nil
}

// MessagePatch is the data of message.updated. Nil fields are left unchanged.
type MessagePatch struct {
	ID          int64              `json:"id"`
	Body        *string            `json:"body,omitempty"`
	EditedAt    *time.Time         `json:"edited_at,omitempty"`
	DeletedAt   *time.Time         `json:"deleted_at,omitempty"`
	IsSensitive *bool              `json:"is_sensitive,omitempty"`
	Attachments *[]chat.Attachment `json:"attachments,omitempty"`
	References  *[]chat.Reference  `json:"references,omitempty"`
	Reactions   *[]chat.Reaction   `json:"reactions,omitempty"`
	Suggestions *[]chat.Suggestion `json:"suggestions,omitempty"`
}

// MessageDeleted is the data of message.deleted.
type MessageDeleted struct {
	ID        int64      `json:"id"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// ReactionEvent is the data of reaction.added and reaction.removed.
type ReactionEvent struct {
	MessageID int64  `json:"message_id"`
	UserID    int64  `json:"user_id"`
	Emoji     string `json:"emoji"`
}

// TypingEvent is the data of typing.started and typing.stopped.
type TypingEvent struct {
	UserID int64 `json:"user_id"`
}

// CallSignal is the data of inbound call.* events. The server adds
// from_user_id when relaying a peer's outbound send.
type CallSignal struct {
	FromUserID int64         `json:"from_user_id"`
	SDP        string        `json:"sdp,omitempty"`
	Candidate  *ICECandidate `json:"candidate,omitempty"`
	Reason     string        `json:"reason,omitempty"`
}

// SignalOf extracts the call signal of an inbound call.* envelope. Relays that
// forward the sender's flat fields unchanged are accepted too.
func SignalOf(env Envelope) (CallSignal, error) {
	var sig CallSignal
	if len(env.Data) > 0 {
		var err error
		sig, err = DecodeData[CallSignal](env)
		if err != nil {
			return CallSignal{}, err
		}
	}
	if sig.SDP == "" {
		sig.SDP = env.SDP
	}
	if sig.Candidate == nil {
		sig.Candidate = env.Candidate
	}
	if sig.Reason == "" {
		sig.Reason = env.Reason
	}
	if sig.FromUserID == 0 {
		return CallSignal{}, fmt.Errorf("%w: %s without from_user_id", ErrMalformed, env.Type)
	}
	return sig, nil
}
