package commlink

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/commlink/chat"
	"github.com/opd-ai/commlink/protocol"
)

// dispatch routes one inbound event. The transport calls it from its reader
// goroutine, so events are handled one at a time in delivery order.
func (c *Client) dispatch(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeMessageCreated:
		m, err := protocol.DecodeData[chat.Message](env)
		if err != nil {
			c.dropMalformed(env, err)
			return
		}
		if _, err := c.store.Apply(env); err != nil {
			c.dropMalformed(env, err)
			return
		}
		conversationID := m.ConversationID
		if conversationID == 0 {
			conversationID = env.Conversation()
		}
		c.directory.Touch(conversationID, m.CreatedAt)

	case protocol.TypeMessageUpdated,
		protocol.TypeMessageDeleted,
		protocol.TypeReactionAdded,
		protocol.TypeReactionRemoved:
		if _, err := c.store.Apply(env); err != nil {
			c.dropMalformed(env, err)
		}

	case protocol.TypeTypingStarted, protocol.TypeTypingStopped:
		c.dispatchTyping(env)

	case protocol.TypeCallOffer,
		protocol.TypeCallAnswer,
		protocol.TypeCallICE,
		protocol.TypeCallHangup,
		protocol.TypeCallDecline:
		c.engine.HandleSignal(env)

	case protocol.TypeConversationUpdated:
		if _, err := c.directory.Apply(env); err != nil {
			c.dropMalformed(env, err)
		}

	default:
		logrus.WithFields(logrus.Fields{
			"function": "dispatch",
			"type":     env.Type,
		}).Debug("Ignoring unknown event type")
		c.metrics.EventDropped("unknown_type")
	}
}

func (c *Client) dispatchTyping(env protocol.Envelope) {
	ev, err := protocol.DecodeData[protocol.TypingEvent](env)
	if err != nil {
		c.dropMalformed(env, err)
		return
	}
	conversationID := env.Conversation()
	if conversationID == 0 || ev.UserID == 0 {
		c.dropMalformed(env, protocol.ErrMalformed)
		return
	}
	if ev.UserID == c.selfID {
		return
	}
	if env.Type == protocol.TypeTypingStarted {
		c.tracker.Started(conversationID, ev.UserID)
		return
	}
	c.tracker.Stopped(conversationID, ev.UserID)
}

func (c *Client) dropMalformed(env protocol.Envelope, err error) {
	logrus.WithFields(logrus.Fields{
		"function":        "dispatch",
		"type":            env.Type,
		"conversation_id": env.Conversation(),
		"error":           err.Error(),
	}).Warn("Dropping malformed event")
	c.metrics.EventDropped("malformed")
}
