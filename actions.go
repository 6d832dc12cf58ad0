package commlink

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/commlink/api"
	"github.com/opd-ai/commlink/chat"
	"github.com/opd-ai/commlink/messages"
)

// fail logs and publishes a failed action and returns err unchanged.
func (c *Client) fail(action string, conversationID int64, err error) error {
	logrus.WithFields(logrus.Fields{
		"function":        action,
		"conversation_id": conversationID,
		"error":           err.Error(),
	}).Error("Action failed")
	c.notice(action, conversationID, err)
	return err
}

// React adds a reaction. The message changes when the server broadcasts
// reaction.added, so nothing is applied locally.
func (c *Client) React(ctx context.Context, messageID int64, emoji string) error {
	if err := c.backend.AddReaction(ctx, messageID, emoji); err != nil {
		return c.fail("React", c.Active(), err)
	}
	return nil
}

// Unreact removes the current user's reaction.
func (c *Client) Unreact(ctx context.Context, messageID int64, emoji string) error {
	if err := c.backend.RemoveReaction(ctx, messageID, emoji); err != nil {
		return c.fail("Unreact", c.Active(), err)
	}
	return nil
}

// ToggleReaction adds the reaction, or removes it when the current user has
// already reacted with emoji.
func (c *Client) ToggleReaction(ctx context.Context, messageID int64, emoji string) error {
	m, ok := c.store.Message(messageID)
	if ok && m.HasReaction(c.selfID, emoji) {
		return c.Unreact(ctx, messageID, emoji)
	}
	return c.React(ctx, messageID, emoji)
}

// AcceptSuggestion accepts a suggestion and merges the server's copy of the
// message.
func (c *Client) AcceptSuggestion(ctx context.Context, messageID, suggestionID int64) error {
	m, err := c.backend.AcceptSuggestion(ctx, messageID, suggestionID)
	if err != nil {
		return c.fail("AcceptSuggestion", c.Active(), err)
	}
	c.store.Replace(m)
	return nil
}

// DismissSuggestion dismisses a suggestion and merges the server's copy of
// the message.
func (c *Client) DismissSuggestion(ctx context.Context, messageID, suggestionID int64) error {
	m, err := c.backend.DismissSuggestion(ctx, messageID, suggestionID)
	if err != nil {
		return c.fail("DismissSuggestion", c.Active(), err)
	}
	c.store.Replace(m)
	return nil
}

// CreateConversation creates a conversation and adds it to the directory.
func (c *Client) CreateConversation(ctx context.Context, req api.CreateConversationRequest) (chat.Conversation, error) {
	conv, err := c.directory.Create(ctx, req)
	if err != nil {
		return chat.Conversation{}, c.fail("CreateConversation", 0, err)
	}
	return conv, nil
}

// Search runs a message search. Results are a snapshot.
func (c *Client) Search(ctx context.Context, filter chat.SearchFilter) ([]chat.SearchResult, error) {
	results, err := messages.Search(ctx, c.backend, filter)
	if err != nil {
		return nil, c.fail("Search", 0, err)
	}
	return results, nil
}

// OpenSearchResult switches to the conversation holding a result.
func (c *Client) OpenSearchResult(ctx context.Context, result chat.SearchResult) error {
	return c.SwitchConversation(ctx, result.Message.ConversationID)
}

// LoadOlder prepends older history to the active conversation. Reaching the
// start of history is not reported as a notice.
func (c *Client) LoadOlder(ctx context.Context) error {
	err := c.store.LoadOlder(ctx)
	switch {
	case err == nil, errors.Is(err, messages.ErrNoMoreHistory), errors.Is(err, messages.ErrSuperseded):
		return err
	}
	return c.fail("LoadOlder", c.Active(), err)
}

// Reveal fetches the plaintext of a sensitive message and keeps it for the
// reveal window.
func (c *Client) Reveal(ctx context.Context, messageID int64) (string, error) {
	text, err := c.reveals.Reveal(ctx, messageID)
	if err != nil {
		return "", c.fail("Reveal", c.Active(), err)
	}
	return text, nil
}

// Send delivers the composer's draft.
func (c *Client) Send(ctx context.Context) (chat.Message, error) {
	m, err := c.composer.Send(ctx)
	if err != nil {
		return chat.Message{}, c.fail("Send", c.Active(), err)
	}
	return m, nil
}

// StartCall calls every other member of the active conversation.
func (c *Client) StartCall(ctx context.Context) error {
	active := c.Active()
	if active == 0 {
		return ErrNoConversation
	}
	if err := c.engine.Start(ctx, active); err != nil {
		return c.fail("StartCall", active, err)
	}
	return nil
}

// Hangup ends the current call.
func (c *Client) Hangup() error {
	return c.engine.Hangup()
}
