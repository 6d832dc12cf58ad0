package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/opd-ai/commlink/chat"
)

// DefaultTimeout bounds every request when the context has no deadline.
const DefaultTimeout = 15 * time.Second

// Config configures a Client.
type Config struct {
	// BaseURL is the scheme and host of the backend, for example
	// "https://chat.example.com". A trailing slash is ignored.
	BaseURL string
	// Token is sent as a bearer token on every request.
	Token string
	// Timeout applies when the request context has no deadline.
	Timeout time.Duration
	// HTTP overrides the underlying fasthttp client.
	HTTP *fasthttp.Client
}

// Client talks to the REST backend.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	http    *fasthttp.Client
}

// New creates a backend client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTP == nil {
		cfg.HTTP = &fasthttp.Client{
			Name:                "commlink",
			MaxIdleConnDuration: 30 * time.Second,
		}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		timeout: cfg.Timeout,
		http:    cfg.HTTP,
	}, nil
}

// GetMessages loads a page of history for a conversation.
func (c *Client) GetMessages(ctx context.Context, conversationID int64, cursor string, limit int) (Page, error) {
	query := map[string]string{}
	if cursor != "" {
		query["cursor"] = cursor
	}
	if limit > 0 {
		query["limit"] = strconv.Itoa(limit)
	}
	var page Page
	err := c.do(ctx, fasthttp.MethodGet, fmt.Sprintf("/api/conversations/%d/messages", conversationID), query, nil, &page)
	return page, err
}

// SendMessage posts a message. The returned message is the server's copy.
func (c *Client) SendMessage(ctx context.Context, conversationID int64, req SendRequest) (chat.Message, error) {
	var msg chat.Message
	err := c.do(ctx, fasthttp.MethodPost, fmt.Sprintf("/api/conversations/%d/messages", conversationID), nil, req, &msg)
	return msg, err
}

// SearchMessages runs a filtered search across conversations.
func (c *Client) SearchMessages(ctx context.Context, filter chat.SearchFilter) ([]chat.SearchResult, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	var out struct {
		Results []chat.SearchResult `json:"results"`
	}
	err := c.do(ctx, fasthttp.MethodPost, "/api/messages/search", nil, filter, &out)
	return out.Results, err
}

// AddReaction reacts to a message as the current user.
func (c *Client) AddReaction(ctx context.Context, messageID int64, emoji string) error {
	body := map[string]string{"emoji": emoji}
	return c.do(ctx, fasthttp.MethodPost, fmt.Sprintf("/api/messages/%d/reactions", messageID), nil, body, nil)
}

// RemoveReaction removes the current user's reaction.
func (c *Client) RemoveReaction(ctx context.Context, messageID int64, emoji string) error {
	query := map[string]string{"emoji": emoji}
	return c.do(ctx, fasthttp.MethodDelete, fmt.Sprintf("/api/messages/%d/reactions", messageID), query, nil, nil)
}

// AcceptSuggestion accepts a pending suggestion.
func (c *Client) AcceptSuggestion(ctx context.Context, messageID, suggestionID int64) (chat.Message, error) {
	return c.resolveSuggestion(ctx, messageID, suggestionID, "accept")
}

// DismissSuggestion dismisses a pending suggestion.
func (c *Client) DismissSuggestion(ctx context.Context, messageID, suggestionID int64) (chat.Message, error) {
	return c.resolveSuggestion(ctx, messageID, suggestionID, "dismiss")
}

func (c *Client) resolveSuggestion(ctx context.Context, messageID, suggestionID int64, action string) (chat.Message, error) {
	var msg chat.Message
	path := fmt.Sprintf("/api/messages/%d/suggestions/%d/%s", messageID, suggestionID, action)
	err := c.do(ctx, fasthttp.MethodPost, path, nil, nil, &msg)
	return msg, err
}

// RevealMessage fetches the plaintext body of a sensitive message.
func (c *Client) RevealMessage(ctx context.Context, messageID int64) (string, error) {
	var out struct {
		Plaintext string `json:"plaintext"`
	}
	err := c.do(ctx, fasthttp.MethodPost, fmt.Sprintf("/api/messages/%d/reveal", messageID), nil, nil, &out)
	return out.Plaintext, err
}

// ListFiles searches the file library.
func (c *Client) ListFiles(ctx context.Context, query string, limit int) ([]chat.File, error) {
	params := map[string]string{}
	if query != "" {
		params["q"] = query
	}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	var out struct {
		Files []chat.File `json:"files"`
	}
	err := c.do(ctx, fasthttp.MethodGet, "/api/files", params, nil, &out)
	return out.Files, err
}

// UploadFile uploads r as a multipart form file.
func (c *Client) UploadFile(ctx context.Context, name, contentType string, r io.Reader) (chat.File, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return chat.File{}, fmt.Errorf("create upload part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return chat.File{}, fmt.Errorf("read upload body: %w", err)
	}
	if err := w.Close(); err != nil {
		return chat.File{}, fmt.Errorf("finish upload body: %w", err)
	}

	var file chat.File
	err = c.doRaw(ctx, fasthttp.MethodPost, "/api/files", nil, w.FormDataContentType(), buf.Bytes(), &file)
	return file, err
}

// ListConversations lists the conversations the user belongs to.
func (c *Client) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	var out struct {
		Conversations []chat.Conversation `json:"conversations"`
	}
	err := c.do(ctx, fasthttp.MethodGet, "/api/conversations", nil, nil, &out)
	return out.Conversations, err
}

// GetConversation loads a conversation and its members.
func (c *Client) GetConversation(ctx context.Context, conversationID int64) (ConversationDetail, error) {
	var detail ConversationDetail
	err := c.do(ctx, fasthttp.MethodGet, fmt.Sprintf("/api/conversations/%d", conversationID), nil, nil, &detail)
	return detail, err
}

// CreateConversation creates a conversation after validating the request.
func (c *Client) CreateConversation(ctx context.Context, req CreateConversationRequest) (chat.Conversation, error) {
	if err := req.Validate(); err != nil {
		return chat.Conversation{}, err
	}
	var conv chat.Conversation
	err := c.do(ctx, fasthttp.MethodPost, "/api/conversations", nil, req, &conv)
	return conv, err
}

// Validate checks the type and the member list.
func (r CreateConversationRequest) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidConversation, r.Type)
	}
	hasUsers := len(r.UserIDs) > 0
	hasTeam := r.TeamID != 0
	switch {
	case r.Type == chat.ConversationSelf:
		if hasUsers || hasTeam {
			return fmt.Errorf("%w: self conversations take no members", ErrInvalidConversation)
		}
	case hasUsers == hasTeam:
		return fmt.Errorf("%w: exactly one of user_ids and team_id is required", ErrInvalidConversation)
	case r.Type == chat.ConversationTeam && !hasTeam:
		return fmt.Errorf("%w: team conversations require team_id", ErrInvalidConversation)
	case r.Type == chat.ConversationDM && len(r.UserIDs) != 1:
		return fmt.Errorf("%w: direct messages take exactly one user", ErrInvalidConversation)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query map[string]string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
	}
	return c.doRaw(ctx, method, path, query, "application/json", body, out)
}

func (c *Client) doRaw(ctx context.Context, method, path string, query map[string]string, contentType string, body []byte, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	for k, v := range query {
		req.URI().QueryArgs().Add(k, v)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.SetContentType(contentType)
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}

	start := time.Now()
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "api.do",
			"method":   method,
			"path":     path,
			"error":    err.Error(),
		}).Warn("Backend request failed")
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	status := resp.StatusCode()
	logrus.WithFields(logrus.Fields{
		"function": "api.do",
		"method":   method,
		"path":     path,
		"status":   status,
		"elapsed":  time.Since(start),
	}).Debug("Backend request completed")

	if status < 200 || status > 299 {
		return decodeError(method, path, status, resp.Body())
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(method, path string, status int, body []byte) error {
	apiErr := &Error{Status: status, Method: method, Path: path}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		apiErr.Message = payload.Error
		if apiErr.Message == "" {
			apiErr.Message = payload.Message
		}
	}
	return apiErr
}
