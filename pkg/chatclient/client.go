package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"chatapp/internal/auth"
	"chatapp/internal/models"
	"chatapp/internal/ws"
)

// EmitFunc sends a client-originated event over the realtime channel.
type EmitFunc func(event string, payload interface{}) error

// Client talks to the chat backend: REST calls for the lifecycle
// operations and event application for the realtime pushes. All cache
// mutations happen after server acknowledgment, never optimistically.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	emit    EmitFunc

	State *ConversationState
}

func New(baseURL string, token string, selfID string, emit EmitFunc) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{},
		emit:    emit,
		State:   NewConversationState(selfID),
	}
}

// APIError carries the server-provided message, with a generic
// fallback when the body had none.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Users fetches the contact sidebar listing.
func (c *Client) Users(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := c.do(ctx, http.MethodGet, "/api/messages/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// OpenConversation fetches the conversation with peerID and replaces
// the local cache with it.
func (c *Client) OpenConversation(ctx context.Context, peerID string) error {
	var messages []models.Message
	if err := c.do(ctx, http.MethodGet, "/api/messages/"+peerID, nil, &messages); err != nil {
		return err
	}
	c.State.Open(peerID, messages)
	return nil
}

// Send posts a message to the open peer and appends the acknowledged
// result to the cache.
func (c *Client) Send(ctx context.Context, text string, image string) (*models.Message, error) {
	peer := c.State.Peer()
	if peer == "" {
		return nil, fmt.Errorf("no open conversation")
	}
	body := map[string]string{"text": text, "image": image}
	var msg models.Message
	if err := c.do(ctx, http.MethodPost, "/api/messages/send/"+peer, body, &msg); err != nil {
		return nil, err
	}
	c.State.Append(msg)
	return &msg, nil
}

// DeleteForMe hides a message locally once the server confirms.
func (c *Client) DeleteForMe(ctx context.Context, messageID string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/messages/delete-for-me/"+messageID, nil, nil); err != nil {
		return err
	}
	c.State.ApplyMessageDeleted(messageID)
	return nil
}

// DeleteForEveryone removes a message for all parties and broadcasts
// the deletion to connected peers over the realtime channel. Peers
// offline at this moment never hear about it unless they refetch.
func (c *Client) DeleteForEveryone(ctx context.Context, messageID string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/messages/delete-for-everyone/"+messageID, nil, nil); err != nil {
		return err
	}
	c.State.ApplyMessageDeleted(messageID)
	if c.emit != nil {
		if err := c.emit(ws.EventMessageDeleted, messageID); err != nil {
			return fmt.Errorf("broadcasting deletion: %w", err)
		}
	}
	return nil
}

// ClearChat soft-deletes the open conversation for this user and
// empties the cache.
func (c *Client) ClearChat(ctx context.Context) error {
	peer := c.State.Peer()
	if peer == "" {
		return fmt.Errorf("no open conversation")
	}
	if err := c.do(ctx, http.MethodDelete, "/api/messages/clear-chat/"+peer, nil, nil); err != nil {
		return err
	}
	c.State.Clear()
	return nil
}

// HandleEvent reconciles the cache with one pushed realtime frame.
func (c *Client) HandleEvent(ev ws.Event) {
	switch ev.Event {
	case ws.EventNewMessage:
		var msg models.Message
		if err := json.Unmarshal(ev.Data, &msg); err != nil {
			return
		}
		c.State.ApplyNewMessage(msg)
	case ws.EventMessageDeleted:
		var id string
		if err := json.Unmarshal(ev.Data, &id); err != nil {
			return
		}
		c.State.ApplyMessageDeleted(id)
	}
}

// Dial opens the realtime connection for selfID against the backend's
// /ws endpoint.
func (c *Client) Dial(ctx context.Context, selfID string) (*websocket.Conn, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	u.RawQuery = url.Values{"userId": {selfID}}.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	return conn, err
}

// Listen consumes pushed events from a realtime connection until it
// fails.
func (c *Client) Listen(conn *websocket.Conn) error {
	for {
		var ev ws.Event
		if err := conn.ReadJSON(&ev); err != nil {
			return err
		}
		c.HandleEvent(ev)
	}
}

func (c *Client) do(ctx context.Context, method string, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: c.token})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = "Something went wrong"
		}
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
