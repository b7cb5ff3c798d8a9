// Package snapshot provides the HTTP client for the platform backend:
// authoritative conversation snapshots, the likes list, and the action
// calls an agent triggers from the console.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lumichat/agent-queue/internal/model"
	"github.com/lumichat/agent-queue/pkg/metrics"
)

const defaultTimeout = 15 * time.Second

// Client talks to the platform backend with service-token auth.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// New creates a backend client.
func New(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend API error: %s (status %d)", e.Message, e.Status)
}

// FetchConversations fetches the full authoritative conversation snapshot.
func (c *Client) FetchConversations(ctx context.Context) ([]model.Conversation, error) {
	start := time.Now()
	var conversations []model.Conversation
	err := c.do(ctx, http.MethodGet, "/api/agent/chats", nil, &conversations)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordSnapshot(status, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("fetch conversations: %w", err)
	}
	return conversations, nil
}

// FetchLikes fetches the parallel likes list.
func (c *Client) FetchLikes(ctx context.Context) ([]model.Like, error) {
	var likes []model.Like
	if err := c.do(ctx, http.MethodGet, "/api/agent/likes", nil, &likes); err != nil {
		return nil, fmt.Errorf("fetch likes: %w", err)
	}
	return likes, nil
}

// MarkRead marks every customer message in a conversation read by the agent.
func (c *Client) MarkRead(ctx context.Context, chatID string) error {
	path := fmt.Sprintf("/api/agent/chats/%s/read", chatID)
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// AssignAgent assigns an agent to a conversation.
func (c *Client) AssignAgent(ctx context.Context, chatID, agentID string) error {
	path := fmt.Sprintf("/api/agent/chats/%s/assign", chatID)
	body := map[string]string{"agent_id": agentID}
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("assign agent: %w", err)
	}
	return nil
}

// SetPanicRoom toggles a conversation's panic-room escalation.
func (c *Client) SetPanicRoom(ctx context.Context, chatID string, enabled bool) error {
	path := fmt.Sprintf("/api/agent/chats/%s/panic-room", chatID)
	body := map[string]bool{"enabled": enabled}
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("set panic room: %w", err)
	}
	return nil
}

// PushBack returns a conversation to the shared pool.
func (c *Client) PushBack(ctx context.Context, chatID string) error {
	path := fmt.Sprintf("/api/agent/chats/%s/push-back", chatID)
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("push back: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var parsed struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &parsed) == nil {
			if parsed.Error != "" {
				apiErr.Message = parsed.Error
			} else {
				apiErr.Message = parsed.Message
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
