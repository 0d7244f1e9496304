// Package api provides the REST client for the chat backend: paginated
// history, the REST send fallback, and user bootstrap calls.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/raphaelgruber/termchat/internal/models"
)

// Client is a REST client for the chat backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client.
// If baseURL is empty, uses the TERMCHAT_API_URL env var or defaults to
// localhost:8000. Timeout defaults to 30s; pass 0 to keep the default.
func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("TERMCHAT_API_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// MessagePage is one page of conversation history. Messages are ordered
// oldest-first within the page; higher page numbers hold strictly older
// messages.
type MessagePage struct {
	Messages []models.Message `json:"messages"`
	Total    int              `json:"total"`
	HasMore  bool             `json:"has_more"`
	Page     int              `json:"page"`
}

// sendRequest is the payload for the REST send fallback.
type sendRequest struct {
	Content string `json:"content"`
}

// initializeResponse is the payload returned by the initialize endpoint.
type initializeResponse struct {
	Message        string          `json:"message"`
	InitialMessage *models.Message `json:"initial_message,omitempty"`
}

// Messages fetches one page of history for the client. Pages are 1-indexed.
func (c *Client) Messages(ctx context.Context, clientID string, page, perPage int) (MessagePage, error) {
	endpoint := fmt.Sprintf("%s/api/chat/user/%s/messages", c.baseURL, url.PathEscape(clientID))

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))

	var result MessagePage
	if err := c.do(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil, &result); err != nil {
		return MessagePage{}, fmt.Errorf("fetch messages page %d: %w", page, err)
	}
	return result, nil
}

// Send posts a message over REST and returns the assistant's reply. This is
// the fallback path for one-shot sends; the live session sends over the
// socket instead.
func (c *Client) Send(ctx context.Context, clientID, content string) (models.Message, error) {
	endpoint := fmt.Sprintf("%s/api/chat/user/%s/message", c.baseURL, url.PathEscape(clientID))

	var result models.Message
	if err := c.do(ctx, http.MethodPost, endpoint, sendRequest{Content: content}, &result); err != nil {
		return models.Message{}, fmt.Errorf("send message: %w", err)
	}
	return result, nil
}

// User fetches (or lazily creates, server-side) the user record.
func (c *Client) User(ctx context.Context, clientID string) (models.User, error) {
	endpoint := fmt.Sprintf("%s/api/chat/user/%s", c.baseURL, url.PathEscape(clientID))

	var result models.User
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return models.User{}, fmt.Errorf("fetch user: %w", err)
	}
	return result, nil
}

// Initialize asks the backend to seed the conversation for a first-time
// client. Idempotent on the server; returns the onboarding message if one
// was created.
func (c *Client) Initialize(ctx context.Context, clientID string) (*models.Message, error) {
	endpoint := fmt.Sprintf("%s/api/chat/user/%s/initialize", c.baseURL, url.PathEscape(clientID))

	var result initializeResponse
	if err := c.do(ctx, http.MethodPost, endpoint, nil, &result); err != nil {
		return nil, fmt.Errorf("initialize chat: %w", err)
	}
	return result.InitialMessage, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload, result any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("server error: %s - %s", resp.Status, truncate(string(data), 200))
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
