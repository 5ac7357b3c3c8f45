// Package client provides an API client for the Precedent server.
package client

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
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomasbielik/precedent/internal/models"
)

// Client talks to the Precedent HTTP API.
type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
}

// New creates a client. If baseURL is empty, uses PRECEDENT_SERVER_URL env
// var or defaults to localhost:8090. The timeout can be configured via
// PRECEDENT_CLIENT_TIMEOUT.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("PRECEDENT_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8090"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := 30 * time.Second
	if t := os.Getenv("PRECEDENT_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: baseURL,
		userID:  os.Getenv("PRECEDENT_USER"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetUser overrides the user id sent as X-User-ID on requests.
func (c *Client) SetUser(userID string) {
	c.userID = userID
}

// Research mirrors the server's research payload.
type Research struct {
	models.Research
	Status string `json:"status"`
}

// ListMeta carries pagination info for list responses.
type ListMeta struct {
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	LastPage    int `json:"last_page"`
	Total       int `json:"total"`
}

type listResponse struct {
	Data []Research `json:"data"`
	Meta ListMeta   `json:"meta"`
}

type apiError struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields,omitempty"`
	} `json:"error"`
}

// do sends one request and decodes the response into result when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
			if len(apiErr.Error.Fields) > 0 {
				parts := make([]string, 0, len(apiErr.Error.Fields))
				for field, msg := range apiErr.Error.Fields {
					parts = append(parts, field+" "+msg)
				}
				return fmt.Errorf("%s: %s", apiErr.Error.Message, strings.Join(parts, "; "))
			}
			return fmt.Errorf("%s", apiErr.Error.Message)
		}
		return fmt.Errorf("server error: %s", resp.Status)
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// Submit creates a new research for the given query.
func (c *Client) Submit(ctx context.Context, query string) (*Research, error) {
	var research Research
	err := c.do(ctx, http.MethodPost, "/api/researches", map[string]string{"query": query}, &research)
	if err != nil {
		return nil, err
	}
	return &research, nil
}

// Get retrieves one research by id.
func (c *Client) Get(ctx context.Context, id string) (*Research, error) {
	var research Research
	if err := c.do(ctx, http.MethodGet, "/api/researches/"+url.PathEscape(id), nil, &research); err != nil {
		return nil, err
	}
	return &research, nil
}

// List returns one page of researches plus pagination info.
func (c *Client) List(ctx context.Context, page, perPage int) ([]Research, ListMeta, error) {
	path := "/api/researches?page=" + strconv.Itoa(page) + "&per_page=" + strconv.Itoa(perPage)
	var resp listResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, ListMeta{}, err
	}
	return resp.Data, resp.Meta, nil
}

// Delete removes a research.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/researches/"+url.PathEscape(id), nil, nil)
}

// Stats returns the server's runtime statistics as raw JSON.
func (c *Client) Stats(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// watcher protocol messages, matching the gateway.
type watchRequest struct {
	Action     string `json:"action"`
	ResearchID string `json:"research_id"`
}

type watchMessage struct {
	Type       string        `json:"type"`
	ResearchID string        `json:"research_id,omitempty"`
	Message    string        `json:"message,omitempty"`
	Event      *models.Event `json:"event,omitempty"`
}

// Watch subscribes to a research's live progress feed. The onEvent callback
// receives recorded history first, then live events; it may see an event
// twice around the hand-off. Return an error from onEvent to stop watching.
// Watch returns nil when the research emits its ended event.
func (c *Client) Watch(ctx context.Context, researchID string, onEvent func(models.Event) error) error {
	wsURL := c.baseURL + "/ws"
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}

	var closeOnce sync.Once
	closeConn := func() { closeOnce.Do(func() { conn.Close() }) }
	defer closeConn()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	if err := conn.WriteJSON(watchRequest{Action: "subscribe", ResearchID: researchID}); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}

	for {
		var msg watchMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read message: %w", err)
		}

		switch msg.Type {
		case "error":
			return fmt.Errorf("watch failed: %s", msg.Message)
		case "update":
			if msg.Event == nil {
				continue
			}
			if err := onEvent(*msg.Event); err != nil {
				return err
			}
			if msg.Event.Type == "ended" {
				return nil
			}
		default:
			// subscribed/unsubscribed acks need no handling.
		}
	}
}
