// Package tracker wraps the external task-tracking API that receives
// qualified leads. Idempotency of the hand-off is the caller's
// responsibility; this package only performs the call.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Contact carries the lead's contact record.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone"`
	Notes string `json:"notes,omitempty"`
}

// Task is the payload handed off to the task tracker.
type Task struct {
	ID      string  `json:"id,omitempty"`
	Title   string  `json:"title"`
	Body    string  `json:"body"`
	Contact Contact `json:"contact"`
}

// Client creates tasks in the external tracker.
type Client interface {
	CreateTask(ctx context.Context, task Task) error
}

// Opts holds configuration options for the HTTP tracker client.
type Opts struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Option defines a configuration option for the HTTP tracker client.
type Option func(*Opts)

// WithBaseURL sets the tracker webhook URL, overriding $TRACKER_WEBHOOK_URL.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithToken sets the bearer token, overriding $TRACKER_API_TOKEN.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// DefaultTimeout bounds a task-creation call so a slow tracker cannot stall
// the conversation turn.
const DefaultTimeout = 10 * time.Second

// HTTPClient posts tasks to a tracker webhook as JSON.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a tracker client. URL and token fall back to the
// TRACKER_WEBHOOK_URL and TRACKER_API_TOKEN environment variables.
func NewHTTPClient(opts ...Option) (*HTTPClient, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("TRACKER_WEBHOOK_URL")
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("TRACKER_API_TOKEN")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	slog.Debug("tracker.NewHTTPClient: configured", "baseURL_set", cfg.BaseURL != "", "token_set", cfg.Token != "")

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("tracker webhook URL not set")
	}

	return &HTTPClient{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// CreateTask implements Client.
func (c *HTTPClient) CreateTask(ctx context.Context, task Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build task request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Error("tracker.CreateTask: request failed", "error", err, "title", task.Title)
		return fmt.Errorf("task creation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Error("tracker.CreateTask: tracker rejected task", "status", resp.StatusCode, "title", task.Title, "body", string(body))
		return fmt.Errorf("tracker returned status %d", resp.StatusCode)
	}

	slog.Info("tracker.CreateTask: task created", "title", task.Title, "phone", task.Contact.Phone)
	return nil
}

// MockClient records created tasks for tests.
type MockClient struct {
	CreatedTasks []Task
	Err          error
}

// NewMockClient creates an empty mock tracker client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// CreateTask implements Client.
func (m *MockClient) CreateTask(ctx context.Context, task Task) error {
	m.CreatedTasks = append(m.CreatedTasks, task)
	return m.Err
}
