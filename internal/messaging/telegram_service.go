// Package messaging provides the transport boundary.
//
// This file implements the Telegram Bot API transport using long polling.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/urman-dev/leadbot/internal/models"
)

// DefaultAPIBase is the Telegram Bot API endpoint prefix.
const DefaultAPIBase = "https://api.telegram.org"

// longPollSeconds is the getUpdates timeout; the HTTP client allows a margin
// on top of it.
const longPollSeconds = 25

// DefaultGreeting is sent in reply to the /start command.
const DefaultGreeting = "Здравствуйте! Я AI-ассистент компании URMAN. Готов ответить на ваши вопросы о нашей компании и услугах."

// TelegramOpts holds configuration options for the Telegram service.
type TelegramOpts struct {
	Token    string
	APIBase  string
	Greeting string
	Client   *http.Client
}

// TelegramOption defines a configuration option for the Telegram service.
type TelegramOption func(*TelegramOpts)

// WithToken sets the bot token, overriding $TELEGRAM_BOT_TOKEN.
func WithToken(token string) TelegramOption {
	return func(o *TelegramOpts) { o.Token = token }
}

// WithAPIBase overrides the Bot API endpoint (used by tests).
func WithAPIBase(base string) TelegramOption {
	return func(o *TelegramOpts) { o.APIBase = base }
}

// WithGreeting overrides the /start greeting text.
func WithGreeting(greeting string) TelegramOption {
	return func(o *TelegramOpts) { o.Greeting = greeting }
}

// WithHTTPClient injects a custom HTTP client (used by tests).
func WithHTTPClient(client *http.Client) TelegramOption {
	return func(o *TelegramOpts) { o.Client = client }
}

// TelegramService implements Service over the Telegram Bot API with long
// polling. User identifiers are chat IDs rendered as decimal strings.
type TelegramService struct {
	token     string
	apiBase   string
	greeting  string
	client    *http.Client
	responses chan models.Response
	done      chan struct{}
	mu        sync.RWMutex
	stopped   bool
	offset    int64
}

// NewTelegramService creates a Telegram transport. The token falls back to
// the TELEGRAM_BOT_TOKEN environment variable.
func NewTelegramService(opts ...TelegramOption) (*TelegramService, error) {
	var cfg TelegramOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram bot token not set")
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.Greeting == "" {
		cfg.Greeting = DefaultGreeting
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: (longPollSeconds + 10) * time.Second}
	}
	slog.Debug("messaging.NewTelegramService: configured", "apiBase", cfg.APIBase)

	return &TelegramService{
		token:     cfg.Token,
		apiBase:   cfg.APIBase,
		greeting:  cfg.Greeting,
		client:    cfg.Client,
		responses: make(chan models.Response, DefaultChannelBufferSize),
		done:      make(chan struct{}),
	}, nil
}

// telegramUpdate mirrors the subset of the Bot API update payload we consume.
type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Date int64 `json:"date"`
	} `json:"message"`
}

type telegramUpdatesResponse struct {
	OK          bool             `json:"ok"`
	Description string           `json:"description"`
	Result      []telegramUpdate `json:"result"`
}

// Start launches the long-polling loop. It returns immediately; polling runs
// until the context is cancelled or Stop is called.
func (s *TelegramService) Start(ctx context.Context) error {
	slog.Info("TelegramService starting long-poll loop")
	go s.pollLoop(ctx)
	return nil
}

func (s *TelegramService) pollLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			slog.Debug("TelegramService poll loop: context cancelled")
			return
		case <-s.done:
			slog.Debug("TelegramService poll loop: service stopped")
			return
		default:
		}

		updates, err := s.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("TelegramService getUpdates failed, backing off", "error", err)
			select {
			case <-time.After(3 * time.Second):
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
			continue
		}

		for _, update := range updates {
			s.handleUpdate(ctx, update)
		}
	}
}

// getUpdates fetches pending updates and advances the acknowledged offset.
func (s *TelegramService) getUpdates(ctx context.Context) ([]telegramUpdate, error) {
	s.mu.RLock()
	offset := s.offset
	s.mu.RUnlock()

	params := url.Values{}
	params.Set("timeout", strconv.Itoa(longPollSeconds))
	if offset > 0 {
		params.Set("offset", strconv.FormatInt(offset, 10))
	}

	endpoint := fmt.Sprintf("%s/bot%s/getUpdates?%s", s.apiBase, s.token, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build getUpdates request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getUpdates request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed telegramUpdatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode getUpdates response: %w", err)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("telegram API error: %s", parsed.Description)
	}

	for _, update := range parsed.Result {
		if update.UpdateID >= offset {
			offset = update.UpdateID + 1
		}
	}
	s.mu.Lock()
	s.offset = offset
	s.mu.Unlock()

	return parsed.Result, nil
}

// handleUpdate converts one update into a Response, answering /start directly
// with the canned greeting instead of routing it through the flow.
func (s *TelegramService) handleUpdate(ctx context.Context, update telegramUpdate) {
	if update.Message == nil || update.Message.Text == "" {
		slog.Debug("TelegramService skipping non-text update", "updateID", update.UpdateID)
		return
	}

	chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
	if update.Message.Text == "/start" {
		slog.Info("TelegramService /start received", "chatID", chatID)
		if err := s.SendMessage(ctx, chatID, s.greeting); err != nil {
			slog.Error("TelegramService failed to send greeting", "error", err, "chatID", chatID)
		}
		return
	}

	s.safeEmitResponse(models.Response{
		From: chatID,
		Body: update.Message.Text,
		Time: update.Message.Date,
	})
}

// SendMessage sends a text message to a chat.
func (s *TelegramService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat identifier %q: %w", to, err)
	}

	payload, err := json.Marshal(map[string]any{
		"chat_id": chatID,
		"text":    body,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sendMessage payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Error("TelegramService SendMessage failed", "error", err, "to", to)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Error("TelegramService SendMessage rejected", "status", resp.StatusCode, "to", to, "body", string(respBody))
		return fmt.Errorf("telegram sendMessage returned status %d", resp.StatusCode)
	}

	slog.Debug("TelegramService message sent", "to", to, "length", len(body))
	return nil
}

// Stop closes the responses channel and stops polling.
func (s *TelegramService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(s.responses)
	}()

	return nil
}

// Responses returns the channel of incoming user messages.
func (s *TelegramService) Responses() <-chan models.Response {
	return s.responses
}

func (s *TelegramService) safeEmitResponse(response models.Response) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		slog.Warn("TelegramService dropping inbound response (service stopped)", "from", response.From)
		return
	}

	select {
	case s.responses <- response:
		slog.Debug("TelegramService emitted inbound response", "from", response.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TelegramService responses channel blocked, dropping message", "from", response.From)
	}
}
