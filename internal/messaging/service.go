// Package messaging provides the transport boundary: receiving user messages
// and sending replies.
package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/urman-dev/leadbot/internal/models"
)

// Channel handling constants.
const (
	// DefaultChannelBufferSize is the buffer size for response channels.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout is how long an emit waits before dropping.
	DefaultChannelTimeout = 5 * time.Second
)

// ErrServiceStopped is returned when operations are attempted on a stopped service.
var ErrServiceStopped = errors.New("messaging service is stopped")

// Service defines a pluggable message transport abstraction.
type Service interface {
	// SendMessage sends a message to a recipient identifier.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins background processing (e.g., polling for updates).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Responses returns a channel of incoming user messages.
	Responses() <-chan models.Response
}

// LeadNotifier alerts a human (e.g., a sales manager) about a new lead.
// Failures are advisory; callers log and continue.
type LeadNotifier interface {
	NotifyLead(ctx context.Context, summary string) error
}
