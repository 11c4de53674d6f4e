// Package messaging provides the transport boundary.
//
// This file implements the Twilio SMS lead alert sent to a sales manager
// when a hand-off fires.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioOpts holds configuration options for the Twilio notifier.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	From       string
	ManagerTo  string
}

// TwilioOption defines a configuration option for the Twilio notifier.
type TwilioOption func(*TwilioOpts)

// WithAccountSID sets the account SID, overriding $TWILIO_ACCOUNT_SID.
func WithAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

// WithAuthToken sets the auth token, overriding $TWILIO_AUTH_TOKEN.
func WithAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// WithFromNumber sets the sending number, overriding $TWILIO_FROM_NUMBER.
func WithFromNumber(from string) TwilioOption {
	return func(o *TwilioOpts) { o.From = from }
}

// WithManagerNumber sets the alert recipient, overriding $LEAD_ALERT_NUMBER.
func WithManagerNumber(to string) TwilioOption {
	return func(o *TwilioOpts) { o.ManagerTo = to }
}

// TwilioNotifier sends lead alert SMS messages via the Twilio REST API.
type TwilioNotifier struct {
	client    *twilio.RestClient
	from      string
	managerTo string
}

// NewTwilioNotifier creates a Twilio-backed lead notifier. All settings fall
// back to environment variables when not provided via options.
func NewTwilioNotifier(opts ...TwilioOption) (*TwilioNotifier, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.From == "" {
		cfg.From = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.ManagerTo == "" {
		cfg.ManagerTo = os.Getenv("LEAD_ALERT_NUMBER")
	}
	slog.Debug("messaging.NewTwilioNotifier: config loaded",
		"accountSID_set", cfg.AccountSID != "",
		"authToken_set", cfg.AuthToken != "",
		"from_set", cfg.From != "",
		"managerTo_set", cfg.ManagerTo != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.From == "" || cfg.ManagerTo == "" {
		return nil, fmt.Errorf("from and manager numbers must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &TwilioNotifier{
		client:    client,
		from:      cfg.From,
		managerTo: cfg.ManagerTo,
	}, nil
}

// NotifyLead implements LeadNotifier by sending one SMS to the manager.
func (n *TwilioNotifier) NotifyLead(ctx context.Context, summary string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(n.managerTo)
	params.SetFrom(n.from)
	params.SetBody(summary)

	_, err := n.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("TwilioNotifier NotifyLead failed", "error", err, "to", n.managerTo)
		return fmt.Errorf("failed to send lead alert: %w", err)
	}

	slog.Debug("TwilioNotifier lead alert sent", "to", n.managerTo)
	return nil
}

// MockNotifier records lead alerts for tests.
type MockNotifier struct {
	Alerts []string
	Err    error
}

// NewMockNotifier creates an empty mock notifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// NotifyLead implements LeadNotifier.
func (m *MockNotifier) NotifyLead(ctx context.Context, summary string) error {
	m.Alerts = append(m.Alerts, summary)
	return m.Err
}
