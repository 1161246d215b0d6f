// Package twilio wraps the Twilio REST API as an alternative WhatsApp
// transport for deployments using the Business API instead of a paired device.
package twilio

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	twiliosdk "github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// MessageSender is the minimal sending interface (for production and testing).
type MessageSender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Opts holds configuration options for the Twilio client.
type Opts struct {
	AccountSID string
	AuthToken  string
	From       string // WhatsApp sender number in E.164, without the "whatsapp:" prefix
}

// Option defines a configuration option for the Twilio client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID, overriding $TWILIO_ACCOUNT_SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token, overriding $TWILIO_AUTH_TOKEN.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFrom sets the sending WhatsApp number, overriding $TWILIO_FROM_NUMBER.
func WithFrom(from string) Option {
	return func(o *Opts) { o.From = from }
}

// Client wraps the Twilio REST API for WhatsApp message delivery.
type Client struct {
	client *twiliosdk.RestClient
	from   string
}

// NewClient creates a Twilio client, falling back to environment variables
// for credentials not provided via options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
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
	slog.Debug("twilio.NewClient: config loaded",
		"account_sid_set", cfg.AccountSID != "",
		"auth_token_set", cfg.AuthToken != "",
		"from_set", cfg.From != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("sending number must be provided")
	}

	client := twiliosdk.NewRestClientWithParams(twiliosdk.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Client{client: client, from: "whatsapp:" + cfg.From}, nil
}

// SendMessage sends a WhatsApp message through the Twilio API. The recipient
// must be in E.164 format.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:" + to)
	params.SetFrom(c.from)
	params.SetBody(body)

	if _, err := c.client.Api.CreateMessage(params); err != nil {
		slog.Error("twilio.SendMessage failed", "error", err, "to", to)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	slog.Debug("twilio.SendMessage succeeded", "to", to, "body_length", len(body))
	return nil
}

// MockClient records sends without contacting Twilio (for tests).
type MockClient struct {
	Sent []SentMessage
}

// SentMessage records one send through the mock client.
type SentMessage struct {
	To   string
	Body string
}

// NewMockClient creates an empty mock sender.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// SendMessage records the message and succeeds.
func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	m.Sent = append(m.Sent, SentMessage{To: to, Body: body})
	return nil
}
