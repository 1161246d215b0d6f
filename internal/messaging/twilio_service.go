package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/mhealthlab/demobot/internal/models"
	"github.com/mhealthlab/demobot/internal/twilio"
)

// TwilioService implements Service using the Twilio WhatsApp Business API.
// Twilio delivers inbound messages via webhook, which this deployment does not
// expose; the service is therefore send-only and its Responses channel stays
// empty. It exists for deployments that pair DemoBot with an external webhook
// relay feeding PushResponse.
type TwilioService struct {
	client    twilio.MessageSender
	receipts  chan models.Receipt
	responses chan models.Response
}

// NewTwilioService creates a TwilioService wrapping the given Twilio sender.
func NewTwilioService(client twilio.MessageSender) *TwilioService {
	return &TwilioService{
		client:    client,
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.Response, DefaultChannelBufferSize),
	}
}

// ValidateAndCanonicalizeRecipient canonicalizes to E.164 ("+" plus digits),
// which the Twilio API requires.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}
	var digits strings.Builder
	for _, r := range recipient {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	if digits.Len() < MinPhoneDigits {
		return "", fmt.Errorf("recipient %q is not a valid phone number", recipient)
	}
	return "+" + digits.String(), nil
}

// SendMessage sends a message through Twilio and emits a sent receipt.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService.SendMessage invalid recipient", "error", err, "to", to)
		return err
	}
	if len(body) > models.MaxMessageBodyLength {
		return models.ErrBodyTooLong
	}
	if err := s.client.SendMessage(ctx, canonical, body); err != nil {
		slog.Error("TwilioService.SendMessage error", "error", err, "to", canonical)
		return err
	}
	select {
	case s.receipts <- models.Receipt{To: canonical, Status: models.StatusTypeSent, Time: time.Now().Unix()}:
	default:
		slog.Warn("TwilioService receipts channel full, dropping receipt", "to", canonical)
	}
	slog.Debug("TwilioService message sent", "to", canonical, "body_length", len(body))
	return nil
}

// PushResponse injects an inbound message, e.g. from an external webhook relay.
func (s *TwilioService) PushResponse(resp models.Response) {
	select {
	case s.responses <- resp:
	default:
		slog.Warn("TwilioService responses channel full, dropping message", "from", resp.From)
	}
}

// Start is a no-op; Twilio inbound delivery is webhook-driven.
func (s *TwilioService) Start(ctx context.Context) error {
	slog.Debug("TwilioService.Start invoked (no background processing)")
	return nil
}

// Stop closes the event channels.
func (s *TwilioService) Stop() error {
	close(s.receipts)
	close(s.responses)
	return nil
}

// Receipts returns a channel of receipt events.
func (s *TwilioService) Receipts() <-chan models.Receipt {
	return s.receipts
}

// Responses returns a channel of incoming message events.
func (s *TwilioService) Responses() <-chan models.Response {
	return s.responses
}
