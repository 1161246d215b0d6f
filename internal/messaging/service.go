// Package messaging provides the pluggable message transport abstraction and
// the inbound message listener.
package messaging

import (
	"context"

	"github.com/mhealthlab/demobot/internal/models"
)

// Service defines a pluggable message delivery abstraction.
// It supports sending messages and exposes channels for receipt and response
// events.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
	// identifier. Each transport applies its own recipient rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing (e.g., event polling).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Receipts returns a channel of delivery receipt events.
	Receipts() <-chan models.Receipt

	// Responses returns a channel of incoming participant messages.
	Responses() <-chan models.Response
}

// TypingNotifier is optionally implemented by transports that can signal a
// typing indicator while a reply is being generated. Failures are best effort.
type TypingNotifier interface {
	SendTyping(ctx context.Context, to string, typing bool) error
}
