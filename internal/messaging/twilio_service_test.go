package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mhealthlab/demobot/internal/models"
	"github.com/mhealthlab/demobot/internal/twilio"
)

func TestTwilioCanonicalizeRecipient(t *testing.T) {
	svc := NewTwilioService(twilio.NewMockClient())

	got, err := svc.ValidateAndCanonicalizeRecipient("+1 (555) 123-4567")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "+15551234567" {
		t.Errorf("expected E.164 form, got %q", got)
	}

	if _, err := svc.ValidateAndCanonicalizeRecipient(""); !errors.Is(err, models.ErrEmptyRecipient) {
		t.Errorf("expected ErrEmptyRecipient, got %v", err)
	}
	if _, err := svc.ValidateAndCanonicalizeRecipient("123"); err == nil {
		t.Error("expected error for too few digits")
	}
}

func TestTwilioSendMessage(t *testing.T) {
	mock := twilio.NewMockClient()
	svc := NewTwilioService(mock)

	if err := svc.SendMessage(context.Background(), "15551234567", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.Sent) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(mock.Sent))
	}
	if mock.Sent[0].To != "+15551234567" {
		t.Errorf("recipient must be canonicalized before sending, got %q", mock.Sent[0].To)
	}

	select {
	case r := <-svc.Receipts():
		if r.Status != models.StatusTypeSent || r.To != "+15551234567" {
			t.Errorf("unexpected receipt %+v", r)
		}
	default:
		t.Error("expected a sent receipt to be emitted")
	}
}

func TestTwilioSendMessageBodyTooLong(t *testing.T) {
	svc := NewTwilioService(twilio.NewMockClient())
	body := strings.Repeat("x", models.MaxMessageBodyLength+1)
	if err := svc.SendMessage(context.Background(), "15551234567", body); !errors.Is(err, models.ErrBodyTooLong) {
		t.Errorf("expected ErrBodyTooLong, got %v", err)
	}
}

func TestTwilioPushResponse(t *testing.T) {
	svc := NewTwilioService(twilio.NewMockClient())
	svc.PushResponse(models.Response{From: "+15551234567", Body: "inbound", Time: 1})

	select {
	case r := <-svc.Responses():
		if r.Body != "inbound" {
			t.Errorf("unexpected response %+v", r)
		}
	default:
		t.Error("expected pushed response on the channel")
	}
}
