// Package models defines the core data structures for DemoBot.
//
// It includes types for conversation turns, per-sender sessions, demo
// capabilities, and transport events, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// Speaker identifies who produced a conversation turn.
type Speaker string

const (
	// SpeakerUser marks a turn authored by the participant.
	SpeakerUser Speaker = "user"
	// SpeakerAssistant marks a turn authored by the completion service.
	SpeakerAssistant Speaker = "assistant"
)

// SessionMode governs which engine processes a session's messages.
type SessionMode string

const (
	// ModeDemo routes messages through the guided capability demo engine.
	ModeDemo SessionMode = "demo"
	// ModeFreeform routes messages through the open-ended conversation engine.
	ModeFreeform SessionMode = "freeform"
)

// Validation constants for inbound and outbound content.
const (
	// MaxMessageBodyLength defines the maximum allowed length for outbound message bodies.
	MaxMessageBodyLength = 4096
)

// Error variables for better error handling and testability
var (
	ErrEmptyRecipient  = errors.New("recipient cannot be empty")
	ErrEmptyIdentity   = errors.New("sender identity cannot be empty")
	ErrBodyTooLong     = errors.New("message body exceeds maximum length")
	ErrUnknownToken    = errors.New("token matches no capability")
	ErrInvalidSpeaker  = errors.New("invalid turn speaker")
	ErrInvalidMode     = errors.New("invalid session mode")
	ErrEmptyCompletion = errors.New("completion service returned no choices")
)

// IsValidSessionMode checks if the given session mode is supported.
func IsValidSessionMode(m SessionMode) bool {
	switch m {
	case ModeDemo, ModeFreeform:
		return true
	default:
		return false
	}
}

// Turn is one recorded utterance in a session's history.
// Turns are append-only and never mutated after creation.
type Turn struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Capability is one entry in the static demo catalogue.
type Capability struct {
	// Token is the short menu input that selects this capability.
	Token string `json:"token"`
	// Description is the human-readable label injected into generated instructions.
	Description string `json:"description"`
	// Insight is the closing message sent once the guided demo completes.
	Insight string `json:"insight"`
}

// Session holds the conversational state for one sender identity.
//
// History is append-only within an episode; it is cleared wholesale on
// capability change, menu return, or reset. Session values are not
// self-synchronizing: callers must serialize access per identity.
type Session struct {
	Identity         string      `json:"identity"`
	Mode             SessionMode `json:"mode"`
	History          []Turn      `json:"history"`
	FirstContact     bool        `json:"first_contact"`
	ActiveCapability *Capability `json:"active_capability,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// NewSession returns a session with first-contact defaults for the identity.
func NewSession(identity string) *Session {
	now := time.Now()
	return &Session{
		Identity:     identity,
		Mode:         ModeDemo,
		History:      nil,
		FirstContact: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Append records one turn at the end of the session history.
func (s *Session) Append(speaker Speaker, text string) {
	s.History = append(s.History, Turn{Speaker: speaker, Text: text, Timestamp: time.Now()})
	s.UpdatedAt = time.Now()
}

// ClearHistory drops all recorded turns, starting a fresh episode.
func (s *Session) ClearHistory() {
	s.History = nil
	s.UpdatedAt = time.Now()
}

// MessageStatus represents the delivery status of a message.
type MessageStatus string

const (
	// StatusTypeSent indicates the message was handed to the transport.
	StatusTypeSent MessageStatus = "sent"
	// StatusTypeDelivered indicates the message was delivered.
	StatusTypeDelivered MessageStatus = "delivered"
	// StatusTypeRead indicates the message was read.
	StatusTypeRead MessageStatus = "read"
	// StatusTypeFailed indicates the message failed to send.
	StatusTypeFailed MessageStatus = "failed"
)

// Receipt records a delivery status event for an outbound message.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// Response represents an incoming message from a participant.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}
