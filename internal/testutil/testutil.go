// Package testutil provides common test utilities and helpers for DemoBot tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/mhealthlab/demobot/internal/models"
)

// ScriptedCompletionClient returns canned completion responses in order and
// records every call for assertions.
type ScriptedCompletionClient struct {
	mu      sync.Mutex
	Replies []string
	Err     error
	Calls   []CompletionCall
}

// CompletionCall records the arguments of one completion request.
type CompletionCall struct {
	SystemPrompt string
	History      []models.Turn
	Input        string
}

// GenerateWithHistory returns the next scripted reply, or Err if set. When the
// script runs out, the last reply repeats.
func (c *ScriptedCompletionClient) GenerateWithHistory(ctx context.Context, systemPrompt string, turns []models.Turn, input string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, CompletionCall{SystemPrompt: systemPrompt, History: turns, Input: input})
	if c.Err != nil {
		return "", c.Err
	}
	if len(c.Replies) == 0 {
		return "", fmt.Errorf("scripted client has no replies")
	}
	idx := len(c.Calls) - 1
	if idx >= len(c.Replies) {
		idx = len(c.Replies) - 1
	}
	return c.Replies[idx], nil
}

// RecordingSender captures outbound messages for assertions.
type RecordingSender struct {
	mu   sync.Mutex
	Sent []SentMessage
	Err  error
}

// SentMessage records one outbound message.
type SentMessage struct {
	To   string
	Body string
}

// SendMessage records the message and returns Err if set.
func (s *RecordingSender) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Sent = append(s.Sent, SentMessage{To: to, Body: body})
	return nil
}

// Messages returns a snapshot of the recorded sends.
func (s *RecordingSender) Messages() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentMessage, len(s.Sent))
	copy(out, s.Sent)
	return out
}

// AssertSentCount fails the test unless exactly n messages were recorded.
func (s *RecordingSender) AssertSentCount(t *testing.T, n int) {
	t.Helper()
	if got := len(s.Messages()); got != n {
		t.Fatalf("expected %d outbound messages, got %d: %+v", n, got, s.Messages())
	}
}

// AssertLastContains fails the test unless the most recent message body
// contains the substring.
func (s *RecordingSender) AssertLastContains(t *testing.T, substr string) {
	t.Helper()
	msgs := s.Messages()
	if len(msgs) == 0 {
		t.Fatalf("no outbound messages recorded")
	}
	if last := msgs[len(msgs)-1].Body; !strings.Contains(last, substr) {
		t.Errorf("last message %q does not contain %q", last, substr)
	}
}

// Turns builds a turn sequence from alternating speaker/text pairs, e.g.
// Turns("user", "hi", "assistant", "hello").
func Turns(pairs ...string) []models.Turn {
	if len(pairs)%2 != 0 {
		panic("testutil.Turns requires speaker/text pairs")
	}
	var turns []models.Turn
	for i := 0; i < len(pairs); i += 2 {
		turns = append(turns, models.Turn{Speaker: models.Speaker(pairs[i]), Text: pairs[i+1]})
	}
	return turns
}

// AssertSpeakers fails the test unless the sequence's speakers match expected.
func AssertSpeakers(t *testing.T, turns []models.Turn, expected ...models.Speaker) {
	t.Helper()
	if len(turns) != len(expected) {
		t.Fatalf("expected %d turns, got %d: %+v", len(expected), len(turns), turns)
	}
	for i, want := range expected {
		if turns[i].Speaker != want {
			t.Errorf("turn %d: expected speaker %s, got %s", i, want, turns[i].Speaker)
		}
	}
}
