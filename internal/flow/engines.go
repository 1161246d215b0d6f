package flow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mhealthlab/demobot/internal/history"
	"github.com/mhealthlab/demobot/internal/models"
)

// CompletionClient is the completion-service abstraction consumed by the
// engines. The genai package provides the production implementation.
// History passed to it is always sanitized first.
type CompletionClient interface {
	GenerateWithHistory(ctx context.Context, systemPrompt string, turns []models.Turn, input string) (string, error)
}

// StepResult is one engine exchange: the reply to send and, for demo steps,
// whether the capability's narrated walkthrough signalled completion.
type StepResult struct {
	Reply    string
	Complete bool
}

// DemoEngine drives one guided-capability exchange per call.
type DemoEngine struct {
	client CompletionClient
}

// NewDemoEngine creates a demo step engine over the completion client.
func NewDemoEngine(client CompletionClient) *DemoEngine {
	return &DemoEngine{client: client}
}

// Step runs one guided exchange for the session's active capability.
//
// The input turn is appended before the completion call, so on failure it
// remains in history while no assistant turn is recorded. The assistant turn
// is stored with the completion marker already stripped, so later windows
// never leak the marker back into model context.
func (e *DemoEngine) Step(ctx context.Context, sess *models.Session, input string) (StepResult, error) {
	active := sess.ActiveCapability
	if active == nil {
		return StepResult{}, fmt.Errorf("demo step without active capability for %s", sess.Identity)
	}

	prior := history.Prepare(sess.History, history.DemoWindowSize)
	sess.Append(models.SpeakerUser, input)

	raw, err := e.client.GenerateWithHistory(ctx, DemoSystemPrompt(active), prior, input)
	if err != nil {
		slog.Error("DemoEngine.Step: completion failed", "error", err, "identity", sess.Identity, "capability", active.Token)
		return StepResult{}, fmt.Errorf("demo step for capability %s: %w", active.Token, err)
	}

	outcome := ParseCompletionMarker(raw)
	sess.Append(models.SpeakerAssistant, outcome.Text)

	slog.Debug("DemoEngine.Step: exchange recorded",
		"identity", sess.Identity,
		"capability", active.Token,
		"history_turns", len(sess.History),
		"complete", outcome.Complete)
	return StepResult{Reply: outcome.Text, Complete: outcome.Complete}, nil
}

// Kickoff starts the demo for a freshly selected capability using a
// synthesized instruction rather than the user's literal menu input.
func (e *DemoEngine) Kickoff(ctx context.Context, sess *models.Session) (StepResult, error) {
	if sess.ActiveCapability == nil {
		return StepResult{}, fmt.Errorf("demo kickoff without active capability for %s", sess.Identity)
	}
	return e.Step(ctx, sess, KickoffInstruction(sess.ActiveCapability))
}

// FreeformEngine drives open-ended conversation. It uses a wider window, a
// single standing system prompt, and no completion detection: the
// conversation only ends through an administrative mode switch.
type FreeformEngine struct {
	client       CompletionClient
	systemPrompt string
}

// NewFreeformEngine creates a freeform engine with the default system prompt.
func NewFreeformEngine(client CompletionClient) *FreeformEngine {
	return &FreeformEngine{client: client, systemPrompt: DefaultFreeformSystemPrompt}
}

// LoadSystemPrompt replaces the standing system prompt with file contents.
func (e *FreeformEngine) LoadSystemPrompt(path string) error {
	if path == "" {
		return fmt.Errorf("system prompt file not configured")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		slog.Error("FreeformEngine.LoadSystemPrompt: failed to read prompt file", "file", path, "error", err)
		return fmt.Errorf("failed to read system prompt file: %w", err)
	}
	e.systemPrompt = strings.TrimSpace(string(content))
	slog.Info("FreeformEngine.LoadSystemPrompt: system prompt loaded", "file", path, "length", len(e.systemPrompt))
	return nil
}

// Step runs one open-ended exchange.
func (e *FreeformEngine) Step(ctx context.Context, sess *models.Session, input string) (string, error) {
	prior := history.Prepare(sess.History, history.FreeformWindowSize)
	sess.Append(models.SpeakerUser, input)

	reply, err := e.client.GenerateWithHistory(ctx, e.systemPrompt, prior, input)
	if err != nil {
		slog.Error("FreeformEngine.Step: completion failed", "error", err, "identity", sess.Identity)
		return "", fmt.Errorf("freeform step: %w", err)
	}

	sess.Append(models.SpeakerAssistant, reply)
	slog.Debug("FreeformEngine.Step: exchange recorded", "identity", sess.Identity, "history_turns", len(sess.History))
	return reply, nil
}
