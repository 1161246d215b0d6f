package flow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mhealthlab/demobot/internal/models"
	"github.com/mhealthlab/demobot/internal/testutil"
)

func demoSession() *models.Session {
	sess := models.NewSession("15551234567")
	sess.FirstContact = false
	sess.ActiveCapability = &models.Capability{Token: "1", Description: "Medication reminders", Insight: "💡 insight"}
	return sess
}

func TestDemoStepRecordsExchange(t *testing.T) {
	client := &testutil.ScriptedCompletionClient{Replies: []string{"Here is step one."}}
	engine := NewDemoEngine(client)
	sess := demoSession()

	result, err := engine.Step(context.Background(), sess, "tell me more")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Reply != "Here is step one." {
		t.Errorf("unexpected reply: %q", result.Reply)
	}
	if result.Complete {
		t.Error("no marker, must not report complete")
	}
	testutil.AssertSpeakers(t, sess.History, models.SpeakerUser, models.SpeakerAssistant)
	if sess.History[0].Text != "tell me more" {
		t.Errorf("user turn not recorded: %q", sess.History[0].Text)
	}
}

func TestDemoStepStripsMarkerBeforeStorage(t *testing.T) {
	client := &testutil.ScriptedCompletionClient{Replies: []string{"All done! [DEMO_COMPLETE]"}}
	engine := NewDemoEngine(client)
	sess := demoSession()

	result, err := engine.Step(context.Background(), sess, "finish up")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Complete {
		t.Error("expected completion")
	}
	if result.Reply != "All done!" {
		t.Errorf("marker must be stripped from the reply, got %q", result.Reply)
	}
	stored := sess.History[len(sess.History)-1]
	if strings.Contains(stored.Text, CompletionMarker) {
		t.Errorf("marker leaked into stored history: %q", stored.Text)
	}
}

func TestDemoStepFailureKeepsUserTurnOnly(t *testing.T) {
	client := &testutil.ScriptedCompletionClient{Err: errors.New("upstream unavailable")}
	engine := NewDemoEngine(client)
	sess := demoSession()

	if _, err := engine.Step(context.Background(), sess, "hello"); err == nil {
		t.Fatal("expected error from failing client")
	}
	testutil.AssertSpeakers(t, sess.History, models.SpeakerUser)
	if sess.History[0].Text != "hello" {
		t.Errorf("triggering user turn must stay in history, got %q", sess.History[0].Text)
	}
}

func TestDemoStepSendsSanitizedPriorHistory(t *testing.T) {
	client := &testutil.ScriptedCompletionClient{Replies: []string{"ok"}}
	engine := NewDemoEngine(client)
	sess := demoSession()
	// A failed earlier exchange leaves a trailing user turn; it must not reach
	// the completion service as history.
	sess.Append(models.SpeakerUser, "earlier question")

	if _, err := engine.Step(context.Background(), sess, "retry"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	call := client.Calls[0]
	if len(call.History) != 0 {
		t.Errorf("trailing unmatched user turn must be dropped from history, got %d turns", len(call.History))
	}
	if call.Input != "retry" {
		t.Errorf("expected input retry, got %q", call.Input)
	}
}

func TestDemoStepWithoutCapabilityFails(t *testing.T) {
	engine := NewDemoEngine(&testutil.ScriptedCompletionClient{Replies: []string{"ok"}})
	sess := models.NewSession("15551234567")
	if _, err := engine.Step(context.Background(), sess, "hi"); err == nil {
		t.Error("expected error without active capability")
	}
}

func TestKickoffUsesSynthesizedInstruction(t *testing.T) {
	client := &testutil.ScriptedCompletionClient{Replies: []string{"Welcome to the walkthrough."}}
	engine := NewDemoEngine(client)
	sess := demoSession()

	if _, err := engine.Kickoff(context.Background(), sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	call := client.Calls[0]
	if !strings.Contains(call.Input, "Medication reminders") {
		t.Errorf("kickoff instruction must name the capability, got %q", call.Input)
	}
	if !strings.Contains(call.SystemPrompt, CompletionMarker) {
		t.Error("demo system prompt must define the completion marker contract")
	}
}

func TestFreeformStepRecordsExchange(t *testing.T) {
	client := &testutil.ScriptedCompletionClient{Replies: []string{"Happy to chat."}}
	engine := NewFreeformEngine(client)
	sess := models.NewSession("15551234567")
	sess.Mode = models.ModeFreeform
	sess.FirstContact = false

	reply, err := engine.Step(context.Background(), sess, "what can you do?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "Happy to chat." {
		t.Errorf("unexpected reply: %q", reply)
	}
	testutil.AssertSpeakers(t, sess.History, models.SpeakerUser, models.SpeakerAssistant)
	if client.Calls[0].SystemPrompt != DefaultFreeformSystemPrompt {
		t.Error("freeform engine must use the default system prompt when none is loaded")
	}
}

func TestFreeformStepFailure(t *testing.T) {
	client := &testutil.ScriptedCompletionClient{Err: errors.New("boom")}
	engine := NewFreeformEngine(client)
	sess := models.NewSession("15551234567")

	if _, err := engine.Step(context.Background(), sess, "hi"); err == nil {
		t.Fatal("expected error from failing client")
	}
	testutil.AssertSpeakers(t, sess.History, models.SpeakerUser)
}

func TestLoadSystemPrompt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	if err := os.WriteFile(path, []byte("  custom prompt\n"), 0644); err != nil {
		t.Fatalf("failed to write prompt file: %v", err)
	}

	client := &testutil.ScriptedCompletionClient{Replies: []string{"ok"}}
	engine := NewFreeformEngine(client)
	if err := engine.LoadSystemPrompt(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sess := models.NewSession("15551234567")
	if _, err := engine.Step(context.Background(), sess, "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Calls[0].SystemPrompt != "custom prompt" {
		t.Errorf("expected loaded prompt, got %q", client.Calls[0].SystemPrompt)
	}
}

func TestLoadSystemPromptMissingFile(t *testing.T) {
	engine := NewFreeformEngine(&testutil.ScriptedCompletionClient{})
	if err := engine.LoadSystemPrompt(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Error("expected error for missing prompt file")
	}
	if err := engine.LoadSystemPrompt(""); err == nil {
		t.Error("expected error for empty prompt path")
	}
}
