package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mhealthlab/demobot/internal/capability"
	"github.com/mhealthlab/demobot/internal/models"
	"github.com/mhealthlab/demobot/internal/session"
	"github.com/mhealthlab/demobot/internal/testutil"
)

const testIdentity = "15551234567"

type dispatcherFixture struct {
	dispatcher *Dispatcher
	sessions   *session.MemoryStore
	registry   *capability.Registry
	client     *testutil.ScriptedCompletionClient
	sender     *testutil.RecordingSender
}

func newDispatcherFixture(client *testutil.ScriptedCompletionClient) *dispatcherFixture {
	sessions := session.NewMemoryStore()
	registry := capability.NewDefaultRegistry()
	sender := &testutil.RecordingSender{}
	d := NewDispatcher(sessions, registry, NewDemoEngine(client), NewFreeformEngine(client), sender)
	return &dispatcherFixture{dispatcher: d, sessions: sessions, registry: registry, client: client, sender: sender}
}

// returningSession returns the identity's session with first contact already
// consumed, as after any prior exchange.
func (f *dispatcherFixture) returningSession() *models.Session {
	sess := f.sessions.Get(testIdentity)
	sess.FirstContact = false
	return sess
}

func TestProcessMessageEmptyIdentity(t *testing.T) {
	f := newDispatcherFixture(&testutil.ScriptedCompletionClient{})
	if err := f.dispatcher.ProcessMessage(context.Background(), "", "hi"); !errors.Is(err, models.ErrEmptyIdentity) {
		t.Errorf("expected ErrEmptyIdentity, got %v", err)
	}
}

func TestFirstContactShowsWelcomeMenu(t *testing.T) {
	f := newDispatcherFixture(&testutil.ScriptedCompletionClient{})
	if err := f.dispatcher.ProcessMessage(context.Background(), testIdentity, "hello there"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.sender.AssertSentCount(t, 1)
	f.sender.AssertLastContains(t, WelcomeText)
	f.sender.AssertLastContains(t, "1.")

	sess := f.sessions.Get(testIdentity)
	if sess.FirstContact {
		t.Error("first-contact flag must be consumed")
	}
	if len(sess.History) != 0 {
		t.Error("first-contact message content must be discarded, not recorded")
	}
	if len(f.client.Calls) != 0 {
		t.Error("first contact must not reach the completion service")
	}
}

func TestFirstContactTokenIsNotASelection(t *testing.T) {
	// Even a valid capability token on first contact only yields the welcome
	// menu; selection requires a subsequent message.
	f := newDispatcherFixture(&testutil.ScriptedCompletionClient{})
	if err := f.dispatcher.ProcessMessage(context.Background(), testIdentity, "3"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess := f.sessions.Get(testIdentity); sess.ActiveCapability != nil {
		t.Error("first contact must precede capability selection")
	}
	f.sender.AssertLastContains(t, WelcomeText)
}

func TestAdminResetReplacesSession(t *testing.T) {
	f := newDispatcherFixture(&testutil.ScriptedCompletionClient{})
	sess := f.returningSession()
	sess.Mode = models.ModeFreeform
	sess.Append(models.SpeakerUser, "old turn")

	if err := f.dispatcher.ProcessMessage(context.Background(), testIdentity, "reset"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.sender.AssertSentCount(t, 1)
	f.sender.AssertLastContains(t, ResetConfirmationText)

	fresh := f.sessions.Get(testIdentity)
	if !fresh.FirstContact || fresh.Mode != models.ModeDemo || len(fresh.History) != 0 {
		t.Errorf("reset must restore first-contact defaults, got %+v", fresh)
	}
}

func TestAdminCommandsAreCaseInsensitive(t *testing.T) {
	f := newDispatcherFixture(&testutil.ScriptedCompletionClient{})
	f.returningSession()
	if err := f.dispatcher.ProcessMessage(context.Background(), testIdentity, "  CHAT  "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess := f.sessions.Get(testIdentity); sess.Mode != models.ModeFreeform {
		t.Errorf("expected freeform mode, got %s", sess.Mode)
	}
	f.sender.AssertLastContains(t, FreeformConfirmationText)
}

func TestAdminCommandBeatsFreeformMode(t *testing.T) {
	// "demo" inside a freeform conversation is a command, not chat input.
	client := &testutil.ScriptedCompletionClient{Replies: []string{"should not be called"}}
	f := newDispatcherFixture(client)
	sess := f.returningSession()
	sess.Mode = models.ModeFreeform
	sess.Append(models.SpeakerUser, "hi")
	sess.Append(models.SpeakerAssistant, "hello")

	if err := f.dispatcher.ProcessMessage(context.Background(), testIdentity, "demo"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.Calls) != 0 {
		t.Error("admin command must not reach the completion service")
	}
	if sess.Mode != models.ModeDemo || len(sess.History) != 0 {
		t.Errorf("demo command must switch mode and clear history, got mode=%s turns=%d", sess.Mode, len(sess.History))
	}
	f.sender.AssertLastContains(t, DemoConfirmationText)
}

func TestFreeformModeSwallowsCapabilityTokens(t *testing.T) {
	client := &testutil.ScriptedCompletionClient{Replies: []string{"Sure, tell me more."}}
	f := newDispatcherFixture(client)
	sess := f.returningSession()
	sess.Mode = models.ModeFreeform

	if err := f.dispatcher.ProcessMessage(context.Background(), testIdentity, "3"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.ActiveCapability != nil {
		t.Error("tokens in freeform mode are chat input, not selections")
	}
	if len(client.Calls) != 1 || client.Calls[0].Input != "3" {
		t.Errorf("expected freeform engine call with input 3, got %+v", client.Calls)
	}
}

func TestMenuReturnClearsCapabilityAndHistory(t *testing.T) {
	f := newDispatcherFixture(&testutil.ScriptedCompletionClient{})
	sess := f.returningSession()
	sess.ActiveCapability = f.registry.Resolve("1")
	sess.Append(models.SpeakerUser, "mid-demo")

	if err := f.dispatcher.ProcessMessage(context.Background(), testIdentity, "0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.ActiveCapability != nil || len(sess.History) != 0 {
		t.Error("menu return must clear the active capability and history")
	}
	f.sender.AssertSentCount(t, 1)
	f.sender.AssertLastContains(t, "Reply with a number")
}

func TestCapabilitySelectKicksOffDemo(t *testing.T) {
	client := &testutil.ScriptedCompletionClient{Replies: []string{"Welcome! Let's begin."}}
	f := newDispatcherFixture(client)
	f.returningSession()

	if err := f.dispatcher.ProcessMessage(context.Background(), testIdentity, "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sess := f.sessions.Get(testIdentity)
	if sess.ActiveCapability == nil || sess.ActiveCapability.Token != "1" {
		t.Fatalf("expected capability 1 active, got %+v", sess.ActiveCapability)
	}
	f.sender.AssertSentCount(t, 1)
	f.sender.AssertLastContains(t, "Welcome! Let's begin.")
	if len(client.Calls) != 1 {
		t.Fatalf("expected one kickoff completion call, got %d", len(client.Calls))
	}
	if !strings.Contains(client.Calls[0].Input, "walkthrough") {
		t.Errorf("kickoff must use a synthesized instruction, got %q", client.Calls[0].Input)
	}
}

func TestInProgressDemoBeatsCapabilitySelection(t *testing.T) {
	// A token that is also a valid menu selection is an in-demo answer while a
	// capability is active.
	client := &testutil.ScriptedCompletionClient{Replies: []string{"Noted, moving on."}}
	f := newDispatcherFixture(client)
	sess := f.returningSession()
	sess.ActiveCapability = f.registry.Resolve("1")

	if err := f.dispatcher.ProcessMessage(context.Background(), testIdentity, "2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.ActiveCapability.Token != "1" {
		t.Errorf("active capability must not change mid-demo, got %s", sess.ActiveCapability.Token)
	}
	if len(client.Calls) != 1 || client.Calls[0].Input != "2" {
		t.Errorf("expected demo step with literal input 2, got %+v", client.Calls)
	}
}

func TestDemoCompletionSendsInsightAndClearsCapability(t *testing.T) {
	client := &testutil.ScriptedCompletionClient{Replies: []string{"That's the whole flow! [DEMO_COMPLETE]"}}
	f := newDispatcherFixture(client)
	sess := f.returningSession()
	sess.ActiveCapability = f.registry.Resolve("1")
	insight := sess.ActiveCapability.Insight

	if err := f.dispatcher.ProcessMessage(context.Background(), testIdentity, "looks good"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.sender.AssertSentCount(t, 2)
	msgs := f.sender.Messages()
	if msgs[0].Body != "That's the whole flow!" {
		t.Errorf("first send must be the stripped reply, got %q", msgs[0].Body)
	}
	if msgs[1].Body != insight {
		t.Errorf("second send must be the capability insight, got %q", msgs[1].Body)
	}
	if sess.ActiveCapability != nil {
		t.Error("completion must clear the active capability")
	}
	if len(sess.History) != 2 {
		t.Errorf("completed exchange keeps history until a new selection, got %d turns", len(sess.History))
	}
}

func TestEngineFailureSendsRecoveryText(t *testing.T) {
	client := &testutil.ScriptedCompletionClient{Err: errors.New("upstream unavailable")}
	f := newDispatcherFixture(client)
	sess := f.returningSession()
	sess.ActiveCapability = f.registry.Resolve("1")

	if err := f.dispatcher.ProcessMessage(context.Background(), testIdentity, "hello"); err == nil {
		t.Fatal("expected error to surface to the caller")
	}
	f.sender.AssertSentCount(t, 1)
	f.sender.AssertLastContains(t, RecoveryText)
	testutil.AssertSpeakers(t, sess.History, models.SpeakerUser)
}

func TestUnrecognizedInputFallsBackToMenu(t *testing.T) {
	f := newDispatcherFixture(&testutil.ScriptedCompletionClient{})
	f.returningSession()

	if err := f.dispatcher.ProcessMessage(context.Background(), testIdentity, "what is this"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.sender.AssertSentCount(t, 1)
	f.sender.AssertLastContains(t, "Reply with a number")
	if sess := f.sessions.Get(testIdentity); len(sess.History) != 0 {
		t.Error("fallback input must not be recorded in history")
	}
}

func TestEmptyBodyRoutesLikeAnyInput(t *testing.T) {
	f := newDispatcherFixture(&testutil.ScriptedCompletionClient{})
	f.returningSession()
	if err := f.dispatcher.ProcessMessage(context.Background(), testIdentity, "   "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.sender.AssertSentCount(t, 1)
	f.sender.AssertLastContains(t, "Reply with a number")
}
