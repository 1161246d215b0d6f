package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mhealthlab/demobot/internal/capability"
	"github.com/mhealthlab/demobot/internal/models"
	"github.com/mhealthlab/demobot/internal/session"
)

// Administrative command tokens, matched case-insensitively against the
// trimmed message body before any other routing.
const (
	// CommandReset clears the session and returns to demo mode.
	CommandReset = "reset"
	// CommandFreeform switches the session to open conversation.
	CommandFreeform = "chat"
	// CommandDemo switches the session back to guided demo mode.
	CommandDemo = "demo"
	// MenuReturnToken is the reserved input returning to capability selection.
	MenuReturnToken = "0"
)

// Sender delivers one outbound text message. The messaging services satisfy
// this; tests substitute a recorder.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// route is one guard/handler pair in the dispatch table. The first matching
// route wins; precedence is the table order, nothing else.
type route struct {
	name   string
	match  func(sess *models.Session, input string) bool
	handle func(ctx context.Context, sess *models.Session, input string) error
}

// Dispatcher is the single entry point invoked once per inbound message. It
// owns the routing precedence among administrative handling, the freeform
// engine, the demo engine, and menu navigation, plus the side effect of
// sending replies.
//
// Engine failures are caught here and only here: the user receives
// RecoveryText, the triggering user turn stays in history, and no assistant
// turn is appended for the failed exchange.
type Dispatcher struct {
	sessions session.Store
	registry *capability.Registry
	demo     *DemoEngine
	freeform *FreeformEngine
	sender   Sender
	routes   []route
}

// NewDispatcher wires the dispatcher with its collaborators and builds the
// ordered route table.
func NewDispatcher(sessions session.Store, registry *capability.Registry, demo *DemoEngine, freeform *FreeformEngine, sender Sender) *Dispatcher {
	d := &Dispatcher{
		sessions: sessions,
		registry: registry,
		demo:     demo,
		freeform: freeform,
		sender:   sender,
	}
	d.routes = []route{
		{
			name:   "admin_command",
			match:  func(_ *models.Session, input string) bool { return isAdminCommand(input) },
			handle: d.handleAdminCommand,
		},
		{
			name:   "freeform_active",
			match:  func(sess *models.Session, _ string) bool { return sess.Mode == models.ModeFreeform },
			handle: d.handleFreeform,
		},
		{
			name:   "first_contact",
			match:  func(sess *models.Session, _ string) bool { return sess.FirstContact },
			handle: d.handleFirstContact,
		},
		{
			name:   "menu_return",
			match:  func(_ *models.Session, input string) bool { return input == MenuReturnToken },
			handle: d.handleMenuReturn,
		},
		{
			// Mid-capability replies take precedence over fresh capability
			// selection: the same token space serves both menu selection and
			// in-demo answers.
			name:   "capability_in_progress",
			match:  func(sess *models.Session, _ string) bool { return sess.ActiveCapability != nil },
			handle: d.handleDemoStep,
		},
		{
			name:   "capability_select",
			match:  func(_ *models.Session, input string) bool { return d.registry.Resolve(input) != nil },
			handle: d.handleCapabilitySelect,
		},
		{
			name:   "fallback",
			match:  func(_ *models.Session, _ string) bool { return true },
			handle: d.handleFallback,
		},
	}
	return d
}

// ProcessMessage routes one inbound message to completion. Absent or empty
// text is treated as an empty string and still routed. The returned error is
// for the caller's logging only; the user-facing recovery reply has already
// been attempted by the time it is returned.
func (d *Dispatcher) ProcessMessage(ctx context.Context, from, body string) error {
	if from == "" {
		return models.ErrEmptyIdentity
	}
	input := strings.TrimSpace(body)
	sess := d.sessions.Get(from)

	for _, r := range d.routes {
		if !r.match(sess, input) {
			continue
		}
		slog.Debug("Dispatcher.ProcessMessage: route matched", "identity", from, "route", r.name, "input_length", len(input))
		if err := r.handle(ctx, sess, input); err != nil {
			slog.Error("Dispatcher.ProcessMessage: handler failed", "error", err, "identity", from, "route", r.name)
			d.send(ctx, sess.Identity, RecoveryText)
			return fmt.Errorf("route %s: %w", r.name, err)
		}
		return nil
	}
	// Unreachable: the fallback route matches everything.
	return fmt.Errorf("no route matched for %s", from)
}

func isAdminCommand(input string) bool {
	switch strings.ToLower(input) {
	case CommandReset, CommandFreeform, CommandDemo:
		return true
	default:
		return false
	}
}

// handleAdminCommand applies reset / switch-to-freeform / switch-to-demo.
func (d *Dispatcher) handleAdminCommand(ctx context.Context, sess *models.Session, input string) error {
	switch strings.ToLower(input) {
	case CommandReset:
		d.sessions.Reset(sess.Identity)
		slog.Info("Dispatcher.handleAdminCommand: session reset", "identity", sess.Identity)
		d.send(ctx, sess.Identity, ResetConfirmationText+"\n\n"+d.registry.MenuText())
	case CommandFreeform:
		sess.Mode = models.ModeFreeform
		sess.ActiveCapability = nil
		sess.FirstContact = false
		slog.Info("Dispatcher.handleAdminCommand: switched to freeform", "identity", sess.Identity)
		d.send(ctx, sess.Identity, FreeformConfirmationText)
	case CommandDemo:
		sess.Mode = models.ModeDemo
		sess.ActiveCapability = nil
		sess.FirstContact = false
		sess.ClearHistory()
		slog.Info("Dispatcher.handleAdminCommand: switched to demo", "identity", sess.Identity)
		d.send(ctx, sess.Identity, DemoConfirmationText+"\n\n"+d.registry.MenuText())
	default:
		return fmt.Errorf("unrecognized admin command %q", input)
	}
	return nil
}

func (d *Dispatcher) handleFreeform(ctx context.Context, sess *models.Session, input string) error {
	reply, err := d.freeform.Step(ctx, sess, input)
	if err != nil {
		return err
	}
	d.send(ctx, sess.Identity, reply)
	return nil
}

// handleFirstContact consumes the first-contact flag and emits the welcome
// menu. The message content itself is discarded.
func (d *Dispatcher) handleFirstContact(ctx context.Context, sess *models.Session, _ string) error {
	sess.FirstContact = false
	slog.Info("Dispatcher.handleFirstContact: welcoming new identity", "identity", sess.Identity)
	d.send(ctx, sess.Identity, WelcomeText+"\n\n"+d.registry.MenuText())
	return nil
}

func (d *Dispatcher) handleMenuReturn(ctx context.Context, sess *models.Session, _ string) error {
	sess.ActiveCapability = nil
	sess.ClearHistory()
	d.send(ctx, sess.Identity, d.registry.MenuText())
	return nil
}

// handleDemoStep forwards a mid-capability message to the demo engine and, on
// completion, sends the capability insight as a second outbound message
// before clearing the active capability.
func (d *Dispatcher) handleDemoStep(ctx context.Context, sess *models.Session, input string) error {
	result, err := d.demo.Step(ctx, sess, input)
	if err != nil {
		return err
	}
	d.finishDemoStep(ctx, sess, result)
	return nil
}

func (d *Dispatcher) handleCapabilitySelect(ctx context.Context, sess *models.Session, input string) error {
	selected := d.registry.Resolve(input)
	if selected == nil {
		return fmt.Errorf("capability token %q vanished between match and handle", input)
	}
	sess.ActiveCapability = selected
	sess.ClearHistory()
	slog.Info("Dispatcher.handleCapabilitySelect: capability selected", "identity", sess.Identity, "capability", selected.Token)

	result, err := d.demo.Kickoff(ctx, sess)
	if err != nil {
		return err
	}
	d.finishDemoStep(ctx, sess, result)
	return nil
}

func (d *Dispatcher) handleFallback(ctx context.Context, sess *models.Session, input string) error {
	slog.Debug("Dispatcher.handleFallback: unrecognized input, showing menu", "identity", sess.Identity, "input_length", len(input))
	d.send(ctx, sess.Identity, d.registry.MenuText())
	return nil
}

func (d *Dispatcher) finishDemoStep(ctx context.Context, sess *models.Session, result StepResult) {
	d.send(ctx, sess.Identity, result.Reply)
	if !result.Complete {
		return
	}
	if active := sess.ActiveCapability; active != nil {
		d.send(ctx, sess.Identity, active.Insight)
		slog.Info("Dispatcher.finishDemoStep: capability demo completed", "identity", sess.Identity, "capability", active.Token)
	}
	sess.ActiveCapability = nil
}

// send delivers one outbound message best effort. A delivery failure is
// logged but never rolls back the history append that produced the text and
// never surfaces to the transport caller. Empty bodies are skipped: the
// completion service may legitimately return an empty turn, but transports
// reject empty sends.
func (d *Dispatcher) send(ctx context.Context, to, body string) {
	if body == "" {
		slog.Debug("Dispatcher.send: skipping empty message", "to", to)
		return
	}
	if err := d.sender.SendMessage(ctx, to, body); err != nil {
		slog.Error("Dispatcher.send: delivery failed", "error", err, "to", to, "body_length", len(body))
	}
}
