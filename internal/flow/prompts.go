package flow

import (
	"fmt"

	"github.com/mhealthlab/demobot/internal/models"
)

// User-facing message templates. All capability content is simulated narrative
// generated by the completion service; these strings are the fixed framing
// around it.
const (
	// WelcomeText prefixes the menu on first contact.
	WelcomeText = "👋 Hi! I'm a demo assistant. Everything here is a simulation so you can explore safely."

	// RecoveryText is the only failure message end users ever see.
	RecoveryText = "⚠️ Something went wrong on our side. Please try again, or send \"reset\" to start over."

	// ResetConfirmationText acknowledges a reset command.
	ResetConfirmationText = "🔄 Your session has been reset."

	// FreeformConfirmationText acknowledges switching to open conversation.
	FreeformConfirmationText = "💬 Switched to open conversation. Send \"demo\" to go back to the guided demos, or \"reset\" to start over."

	// DemoConfirmationText acknowledges switching back to guided demo mode.
	DemoConfirmationText = "🎯 Back to guided demos."
)

// DefaultFreeformSystemPrompt is the standing instruction for freeform mode
// when no prompt file is configured.
const DefaultFreeformSystemPrompt = "You are a friendly product assistant chatting over WhatsApp. " +
	"Keep replies short and conversational, suitable for a phone screen. " +
	"You demonstrate a simulated health companion: never give real medical advice, " +
	"and remind the user that content is simulated if they ask for actual guidance."

// DemoSystemPrompt builds the capability-specific system instruction for one
// guided demo exchange. It names the capability, bounds the walkthrough, and
// defines the completion-marker contract.
func DemoSystemPrompt(cap *models.Capability) string {
	return fmt.Sprintf("You are narrating a guided, simulated walkthrough of one product capability over WhatsApp: %s. "+
		"Stay on this capability only. Keep each reply short (a few sentences), ask at most one question at a time, "+
		"and bring the walkthrough to a natural close within about five exchanges. "+
		"All data in the walkthrough is invented demo content; never present it as real. "+
		"When the walkthrough is finished, include the literal marker %s in your reply.",
		cap.Description, CompletionMarker)
}

// KickoffInstruction synthesizes the opening user turn recorded when a
// capability is selected from the menu. It is never the literal text the user
// typed; the bracketed prefix keeps it visibly distinct from real user content
// in stored history.
func KickoffInstruction(cap *models.Capability) string {
	return fmt.Sprintf("[demo kickoff] Start the guided walkthrough of: %s. Greet me briefly and begin the first step.", cap.Description)
}
