// Package capability provides the static catalogue of guided demo topics.
package capability

import (
	"fmt"
	"strings"

	"github.com/mhealthlab/demobot/internal/models"
)

// Registry is an immutable, token-keyed catalogue of demo capabilities.
// Lookups fail closed: an unknown token resolves to nothing and the router
// falls back to the menu.
type Registry struct {
	byToken map[string]*models.Capability
	ordered []*models.Capability
}

// NewRegistry builds a registry from the given capabilities.
// Tokens must be unique; a duplicate token panics since the catalogue is
// compiled-in configuration, not runtime input.
func NewRegistry(caps []models.Capability) *Registry {
	r := &Registry{byToken: make(map[string]*models.Capability, len(caps))}
	for i := range caps {
		c := &caps[i]
		if _, dup := r.byToken[c.Token]; dup {
			panic(fmt.Sprintf("capability: duplicate token %q", c.Token))
		}
		r.byToken[c.Token] = c
		r.ordered = append(r.ordered, c)
	}
	return r
}

// Resolve returns the capability for the token, or nil if the token matches
// no catalogue entry.
func (r *Registry) Resolve(token string) *models.Capability {
	return r.byToken[strings.TrimSpace(token)]
}

// Capabilities returns the catalogue entries in menu order.
func (r *Registry) Capabilities() []*models.Capability {
	return r.ordered
}

// MenuText renders the selection menu shown on first contact, on menu return,
// and as the fallback for unrecognized input.
func (r *Registry) MenuText() string {
	var b strings.Builder
	b.WriteString("Here is what I can show you. Reply with a number to start a guided demo:\n\n")
	for _, c := range r.ordered {
		fmt.Fprintf(&b, "%s. %s\n", c.Token, c.Description)
	}
	b.WriteString("\nReply 0 at any time to come back to this menu, or \"chat\" for an open conversation.")
	return b.String()
}

// DefaultCatalogue returns the built-in demo capabilities. All capability
// content is simulated narrative produced by the completion service; nothing
// here performs real health logic.
func DefaultCatalogue() []models.Capability {
	return []models.Capability{
		{
			Token:       "1",
			Description: "Medication reminders — set up and preview a daily reminder conversation",
			Insight:     "💡 In the full product, reminders adapt to your schedule and confirm each dose with a single tap.",
		},
		{
			Token:       "2",
			Description: "Symptom check-in — walk through a guided symptom questionnaire",
			Insight:     "💡 Check-ins are summarized for your care team so visits start from real data, not recall.",
		},
		{
			Token:       "3",
			Description: "Appointment booking — book a mock appointment end to end",
			Insight:     "💡 Booking connects to your clinic's calendar, so confirmed slots are real and reschedules take one message.",
		},
		{
			Token:       "4",
			Description: "Lab results explained — see how results are translated into plain language",
			Insight:     "💡 Explanations are reviewed templates: the assistant rephrases, it never diagnoses.",
		},
		{
			Token:       "5",
			Description: "Healthy habit coaching — try a short coaching exchange",
			Insight:     "💡 Coaching plans build up over weeks, with prompts timed to when you actually follow through.",
		},
		{
			Token:       "6",
			Description: "Care team messages — preview secure messaging with a nurse",
			Insight:     "💡 Real care-team messages are answered by licensed staff; the assistant only handles triage and routing.",
		},
	}
}

// NewDefaultRegistry builds a registry over the built-in catalogue.
func NewDefaultRegistry() *Registry {
	return NewRegistry(DefaultCatalogue())
}
