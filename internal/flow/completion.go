// Package flow implements the per-message routing state machine and the demo
// and freeform conversation engines.
package flow

import "strings"

// CompletionMarker is the reserved literal the completion service emits to
// signal that a guided capability demo has concluded. The marker convention is
// isolated in this file; the state machine only ever sees the parsed outcome.
const CompletionMarker = "[DEMO_COMPLETE]"

// StepOutcome is the tagged result of parsing a raw completion response.
type StepOutcome struct {
	// Text is the response with every marker occurrence removed and outer
	// whitespace trimmed. It may be empty.
	Text string
	// Complete reports whether the raw response contained the marker.
	Complete bool
}

// ParseCompletionMarker detects and strips the completion marker from a raw
// completion-service response. Detection is a substring search: the marker is
// honored anywhere in the text, not only as a suffix. Only the marker token
// itself is removed; surrounding content is preserved.
func ParseCompletionMarker(raw string) StepOutcome {
	if !strings.Contains(raw, CompletionMarker) {
		return StepOutcome{Text: strings.TrimSpace(raw)}
	}
	return StepOutcome{
		Text:     strings.TrimSpace(strings.ReplaceAll(raw, CompletionMarker, "")),
		Complete: true,
	}
}
