// Package history shapes session turn sequences for the completion service.
//
// The completion API enforces strict user/assistant alternation starting with
// a user turn, so every history slice handed to it must pass through Sanitize.
// Windowing happens here and only here, keeping a single source of truth for
// how much context is sent.
package history

import (
	"log/slog"

	"github.com/mhealthlab/demobot/internal/models"
)

// Window sizes applied before sanitization.
const (
	// DemoWindowSize is the raw turn window for guided capability demos.
	DemoWindowSize = 20
	// FreeformWindowSize is the wider raw turn window for freeform conversation.
	FreeformWindowSize = 30
)

// Window returns the last maxTurns raw turns of the sequence. A non-positive
// maxTurns yields an empty slice. The input is never mutated.
func Window(turns []models.Turn, maxTurns int) []models.Turn {
	if maxTurns <= 0 || len(turns) == 0 {
		return nil
	}
	if len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	out := make([]models.Turn, len(turns))
	copy(out, turns)
	return out
}

// Sanitize returns a new sequence satisfying the shape the completion service
// requires:
//
//	(a) the sequence starts with a user turn (leading assistant turns dropped),
//	(b) no two consecutive turns share a speaker (runs collapse to the first),
//	(c) the sequence does not end with a user turn (a trailing unmatched user
//	    turn is supplied separately as the new input, never as history).
//
// Sanitize is deterministic, idempotent, and does not mutate its input.
func Sanitize(turns []models.Turn) []models.Turn {
	out := make([]models.Turn, 0, len(turns))
	for _, t := range turns {
		if len(out) == 0 {
			if t.Speaker != models.SpeakerUser {
				continue
			}
			out = append(out, t)
			continue
		}
		if out[len(out)-1].Speaker == t.Speaker {
			continue
		}
		out = append(out, t)
	}
	if n := len(out); n > 0 && out[n-1].Speaker == models.SpeakerUser {
		out = out[:n-1]
	}
	return out
}

// Prepare windows then sanitizes a session history for a completion call.
func Prepare(turns []models.Turn, maxTurns int) []models.Turn {
	windowed := Window(turns, maxTurns)
	sanitized := Sanitize(windowed)
	if len(sanitized) != len(windowed) {
		slog.Debug("history.Prepare: sanitizer reshaped window", "raw", len(turns), "windowed", len(windowed), "sanitized", len(sanitized))
	}
	return sanitized
}
