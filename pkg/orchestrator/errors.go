package orchestrator

import "errors"

var (
	// ErrNoActivePersona is returned when a turn requires a persona and the
	// session has none.
	ErrNoActivePersona = errors.New("no active persona")

	// ErrGeneration wraps failures from the language model. No part of the
	// exchange is persisted when generation fails.
	ErrGeneration = errors.New("generating reply")
)

// UserFacingMessage maps an error to a short message suitable for showing
// directly to the person chatting.
func UserFacingMessage(err error) string {
	switch {
	case errors.Is(err, ErrNoActivePersona):
		return "No persona is active. Pick one first."
	case errors.Is(err, ErrGeneration):
		return "I couldn't come up with a reply just now. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}
