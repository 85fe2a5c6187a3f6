package evaluation

import (
	"github.com/2beens/liftlog/internal/sessions"
)

// ComputeStatus classifies a completed session by its duration against the
// target. An hour over the target counts as exceeded; without a target a
// full hour counts as met, and exceeded is unreachable.
func ComputeStatus(durationMinutes int, targetMinutes *int) sessions.Status {
	if targetMinutes != nil {
		switch {
		case durationMinutes >= *targetMinutes+60:
			return sessions.StatusExceeded
		case durationMinutes >= *targetMinutes:
			return sessions.StatusTargetMet
		default:
			return sessions.StatusPartial
		}
	}

	if durationMinutes >= 60 {
		return sessions.StatusTargetMet
	}
	return sessions.StatusPartial
}
