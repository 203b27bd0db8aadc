package lifecycle

import "github.com/jmaddaus/cookiewatch/internal/model"

// transitions defines the set of allowed status transitions.
// Each key is a source status, and the value is the set of valid target statuses.
var transitions = map[model.ClaimStatus]map[model.ClaimStatus]bool{
	model.ClaimActive: {
		model.ClaimNudged:    true,
		model.ClaimReleased:  true,
		model.ClaimCompleted: true,
	},
	model.ClaimNudged: {
		model.ClaimActive:    true,
		model.ClaimReleased:  true,
		model.ClaimCompleted: true,
	},
	model.ClaimReleased:  {},
	model.ClaimCompleted: {},
}

// ValidTransition returns true if the status change from -> to is allowed.
func ValidTransition(from, to model.ClaimStatus) bool {
	targets, ok := transitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether a status has no outgoing transitions.
func IsTerminal(s model.ClaimStatus) bool {
	return len(transitions[s]) == 0
}
