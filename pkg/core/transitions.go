package core

import "fmt"

// allowedTransitions is the single transition table shared by every job kind.
// Terminal states map to an empty set.
var allowedTransitions = map[JobStatus]map[JobStatus]struct{}{
	StatusQueued: {
		StatusCollecting: {},
		StatusFailed:     {},
	},
	StatusCollecting: {
		StatusProcessing: {},
		StatusFailed:     {},
	},
	StatusProcessing: {
		StatusAwaitingApproval: {},
		StatusFailed:           {},
	},
	StatusAwaitingApproval: {
		StatusAwaitingApproval:  {},
		StatusCommitted:         {},
		StatusCommittedDegraded: {},
		StatusFailed:            {},
	},
	StatusCommitted:         {},
	StatusCommittedDegraded: {},
	StatusFailed:            {},
}

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// Terminal reports whether no further transitions are possible from s.
func (s JobStatus) Terminal() bool {
	next, ok := allowedTransitions[s]
	return ok && len(next) == 0
}

// NonTerminalStatuses lists every status from which a job can still move.
func NonTerminalStatuses() []JobStatus {
	return []JobStatus{StatusQueued, StatusCollecting, StatusProcessing, StatusAwaitingApproval}
}

// ValidateTransition checks a from -> to pair against the transition table.
func ValidateTransition(from, to JobStatus) error {
	if !from.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, from)
	}
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if from.Terminal() {
		return fmt.Errorf("%w: no transition out of %s", ErrInvalidTransition, from)
	}
	if _, ok := allowedTransitions[from][to]; !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
