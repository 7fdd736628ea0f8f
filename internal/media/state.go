package media

import "fmt"

// State is the lifecycle state of a transfer job.
type State int

const (
	StatePending State = iota
	StateInProgress
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInProgress:
		return "in_progress"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{StatePending, StateInProgress, StateCompleted, StateFailed} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown job state %q", b)
}

// IsTerminal reports whether the state can no longer change.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransition reports whether moving from s to next is a legal step.
// A pending job may fail directly when it is cancelled before it starts.
func (s State) CanTransition(next State) bool {
	switch s {
	case StatePending:
		return next == StateInProgress || next == StateFailed
	case StateInProgress:
		return next == StateCompleted || next == StateFailed
	default:
		return false
	}
}
