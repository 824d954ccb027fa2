package session

import "daycheck/cmd/internal/restapi"

// State is the session lifecycle state.
type State int

const (
	// StateUnauthenticated means no usable session exists.
	StateUnauthenticated State = iota
	// StateAuthenticating means a login or startup check is in flight.
	StateAuthenticating
	// StateAuthenticated means tokens are stored, the bearer is armed and the user is known.
	StateAuthenticated
	// StateSessionExpired means a stored session was rejected and purged.
	StateSessionExpired
)

// AllStates lists every state in declaration order.
var AllStates = []State{StateUnauthenticated, StateAuthenticating, StateAuthenticated, StateSessionExpired}

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateSessionExpired:
		return "session_expired"
	default:
		return "unknown"
	}
}

func stateLabels() []string {
	out := make([]string, 0, len(AllStates))
	for _, s := range AllStates {
		out = append(out, s.String())
	}
	return out
}

// Snapshot is an immutable view of the session.
type Snapshot struct {
	State   State
	User    *restapi.User
	Loading bool
	Err     string
}

// IsAuthenticated reports whether the snapshot is in StateAuthenticated.
func (s Snapshot) IsAuthenticated() bool { return s.State == StateAuthenticated }

// Result is the outcome of an account operation that does not change the session.
type Result struct {
	Success bool
	Message string
}
