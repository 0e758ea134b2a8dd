package engine

// State is the delivery engine lifecycle state for one session.
type State string

const (
	StateConnecting        State = "connecting"
	StateAuthenticating    State = "authenticating"
	StateDelivering        State = "delivering"
	StateAwaitingReconnect State = "awaiting_reconnect"

	StateCompleted State = "completed"
	StateStopped   State = "stopped_by_user"
	StateFailed    State = "failed"
)

// Terminal reports whether the state ends the session lifecycle.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateStopped, StateFailed:
		return true
	}
	return false
}
