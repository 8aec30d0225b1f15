package bridge

// State is a session's position in its lifecycle.
type State int32

// Session states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateDelivering
	StateTerminated
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateDelivering:
		return "delivering"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
