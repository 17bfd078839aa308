package gateway

// State is the lifecycle position of one client connection.
type State int32

const (
	// StateConnected: upgraded, snapshot not yet delivered.
	StateConnected State = iota
	// StateActive: snapshot delivered; updates are forwarded and broadcasts relayed.
	StateActive
	// StateDisconnected is terminal. The observer has left the hub.
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
