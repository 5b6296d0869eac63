package supervisor

// State of the gateway connection.
//
//	Idle → Connecting → Connected → (ConnectionLost | Disconnecting) → Idle
type State int32

const (
	Idle State = iota
	Connecting
	Connected
	ConnectionLost
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case ConnectionLost:
		return "connection_lost"
	case Disconnecting:
		return "disconnecting"
	}
	return "unknown"
}
