package call

// State is the connection state of a call.
type State int32

const (
	// Disconnected means no session exists.
	Disconnected State = iota

	// Connecting means the microphone is open and the bridge handshake is in
	// flight.
	Connecting

	// Connected means audio is streaming to the bridge.
	Connected

	// Simulating means the bridge could not be reached and activity is
	// synthesized locally.
	Simulating
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Simulating:
		return "simulating"
	default:
		return "unknown"
	}
}

// CanTransition reports whether the state machine allows moving from s to
// next. Simulating is only reachable from Connecting, and every live state
// may end the call.
func (s State) CanTransition(next State) bool {
	switch s {
	case Disconnected:
		return next == Connecting
	case Connecting:
		return next == Connected || next == Simulating || next == Disconnected
	case Connected, Simulating:
		return next == Disconnected
	}
	return false
}

// Live reports whether a session exists in state s.
func (s State) Live() bool { return s != Disconnected }
