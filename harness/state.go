package harness

// ConnectionState is where a Player is in its connection lifecycle.
type ConnectionState int32

const (
	StateConnecting ConnectionState = iota
	StateOpen
	StateClosed
	StateErrored
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateOpen:
		return "Open"
	case StateClosed:
		return "Closed"
	case StateErrored:
		return "Errored"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further traffic can happen in this state.
func (s ConnectionState) Terminal() bool {
	return s == StateClosed || s == StateErrored
}

// canTransition encodes the allowed lifecycle moves. Nothing returns to Open and
// Closed is final; Errored may still be closed explicitly.
func canTransition(from, to ConnectionState) bool {
	switch from {
	case StateConnecting:
		return to == StateOpen || to == StateErrored || to == StateClosed
	case StateOpen:
		return to == StateClosed || to == StateErrored
	case StateErrored:
		return to == StateClosed
	default:
		return false
	}
}
