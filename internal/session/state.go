package session

import "time"

// State is the connection lifecycle state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
	// StateReconnecting waits out the backoff delay before the next
	// automatic dial. It is only entered after an unplanned loss.
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// transitions lists every legal edge of the lifecycle.
var transitions = map[State][]State{
	StateDisconnected: {StateConnecting, StateReconnecting},
	StateConnecting:   {StateOpen, StateDisconnected, StateClosing},
	StateOpen:         {StateDisconnected, StateClosing},
	StateClosing:      {StateDisconnected},
	StateReconnecting: {StateConnecting, StateClosing},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ReconnectPolicy bounds automatic reconnection with a linear backoff.
type ReconnectPolicy struct {
	Enabled     bool
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultReconnectPolicy allows 3 attempts starting at 1s.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{Enabled: true, MaxAttempts: 3, BaseDelay: time.Second}
}

// Next returns the delay before the next attempt given how many attempts have
// already been made since the last successful open, or false once the bound
// is reached.
func (p ReconnectPolicy) Next(attempts int) (time.Duration, bool) {
	if !p.Enabled || attempts >= p.MaxAttempts {
		return 0, false
	}
	return time.Duration(attempts+1) * p.BaseDelay, true
}
