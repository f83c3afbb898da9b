package domain

// transitions lists every permitted (from, to) pair. Anything absent is invalid.
var transitions = map[State]map[State]bool{
	StateRequested:  {StateInProgress: true, StateRejected: true},
	StateInProgress: {StatePaused: true, StateCompleted: true},
	StatePaused:     {StateInProgress: true},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to State) bool {
	return transitions[from][to]
}

// SettableTarget reports whether a client may request target through a
// plain state change. Rejection has its own operation.
func SettableTarget(target State) bool {
	switch target {
	case StateInProgress, StatePaused, StateCompleted:
		return true
	default:
		return false
	}
}

