package session

// State is a connection's position in its lifecycle.
//
//	Accepted -> Handshaking -> Established -> Serving -> Closed
//	                 |                           |
//	                 v                           v
//	          HandshakeFailed                ServeError
type State int

const (
	StateAccepted State = iota
	StateHandshaking
	StateEstablished
	StateServing
	StateClosed
	StateHandshakeFailed
	StateServeError
)

var stateNames = [...]string{
	StateAccepted:        "accepted",
	StateHandshaking:     "handshaking",
	StateEstablished:     "established",
	StateServing:         "serving",
	StateClosed:          "closed",
	StateHandshakeFailed: "handshake_failed",
	StateServeError:      "serve_error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateHandshakeFailed || s == StateServeError
}

var transitions = map[State][]State{
	StateAccepted:    {StateHandshaking},
	StateHandshaking: {StateEstablished, StateHandshakeFailed},
	StateEstablished: {StateServing},
	StateServing:     {StateClosed, StateServeError},
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
