package mcpclient

// State is the lifecycle state of a Session.
type State int

const (
	// StateUninitialized is the state of a new session.
	StateUninitialized State = iota
	// StateInitializing is set while the connection is being established.
	StateInitializing
	// StateReady means the session can list and call tools.
	StateReady
	// StateClosing is set while the resources are being released.
	StateClosing
	// StateClosed is final.
	StateClosed
)

var stateNames = map[State]string{
	StateUninitialized: "Uninitialized",
	StateInitializing:  "Initializing",
	StateReady:         "Ready",
	StateClosing:       "Closing",
	StateClosed:        "Closed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "Unknown"
}
