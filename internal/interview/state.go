package interview

// State is the coordinator's turn state. Exactly one value holds at a time.
type State int

const (
	// Idle: no attempt has started, or bootstrap failed.
	Idle State = iota
	// Processing: waiting for the interviewer's next turn.
	Processing
	// Speaking: the interviewer holds the turn.
	Speaking
	// Listening: a capture window is open (or armed, in manual mode).
	Listening
	// Ended: the attempt is over.
	Ended
)

var stateNames = [...]string{
	Idle:       "IDLE",
	Processing: "PROCESSING",
	Speaking:   "SPEAKING",
	Listening:  "LISTENING",
	Ended:      "ENDED",
}

// String returns the upper-case state name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// canStart reports whether a new attempt may begin from s.
func (s State) canStart() bool { return s == Idle || s == Ended }
