package supervisor

// State is the lifecycle state of a streaming session.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateAudible
	StateStalled
	StateRetrying
	StateFallingBack
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateAudible:
		return "audible"
	case StateStalled:
		return "stalled"
	case StateRetrying:
		return "retrying"
	case StateFallingBack:
		return "falling_back"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further automatic action follows.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateStopped
}
