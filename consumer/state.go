package consumer

// State is the lifecycle phase of one partition consumer.
type State int

const (
	StateUnassigned State = iota
	StateLeasing
	StateActive
	StateDraining
	StateReleased
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnassigned:
		return "Unassigned"
	case StateLeasing:
		return "Leasing"
	case StateActive:
		return "Active"
	case StateDraining:
		return "Draining"
	case StateReleased:
		return "Released"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the consumer can no longer make progress.
func (s State) Terminal() bool {
	return s == StateReleased || s == StateFailed
}
