package session

// State of a room session.
type State int

const (
	Idle State = iota
	Joining
	Active
	Closed
)

func (s State) String() string {
	switch s {
	case Joining:
		return "joining"
	case Active:
		return "active"
	case Closed:
		return "closed"
	default:
		return "idle"
	}
}
