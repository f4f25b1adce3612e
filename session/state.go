package session

type State int32

const (
	Starting State = iota
	Active
	Draining
	Terminated
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Active:
		return "active"
	case Draining:
		return "draining"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Live reports whether a session in this state still owns its connection.
func (s State) Live() bool {
	return s == Starting || s == Active
}
