package trainer

// State is a worker's phase: Initializing -> Training <-> Evaluating -> Terminating.
type State int

const (
	Initializing State = iota
	Training
	Evaluating
	Terminating
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Training:
		return "training"
	case Evaluating:
		return "evaluating"
	case Terminating:
		return "terminating"
	}
	return "unknown"
}
