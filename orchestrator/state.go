package orchestrator

// State is the stage a run has reached.
type State int

const (
	StateIdle State = iota
	StateInputPrepared
	StateSubmitted
	StatePolling
	StateFetched
	StatePlaced
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateIdle:          "idle",
	StateInputPrepared: "input_prepared",
	StateSubmitted:     "submitted",
	StatePolling:       "polling",
	StateFetched:       "fetched",
	StatePlaced:        "placed",
	StateDone:          "done",
	StateFailed:        "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
