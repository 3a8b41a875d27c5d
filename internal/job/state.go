package job

import "fmt"

// State is a stage in a job's lifecycle.
type State int

const (
	Received State = iota
	Converting
	Composing
	Compressing
	Delivering
	Cleaned
	Failed
)

var stateNames = [...]string{
	Received:    "received",
	Converting:  "converting",
	Composing:   "composing",
	Compressing: "compressing",
	Delivering:  "delivering",
	Cleaned:     "cleaned",
	Failed:      "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Cleaned || s == Failed
}

// transitions lists the forward edges; Failed is reachable from every
// non-terminal state and is not repeated here.
var transitions = map[State][]State{
	Received:    {Converting},
	Converting:  {Composing, Compressing},
	Composing:   {Compressing},
	Compressing: {Delivering},
	Delivering:  {Cleaned},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == Failed {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
