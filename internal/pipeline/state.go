package pipeline

import (
	"errors"
	"fmt"
)

// State is a position in the request lifecycle.
type State int

const (
	StateReceived State = iota
	StateValidating
	StateDownloading
	StateConverting
	StateSizeChecking
	StateDelivering
	StateCompleted
	StateFailed
)

var stateNames = map[State]string{
	StateReceived:     "received",
	StateValidating:   "validating",
	StateDownloading:  "downloading",
	StateConverting:   "converting",
	StateSizeChecking: "size_checking",
	StateDelivering:   "delivering",
	StateCompleted:    "completed",
	StateFailed:       "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// transitions lists the states reachable from each state. Terminal states
// have no entry.
var transitions = map[State][]State{
	StateReceived:     {StateValidating, StateFailed},
	StateValidating:   {StateDownloading, StateFailed},
	StateDownloading:  {StateConverting, StateFailed},
	StateConverting:   {StateSizeChecking, StateFailed},
	StateSizeChecking: {StateDelivering, StateFailed},
	StateDelivering:   {StateCompleted, StateFailed},
}

// ErrInvalidTransition is returned when a state change is not declared.
var ErrInvalidTransition = errors.New("invalid state transition")

// CanTransition reports whether to is reachable from s in one step.
func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// machine tracks the current state and the path taken.
type machine struct {
	state   State
	history []State
}

func newMachine() *machine {
	return &machine{state: StateReceived, history: []State{StateReceived}}
}

func (m *machine) advance(to State) error {
	if !m.state.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, to)
	}
	m.state = to
	m.history = append(m.history, to)
	return nil
}
