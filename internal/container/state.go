package container

import "fmt"

// State is the lifecycle state of a container record.
//
// State Machine:
// Created -> Running -> Paused -> Running -> Stopped -> Removed
// Stopped may re-enter Running via an explicit start. Removed is terminal
// and is only reachable from Stopped.
type State string

const (
	StateCreated State = "created"
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
	StateRemoved State = "removed"
)

// transitions is the only source of truth for legal state changes.
var transitions = map[State][]State{
	StateCreated: {StateRunning},
	StateRunning: {StatePaused, StateStopped},
	StatePaused:  {StateRunning},
	StateStopped: {StateRunning, StateRemoved},
	StateRemoved: {},
}

// InvalidTransitionError reports a transition request that the table above
// does not allow. The record is left untouched when this is returned.
type InvalidTransitionError struct {
	ID        string
	From      State
	Requested State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("container %s: invalid transition %s -> %s", e.ID, e.From, e.Requested)
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a state permits no further transitions.
func (s State) Terminal() bool { return len(transitions[s]) == 0 }

// Valid reports whether s is one of the known lifecycle states.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s State) String() string { return string(s) }
