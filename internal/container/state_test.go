package container

import "testing"

func TestTransitionTable(t *testing.T) {
	all := []State{StateCreated, StateRunning, StatePaused, StateStopped, StateRemoved}
	allowed := map[State]map[State]bool{
		StateCreated: {StateRunning: true},
		StateRunning: {StatePaused: true, StateStopped: true},
		StatePaused:  {StateRunning: true},
		StateStopped: {StateRunning: true, StateRemoved: true},
		StateRemoved: {},
	}
	for _, from := range all {
		for _, to := range all {
			got := CanTransition(from, to)
			if got != allowed[from][to] {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, allowed[from][to])
			}
		}
	}
}

func TestTerminal(t *testing.T) {
	if !StateRemoved.Terminal() {
		t.Fatalf("removed must be terminal")
	}
	for _, s := range []State{StateCreated, StateRunning, StatePaused, StateStopped} {
		if s.Terminal() {
			t.Fatalf("%s must not be terminal", s)
		}
	}
}

func TestValid(t *testing.T) {
	if !StatePaused.Valid() {
		t.Fatalf("paused must be valid")
	}
	if State("limbo").Valid() {
		t.Fatalf("unknown state must be invalid")
	}
}

func TestInvalidTransitionErrorMessage(t *testing.T) {
	err := &InvalidTransitionError{ID: "abc", From: StateCreated, Requested: StatePaused}
	want := "container abc: invalid transition created -> paused"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}
