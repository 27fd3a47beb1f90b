package run

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{StateActive, StateCompleted, true},
		{StateActive, StatePaused, true},
		{StatePaused, StateActive, true},
		{StateCompleted, StateActive, false},
		{StateFailed, StateActive, false},
		{StateArchived, StateActive, false},
		{StateArchived, StateArchived, false},
		{StateCompleted, StateArchived, true},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTransitionRejectsResurrection(t *testing.T) {
	if _, err := Transition(StateFailed, StateActive); err == nil {
		t.Fatal("expected error resurrecting a Failed run to Active")
	}
}
