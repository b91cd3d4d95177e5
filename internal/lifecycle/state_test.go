package lifecycle_test

import (
	"testing"

	"backer/internal/lifecycle"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct {
		from, to lifecycle.ProcessState
	}{
		{lifecycle.StateStopped, lifecycle.StateStarting},
		{lifecycle.StateStarting, lifecycle.StateRunning},
		{lifecycle.StateStarting, lifecycle.StateStopped},
		{lifecycle.StateStarting, lifecycle.StateStoppingGraceful},
		{lifecycle.StateStarting, lifecycle.StateStoppingForced},
		{lifecycle.StateRunning, lifecycle.StateStoppingGraceful},
		{lifecycle.StateRunning, lifecycle.StateStoppingForced},
		{lifecycle.StateStoppingGraceful, lifecycle.StateStoppingForced},
		{lifecycle.StateStoppingGraceful, lifecycle.StateStopped},
		{lifecycle.StateStoppingForced, lifecycle.StateStopped},
	}
	for _, tc := range allowed {
		if !lifecycle.CanTransition(tc.from, tc.to) {
			t.Errorf("CanTransition(%s, %s) = false, want true", tc.from, tc.to)
		}
	}

	denied := []struct {
		from, to lifecycle.ProcessState
	}{
		{lifecycle.StateStopped, lifecycle.StateRunning},
		{lifecycle.StateStopped, lifecycle.StateStoppingGraceful},
		{lifecycle.StateStopped, lifecycle.StateStopped},
		{lifecycle.StateRunning, lifecycle.StateStarting},
		{lifecycle.StateRunning, lifecycle.StateStopped},
		{lifecycle.StateStoppingForced, lifecycle.StateRunning},
		{lifecycle.StateStoppingForced, lifecycle.StateStoppingGraceful},
		{lifecycle.StateStoppingGraceful, lifecycle.StateRunning},
	}
	for _, tc := range denied {
		if lifecycle.CanTransition(tc.from, tc.to) {
			t.Errorf("CanTransition(%s, %s) = true, want false", tc.from, tc.to)
		}
	}
}

func TestProcessStateHelpers(t *testing.T) {
	for _, state := range []lifecycle.ProcessState{
		lifecycle.StateStopped,
		lifecycle.StateStarting,
		lifecycle.StateRunning,
		lifecycle.StateStoppingGraceful,
		lifecycle.StateStoppingForced,
	} {
		if !state.Valid() {
			t.Errorf("%s should be valid", state)
		}
	}
	if lifecycle.ProcessState("rebooting").Valid() {
		t.Error("unknown state should not be valid")
	}

	if !lifecycle.StateStoppingGraceful.Stopping() || !lifecycle.StateStoppingForced.Stopping() {
		t.Error("stopping states should report Stopping")
	}
	if lifecycle.StateRunning.Stopping() {
		t.Error("running should not report Stopping")
	}
}
