package lifecycle

// ProcessState identifies where the daemon process is in its lifecycle.
type ProcessState string

const (
	// StateStopped means no work is running and the PID record is released.
	StateStopped ProcessState = "stopped"
	// StateStarting means the PID record is claimed and services are coming up.
	StateStarting ProcessState = "starting"
	// StateRunning means the daemon is fully operational.
	StateRunning ProcessState = "running"
	// StateStoppingGraceful means a graceful stop is draining in-flight work.
	StateStoppingGraceful ProcessState = "stopping-graceful"
	// StateStoppingForced means shutdown was escalated and work is being abandoned.
	StateStoppingForced ProcessState = "stopping-forced"
)

func (s ProcessState) String() string {
	return string(s)
}

// Valid reports whether s is one of the known lifecycle states.
func (s ProcessState) Valid() bool {
	switch s {
	case StateStopped, StateStarting, StateRunning, StateStoppingGraceful, StateStoppingForced:
		return true
	}
	return false
}

// Stopping reports whether s is one of the shutdown states.
func (s ProcessState) Stopping() bool {
	return s == StateStoppingGraceful || s == StateStoppingForced
}

// CanTransition reports whether the state machine permits moving from one
// state directly to another. Identity transitions are not permitted.
func CanTransition(from, to ProcessState) bool {
	switch from {
	case StateStopped:
		return to == StateStarting
	case StateStarting:
		return to == StateRunning || to == StateStopped || to.Stopping()
	case StateRunning:
		return to.Stopping()
	case StateStoppingGraceful:
		return to == StateStoppingForced || to == StateStopped
	case StateStoppingForced:
		return to == StateStopped
	}
	return false
}
