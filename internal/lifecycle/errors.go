package lifecycle

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning indicates another live daemon instance owns the PID record.
var ErrAlreadyRunning = errors.New("daemon already running")

// ErrShutdownTimeout indicates graceful shutdown did not finish within the
// grace period and the controller escalated to a forced stop.
var ErrShutdownTimeout = errors.New("graceful shutdown timed out")

// ErrForcedStop indicates shutdown was forced before the drain completed.
var ErrForcedStop = errors.New("forced stop requested")

// StartupError reports why the daemon could not reach the running state.
type StartupError struct {
	Reason string
	PID    int
	Err    error
}

func (e *StartupError) Error() string {
	switch {
	case e.PID > 0 && e.Reason != "":
		return fmt.Sprintf("startup failed: %s (pid %d)", e.Reason, e.PID)
	case e.Reason != "":
		return fmt.Sprintf("startup failed: %s", e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("startup failed: %v", e.Err)
	}
	return "startup failed"
}

func (e *StartupError) Unwrap() error {
	return e.Err
}
