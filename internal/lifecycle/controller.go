package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"backer/internal/logging"
)

type stopRequest struct {
	graceful bool
}

// Controller owns the daemon lifecycle state machine and the PID record.
//
// Stop requests are queued and consumed by the goroutine parked in Wait, so
// RequestStop is safe to call from the signal forwarding goroutine and from
// RPC handlers without blocking either.
type Controller struct {
	pidFile *PIDFile
	grace   time.Duration
	logger  *slog.Logger

	mu    sync.Mutex
	state ProcessState

	// Buffered for one graceful and one forced request; the atomics make
	// repeated requests idempotent so the buffer can never fill.
	requests          chan stopRequest
	gracefulRequested atomic.Bool
	forcedRequested   atomic.Bool
}

// New constructs a Controller in the stopped state.
func New(pidFile *PIDFile, grace time.Duration, logger *slog.Logger) *Controller {
	if grace <= 0 {
		grace = 30 * time.Second
	}
	return &Controller{
		pidFile:  pidFile,
		grace:    grace,
		logger:   logging.NewComponentLogger(logger, "lifecycle"),
		state:    StateStopped,
		requests: make(chan stopRequest, 2),
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() ProcessState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// GracePeriod returns the bound on graceful shutdown.
func (c *Controller) GracePeriod() time.Duration {
	return c.grace
}

// PIDFile returns the record owned by this controller.
func (c *Controller) PIDFile() *PIDFile {
	return c.pidFile
}

func (c *Controller) transition(to ProcessState) error {
	c.mu.Lock()
	from := c.state
	if !CanTransition(from, to) {
		c.mu.Unlock()
		return fmt.Errorf("illegal lifecycle transition %s -> %s", from, to)
	}
	c.state = to
	c.mu.Unlock()

	c.logger.Info("lifecycle transition",
		logging.String("from", from.String()),
		logging.String(logging.FieldState, to.String()),
	)
	return nil
}

// Start claims the PID record and brings the daemon to the running state.
// The begin callback runs between starting and running; if it fails the
// controller rolls back to stopped and releases the record. Conflicts with
// a live instance and begin failures both surface as a StartupError.
func (c *Controller) Start(ctx context.Context, begin func(context.Context) error) error {
	c.mu.Lock()
	if c.state != StateStopped {
		state := c.state
		c.mu.Unlock()
		return &StartupError{Reason: fmt.Sprintf("controller is %s, not stopped", state)}
	}
	c.state = StateStarting
	c.mu.Unlock()
	c.logger.Info("lifecycle transition",
		logging.String("from", StateStopped.String()),
		logging.String(logging.FieldState, StateStarting.String()),
	)

	if c.pidFile != nil {
		if err := c.pidFile.Acquire(); err != nil {
			c.rollbackToStopped(false)
			var startupErr *StartupError
			if errors.As(err, &startupErr) {
				return err
			}
			return &StartupError{Reason: "claim pid record", Err: err}
		}
		c.logger.Info("pid record claimed",
			logging.Int(logging.FieldPID, os.Getpid()),
			logging.String("path", c.pidFile.Path()),
		)
	}

	if begin != nil {
		if err := begin(ctx); err != nil {
			c.rollbackToStopped(true)
			return &StartupError{Reason: "services failed to start", Err: err}
		}
	}

	if err := c.transition(StateRunning); err != nil {
		c.rollbackToStopped(true)
		return &StartupError{Reason: "reach running state", Err: err}
	}
	return nil
}

func (c *Controller) rollbackToStopped(releasePID bool) {
	if releasePID && c.pidFile != nil {
		if err := c.pidFile.Release(); err != nil {
			c.logger.Warn("release pid record during rollback", logging.Error(err))
		}
	}
	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()
}

// RequestStop enqueues a stop request and reports whether it was newly
// recorded. Graceful and forced requests are each idempotent; a forced
// request may follow a graceful one to escalate. The call never blocks and
// performs no I/O, so it is safe on the signal delivery path.
func (c *Controller) RequestStop(graceful bool) bool {
	if graceful {
		if !c.gracefulRequested.CompareAndSwap(false, true) {
			return false
		}
	} else {
		if !c.forcedRequested.CompareAndSwap(false, true) {
			return false
		}
	}
	select {
	case c.requests <- stopRequest{graceful: graceful}:
		return true
	default:
		return false
	}
}

// HandleSignals maps the given signals onto stop requests: the first
// delivery requests a graceful stop, any repeat escalates to forced. With
// no arguments SIGINT and SIGTERM are registered. The returned function
// releases the registration.
func (c *Controller) HandleSignals(signals ...os.Signal) func() {
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, signals...)
	done := make(chan struct{})

	go func() {
		graceful := true
		for {
			select {
			case <-done:
				return
			case <-ch:
				c.RequestStop(graceful)
				graceful = false
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}
}

// Wait blocks until a stop request arrives and shutdown completes, then
// releases the PID record. Cancelling ctx counts as a graceful request.
//
// The drain callback performs graceful teardown and is bounded by the grace
// period; when it exceeds the bound the controller escalates to a forced
// stop, invokes abort, and returns ErrShutdownTimeout. A forced request
// (second signal, or an explicit force) short-circuits straight to abort
// and returns ErrForcedStop.
func (c *Controller) Wait(ctx context.Context, drain func(context.Context) error, abort func()) error {
	var first stopRequest
	select {
	case <-ctx.Done():
		first = stopRequest{graceful: true}
	case first = <-c.requests:
	}

	if !first.graceful {
		return c.finishForced(abort, ErrForcedStop)
	}

	if err := c.transition(StateStoppingGraceful); err != nil {
		c.logger.Warn("graceful stop requested in unexpected state", logging.Error(err))
	}

	// The timer below is the sole authority on the grace bound; the drain
	// context is only cancelled once the controller stops waiting, so a
	// drain that finishes right at the deadline still counts as graceful.
	drainCtx, cancelDrain := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelDrain()

	drainDone := make(chan error, 1)
	go func() {
		if drain == nil {
			drainDone <- nil
			return
		}
		drainDone <- drain(drainCtx)
	}()

	timer := time.NewTimer(c.grace)
	defer timer.Stop()

	for {
		select {
		case err := <-drainDone:
			if err != nil {
				c.logger.Warn("graceful drain reported error", logging.Error(err))
			}
			if terr := c.transition(StateStopped); terr != nil {
				c.logger.Warn("finish graceful stop", logging.Error(terr))
			}
			c.releasePID()
			c.logger.Info("daemon stopped cleanly")
			return err
		case <-timer.C:
			c.logger.Error("grace period exhausted, forcing stop",
				logging.Duration("grace", c.grace),
			)
			return c.finishForced(abort, ErrShutdownTimeout)
		case req := <-c.requests:
			if req.graceful {
				continue
			}
			c.logger.Warn("stop escalated to forced by request")
			return c.finishForced(abort, ErrForcedStop)
		}
	}
}

func (c *Controller) finishForced(abort func(), cause error) error {
	if err := c.transition(StateStoppingForced); err != nil {
		c.logger.Warn("enter forced stop", logging.Error(err))
	}
	if abort != nil {
		abort()
	}
	if err := c.transition(StateStopped); err != nil {
		c.logger.Warn("finish forced stop", logging.Error(err))
	}
	c.releasePID()
	c.logger.Warn("daemon stopped forcibly", logging.Error(cause))
	return cause
}

func (c *Controller) releasePID() {
	if c.pidFile == nil {
		return
	}
	if err := c.pidFile.Release(); err != nil {
		c.logger.Warn("release pid record", logging.Error(err))
	}
}
