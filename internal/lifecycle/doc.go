// Package lifecycle tracks the daemon process through its states and owns
// the on-disk PID record.
//
// A Controller moves through stopped, starting, running, stopping-graceful,
// and stopping-forced. Stop requests are enqueued rather than acted on
// inline, so the signal path never blocks; the goroutine parked in Wait
// performs the actual transitions and teardown. Graceful shutdown is
// bounded by a grace period, after which the controller escalates to a
// forced stop and Wait reports ErrShutdownTimeout.
//
// The PID record enforces the single live instance rule: acquiring it fails
// with a StartupError while a recorded process is still alive, and silently
// reclaims records left behind by dead processes.
package lifecycle
