package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"backer/internal/config"
	"backer/internal/history"
	"backer/internal/lifecycle"
	"backer/internal/logging"
	"backer/internal/metrics"
	"backer/internal/notifications"
	"backer/internal/scheduler"
)

// Daemon owns the background services and enforces single-instance execution
// through a lock file next to the daemon log.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *history.Store
	scheduler *scheduler.Scheduler
	notifier  notifications.Service
	logPath   string

	lockPath string
	lock     *flock.Flock

	state       func() lifecycle.ProcessState
	stopRequest func(graceful bool) bool

	running   atomic.Bool
	startedAt time.Time

	api    *apiServer
	ctx    context.Context
	cancel context.CancelFunc
}

// Option adjusts daemon construction.
type Option func(*Daemon)

// WithStateSource supplies the lifecycle state reported by Status. Without it
// the daemon falls back to a coarse running/stopped answer.
func WithStateSource(fn func() lifecycle.ProcessState) Option {
	return func(d *Daemon) {
		d.state = fn
	}
}

// WithStopRequester routes RequestStop through the lifecycle controller so
// IPC stop requests follow the same path as signals.
func WithStopRequester(fn func(graceful bool) bool) Option {
	return func(d *Daemon) {
		d.stopRequest = fn
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *history.Store, sched *scheduler.Scheduler, notifier notifications.Service, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || sched == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, scheduler, and logger")
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	d := &Daemon{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		scheduler: sched,
		notifier:  notifier,
		logPath:   cfg.LogFilePath(),
		lockPath:  cfg.LockFilePath(),
		lock:      flock.New(cfg.LockFilePath()),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the instance lock, launches the scheduler, and brings up the
// HTTP API when one is configured.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another backer daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.scheduler.Start(d.ctx); err != nil {
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		_ = d.lock.Unlock()
		return fmt.Errorf("start scheduler: %w", err)
	}

	api, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		d.rollbackStart()
		return fmt.Errorf("configure api server: %w", err)
	}
	if api != nil {
		if err := api.start(d.ctx); err != nil {
			d.rollbackStart()
			return err
		}
		d.api = api
	}

	d.running.Store(true)
	d.startedAt = time.Now()
	metrics.SetDaemonState(string(lifecycle.StateRunning), true)
	d.logger.Info("backer daemon started", logging.String("lock", d.lockPath))
	return nil
}

func (d *Daemon) rollbackStart() {
	d.scheduler.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.ctx = nil
	_ = d.lock.Unlock()
}

// Stop drains background services and releases the instance lock. The history
// store stays open so status queries keep working until Close.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	d.api = nil
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.scheduler.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	metrics.SetDaemonState(string(lifecycle.StateStopped), false)
	d.logger.Info("backer daemon stopped")
}

// Abort tears the daemon down without waiting for lane workers to drain.
// Scheduler goroutines share the daemon context, so cancelling it is enough
// for a process that is about to exit.
func (d *Daemon) Abort() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	d.api = nil
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	metrics.SetDaemonState(string(lifecycle.StateStopped), false)
	d.logger.Warn("backer daemon aborted")
}

// Close stops the daemon and closes the history store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// RequestStop asks the process to shut down. It reports whether the request
// was accepted rather than waiting for the shutdown to complete.
func (d *Daemon) RequestStop(graceful bool) bool {
	if d.stopRequest != nil {
		return d.stopRequest(graceful)
	}
	d.Stop()
	return true
}

// TriggerBackup queues an immediate backup sweep. An empty filesystem name
// targets every enabled filesystem.
func (d *Daemon) TriggerBackup(filesystem string, force bool) ([]string, error) {
	return d.scheduler.TriggerBackup(filesystem, force)
}

// TriggerIndex queues an immediate index rebuild for the named filesystem, or
// for all enabled filesystems when the name is empty.
func (d *Daemon) TriggerIndex(filesystem string) ([]string, error) {
	return d.scheduler.TriggerIndex(filesystem)
}

// History returns recorded runs matching the filter.
func (d *Daemon) History(ctx context.Context, filter history.Filter) ([]history.Run, error) {
	if d.store == nil {
		return nil, errors.New("history store unavailable")
	}
	return d.store.Runs(ctx, filter)
}

// TestNotification sends a test message through the configured ntfy topic.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg == nil {
		return false, "configuration unavailable", errors.New("configuration unavailable")
	}
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, notifications.Payload{"message": "backer test notification"}); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status reports the daemon runtime state, scheduler lanes, and a summary of
// the last day of recorded runs.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		LockFilePath:  d.lockPath,
		HistoryDBPath: d.store.Path(),
		Scheduler:     d.scheduler.Status(),
		RSSBytes:      residentSetBytes(),
	}

	if d.state != nil {
		status.State = string(d.state())
	} else if status.Running {
		status.State = string(lifecycle.StateRunning)
	} else {
		status.State = string(lifecycle.StateStopped)
	}

	if status.Running {
		status.StartedAt = d.startedAt
		status.UptimeSeconds = int64(time.Since(d.startedAt).Seconds())
	}

	summaries, err := d.store.Summarize(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		d.logger.Warn("failed to summarize run history", logging.Error(err))
	} else {
		for _, s := range summaries {
			status.Summaries = append(status.Summaries, RunSummary{
				Kind:    string(s.Kind),
				Total:   s.Total,
				Failed:  s.Failed,
				LastRun: s.LastRun,
			})
		}
	}
	return status
}
