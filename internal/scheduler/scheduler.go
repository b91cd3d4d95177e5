package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"backer/internal/backup"
	"backer/internal/config"
	"backer/internal/history"
	"backer/internal/logging"
	"backer/internal/notifications"
)

// Engine is the slice of the backup engine the scheduler drives.
type Engine interface {
	Backup(ctx context.Context, remote backup.Remote, fs, id string, force bool) (*backup.Result, error)
	Index(ctx context.Context, remote backup.Remote, fs, id string) error
}

// RemoteSource resolves the remote store serving a filesystem.
type RemoteSource interface {
	ForFilesystem(ctx context.Context, fsName string) (backup.Remote, error)
}

const requestBacklog = 64

type request struct {
	filesystem string
	force      bool
}

type lane struct {
	kind     history.Kind
	requests chan request
	next     map[string]time.Time
	logger   *slog.Logger
}

type laneInfo struct {
	lastRun   time.Time
	lastError string
}

// Scheduler coordinates the backup and index lanes over the configured
// filesystems.
type Scheduler struct {
	cfg      *config.Config
	engine   Engine
	remotes  RemoteSource
	store    *history.Store
	notifier notifications.Service
	logger   *slog.Logger

	pollInterval time.Duration
	now          func() time.Time

	lanes []*lane

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	info    map[history.Kind]*laneInfo
}

// Option configures optional Scheduler behavior.
type Option func(*Scheduler)

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a scheduler over the given collaborators. The notifier may
// be nil when notifications are not wanted.
func New(cfg *config.Config, engine Engine, remotes RemoteSource, store *history.Store, notifier notifications.Service, logger *slog.Logger, opts ...Option) *Scheduler {
	base := logging.NewComponentLogger(logger, "scheduler")
	s := &Scheduler{
		cfg:          cfg,
		engine:       engine,
		remotes:      remotes,
		store:        store,
		notifier:     notifier,
		logger:       base,
		pollInterval: time.Duration(cfg.Daemon.PollInterval) * time.Second,
		now:          time.Now,
		info: map[history.Kind]*laneInfo{
			history.KindBackup: {},
			history.KindIndex:  {},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, kind := range []history.Kind{history.KindBackup, history.KindIndex} {
		s.lanes = append(s.lanes, &lane{
			kind:     kind,
			requests: make(chan request, requestBacklog),
			next:     make(map[string]time.Time),
			logger:   base.With(logging.String(logging.FieldLane, string(kind))),
		})
	}
	return s
}

// Start launches the lane goroutines. The passed context bounds their
// lifetime alongside Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.wg.Add(len(s.lanes))
	s.mu.Unlock()

	for _, ln := range s.lanes {
		go s.runLane(runCtx, ln)
	}
	return nil
}

// Stop terminates the lanes and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

// TriggerBackup queues an immediate backup of the named filesystem, or of
// every enabled filesystem when name is empty. It returns the filesystems
// queued.
func (s *Scheduler) TriggerBackup(name string, force bool) ([]string, error) {
	return s.trigger(history.KindBackup, name, force)
}

// TriggerIndex queues an immediate index republish for the named filesystem,
// or for every enabled filesystem when name is empty.
func (s *Scheduler) TriggerIndex(name string) ([]string, error) {
	return s.trigger(history.KindIndex, name, false)
}

func (s *Scheduler) trigger(kind history.Kind, name string, force bool) ([]string, error) {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()
	if !running {
		return nil, errors.New("scheduler not running")
	}

	ln := s.laneFor(kind)
	var targets []string
	if name == "" {
		targets = s.cfg.FilesystemNames()
	} else {
		if _, ok := s.cfg.FilesystemFor(name); !ok {
			return nil, fmt.Errorf("filesystem %q is not configured", name)
		}
		targets = []string{name}
	}

	queued := make([]string, 0, len(targets))
	for _, fs := range targets {
		select {
		case ln.requests <- request{filesystem: fs, force: force}:
			queued = append(queued, fs)
		default:
			return queued, fmt.Errorf("%s lane backlog is full", kind)
		}
	}
	return queued, nil
}

func (s *Scheduler) laneFor(kind history.Kind) *lane {
	for _, ln := range s.lanes {
		if ln.kind == kind {
			return ln
		}
	}
	return nil
}

// LaneStatus describes one scheduler lane for status reporting.
type LaneStatus struct {
	Kind      string    `json:"kind"`
	LastRun   time.Time `json:"last_run"`
	LastError string    `json:"last_error,omitempty"`
	Pending   int       `json:"pending"`
}

// Status summarizes lane activity.
type Status struct {
	Running bool         `json:"running"`
	Lanes   []LaneStatus `json:"lanes"`
}

// Status reports whether the lanes are running and what they last did.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status := Status{Running: s.running}
	for _, ln := range s.lanes {
		info := s.info[ln.kind]
		status.Lanes = append(status.Lanes, LaneStatus{
			Kind:      string(ln.kind),
			LastRun:   info.lastRun,
			LastError: info.lastError,
			Pending:   len(ln.requests),
		})
	}
	return status
}

func (s *Scheduler) recordOutcome(kind history.Kind, finished time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := s.info[kind]
	info.lastRun = finished
	if err != nil {
		info.lastError = err.Error()
	} else {
		info.lastError = ""
	}
}
