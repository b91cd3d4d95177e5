package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"backer/internal/backup"
	"backer/internal/history"
	"backer/internal/logging"
	"backer/internal/notifications"
	"backer/internal/scheduler"
	"backer/internal/testsupport"
)

type backupCall struct {
	filesystem string
	id         string
	force      bool
}

type fakeEngine struct {
	mu        sync.Mutex
	backups   []backupCall
	indexes   []string
	backupErr error
}

func (f *fakeEngine) Backup(ctx context.Context, remote backup.Remote, fs, id string, force bool) (*backup.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backups = append(f.backups, backupCall{filesystem: fs, id: id, force: force})
	if f.backupErr != nil {
		return nil, f.backupErr
	}
	return &backup.Result{
		Filesystem: fs,
		ID:         id,
		Snapshot:   "backer:10-" + id + "-0",
		CreatedNew: true,
		Uploaded:   1,
		Bytes:      2048,
	}, nil
}

func (f *fakeEngine) Index(ctx context.Context, remote backup.Remote, fs, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexes = append(f.indexes, fs)
	return nil
}

func (f *fakeEngine) backupCalls() []backupCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backupCall(nil), f.backups...)
}

func (f *fakeEngine) indexCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.indexes...)
}

type fakeRemotes struct{ err error }

func (f *fakeRemotes) ForFilesystem(ctx context.Context, fsName string) (backup.Remote, error) {
	return nil, f.err
}

type stubNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (s *stubNotifier) Publish(ctx context.Context, event notifications.Event, payload notifications.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *stubNotifier) seen(event notifications.Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, e := range s.events {
		if e == event {
			count++
		}
	}
	return count
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func startScheduler(t *testing.T, engine *fakeEngine, notifier *stubNotifier) (*scheduler.Scheduler, *history.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithFilesystems("tank/data"))
	store := testsupport.MustOpenStore(t, cfg)

	sched := scheduler.New(cfg, engine, &fakeRemotes{}, store, notifier, logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(sched.Stop)
	return sched, store
}

func TestInitialSweepRunsBothLanes(t *testing.T) {
	engine := &fakeEngine{}
	notifier := &stubNotifier{}
	_, store := startScheduler(t, engine, notifier)

	waitFor(t, "initial backup", func() bool { return len(engine.backupCalls()) >= 1 })
	waitFor(t, "initial index", func() bool { return len(engine.indexCalls()) >= 1 })

	call := engine.backupCalls()[0]
	if call.filesystem != "tank/data" || call.id != "default" || call.force {
		t.Fatalf("backup call = %+v", call)
	}

	waitFor(t, "history rows", func() bool {
		runs, err := store.Runs(context.Background(), history.Filter{Kind: history.KindBackup})
		return err == nil && len(runs) >= 1
	})
	runs, err := store.Runs(context.Background(), history.Filter{Kind: history.KindBackup})
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	run := runs[0]
	if run.Status != history.StatusOK || run.Snapshot != "backer:10-default-0" || run.Bytes != 2048 {
		t.Fatalf("run = %+v", run)
	}

	waitFor(t, "backup notification", func() bool {
		return notifier.seen(notifications.EventBackupCompleted) >= 1
	})
}

func TestTriggerBackupQueuesImmediateRun(t *testing.T) {
	engine := &fakeEngine{}
	notifier := &stubNotifier{}
	sched, _ := startScheduler(t, engine, notifier)

	waitFor(t, "initial backup", func() bool { return len(engine.backupCalls()) >= 1 })

	queued, err := sched.TriggerBackup("tank/data", true)
	if err != nil {
		t.Fatalf("TriggerBackup failed: %v", err)
	}
	if len(queued) != 1 || queued[0] != "tank/data" {
		t.Fatalf("queued = %v", queued)
	}

	waitFor(t, "triggered backup", func() bool { return len(engine.backupCalls()) >= 2 })
	calls := engine.backupCalls()
	last := calls[len(calls)-1]
	if !last.force {
		t.Fatalf("expected forced backup, got %+v", last)
	}
}

func TestTriggerBackupRejectsUnknownFilesystem(t *testing.T) {
	engine := &fakeEngine{}
	sched, _ := startScheduler(t, engine, &stubNotifier{})

	if _, err := sched.TriggerBackup("tank/nope", false); err == nil {
		t.Fatal("expected error for unconfigured filesystem")
	}
}

func TestTriggerFailsWhenStopped(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithFilesystems("tank/data"))
	store := testsupport.MustOpenStore(t, cfg)
	sched := scheduler.New(cfg, &fakeEngine{}, &fakeRemotes{}, store, nil, logging.NewNop())

	if _, err := sched.TriggerBackup("tank/data", false); err == nil {
		t.Fatal("expected error when scheduler is not running")
	}
}

func TestFailedRunRecordsErrorAndNotifies(t *testing.T) {
	engine := &fakeEngine{backupErr: errors.New("send failed")}
	notifier := &stubNotifier{}
	sched, store := startScheduler(t, engine, notifier)

	waitFor(t, "error history row", func() bool {
		runs, err := store.Runs(context.Background(), history.Filter{Kind: history.KindBackup})
		return err == nil && len(runs) >= 1 && runs[0].Status == history.StatusError
	})
	runs, err := store.Runs(context.Background(), history.Filter{Kind: history.KindBackup})
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if runs[0].Detail != "send failed" {
		t.Fatalf("detail = %q", runs[0].Detail)
	}

	waitFor(t, "error notification", func() bool {
		return notifier.seen(notifications.EventError) >= 1
	})

	waitFor(t, "lane status error", func() bool {
		for _, ln := range sched.Status().Lanes {
			if ln.Kind == string(history.KindBackup) && ln.LastError == "send failed" {
				return true
			}
		}
		return false
	})
	if notifier.seen(notifications.EventBackupCompleted) != 0 {
		t.Fatal("failed run must not publish a completion notification")
	}
}

func TestStatusReflectsRunningState(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithFilesystems("tank/data"))
	store := testsupport.MustOpenStore(t, cfg)
	sched := scheduler.New(cfg, &fakeEngine{}, &fakeRemotes{}, store, nil, logging.NewNop())

	if sched.Status().Running {
		t.Fatal("expected stopped status before Start")
	}
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !sched.Status().Running {
		t.Fatal("expected running status after Start")
	}
	if err := sched.Start(context.Background()); err == nil {
		sched.Stop()
		t.Fatal("expected second Start to fail")
	}
	sched.Stop()
	if sched.Status().Running {
		t.Fatal("expected stopped status after Stop")
	}
	status := sched.Status()
	if len(status.Lanes) != 2 {
		t.Fatalf("lanes = %+v", status.Lanes)
	}
}
