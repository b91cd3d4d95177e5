package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backer/internal/backup"
	"backer/internal/history"
	"backer/internal/lifecycle"
	"backer/internal/logging"
	"backer/internal/scheduler"
	"backer/internal/testsupport"
)

type apiEngine struct{}

func (apiEngine) Backup(ctx context.Context, remote backup.Remote, fs, id string, force bool) (*backup.Result, error) {
	return &backup.Result{Filesystem: fs, ID: id}, nil
}

func (apiEngine) Index(ctx context.Context, remote backup.Remote, fs, id string) error {
	return nil
}

type apiRemotes struct{}

func (apiRemotes) ForFilesystem(ctx context.Context, fsName string) (backup.Remote, error) {
	return nil, errors.New("no remote configured in test")
}

func newAPITestDaemon(t *testing.T) (*Daemon, *history.Store) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	store := testsupport.MustOpenStore(t, cfg)
	sched := scheduler.New(cfg, apiEngine{}, apiRemotes{}, store, nil, logging.NewNop())
	d, err := New(cfg, store, sched, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, store
}

func TestAPIServerHandleStatus(t *testing.T) {
	d, _ := newAPITestDaemon(t)
	srv := &apiServer{daemon: d}

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	srv.handleStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var status Status
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if status.Running {
		t.Fatal("expected stopped daemon")
	}
	if status.State != string(lifecycle.StateStopped) {
		t.Fatalf("State = %q, want %q", status.State, lifecycle.StateStopped)
	}
	if status.HistoryDBPath == "" {
		t.Fatal("expected history db path in status")
	}
}

func TestAPIServerHandleStatusRejectsPost(t *testing.T) {
	d, _ := newAPITestDaemon(t)
	srv := &apiServer{daemon: d}

	req := httptest.NewRequest(http.MethodPost, "/api/status", nil)
	w := httptest.NewRecorder()
	srv.handleStatus(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestAPIServerHandleHistory(t *testing.T) {
	d, store := newAPITestDaemon(t)
	srv := &apiServer{daemon: d}

	now := time.Now().UTC()
	testsupport.RecordRun(t, store, history.Run{
		Kind:       history.KindBackup,
		Filesystem: "tank/data",
		BackupID:   "default",
		Status:     history.StatusOK,
		Bytes:      1024,
		StartedAt:  now.Add(-time.Minute),
		FinishedAt: now,
	})
	testsupport.RecordRun(t, store, history.Run{
		Kind:       history.KindIndex,
		Filesystem: "tank/data",
		BackupID:   "default",
		Status:     history.StatusOK,
		StartedAt:  now.Add(-time.Minute),
		FinishedAt: now,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/history?kind=backup&limit=10", nil)
	w := httptest.NewRecorder()
	srv.handleHistory(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp historyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(resp.Runs))
	}
	if resp.Runs[0].Kind != string(history.KindBackup) || resp.Runs[0].Filesystem != "tank/data" {
		t.Fatalf("unexpected run: %+v", resp.Runs[0])
	}
}

func TestAPIServerHandleHistoryRejectsBadLimit(t *testing.T) {
	d, _ := newAPITestDaemon(t)
	srv := &apiServer{daemon: d}

	req := httptest.NewRequest(http.MethodGet, "/api/history?limit=abc", nil)
	w := httptest.NewRecorder()
	srv.handleHistory(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestNewAPIServerDisabledWithoutBind(t *testing.T) {
	d, _ := newAPITestDaemon(t)

	srv, err := newAPIServer(d.cfg, d, logging.NewNop())
	if err != nil {
		t.Fatalf("newAPIServer: %v", err)
	}
	if srv != nil {
		t.Fatal("expected nil server when bind is empty")
	}

	// Nil receivers are safe so callers can skip the configured check.
	if err := srv.start(context.Background()); err != nil {
		t.Fatalf("start on nil server: %v", err)
	}
	srv.stop()
}
