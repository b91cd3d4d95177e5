package history_test

import (
	"context"
	"testing"
	"time"

	"backer/internal/history"
	"backer/internal/testsupport"
)

func startedAt(base time.Time, offset time.Duration) history.Run {
	started := base.Add(offset)
	return history.Run{
		Kind:       history.KindBackup,
		Filesystem: "tank/data",
		BackupID:   "default",
		Status:     history.StatusOK,
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
	}
}

func TestRecordAndQueryRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := history.Run{
		Kind:       history.KindBackup,
		Filesystem: "tank/data",
		BackupID:   "default",
		Status:     history.StatusOK,
		Snapshot:   "backer:10-default-3",
		Bytes:      4096,
		StartedAt:  time.Date(2026, 3, 5, 7, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 3, 5, 7, 1, 30, 0, time.UTC),
	}
	id := testsupport.RecordRun(t, store, run)
	if id == 0 {
		t.Fatal("expected run id to be assigned")
	}

	runs, err := store.Runs(ctx, history.Filter{})
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %+v", runs)
	}
	got := runs[0]
	if got.Kind != history.KindBackup || got.Filesystem != "tank/data" || got.Snapshot != "backer:10-default-3" {
		t.Fatalf("run = %+v", got)
	}
	if got.Bytes != 4096 {
		t.Fatalf("bytes = %d", got.Bytes)
	}
	if !got.StartedAt.Equal(run.StartedAt) || !got.FinishedAt.Equal(run.FinishedAt) {
		t.Fatalf("timestamps = %v / %v", got.StartedAt, got.FinishedAt)
	}
}

func TestRunsNewestFirstWithFilters(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	base := time.Date(2026, 3, 5, 7, 0, 0, 0, time.UTC)

	first := startedAt(base, 0)
	second := startedAt(base, time.Hour)
	second.Filesystem = "tank/media"
	third := startedAt(base, 2*time.Hour)
	third.Kind = history.KindIndex

	for _, run := range []history.Run{first, second, third} {
		testsupport.RecordRun(t, store, run)
	}

	runs, err := store.Runs(ctx, history.Filter{})
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 3 || !runs[0].StartedAt.Equal(third.StartedAt) || !runs[2].StartedAt.Equal(first.StartedAt) {
		t.Fatalf("order = %+v", runs)
	}

	byFS, err := store.Runs(ctx, history.Filter{Filesystem: "tank/media"})
	if err != nil {
		t.Fatalf("Runs by filesystem: %v", err)
	}
	if len(byFS) != 1 || byFS[0].Filesystem != "tank/media" {
		t.Fatalf("filtered runs = %+v", byFS)
	}

	byKind, err := store.Runs(ctx, history.Filter{Kind: history.KindIndex})
	if err != nil {
		t.Fatalf("Runs by kind: %v", err)
	}
	if len(byKind) != 1 || byKind[0].Kind != history.KindIndex {
		t.Fatalf("filtered runs = %+v", byKind)
	}

	limited, err := store.Runs(ctx, history.Filter{Limit: 2})
	if err != nil {
		t.Fatalf("Runs limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limited runs = %+v", limited)
	}
}

func TestSummarize(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	base := time.Date(2026, 3, 5, 7, 0, 0, 0, time.UTC)

	ok := startedAt(base, 0)
	failed := startedAt(base, time.Hour)
	failed.Status = history.StatusError
	failed.Detail = "upload failed"
	index := startedAt(base, 2*time.Hour)
	index.Kind = history.KindIndex
	old := startedAt(base, -48*time.Hour)

	for _, run := range []history.Run{ok, failed, index, old} {
		testsupport.RecordRun(t, store, run)
	}

	summaries, err := store.Summarize(ctx, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("summaries = %+v", summaries)
	}
	backups := summaries[0]
	if backups.Kind != history.KindBackup || backups.Total != 2 || backups.Failed != 1 {
		t.Fatalf("backup summary = %+v", backups)
	}
	if !backups.LastRun.Equal(failed.FinishedAt) {
		t.Fatalf("last run = %v", backups.LastRun)
	}
	indexes := summaries[1]
	if indexes.Kind != history.KindIndex || indexes.Total != 1 || indexes.Failed != 0 {
		t.Fatalf("index summary = %+v", indexes)
	}
}

func TestPruneRemovesOldRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	recent := startedAt(time.Now().UTC(), -time.Hour)
	stale := startedAt(time.Now().UTC(), -10*24*time.Hour)
	testsupport.RecordRun(t, store, recent)
	testsupport.RecordRun(t, store, stale)

	removed, err := store.Prune(ctx, 7)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d", removed)
	}
	runs, err := store.Runs(ctx, history.Filter{})
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestPruneZeroRetentionKeepsEverything(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	testsupport.RecordRun(t, store, startedAt(time.Now().UTC(), -100*24*time.Hour))
	removed, err := store.Prune(context.Background(), 0)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 0 {
		t.Fatalf("removed = %d", removed)
	}
}

