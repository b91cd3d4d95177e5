package testsupport

import (
	"context"
	"testing"

	"backer/internal/config"
	"backer/internal/history"
)

// MustOpenStore opens a history.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// RecordRun inserts a run record for tests using the provided store.
func RecordRun(t testing.TB, store *history.Store, run history.Run) int64 {
	t.Helper()

	id, err := store.RecordRun(context.Background(), run)
	if err != nil {
		t.Fatalf("store.RecordRun: %v", err)
	}
	return id
}
