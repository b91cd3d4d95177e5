package remote_test

import (
	"context"
	"testing"

	"backer/internal/config"
	"backer/internal/logging"
	"backer/internal/remote"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Remote.Backend = "local"
	cfg.Local.Root = t.TempDir()
	cfg.Filesystems = []config.Filesystem{
		{Name: "tank/data"},
		{Name: "tank/media", Remote: "local"},
	}
	return &cfg
}

func TestRegistryReusesBackendStore(t *testing.T) {
	registry := remote.NewRegistry(testConfig(t), logging.NewNop())
	ctx := context.Background()

	first, err := registry.ForFilesystem(ctx, "tank/data")
	if err != nil {
		t.Fatalf("ForFilesystem: %v", err)
	}
	second, err := registry.ForFilesystem(ctx, "tank/media")
	if err != nil {
		t.Fatalf("ForFilesystem: %v", err)
	}
	if first != second {
		t.Fatal("same backend must reuse one store")
	}
}

func TestRegistryUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Filesystems[0].Remote = "tape"
	registry := remote.NewRegistry(cfg, logging.NewNop())

	if _, err := registry.ForFilesystem(context.Background(), "tank/data"); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestRegistryFallsBackToGlobalBackend(t *testing.T) {
	registry := remote.NewRegistry(testConfig(t), logging.NewNop())

	store, err := registry.ForFilesystem(context.Background(), "tank/unconfigured")
	if err != nil {
		t.Fatalf("ForFilesystem: %v", err)
	}
	if store == nil {
		t.Fatal("store must not be nil")
	}
}
