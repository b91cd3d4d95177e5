package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"backer/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults to the local remote backend and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ScratchDir = filepath.Join(base, "scratch")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Remote.Backend = "local"
	cfgVal.Local.Root = filepath.Join(base, "remote")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithFilesystems registers filesystems on the test config.
func WithFilesystems(names ...string) ConfigOption {
	return func(b *configBuilder) {
		for _, name := range names {
			b.cfg.Filesystems = append(b.cfg.Filesystems, config.Filesystem{Name: name})
		}
	}
}

// WithBackend sets the default remote backend on the test config.
func WithBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Remote.Backend = backend
	}
}

// WithStubbedZFS writes a stub zfs executable that always succeeds and
// points the config at it.
func WithStubbedZFS() ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		target := filepath.Join(binDir, "zfs")
		if err := os.WriteFile(target, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
			b.t.Fatalf("write stub zfs: %v", err)
		}
		b.cfg.ZFS.Binary = target
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
