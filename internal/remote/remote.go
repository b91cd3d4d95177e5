// Package remote maps configured backend names onto concrete stores and
// caches them for reuse across scheduler runs.
package remote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"backer/internal/backup"
	"backer/internal/config"
	"backer/internal/remote/local"
	"backer/internal/remote/s3"
)

// Open constructs the store for one backend name.
func Open(ctx context.Context, cfg *config.Config, backend string, logger *slog.Logger) (backup.Remote, error) {
	switch backend {
	case "s3":
		return s3.New(ctx, s3.Options{
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			Region:         cfg.S3.Region,
			Endpoint:       cfg.S3.Endpoint,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			PartSizeMiB:    cfg.S3.PartSizeMiB,
		}, logger)
	case "local":
		return local.New(cfg.Local.Root, logger)
	default:
		return nil, fmt.Errorf("unsupported remote backend %q", backend)
	}
}

// Registry hands out stores per backend, constructing each at most once.
type Registry struct {
	cfg    *config.Config
	logger *slog.Logger

	mu     sync.Mutex
	stores map[string]backup.Remote
}

// NewRegistry builds an empty registry over cfg.
func NewRegistry(cfg *config.Config, logger *slog.Logger) *Registry {
	return &Registry{
		cfg:    cfg,
		logger: logger,
		stores: make(map[string]backup.Remote),
	}
}

// ForFilesystem returns the store serving the named filesystem, honoring the
// per-filesystem backend override.
func (r *Registry) ForFilesystem(ctx context.Context, fsName string) (backup.Remote, error) {
	fsCfg, _ := r.cfg.FilesystemFor(fsName)
	return r.ForBackend(ctx, r.cfg.RemoteFor(fsCfg))
}

// ForBackend returns the store for one backend name.
func (r *Registry) ForBackend(ctx context.Context, backend string) (backup.Remote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if store, ok := r.stores[backend]; ok {
		return store, nil
	}
	store, err := Open(ctx, r.cfg, backend, r.logger)
	if err != nil {
		return nil, err
	}
	r.stores[backend] = store
	return store, nil
}
