// Package daemonrun wires the daemon process together and drives it through
// the lifecycle controller from startup to exit.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"backer/internal/backup"
	"backer/internal/config"
	"backer/internal/daemon"
	"backer/internal/history"
	"backer/internal/ipc"
	"backer/internal/lifecycle"
	"backer/internal/logging"
	"backer/internal/metrics"
	"backer/internal/notifications"
	"backer/internal/preflight"
	"backer/internal/remote"
	"backer/internal/scheduler"
	"backer/internal/zfs"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel   string
	SocketPath string
}

// Run drives the backer daemon from startup to exit. It returns nil after a
// clean graceful shutdown; a forced or timed-out shutdown surfaces
// lifecycle.ErrForcedStop or lifecycle.ErrShutdownTimeout so the command
// layer can exit non-zero.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if err := preflight.VerifyFormatVersion(cfg); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", cfg.LogFilePath()},
		ErrorOutputPaths: []string{"stderr", cfg.LogFilePath()},
		MaxSizeMB:        cfg.Logging.MaxSizeMB,
		MaxBackups:       cfg.Logging.MaxBackups,
		RetentionDays:    cfg.Logging.RetentionDays,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	metrics.Register(prometheus.DefaultRegisterer)
	logPreflight(logger, preflight.RunAll(cmdCtx, cfg))

	socketPath := strings.TrimSpace(opts.SocketPath)
	if socketPath == "" {
		socketPath = cfg.SocketPath()
	}

	grace := time.Duration(cfg.Daemon.ShutdownGracePeriod) * time.Second
	controller := lifecycle.New(lifecycle.NewPIDFile(cfg.PIDFilePath()), grace, logger)

	var (
		store     *history.Store
		d         *daemon.Daemon
		ipcServer *ipc.Server
	)

	begin := func(ctx context.Context) error {
		var err error
		store, err = history.Open(cfg)
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
		if cfg.History.RetentionDays > 0 {
			if pruned, pruneErr := store.Prune(ctx, cfg.History.RetentionDays); pruneErr != nil {
				logger.Warn("prune history", logging.Error(pruneErr))
			} else if pruned > 0 {
				logger.Info("pruned old history runs", logging.Int64("removed", pruned))
			}
		}

		zfsClient, err := zfs.New(cfg.ZFSBinary(), cfg.ZFS.CommandTimeout, logger)
		if err != nil {
			closeStore(&store, logger)
			return err
		}
		engine, err := backup.NewEngine(zfsClient, cfg.Paths.ScratchDir, logger)
		if err != nil {
			closeStore(&store, logger)
			return err
		}

		registry := remote.NewRegistry(cfg, logger)
		notifier := notifications.NewService(cfg)
		sched := scheduler.New(cfg, engine, registry, store, notifier, logger)

		d, err = daemon.New(cfg, store, sched, notifier, logger,
			daemon.WithStateSource(controller.State),
			daemon.WithStopRequester(controller.RequestStop),
		)
		if err != nil {
			closeStore(&store, logger)
			return err
		}
		if err := d.Start(ctx); err != nil {
			d = nil
			closeStore(&store, logger)
			return err
		}

		ipcServer, err = ipc.NewServer(ctx, socketPath, d, logger)
		if err != nil {
			d.Stop()
			d = nil
			closeStore(&store, logger)
			return fmt.Errorf("start ipc server: %w", err)
		}
		ipcServer.Serve()
		return nil
	}

	if err := controller.Start(cmdCtx, begin); err != nil {
		return err
	}

	release := controller.HandleSignals()
	defer release()

	drain := func(ctx context.Context) error {
		ipcServer.Close()
		d.Stop()
		if err := store.Close(); err != nil {
			return fmt.Errorf("close history store: %w", err)
		}
		return nil
	}
	abort := func() {
		ipcServer.Close()
		d.Abort()
	}
	return controller.Wait(cmdCtx, drain, abort)
}

func closeStore(store **history.Store, logger *slog.Logger) {
	if *store == nil {
		return
	}
	if err := (*store).Close(); err != nil {
		logger.Warn("close history store", logging.Error(err))
	}
	*store = nil
}

func logPreflight(logger *slog.Logger, results []preflight.Result) {
	for _, result := range results {
		if result.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
			continue
		}
		logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail))
	}
}
