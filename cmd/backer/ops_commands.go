package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"backer/internal/backup"
	"backer/internal/config"
	"backer/internal/history"
	"backer/internal/logging"
	"backer/internal/preflight"
	"backer/internal/remote"
	"backer/internal/zfs"
)

func newBackupCommand(ctx *commandContext) *cobra.Command {
	var force bool
	var direct bool

	cmd := &cobra.Command{
		Use:   "backup [filesystem]",
		Short: "Back up one or all configured filesystems",
		Long: "Queues a backup through the running daemon, or performs it in " +
			"this process when the daemon is stopped. Without an argument " +
			"every enabled filesystem is backed up.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := firstArg(args)
			out := cmd.OutOrStdout()

			if !direct {
				client, dialErr := ctx.dialClient()
				if dialErr == nil {
					defer client.Close()
					resp, err := client.BackupNow(name, force)
					if err != nil {
						return err
					}
					if len(resp.Queued) == 0 {
						fmt.Fprintln(out, "No filesystems queued (none enabled)")
						return nil
					}
					fmt.Fprintf(out, "Queued backup of %s via daemon\n", strings.Join(resp.Queued, ", "))
					return nil
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "Daemon not reachable, running backup directly")
			}

			stack, err := newDirectStack(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer stack.close()

			targets, err := resolveTargets(stack.cfg, name)
			if err != nil {
				return err
			}
			for _, fsName := range targets {
				if err := stack.backupOne(cmd.Context(), out, fsName, force); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "snapshot and upload even when the filesystem is unchanged")
	cmd.Flags().BoolVar(&direct, "direct", false, "run in this process even when the daemon is reachable")
	return cmd
}

func newIndexCommand(ctx *commandContext) *cobra.Command {
	var direct bool

	cmd := &cobra.Command{
		Use:   "index [filesystem]",
		Short: "Republish remote indexes for one or all filesystems",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := firstArg(args)
			out := cmd.OutOrStdout()

			if !direct {
				client, dialErr := ctx.dialClient()
				if dialErr == nil {
					defer client.Close()
					resp, err := client.IndexNow(name)
					if err != nil {
						return err
					}
					if len(resp.Queued) == 0 {
						fmt.Fprintln(out, "No filesystems queued (none enabled)")
						return nil
					}
					fmt.Fprintf(out, "Queued index republish of %s via daemon\n", strings.Join(resp.Queued, ", "))
					return nil
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "Daemon not reachable, republishing directly")
			}

			stack, err := newDirectStack(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer stack.close()

			targets, err := resolveTargets(stack.cfg, name)
			if err != nil {
				return err
			}
			for _, fsName := range targets {
				if err := stack.indexOne(cmd.Context(), out, fsName); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&direct, "direct", false, "run in this process even when the daemon is reachable")
	return cmd
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return strings.TrimSpace(args[0])
}

func resolveTargets(cfg *config.Config, name string) ([]string, error) {
	if name == "" {
		names := cfg.FilesystemNames()
		if len(names) == 0 {
			return nil, errors.New("no filesystems configured")
		}
		return names, nil
	}
	if _, ok := cfg.FilesystemFor(name); !ok {
		return nil, fmt.Errorf("filesystem %q is not configured", name)
	}
	return []string{name}, nil
}

// directStack bundles the engine, remote registry, and history store for
// runs that bypass the daemon. History recording is best effort so a locked
// or missing database never blocks the actual backup.
type directStack struct {
	cfg      *config.Config
	engine   *backup.Engine
	registry *remote.Registry
	store    *history.Store
	stderr   io.Writer
}

func newDirectStack(ctx *commandContext, stderr io.Writer) (*directStack, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	if err := preflight.VerifyFormatVersion(cfg); err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{
		Level:       "info",
		Format:      "console",
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zfsClient, err := zfs.New(cfg.ZFSBinary(), cfg.ZFS.CommandTimeout, logger)
	if err != nil {
		return nil, err
	}
	engine, err := backup.NewEngine(zfsClient, cfg.Paths.ScratchDir, logger)
	if err != nil {
		return nil, err
	}
	stack := &directStack{
		cfg:      cfg,
		engine:   engine,
		registry: remote.NewRegistry(cfg, logger),
		stderr:   stderr,
	}
	if store, err := history.Open(cfg); err == nil {
		stack.store = store
	}
	return stack, nil
}

func (s *directStack) close() {
	if s.store != nil {
		s.store.Close()
	}
}

func (s *directStack) backupOne(ctx context.Context, out io.Writer, fsName string, force bool) error {
	fsCfg, _ := s.cfg.FilesystemFor(fsName)
	id := s.cfg.BackupIDFor(fsCfg)

	started := time.Now()
	rem, err := s.registry.ForFilesystem(ctx, fsName)
	var result *backup.Result
	if err == nil {
		result, err = s.engine.Backup(ctx, rem, fsName, id, force)
	}
	s.record(ctx, history.Run{
		Kind:       history.KindBackup,
		Filesystem: fsName,
		BackupID:   id,
		StartedAt:  started,
	}, result, err)
	if err != nil {
		return fmt.Errorf("backup %s: %w", fsName, err)
	}

	if result.Uploaded > 0 {
		fmt.Fprintf(out, "Backed up %s: snapshot %s, %d stream(s), %s\n",
			fsName, result.Snapshot, result.Uploaded, logging.FormatBytes(result.Bytes))
	} else {
		fmt.Fprintf(out, "%s is up to date\n", fsName)
	}
	return nil
}

func (s *directStack) indexOne(ctx context.Context, out io.Writer, fsName string) error {
	fsCfg, _ := s.cfg.FilesystemFor(fsName)
	id := s.cfg.BackupIDFor(fsCfg)

	started := time.Now()
	rem, err := s.registry.ForFilesystem(ctx, fsName)
	if err == nil {
		err = s.engine.Index(ctx, rem, fsName, id)
	}
	s.record(ctx, history.Run{
		Kind:       history.KindIndex,
		Filesystem: fsName,
		BackupID:   id,
		StartedAt:  started,
	}, nil, err)
	if err != nil {
		return fmt.Errorf("index %s: %w", fsName, err)
	}

	fmt.Fprintf(out, "Republished index for %s\n", fsName)
	return nil
}

func (s *directStack) record(ctx context.Context, run history.Run, result *backup.Result, runErr error) {
	if s.store == nil {
		return
	}
	run.FinishedAt = time.Now()
	run.Status = history.StatusOK
	if result != nil {
		run.Snapshot = result.Snapshot
		run.Bytes = result.Bytes
	}
	if runErr != nil {
		run.Status = history.StatusError
		run.Detail = runErr.Error()
	}
	if _, err := s.store.RecordRun(ctx, run); err != nil && s.stderr != nil {
		fmt.Fprintf(s.stderr, "warning: record run history: %v\n", err)
	}
}
