package scheduler

import (
	"context"
	"errors"
	"time"

	"backer/internal/history"
	"backer/internal/logging"
	"backer/internal/metrics"
	"backer/internal/notifications"
)

func (s *Scheduler) runLane(ctx context.Context, ln *lane) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-ln.requests:
			s.service(ctx, ln, req)
			continue
		default:
		}

		s.runDue(ctx, ln)

		select {
		case <-ctx.Done():
			return
		case req := <-ln.requests:
			s.service(ctx, ln, req)
		case <-time.After(s.pollInterval):
		}
	}
}

// runDue sweeps the configured filesystems and services every one whose
// deadline for this lane has passed.
func (s *Scheduler) runDue(ctx context.Context, ln *lane) {
	for _, name := range s.cfg.FilesystemNames() {
		if ctx.Err() != nil {
			return
		}
		if due, ok := ln.next[name]; ok && s.now().Before(due) {
			continue
		}
		s.service(ctx, ln, request{filesystem: name})
		ln.next[name] = s.now().Add(s.intervalFor(ln, name))
	}
}

func (s *Scheduler) intervalFor(ln *lane, name string) time.Duration {
	if ln.kind == history.KindIndex {
		return time.Duration(s.cfg.Daemon.IndexInterval) * time.Second
	}
	fsCfg, _ := s.cfg.FilesystemFor(name)
	return time.Duration(s.cfg.BackupIntervalFor(fsCfg)) * time.Second
}

// service runs one lane job and records its outcome.
func (s *Scheduler) service(ctx context.Context, ln *lane, req request) {
	fsCfg, ok := s.cfg.FilesystemFor(req.filesystem)
	if !ok {
		ln.logger.Warn("skipping unconfigured filesystem",
			logging.String(logging.FieldFilesystem, req.filesystem))
		return
	}
	id := s.cfg.BackupIDFor(fsCfg)

	started := s.now()
	run := history.Run{
		Kind:       ln.kind,
		Filesystem: req.filesystem,
		BackupID:   id,
		Status:     history.StatusOK,
		StartedAt:  started,
	}

	var (
		snapshot string
		uploaded int
		bytes    int64
	)
	rem, err := s.remotes.ForFilesystem(ctx, req.filesystem)
	if err == nil {
		switch ln.kind {
		case history.KindBackup:
			res, berr := s.engine.Backup(ctx, rem, req.filesystem, id, req.force)
			err = berr
			if berr == nil {
				snapshot = res.Snapshot
				uploaded = res.Uploaded
				bytes = res.Bytes
			}
		case history.KindIndex:
			err = s.engine.Index(ctx, rem, req.filesystem, id)
		}
	}

	finished := s.now()
	run.FinishedAt = finished
	run.Snapshot = snapshot
	run.Bytes = bytes
	if err != nil {
		run.Status = history.StatusError
		run.Detail = err.Error()
	}

	if _, rerr := s.store.RecordRun(ctx, run); rerr != nil {
		ln.logger.Warn("recording run history failed", logging.Error(rerr))
	}
	metrics.RecordRun(string(ln.kind), req.filesystem, string(run.Status))
	metrics.ObserveRunDuration(string(ln.kind), req.filesystem, finished.Sub(started).Seconds())

	s.recordOutcome(ln.kind, finished, err)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			ln.logger.Debug("run interrupted by shutdown",
				logging.String(logging.FieldFilesystem, req.filesystem))
			return
		}
		ln.logger.Error("run failed",
			logging.String(logging.FieldFilesystem, req.filesystem),
			logging.String("backup_id", id),
			logging.Error(err),
		)
		s.publish(ctx, notifications.EventError, notifications.Payload{
			"context": string(ln.kind) + " " + req.filesystem,
			"error":   err,
		})
		return
	}

	metrics.SetLastSuccess(string(ln.kind), req.filesystem, finished.Unix())
	if ln.kind == history.KindBackup {
		metrics.AddUploadedBytes(req.filesystem, bytes)
		if uploaded > 0 {
			s.publish(ctx, notifications.EventBackupCompleted, notifications.Payload{
				"filesystem": req.filesystem,
				"snapshot":   snapshot,
				"bytes":      bytes,
			})
		}
	}
}

func (s *Scheduler) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			s.logger.Debug("shutting down, notification not sent")
			return
		}
		s.logger.Debug("notification failed", logging.Error(err))
	}
}
