package backup

import (
	"context"
	"fmt"
	"io"
	"os"

	"backer/internal/logging"
)

// RestoreResult summarizes one restore run.
type RestoreResult struct {
	Filesystem string
	Meta       Meta
	Received   int
	Bytes      int64
}

// Restore materializes the backup identified by fsguid and id as the dataset
// target. The chain is downloaded and received in sequence order; the target
// must not exist beforehand. The snapshots carried by the streams are
// destroyed afterwards so the restored dataset starts clean.
func (e *Engine) Restore(ctx context.Context, remote Remote, fsguid, id, target string) (*RestoreResult, error) {
	exists, err := e.zfs.Exists(ctx, target)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("restore target %s already exists", target)
	}

	meta, err := CurrentMeta(ctx, remote, fsguid, id)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{Filesystem: target, Meta: meta}
	key := meta.Key
	for n := 0; n <= key.N; n++ {
		size, err := e.restoreOne(ctx, remote, key.WithN(n), target)
		if err != nil {
			return nil, err
		}
		result.Received++
		result.Bytes += size
	}

	names, err := e.zfs.Snapshots(ctx, target)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if err := e.zfs.DestroySnapshot(ctx, target, name); err != nil {
			return nil, err
		}
	}

	e.logger.Info("restore complete",
		logging.String(logging.FieldFilesystem, target),
		logging.String(logging.FieldSeries, key.SID),
		logging.Int("received", result.Received),
		logging.Int64("bytes", result.Bytes),
	)
	return result, nil
}

func (e *Engine) restoreOne(ctx context.Context, remote Remote, key Key, target string) (int64, error) {
	spool, err := os.CreateTemp(e.scratchDir, "backer-recv-*.stream")
	if err != nil {
		return 0, fmt.Errorf("create spool file: %w", err)
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	if err := remote.GetData(ctx, key, spool); err != nil {
		return 0, fmt.Errorf("download %s: %w", key, err)
	}
	info, err := spool.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat spool file: %w", err)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewind spool file: %w", err)
	}
	if err := e.zfs.Receive(ctx, target, spool); err != nil {
		return 0, err
	}
	e.logger.Debug("stream received",
		logging.String(logging.FieldFilesystem, target),
		logging.Int("sequence", key.N),
		logging.Int64("bytes", info.Size()),
	)
	return info.Size(), nil
}
