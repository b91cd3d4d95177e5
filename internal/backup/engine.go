package backup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"backer/internal/logging"
	"backer/internal/zfs"
)

// ZFS is the slice of zfs operations the engine drives. *zfs.Client
// satisfies it; tests substitute fakes.
type ZFS interface {
	GUID(ctx context.Context, fs string) (string, error)
	Creation(ctx context.Context, fs string) (int64, error)
	Exists(ctx context.Context, fs string) (bool, error)
	Snapshot(ctx context.Context, fs, name string, props map[string]string) error
	DestroySnapshot(ctx context.Context, fs, name string) error
	Snapshots(ctx context.Context, fs string) ([]string, error)
	SnapshotsWithProperty(ctx context.Context, fs, prop string) ([]zfs.SnapshotProperty, error)
	HasChanges(ctx context.Context, fs, snapshot string) (bool, error)
	Send(ctx context.Context, fs, from, name string, w io.Writer) error
	Receive(ctx context.Context, fs string, r io.Reader) error
	GetProperty(ctx context.Context, fs, prop string) (string, bool, error)
	SetProperty(ctx context.Context, fs, prop, value string) error
}

// Backsnap is one engine-managed snapshot together with its decoded state.
type Backsnap struct {
	Filesystem string
	Name       string
	State      State
}

// Engine runs backup, index, and restore operations against a ZFS host.
// Streams are spooled under scratchDir between send and upload so a slow
// remote never stalls zfs send.
type Engine struct {
	zfs        ZFS
	scratchDir string
	logger     *slog.Logger
	now        func() time.Time
	hostname   func() (string, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock substitutes the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithHostname substitutes the hostname source.
func WithHostname(hostname func() (string, error)) Option {
	return func(e *Engine) {
		if hostname != nil {
			e.hostname = hostname
		}
	}
}

// NewEngine constructs an engine.
func NewEngine(zfsClient ZFS, scratchDir string, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if zfsClient == nil {
		return nil, fmt.Errorf("zfs client required")
	}
	if scratchDir == "" {
		return nil, fmt.Errorf("scratch directory required")
	}
	engine := &Engine{
		zfs:        zfsClient,
		scratchDir: scratchDir,
		logger:     logging.NewComponentLogger(logger, "backup"),
		now:        time.Now,
		hostname:   os.Hostname,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// Result summarizes one backup run.
type Result struct {
	Filesystem string
	ID         string
	Snapshot   string
	CreatedNew bool
	Uploaded   int
	Bytes      int64
}

// Backup brings the chain for fs and id up to date on the remote. A fresh
// chain starts at sequence 0; an existing chain grows by one snapshot when
// the filesystem changed since the latest snapshot or force is set. Every
// unstored snapshot is sent incrementally against its predecessor, uploaded,
// indexed, and marked stored; predecessors are destroyed as the chain
// advances so only the newest snapshot survives locally.
func (e *Engine) Backup(ctx context.Context, remote Remote, fs, id string, force bool) (*Result, error) {
	exists, err := e.zfs.Exists(ctx, fs)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("unknown filesystem: %s", fs)
	}

	snaps, err := e.loadBacksnaps(ctx, fs, id)
	if err != nil {
		return nil, err
	}

	result := &Result{Filesystem: fs, ID: id}
	if len(snaps) == 0 {
		snap, err := e.startChain(ctx, fs, id)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
		result.CreatedNew = true
	} else {
		latest := snaps[len(snaps)-1]
		grow := force
		if !grow {
			changed, err := e.zfs.HasChanges(ctx, fs, latest.Name)
			if err != nil {
				return nil, err
			}
			grow = changed
		}
		if grow {
			snap, err := e.growChain(ctx, fs, latest)
			if err != nil {
				return nil, err
			}
			snaps = append(snaps, snap)
			result.CreatedNew = true
		}
	}

	var previous *Backsnap
	for i := range snaps {
		snap := &snaps[i]
		if !snap.State.Stored {
			size, err := e.uploadSnapshot(ctx, remote, snap, previous)
			if err != nil {
				return nil, err
			}
			if err := e.publishIndexes(ctx, remote, snap); err != nil {
				return nil, err
			}
			snap.State.Stored = true
			if err := e.saveState(ctx, snap); err != nil {
				return nil, err
			}
			result.Uploaded++
			result.Bytes += size
		}
		if previous != nil {
			if err := e.zfs.DestroySnapshot(ctx, fs, previous.Name); err != nil {
				return nil, err
			}
		}
		previous = snap
	}
	result.Snapshot = previous.Name

	e.logger.Info("backup complete",
		logging.String(logging.FieldFilesystem, fs),
		logging.String(logging.FieldSeries, previous.State.Meta.Key.SID),
		logging.String(logging.FieldSnapshot, result.Snapshot),
		logging.Int("uploaded", result.Uploaded),
		logging.Int64("bytes", result.Bytes),
	)
	return result, nil
}

// Index republishes the index documents for the latest stored snapshot.
// It is a no-op when nothing has been stored yet.
func (e *Engine) Index(ctx context.Context, remote Remote, fs, id string) error {
	snaps, err := e.loadBacksnaps(ctx, fs, id)
	if err != nil {
		return err
	}
	var latest *Backsnap
	for i := range snaps {
		if snaps[i].State.Stored {
			latest = &snaps[i]
		}
	}
	if latest == nil {
		return nil
	}
	return e.publishIndexes(ctx, remote, latest)
}

// List returns the current metadata for every backup on the remote.
func (e *Engine) List(ctx context.Context, remote Remote) ([]Meta, error) {
	return remote.List(ctx)
}

func (e *Engine) startChain(ctx context.Context, fs, id string) (Backsnap, error) {
	guid, err := e.zfs.GUID(ctx, fs)
	if err != nil {
		return Backsnap{}, err
	}
	fsCreation, err := e.zfs.Creation(ctx, fs)
	if err != nil {
		return Backsnap{}, err
	}
	host, err := e.hostname()
	if err != nil {
		return Backsnap{}, fmt.Errorf("resolve hostname: %w", err)
	}
	meta := NewMeta(NewKey(guid, id), fs, fsCreation, host, e.now())
	return e.createBacksnap(ctx, fs, meta)
}

func (e *Engine) growChain(ctx context.Context, fs string, latest Backsnap) (Backsnap, error) {
	host, err := e.hostname()
	if err != nil {
		return Backsnap{}, fmt.Errorf("resolve hostname: %w", err)
	}
	meta := latest.State.Meta.Successor(host, e.now())
	return e.createBacksnap(ctx, fs, meta)
}

func (e *Engine) createBacksnap(ctx context.Context, fs string, meta Meta) (Backsnap, error) {
	state := NewState(meta)
	encoded, err := EncodeState(state)
	if err != nil {
		return Backsnap{}, err
	}
	name := meta.Key.SnapshotName()
	props := map[string]string{
		VersionProperty: FormatVersion,
		StateProperty:   encoded,
	}
	if err := e.zfs.Snapshot(ctx, fs, name, props); err != nil {
		return Backsnap{}, err
	}
	e.logger.Info("snapshot created",
		logging.String(logging.FieldFilesystem, fs),
		logging.String(logging.FieldSnapshot, name),
		logging.String(logging.FieldSeries, meta.Key.SID),
		logging.Int("sequence", meta.Key.N),
	)
	return Backsnap{Filesystem: fs, Name: name, State: state}, nil
}

// loadBacksnaps returns the engine-managed snapshots of fs for id, sorted by
// sequence number. Snapshots tagged with a different format version are
// ignored.
func (e *Engine) loadBacksnaps(ctx context.Context, fs, id string) ([]Backsnap, error) {
	tagged, err := e.zfs.SnapshotsWithProperty(ctx, fs, VersionProperty)
	if err != nil {
		return nil, err
	}
	var snaps []Backsnap
	for _, snap := range tagged {
		if snap.Value != FormatVersion {
			continue
		}
		raw, ok, err := e.zfs.GetProperty(ctx, zfs.SnapshotName(fs, snap.Name), StateProperty)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("snapshot %s has no %s property", zfs.SnapshotName(fs, snap.Name), StateProperty)
		}
		state, err := DecodeState(raw)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", zfs.SnapshotName(fs, snap.Name), err)
		}
		if state.Meta.Key.ID != id {
			continue
		}
		snaps = append(snaps, Backsnap{Filesystem: fs, Name: snap.Name, State: state})
	}
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].State.Meta.Key.N < snaps[j].State.Meta.Key.N
	})
	return snaps, nil
}

func (e *Engine) saveState(ctx context.Context, snap *Backsnap) error {
	encoded, err := EncodeState(snap.State)
	if err != nil {
		return err
	}
	return e.zfs.SetProperty(ctx, zfs.SnapshotName(snap.Filesystem, snap.Name), StateProperty, encoded)
}

// uploadSnapshot spools the send stream for snap to scratch space and hands
// it to the remote. The stream is incremental when previous is non-nil.
func (e *Engine) uploadSnapshot(ctx context.Context, remote Remote, snap, previous *Backsnap) (int64, error) {
	spool, err := os.CreateTemp(e.scratchDir, "backer-send-*.stream")
	if err != nil {
		return 0, fmt.Errorf("create spool file: %w", err)
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	from := ""
	if previous != nil {
		from = previous.Name
	}
	if err := e.zfs.Send(ctx, snap.Filesystem, from, snap.Name, spool); err != nil {
		return 0, err
	}
	info, err := spool.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat spool file: %w", err)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewind spool file: %w", err)
	}
	if err := remote.PutData(ctx, snap.State.Meta.Key, spool); err != nil {
		return 0, err
	}
	e.logger.Info("stream uploaded",
		logging.String(logging.FieldFilesystem, snap.Filesystem),
		logging.String(logging.FieldSnapshot, snap.Name),
		logging.Int64("bytes", info.Size()),
		logging.Bool("incremental", from != ""),
	)
	return info.Size(), nil
}
