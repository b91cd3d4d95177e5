// Package local stores backup streams and indexes on a local filesystem,
// typically a mounted external drive or NFS path.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sys/unix"

	"backer/internal/backup"
	"backer/internal/logging"
)

// Storage lays out backups under root:
//
//	<root>/<version>/<fsguid>.fs/<id>.backup/data/<sid>.series/<n>.data
//	<root>/<version>/<fsguid>.fs/<id>.backup/index/<name>.meta
type Storage struct {
	root   string
	logger *slog.Logger
}

// New constructs a local store rooted at root, which must be absolute so a
// daemon working directory change can never redirect backups.
func New(root string, logger *slog.Logger) (*Storage, error) {
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("local remote root must be absolute: %s", root)
	}
	return &Storage{
		root:   root,
		logger: logging.NewComponentLogger(logger, "localfs"),
	}, nil
}

func (s *Storage) basePath() string {
	return filepath.Join(s.root, backup.FormatVersion)
}

func (s *Storage) fsPath(fsguid string) string {
	return filepath.Join(s.basePath(), fsguid+".fs")
}

func (s *Storage) dataPath(key backup.Key) string {
	return filepath.Join(s.fsPath(key.FSGUID), key.ID+".backup", "data", key.SID+".series", fmt.Sprintf("%d.data", key.N))
}

func (s *Storage) indexPath(fsguid, id, name string) string {
	return filepath.Join(s.fsPath(fsguid), id+".backup", "index", name+".meta")
}

// PutData writes the stream for one snapshot. Data files are 0600 since
// send streams contain raw filesystem contents.
func (s *Storage) PutData(ctx context.Context, key backup.Key, r io.Reader) error {
	path := s.dataPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create data file: %w", err)
	}
	if _, err := io.Copy(out, contextReader{ctx: ctx, r: r}); err != nil {
		out.Close()
		return fmt.Errorf("write data file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close data file: %w", err)
	}
	s.logger.Debug("data stored", logging.String("path", path), logging.String(logging.FieldSeries, key.SID))
	return nil
}

// GetData copies the stream for one snapshot into w.
func (s *Storage) GetData(ctx context.Context, key backup.Key, w io.Writer) error {
	in, err := os.Open(s.dataPath(key))
	if err != nil {
		return fmt.Errorf("open data file: %w", err)
	}
	defer in.Close()
	if _, err := io.Copy(w, contextReader{ctx: ctx, r: in}); err != nil {
		return fmt.Errorf("read data file: %w", err)
	}
	return nil
}

// PutIndex writes an index document. The write goes through a temp file and
// rename so readers of the current index never observe a partial document.
func (s *Storage) PutIndex(_ context.Context, fsguid, id, name string, data []byte) error {
	path := s.indexPath(fsguid, id, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+name+".*")
	if err != nil {
		return fmt.Errorf("create index temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write index temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close index temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish index file: %w", err)
	}
	return nil
}

// GetIndex reads an index document. Missing documents report
// backup.ErrNoIndex.
func (s *Storage) GetIndex(_ context.Context, fsguid, id, name string) ([]byte, error) {
	data, err := os.ReadFile(s.indexPath(fsguid, id, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, backup.ErrNoIndex
		}
		return nil, fmt.Errorf("read index file: %w", err)
	}
	return data, nil
}

// IndexPath returns the filesystem path PutIndex writes to.
func (s *Storage) IndexPath(fsguid, id, name string) string {
	return s.indexPath(fsguid, id, name)
}

// Ping verifies the root directory exists and is fully accessible.
func (s *Storage) Ping(_ context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("stat remote root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("remote root %s is not a directory", s.root)
	}
	if err := unix.Access(s.root, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("remote root %s: insufficient permissions: %w", s.root, err)
	}
	return nil
}

// List walks the store and returns the current metadata for every backup,
// ordered by filesystem guid then backup id.
func (s *Storage) List(ctx context.Context) ([]backup.Meta, error) {
	fsEntries, err := os.ReadDir(s.basePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read remote root: %w", err)
	}

	var metas []backup.Meta
	for _, fsEntry := range fsEntries {
		fsguid, ok := strings.CutSuffix(fsEntry.Name(), ".fs")
		if !ok || !fsEntry.IsDir() {
			continue
		}
		idEntries, err := os.ReadDir(s.fsPath(fsguid))
		if err != nil {
			return nil, fmt.Errorf("read filesystem directory: %w", err)
		}
		for _, idEntry := range idEntries {
			id, ok := strings.CutSuffix(idEntry.Name(), ".backup")
			if !ok || !idEntry.IsDir() {
				continue
			}
			data, err := s.GetIndex(ctx, fsguid, id, "current")
			if err != nil {
				if errors.Is(err, backup.ErrNoIndex) {
					continue
				}
				return nil, err
			}
			entry, err := backup.DecodeIndexEntry(data)
			if err != nil {
				return nil, err
			}
			metas = append(metas, entry.Meta)
		}
	}
	sort.Slice(metas, func(i, j int) bool {
		if metas[i].Key.FSGUID != metas[j].Key.FSGUID {
			return metas[i].Key.FSGUID < metas[j].Key.FSGUID
		}
		return metas[i].Key.ID < metas[j].Key.ID
	})
	return metas, nil
}

// contextReader aborts long copies when the context is canceled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
