package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNoIndex reports that a remote holds no current index for the requested
// filesystem and backup id.
var ErrNoIndex = errors.New("no current index")

// Remote stores backup streams and index documents. Implementations map keys
// and index names onto their own layout; IndexPath must be stable so the
// engine can use recorded paths to skip redundant publishes.
type Remote interface {
	// PutData uploads the stream for one snapshot.
	PutData(ctx context.Context, key Key, r io.Reader) error
	// GetData downloads the stream for one snapshot.
	GetData(ctx context.Context, key Key, w io.Writer) error
	// PutIndex writes an index document under the named bucket.
	PutIndex(ctx context.Context, fsguid, id, name string, data []byte) error
	// GetIndex reads the index document under the named bucket. A missing
	// document is reported as ErrNoIndex.
	GetIndex(ctx context.Context, fsguid, id, name string) ([]byte, error)
	// IndexPath returns the remote path PutIndex would write to.
	IndexPath(fsguid, id, name string) string
	// List returns the current metadata for every backup on the remote.
	List(ctx context.Context) ([]Meta, error)
}

// CurrentMeta fetches the newest published metadata for a backup.
func CurrentMeta(ctx context.Context, remote Remote, fsguid, id string) (Meta, error) {
	data, err := remote.GetIndex(ctx, fsguid, id, "current")
	if err != nil {
		return Meta{}, fmt.Errorf("current index for fsguid %s id %s: %w", fsguid, id, err)
	}
	entry, err := DecodeIndexEntry(data)
	if err != nil {
		return Meta{}, err
	}
	return entry.Meta, nil
}
