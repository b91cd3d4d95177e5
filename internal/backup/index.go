package backup

import (
	"context"
	"fmt"
	"maps"
	"time"

	"backer/internal/logging"
)

// bucketKinds orders the index buckets from coarsest to finest. The order
// fixes publish order so "current" always lands first.
var bucketKinds = []string{"current", "year", "month", "day", "hour"}

// IndexBuckets maps bucket kinds to the index names for the given instant.
// Names follow the historical unpadded form so existing remotes stay
// readable.
func IndexBuckets(now time.Time) map[string]string {
	now = now.UTC()
	return map[string]string{
		"current": "current",
		"year":    fmt.Sprintf("%d", now.Year()),
		"month":   fmt.Sprintf("%d-%d", now.Year(), int(now.Month())),
		"day":     fmt.Sprintf("%d-%d-%d", now.Year(), int(now.Month()), now.Day()),
		"hour":    fmt.Sprintf("%d-%d-%d-%d", now.Year(), int(now.Month()), now.Day(), now.Hour()),
	}
}

// publishIndexes writes the snapshot's index document into every bucket
// whose recorded path is out of date, then persists the updated path map in
// the snapshot state.
func (e *Engine) publishIndexes(ctx context.Context, remote Remote, snap *Backsnap) error {
	entry, err := EncodeIndexEntry(IndexEntry{Meta: snap.State.Meta})
	if err != nil {
		return err
	}
	key := snap.State.Meta.Key
	buckets := IndexBuckets(e.now())
	indexes := maps.Clone(snap.State.Indexes)
	if indexes == nil {
		indexes = make(map[string]string, len(buckets))
	}

	changed := false
	for _, kind := range bucketKinds {
		name := buckets[kind]
		path := remote.IndexPath(key.FSGUID, key.ID, name)
		if indexes[kind] == path {
			continue
		}
		if err := remote.PutIndex(ctx, key.FSGUID, key.ID, name, entry); err != nil {
			return fmt.Errorf("publish %s index: %w", kind, err)
		}
		e.logger.Debug("index published",
			logging.String(logging.FieldFilesystem, snap.Filesystem),
			logging.String(logging.FieldSnapshot, snap.Name),
			logging.String("bucket", kind),
			logging.String("path", path),
		)
		indexes[kind] = path
		changed = true
	}
	if !changed {
		return nil
	}
	snap.State.Indexes = indexes
	return e.saveState(ctx, snap)
}
