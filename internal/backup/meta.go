package backup

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FormatVersion identifies the remote layout and snapshot naming scheme.
// Backups written under a different version are invisible to this build.
const FormatVersion = "10"

const (
	// VersionProperty tags a snapshot as belonging to this tool and format.
	VersionProperty = "backer:version"
	// StateProperty holds the JSON-encoded State for a snapshot.
	StateProperty = "backer:state"
)

// Key identifies one snapshot within a backup series.
//
// FSGUID is the pool-assigned guid of the source filesystem, which survives
// renames. ID names the backup target (several independent backups of one
// filesystem can coexist). SID identifies the series, a contiguous chain of
// incremental streams; it is minted when a chain starts at N=0 and inherited
// by every successor.
type Key struct {
	FSGUID string `json:"fsguid"`
	ID     string `json:"id"`
	SID    string `json:"sid"`
	N      int    `json:"n"`
}

// NewKey mints the key for the first snapshot of a fresh series.
func NewKey(fsguid, id string) Key {
	return Key{
		FSGUID: fsguid,
		ID:     id,
		SID:    NewSeriesID(),
		N:      0,
	}
}

// NewSeriesID returns a new series identifier.
func NewSeriesID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Successor returns the key for the next snapshot in the same series.
func (k Key) Successor() Key {
	next := k
	next.N++
	return next
}

// WithN returns a copy of the key pointing at sequence number n.
func (k Key) WithN(n int) Key {
	key := k
	key.N = n
	return key
}

// SnapshotName returns the short ZFS snapshot name for the key.
func (k Key) SnapshotName() string {
	return fmt.Sprintf("backer:%s-%s-%d", FormatVersion, k.ID, k.N)
}

func (k Key) String() string {
	return fmt.Sprintf("[fsguid=%s, id=%s, sid=%s, n=%d]", k.FSGUID, k.ID, k.SID, k.N)
}

// Meta describes one backup snapshot. Timestamps are unix seconds in UTC.
type Meta struct {
	Key         Key    `json:"key"`
	FSName      string `json:"fsname"`
	FSCreation  int64  `json:"fscreation"`
	Hostname    string `json:"hostname"`
	Creation    int64  `json:"creation"`
	SIDCreation int64  `json:"sidcreation"`
}

// NewMeta builds the metadata for the first snapshot of a series.
func NewMeta(key Key, fsName string, fsCreation int64, hostname string, now time.Time) Meta {
	created := now.UTC().Unix()
	return Meta{
		Key:         key,
		FSName:      fsName,
		FSCreation:  fsCreation,
		Hostname:    hostname,
		Creation:    created,
		SIDCreation: created,
	}
}

// Successor derives the metadata for the next snapshot in the same series.
// The series birth time is preserved; the creation time and hostname reflect
// the machine taking this snapshot.
func (m Meta) Successor(hostname string, now time.Time) Meta {
	next := m
	next.Key = m.Key.Successor()
	next.Hostname = hostname
	next.Creation = now.UTC().Unix()
	return next
}

func (m Meta) String() string {
	return fmt.Sprintf("[key=%s, fsname=%s, fscreation=%d, hostname=%s, creation=%d, sidcreation=%d]",
		m.Key, m.FSName, m.FSCreation, m.Hostname, m.Creation, m.SIDCreation)
}
