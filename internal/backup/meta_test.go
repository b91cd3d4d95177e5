package backup_test

import (
	"strings"
	"testing"
	"time"

	"backer/internal/backup"
)

func TestNewKeyStartsFreshSeries(t *testing.T) {
	key := backup.NewKey("1387437859294753920", "default")
	if key.FSGUID != "1387437859294753920" || key.ID != "default" || key.N != 0 {
		t.Fatalf("key = %+v", key)
	}
	if len(key.SID) != 32 {
		t.Fatalf("sid length = %d (%q)", len(key.SID), key.SID)
	}
	if strings.ContainsAny(key.SID, "-") {
		t.Fatalf("sid contains dashes: %q", key.SID)
	}
	other := backup.NewKey("1387437859294753920", "default")
	if other.SID == key.SID {
		t.Fatal("series ids must be unique")
	}
}

func TestKeySuccessorKeepsSeries(t *testing.T) {
	key := backup.Key{FSGUID: "g", ID: "default", SID: "abc123", N: 4}
	next := key.Successor()
	if next.N != 5 {
		t.Fatalf("n = %d", next.N)
	}
	if next.SID != key.SID || next.FSGUID != key.FSGUID || next.ID != key.ID {
		t.Fatalf("successor changed identity: %+v", next)
	}
}

func TestSnapshotName(t *testing.T) {
	key := backup.Key{FSGUID: "g", ID: "nightly", SID: "abc", N: 7}
	if got := key.SnapshotName(); got != "backer:10-nightly-7" {
		t.Fatalf("snapshot name = %q", got)
	}
}

func TestMetaSuccessor(t *testing.T) {
	born := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	meta := backup.NewMeta(backup.Key{FSGUID: "g", ID: "default", SID: "abc", N: 0}, "tank/data", 1700000000, "host-a", born)
	if meta.Creation != born.Unix() || meta.SIDCreation != born.Unix() {
		t.Fatalf("meta timestamps = %+v", meta)
	}

	later := born.Add(48 * time.Hour)
	next := meta.Successor("host-b", later)
	if next.Key.N != 1 || next.Key.SID != "abc" {
		t.Fatalf("successor key = %+v", next.Key)
	}
	if next.Creation != later.Unix() {
		t.Fatalf("successor creation = %d", next.Creation)
	}
	if next.SIDCreation != born.Unix() || next.FSCreation != 1700000000 {
		t.Fatalf("successor lost series origin: %+v", next)
	}
	if next.Hostname != "host-b" {
		t.Fatalf("successor hostname = %q", next.Hostname)
	}
}

func TestDecodeStateDefaultsIndexes(t *testing.T) {
	state, err := backup.DecodeState(`{"meta":{"key":{"fsguid":"g","id":"default","sid":"abc","n":0}},"stored":true}`)
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	if !state.Stored {
		t.Fatal("stored flag lost")
	}
	if state.Indexes == nil {
		t.Fatal("indexes must never be nil")
	}
}

func TestDecodeStateRejectsGarbage(t *testing.T) {
	if _, err := backup.DecodeState("not json"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestIndexBucketsUnpadded(t *testing.T) {
	now := time.Date(2026, 3, 5, 7, 30, 0, 0, time.UTC)
	buckets := backup.IndexBuckets(now)
	want := map[string]string{
		"current": "current",
		"year":    "2026",
		"month":   "2026-3",
		"day":     "2026-3-5",
		"hour":    "2026-3-5-7",
	}
	for kind, label := range want {
		if buckets[kind] != label {
			t.Fatalf("bucket %s = %q, want %q", kind, buckets[kind], label)
		}
	}
}
