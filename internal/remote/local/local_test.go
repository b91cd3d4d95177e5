package local_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"backer/internal/backup"
	"backer/internal/logging"
	"backer/internal/remote/local"
)

func newStorage(t *testing.T) (*local.Storage, string) {
	t.Helper()
	root := t.TempDir()
	store, err := local.New(root, logging.NewNop())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	return store, root
}

func TestNewRequiresAbsoluteRoot(t *testing.T) {
	if _, err := local.New("relative/path", logging.NewNop()); err == nil {
		t.Fatal("expected error for relative root")
	}
}

func TestDataRoundTrip(t *testing.T) {
	store, root := newStorage(t)
	key := backup.Key{FSGUID: "guid-1", ID: "default", SID: strings.Repeat("a", 32), N: 3}

	if err := store.PutData(context.Background(), key, strings.NewReader("streamdata")); err != nil {
		t.Fatalf("PutData: %v", err)
	}

	path := filepath.Join(root, backup.FormatVersion, "guid-1.fs", "default.backup", "data",
		key.SID+".series", "3.data")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat data file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("data file mode = %o", perm)
	}

	var out bytes.Buffer
	if err := store.GetData(context.Background(), key, &out); err != nil {
		t.Fatalf("GetData: %v", err)
	}
	if out.String() != "streamdata" {
		t.Fatalf("data = %q", out.String())
	}
}

func TestGetDataMissing(t *testing.T) {
	store, _ := newStorage(t)
	key := backup.Key{FSGUID: "guid-1", ID: "default", SID: "abc", N: 0}
	if err := store.GetData(context.Background(), key, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for missing data")
	}
}

func TestIndexRoundTrip(t *testing.T) {
	store, root := newStorage(t)

	doc := []byte(`{"meta":{"key":{"fsguid":"guid-1","id":"default","sid":"abc","n":0}}}`)
	if err := store.PutIndex(context.Background(), "guid-1", "default", "current", doc); err != nil {
		t.Fatalf("PutIndex: %v", err)
	}

	want := filepath.Join(root, backup.FormatVersion, "guid-1.fs", "default.backup", "index", "current.meta")
	if got := store.IndexPath("guid-1", "default", "current"); got != want {
		t.Fatalf("IndexPath = %q, want %q", got, want)
	}

	data, err := store.GetIndex(context.Background(), "guid-1", "default", "current")
	if err != nil {
		t.Fatalf("GetIndex: %v", err)
	}
	if !bytes.Equal(data, doc) {
		t.Fatalf("index = %q", data)
	}
}

func TestGetIndexMissingReportsNoIndex(t *testing.T) {
	store, _ := newStorage(t)
	if _, err := store.GetIndex(context.Background(), "guid-1", "default", "current"); !errors.Is(err, backup.ErrNoIndex) {
		t.Fatalf("err = %v", err)
	}
}

func TestListReturnsCurrentMetas(t *testing.T) {
	store, _ := newStorage(t)
	ctx := context.Background()

	for _, entry := range []struct{ fsguid, id string }{
		{"guid-b", "default"},
		{"guid-a", "nightly"},
		{"guid-a", "default"},
	} {
		meta := backup.Meta{Key: backup.Key{FSGUID: entry.fsguid, ID: entry.id, SID: "abc", N: 2}}
		doc, err := backup.EncodeIndexEntry(backup.IndexEntry{Meta: meta})
		if err != nil {
			t.Fatalf("EncodeIndexEntry: %v", err)
		}
		if err := store.PutIndex(ctx, entry.fsguid, entry.id, "current", doc); err != nil {
			t.Fatalf("PutIndex: %v", err)
		}
	}

	metas, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 3 {
		t.Fatalf("metas = %+v", metas)
	}
	got := make([]string, 0, len(metas))
	for _, meta := range metas {
		got = append(got, meta.Key.FSGUID+"/"+meta.Key.ID)
	}
	want := []string{"guid-a/default", "guid-a/nightly", "guid-b/default"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v", got)
		}
	}
}

func TestListEmptyRoot(t *testing.T) {
	store, _ := newStorage(t)
	metas, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 0 {
		t.Fatalf("metas = %+v", metas)
	}
}

func TestPing(t *testing.T) {
	store, _ := newStorage(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	missing, err := local.New(filepath.Join(t.TempDir(), "nope"), logging.NewNop())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	if err := missing.Ping(context.Background()); err == nil {
		t.Fatal("expected error for missing root")
	}
}
