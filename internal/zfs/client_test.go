package zfs_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"backer/internal/logging"
	"backer/internal/zfs"
)

type call struct {
	args  []string
	stdin string
}

// fakeExecutor scripts responses keyed by the zfs subcommand.
type fakeExecutor struct {
	calls   []call
	outputs map[string][]string
	errs    map[string]error
	stream  string
}

func (f *fakeExecutor) Run(_ context.Context, _ string, args []string, onStdout func(string)) error {
	f.calls = append(f.calls, call{args: append([]string(nil), args...)})
	if err := f.errs[args[0]]; err != nil {
		return err
	}
	for _, line := range f.outputs[args[0]] {
		onStdout(line)
	}
	return nil
}

func (f *fakeExecutor) RunStream(_ context.Context, _ string, args []string, stdin io.Reader, stdout io.Writer) error {
	entry := call{args: append([]string(nil), args...)}
	if stdin != nil {
		data, _ := io.ReadAll(stdin)
		entry.stdin = string(data)
	}
	f.calls = append(f.calls, entry)
	if err := f.errs[args[0]]; err != nil {
		return err
	}
	if stdout != nil && f.stream != "" {
		io.WriteString(stdout, f.stream)
	}
	return nil
}

func newClient(t *testing.T, exec zfs.Executor) *zfs.Client {
	t.Helper()
	client, err := zfs.New("zfs", 60, logging.NewNop(), zfs.WithExecutor(exec))
	if err != nil {
		t.Fatalf("zfs.New: %v", err)
	}
	return client
}

func (f *fakeExecutor) lastCall(t *testing.T) call {
	t.Helper()
	if len(f.calls) == 0 {
		t.Fatal("no zfs commands were executed")
	}
	return f.calls[len(f.calls)-1]
}

func TestGUID(t *testing.T) {
	exec := &fakeExecutor{outputs: map[string][]string{"get": {"1387437859294753920"}}}
	client := newClient(t, exec)

	guid, err := client.GUID(context.Background(), "tank/data")
	if err != nil {
		t.Fatalf("GUID: %v", err)
	}
	if guid != "1387437859294753920" {
		t.Fatalf("guid = %q", guid)
	}
	got := strings.Join(exec.lastCall(t).args, " ")
	if got != "get -H -p -o value guid tank/data" {
		t.Fatalf("args = %q", got)
	}
}

func TestExistsMapsDatasetNotFound(t *testing.T) {
	exec := &fakeExecutor{errs: map[string]error{"list": &zfs.CommandError{
		Args:   []string{"list"},
		Stderr: "cannot open 'tank/ghost': dataset does not exist",
		Err:    errors.New("exit status 1"),
	}}}
	client := newClient(t, exec)

	ok, err := client.Exists(context.Background(), "tank/ghost")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Fatal("missing dataset should not exist")
	}
}

func TestExistsPropagatesOtherErrors(t *testing.T) {
	exec := &fakeExecutor{errs: map[string]error{"list": &zfs.CommandError{
		Args:   []string{"list"},
		Stderr: "permission denied",
		Err:    errors.New("exit status 1"),
	}}}
	client := newClient(t, exec)

	if _, err := client.Exists(context.Background(), "tank/data"); err == nil {
		t.Fatal("expected permission error to propagate")
	}
}

func TestSnapshotsStripsDatasetPrefix(t *testing.T) {
	exec := &fakeExecutor{outputs: map[string][]string{"list": {
		"tank/data@backer:10-aaaa-0",
		"tank/data@backer:10-aaaa-1",
		"",
	}}}
	client := newClient(t, exec)

	names, err := client.Snapshots(context.Background(), "tank/data")
	if err != nil {
		t.Fatalf("Snapshots: %v", err)
	}
	if len(names) != 2 || names[0] != "backer:10-aaaa-0" || names[1] != "backer:10-aaaa-1" {
		t.Fatalf("names = %v", names)
	}
	got := strings.Join(exec.lastCall(t).args, " ")
	if got != "list -H -t snapshot -o name -s createtxg -d 1 tank/data" {
		t.Fatalf("args = %q", got)
	}
}

func TestSnapshotAppliesPropertiesInOrder(t *testing.T) {
	exec := &fakeExecutor{}
	client := newClient(t, exec)

	props := map[string]string{
		"backer:version": "10",
		"backer:state":   `{"stored":false}`,
	}
	if err := client.Snapshot(context.Background(), "tank/data", "backer:10-aaaa-0", props); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	got := strings.Join(exec.lastCall(t).args, " ")
	want := `snapshot -o backer:state={"stored":false} -o backer:version=10 tank/data@backer:10-aaaa-0`
	if got != want {
		t.Fatalf("args = %q, want %q", got, want)
	}
}

func TestCreation(t *testing.T) {
	exec := &fakeExecutor{outputs: map[string][]string{"get": {"1714939200"}}}
	client := newClient(t, exec)

	created, err := client.Creation(context.Background(), "tank/data")
	if err != nil {
		t.Fatalf("Creation: %v", err)
	}
	if created != 1714939200 {
		t.Fatalf("creation = %d", created)
	}
	got := strings.Join(exec.lastCall(t).args, " ")
	if got != "get -H -p -o value creation tank/data" {
		t.Fatalf("args = %q", got)
	}
}

func TestSnapshotsWithProperty(t *testing.T) {
	exec := &fakeExecutor{outputs: map[string][]string{"list": {
		"tank/data@manual\t-",
		"tank/data@backer:10-aaaa-0\t10",
		"tank/data@backer:10-aaaa-1\t10",
	}}}
	client := newClient(t, exec)

	snaps, err := client.SnapshotsWithProperty(context.Background(), "tank/data", "backer:version")
	if err != nil {
		t.Fatalf("SnapshotsWithProperty: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("snaps = %v", snaps)
	}
	if snaps[0].Name != "manual" || snaps[0].Value != "" {
		t.Fatalf("unset property row = %+v", snaps[0])
	}
	if snaps[1].Name != "backer:10-aaaa-0" || snaps[1].Value != "10" {
		t.Fatalf("first tagged row = %+v", snaps[1])
	}
	got := strings.Join(exec.lastCall(t).args, " ")
	if got != "list -H -t snapshot -o name,backer:version -s createtxg -d 1 tank/data" {
		t.Fatalf("args = %q", got)
	}
}

func TestHasChanges(t *testing.T) {
	exec := &fakeExecutor{outputs: map[string][]string{"diff": {"M\t/tank/data/file"}}}
	client := newClient(t, exec)

	changed, err := client.HasChanges(context.Background(), "tank/data", "backer:10-aaaa-0")
	if err != nil {
		t.Fatalf("HasChanges: %v", err)
	}
	if !changed {
		t.Fatal("diff output should report changes")
	}

	quiet := &fakeExecutor{outputs: map[string][]string{"diff": {""}}}
	client = newClient(t, quiet)
	changed, err = client.HasChanges(context.Background(), "tank/data", "backer:10-aaaa-0")
	if err != nil {
		t.Fatalf("HasChanges: %v", err)
	}
	if changed {
		t.Fatal("empty diff should report no changes")
	}
}

func TestSendFullAndIncremental(t *testing.T) {
	exec := &fakeExecutor{stream: "streamdata"}
	client := newClient(t, exec)

	var full bytes.Buffer
	if err := client.Send(context.Background(), "tank/data", "", "backer:10-aaaa-0", &full); err != nil {
		t.Fatalf("Send full: %v", err)
	}
	if got := strings.Join(exec.lastCall(t).args, " "); got != "send -p tank/data@backer:10-aaaa-0" {
		t.Fatalf("full send args = %q", got)
	}
	if full.String() != "streamdata" {
		t.Fatalf("full stream = %q", full.String())
	}

	var incr bytes.Buffer
	if err := client.Send(context.Background(), "tank/data", "backer:10-aaaa-0", "backer:10-aaaa-1", &incr); err != nil {
		t.Fatalf("Send incremental: %v", err)
	}
	if got := strings.Join(exec.lastCall(t).args, " "); got != "send -p -i tank/data@backer:10-aaaa-0 tank/data@backer:10-aaaa-1" {
		t.Fatalf("incremental send args = %q", got)
	}
}

func TestReceiveLeavesDatasetUnmounted(t *testing.T) {
	exec := &fakeExecutor{}
	client := newClient(t, exec)

	if err := client.Receive(context.Background(), "tank/restore", strings.NewReader("streamdata")); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	last := exec.lastCall(t)
	if got := strings.Join(last.args, " "); got != "receive -u tank/restore" {
		t.Fatalf("receive args = %q", got)
	}
	if last.stdin != "streamdata" {
		t.Fatalf("stdin = %q", last.stdin)
	}
}

func TestGetPropertyUnset(t *testing.T) {
	exec := &fakeExecutor{outputs: map[string][]string{"get": {"-"}}}
	client := newClient(t, exec)

	_, ok, err := client.GetProperty(context.Background(), "tank/data", "backer:state")
	if err != nil {
		t.Fatalf("GetProperty: %v", err)
	}
	if ok {
		t.Fatal("dash output should report unset")
	}
}

func TestSetAndClearProperty(t *testing.T) {
	exec := &fakeExecutor{}
	client := newClient(t, exec)

	if err := client.SetProperty(context.Background(), "tank/data", "backer:state", `{"v":1}`); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}
	if got := strings.Join(exec.lastCall(t).args, " "); got != `set backer:state={"v":1} tank/data` {
		t.Fatalf("set args = %q", got)
	}

	if err := client.ClearProperty(context.Background(), "tank/data", "backer:state"); err != nil {
		t.Fatalf("ClearProperty: %v", err)
	}
	if got := strings.Join(exec.lastCall(t).args, " "); got != "inherit backer:state tank/data" {
		t.Fatalf("inherit args = %q", got)
	}
}

func TestNewRequiresBinary(t *testing.T) {
	if _, err := zfs.New("  ", 60, logging.NewNop()); err == nil {
		t.Fatal("expected error for empty binary")
	}
}
