package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"backer/internal/ipc"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestDaemonStatusMessage(t *testing.T) {
	running := &ipc.StatusResponse{Running: true, PID: 42, State: "running"}
	if got := daemonStatusMessage(running); !strings.Contains(got, "pid 42") {
		t.Fatalf("running message missing pid: %q", got)
	}
	if kind := daemonStatusKind(running); kind != statusOK {
		t.Fatalf("running kind = %v, want statusOK", kind)
	}

	wedged := &ipc.StatusResponse{PID: 42}
	if got := daemonStatusMessage(wedged); !strings.Contains(got, "not answering IPC") {
		t.Fatalf("wedged message = %q", got)
	}
	if kind := daemonStatusKind(wedged); kind != statusWarn {
		t.Fatalf("wedged kind = %v, want statusWarn", kind)
	}

	down := &ipc.StatusResponse{}
	if got := daemonStatusMessage(down); got != "Not running" {
		t.Fatalf("down message = %q", got)
	}
	if kind := daemonStatusKind(down); kind != statusError {
		t.Fatalf("down kind = %v, want statusError", kind)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}

func TestRenderSectionHeaderUnderline(t *testing.T) {
	parts := strings.Split(renderSectionHeader("Lanes"), "\n")
	if len(parts) != 2 {
		t.Fatalf("expected header and underline, got %q", parts)
	}
	if len(parts[0]) != len(parts[1]) {
		t.Fatalf("underline length %d does not match header length %d", len(parts[1]), len(parts[0]))
	}
}
