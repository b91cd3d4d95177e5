package ipc

import (
	"time"

	"backer/internal/daemon"
	"backer/internal/scheduler"
)

// LaneStatus mirrors the scheduler lane snapshot for IPC callers.
type LaneStatus = scheduler.LaneStatus

// RunSummary mirrors the daemon run aggregate for IPC callers.
type RunSummary = daemon.RunSummary

// HistoryEntry mirrors the wire form of a recorded run.
type HistoryEntry = daemon.HistoryEntry

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse carries the daemon runtime snapshot.
type StatusResponse struct {
	Running       bool         `json:"running"`
	State         string       `json:"state"`
	PID           int          `json:"pid"`
	StartedAt     time.Time    `json:"started_at"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	RSSBytes      uint64       `json:"rss_bytes"`
	Lanes         []LaneStatus `json:"lanes"`
	Summaries     []RunSummary `json:"summaries"`
	LockPath      string       `json:"lock_path"`
	HistoryDBPath string       `json:"history_db_path"`
}

// StopRequest asks the process to shut down. Force skips the drain phase.
type StopRequest struct {
	Force bool `json:"force"`
}

// StopResponse reports whether the shutdown request was accepted.
type StopResponse struct {
	Stopped bool   `json:"stopped"`
	State   string `json:"state"`
}

// BackupNowRequest queues an immediate backup. An empty filesystem targets
// every enabled filesystem.
type BackupNowRequest struct {
	Filesystem string `json:"filesystem"`
	Force      bool   `json:"force"`
}

// BackupNowResponse lists the filesystems that were queued.
type BackupNowResponse struct {
	Queued []string `json:"queued"`
}

// IndexNowRequest queues an immediate index republish.
type IndexNowRequest struct {
	Filesystem string `json:"filesystem"`
}

// IndexNowResponse lists the filesystems that were queued.
type IndexNowResponse struct {
	Queued []string `json:"queued"`
}

// HistoryListRequest filters recorded runs.
type HistoryListRequest struct {
	Filesystem string `json:"filesystem"`
	Kind       string `json:"kind"`
	Limit      int    `json:"limit"`
}

// HistoryListResponse contains recorded runs, newest first.
type HistoryListResponse struct {
	Runs []HistoryEntry `json:"runs"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
