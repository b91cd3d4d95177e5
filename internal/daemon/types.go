package daemon

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"backer/internal/history"
	"backer/internal/scheduler"
)

// Status is the daemon runtime snapshot served over IPC and the HTTP API.
type Status struct {
	Running       bool             `json:"running"`
	State         string           `json:"state"`
	PID           int              `json:"pid"`
	StartedAt     time.Time        `json:"started_at"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	RSSBytes      uint64           `json:"rss_bytes"`
	Scheduler     scheduler.Status `json:"scheduler"`
	Summaries     []RunSummary     `json:"summaries,omitempty"`
	LockFilePath  string           `json:"lock_file_path"`
	HistoryDBPath string           `json:"history_db_path"`
}

// RunSummary aggregates runs of one kind over the reporting window.
type RunSummary struct {
	Kind    string    `json:"kind"`
	Total   int64     `json:"total"`
	Failed  int64     `json:"failed"`
	LastRun time.Time `json:"last_run"`
}

// HistoryEntry is the wire form of a recorded run.
type HistoryEntry struct {
	ID         int64     `json:"id"`
	Kind       string    `json:"kind"`
	Filesystem string    `json:"filesystem"`
	BackupID   string    `json:"backup_id"`
	Status     string    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	Snapshot   string    `json:"snapshot,omitempty"`
	Bytes      int64     `json:"bytes"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// HistoryEntryFromRun converts a stored run into its wire form.
func HistoryEntryFromRun(run history.Run) HistoryEntry {
	return HistoryEntry{
		ID:         run.ID,
		Kind:       string(run.Kind),
		Filesystem: run.Filesystem,
		BackupID:   run.BackupID,
		Status:     string(run.Status),
		Detail:     run.Detail,
		Snapshot:   run.Snapshot,
		Bytes:      run.Bytes,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
}

// residentSetBytes reports the daemon's resident memory, or zero when the
// platform cannot answer.
func residentSetBytes() uint64 {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	info, err := proc.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return info.RSS
}
