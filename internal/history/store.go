package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"backer/internal/config"
)

// Kind names the engine operation a run record covers.
type Kind string

const (
	KindBackup  Kind = "backup"
	KindIndex   Kind = "index"
	KindRestore Kind = "restore"
)

// Status is the outcome of a run.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Run is one engine run.
type Run struct {
	ID         int64
	Kind       Kind
	Filesystem string
	BackupID   string
	Status     Status
	Detail     string
	Snapshot   string
	Bytes      int64
	StartedAt  time.Time
	FinishedAt time.Time
}

// Filter narrows Runs queries. Zero values mean no constraint; Limit 0
// defaults to 50 rows.
type Filter struct {
	Filesystem string
	Kind       Kind
	Limit      int
}

// KindSummary aggregates run outcomes per kind.
type KindSummary struct {
	Kind    Kind
	Total   int64
	Failed  int64
	LastRun time.Time
}

// Store manages run history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.HistoryDBPath())
}

// OpenPath opens the database at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// RecordRun inserts one run record and returns its id.
func (s *Store) RecordRun(ctx context.Context, run Run) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (
            kind, filesystem, backup_id, status, detail, snapshot, bytes,
            started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(run.Kind),
		run.Filesystem,
		run.BackupID,
		string(run.Status),
		run.Detail,
		run.Snapshot,
		run.Bytes,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Runs returns run records newest first.
func (s *Store) Runs(ctx context.Context, filter Filter) ([]Run, error) {
	query := `SELECT id, kind, filesystem, backup_id, status, detail, snapshot, bytes,
        started_at, finished_at FROM runs`
	var conds []string
	var args []any
	if filter.Filesystem != "" {
		conds = append(conds, "filesystem = ?")
		args = append(args, filter.Filesystem)
	}
	if filter.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " ORDER BY started_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Summarize aggregates run outcomes per kind for runs started at or after
// since.
func (s *Store) Summarize(ctx context.Context, since time.Time) ([]KindSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, COUNT(1),
            SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
            MAX(finished_at)
        FROM runs WHERE started_at >= ? GROUP BY kind ORDER BY kind`,
		string(StatusError),
		since.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("summarize runs: %w", err)
	}
	defer rows.Close()

	var summaries []KindSummary
	for rows.Next() {
		var summary KindSummary
		var kind, finished string
		if err := rows.Scan(&kind, &summary.Total, &summary.Failed, &finished); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summary.Kind = Kind(kind)
		if finished != "" {
			last, err := time.Parse(time.RFC3339Nano, finished)
			if err != nil {
				return nil, fmt.Errorf("parse finished_at %q: %w", finished, err)
			}
			summary.LastRun = last
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	return summaries, nil
}

// Prune deletes runs that started before the retention window and returns
// the number of rows removed.
func (s *Store) Prune(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM runs WHERE started_at < ?",
		cutoff.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return removed, nil
}

func scanRun(rows *sql.Rows) (Run, error) {
	var run Run
	var kind, status, started, finished string
	if err := rows.Scan(&run.ID, &kind, &run.Filesystem, &run.BackupID, &status,
		&run.Detail, &run.Snapshot, &run.Bytes, &started, &finished); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Kind = Kind(kind)
	run.Status = Status(status)
	startedAt, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return Run{}, fmt.Errorf("parse started_at %q: %w", started, err)
	}
	run.StartedAt = startedAt
	finishedAt, err := time.Parse(time.RFC3339Nano, finished)
	if err != nil {
		return Run{}, fmt.Errorf("parse finished_at %q: %w", finished, err)
	}
	run.FinishedAt = finishedAt
	return run, nil
}
