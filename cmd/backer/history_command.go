package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"backer/internal/daemon"
	"backer/internal/history"
	"backer/internal/ipc"
	"backer/internal/logging"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var filesystem string
	var kind string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded backup, index, and restore runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := fetchHistory(cmd.Context(), ctx, filesystem, kind, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([]table.Row, 0, len(entries))
			for _, entry := range entries {
				detail := entry.Detail
				if detail == "" {
					detail = "-"
				}
				rows = append(rows, table.Row{
					entry.ID,
					entry.Kind,
					entry.Filesystem,
					entry.Status,
					formatTime(entry.StartedAt),
					formatRunDuration(entry.StartedAt, entry.FinishedAt),
					logging.FormatBytes(entry.Bytes),
					truncate(detail, 48),
				})
			}
			renderTable(out, table.Row{"ID", "Kind", "Filesystem", "Status", "Started", "Duration", "Bytes", "Detail"}, rows, 1, 7)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to show")
	cmd.Flags().StringVar(&filesystem, "filesystem", "", "only show runs for this filesystem")
	cmd.Flags().StringVar(&kind, "kind", "", "only show runs of this kind (backup, index, restore)")
	return cmd
}

// fetchHistory prefers the daemon so output matches what it records, and
// falls back to reading the database directly when it is down.
func fetchHistory(execCtx context.Context, ctx *commandContext, filesystem, kind string, limit int) ([]ipc.HistoryEntry, error) {
	client, dialErr := ctx.dialClient()
	if dialErr == nil {
		defer client.Close()
		resp, err := client.HistoryList(ipc.HistoryListRequest{
			Filesystem: filesystem,
			Kind:       kind,
			Limit:      limit,
		})
		if err != nil {
			return nil, err
		}
		return resp.Runs, nil
	}

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := history.Open(cfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	runs, err := store.Runs(execCtx, history.Filter{
		Filesystem: filesystem,
		Kind:       history.Kind(kind),
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	entries := make([]ipc.HistoryEntry, 0, len(runs))
	for _, run := range runs {
		entries = append(entries, daemon.HistoryEntryFromRun(run))
	}
	return entries, nil
}

func formatRunDuration(start, end time.Time) string {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return "-"
	}
	return end.Sub(start).Round(time.Second).String()
}

func truncate(s string, max int) string {
	if max <= 3 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
