package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"backer/internal/config"
	"backer/internal/daemonctl"
	"backer/internal/ipc"
	"backer/internal/logging"
	"backer/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, lane, and run status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			snapshot, err := daemonctl.StatusSnapshot(cmd.Context(), ctx.socketPath(), cfg)
			if err != nil {
				return err
			}
			renderStatus(cmd.Context(), cmd.OutOrStdout(), ctx, cfg, snapshot)
			return nil
		},
	}
}

func renderStatus(execCtx context.Context, out io.Writer, ctx *commandContext, cfg *config.Config, snapshot *ipc.StatusResponse) {
	colorize := shouldColorize(out)

	fmt.Fprintln(out, renderSectionHeader("Daemon"))
	fmt.Fprintln(out, renderStatusLine("Daemon", daemonStatusKind(snapshot), daemonStatusMessage(snapshot), colorize))
	if snapshot.Running {
		uptime := time.Duration(snapshot.UptimeSeconds) * time.Second
		fmt.Fprintln(out, renderStatusLine("Uptime", statusInfo, uptime.String(), colorize))
		if snapshot.RSSBytes > 0 {
			fmt.Fprintln(out, renderStatusLine("Memory", statusInfo, logging.FormatBytes(int64(snapshot.RSSBytes)), colorize))
		}
	}
	fmt.Fprintln(out, renderStatusLine("Socket", statusInfo, ctx.socketPath(), colorize))
	if snapshot.LockPath != "" {
		fmt.Fprintln(out, renderStatusLine("Lock file", statusInfo, snapshot.LockPath, colorize))
	}
	if snapshot.HistoryDBPath != "" {
		fmt.Fprintln(out, renderStatusLine("History DB", statusInfo, snapshot.HistoryDBPath, colorize))
	}

	if len(snapshot.Lanes) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderSectionHeader("Lanes"))
		rows := make([]table.Row, 0, len(snapshot.Lanes))
		for _, lane := range snapshot.Lanes {
			lastErr := lane.LastError
			if lastErr == "" {
				lastErr = "-"
			}
			rows = append(rows, table.Row{lane.Kind, lane.Pending, formatTime(lane.LastRun), lastErr})
		}
		renderTable(out, table.Row{"Lane", "Pending", "Last Run", "Last Error"}, rows, 2)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, renderSectionHeader("Runs (24h)"))
	if len(snapshot.Summaries) == 0 {
		fmt.Fprintln(out, statusIndent+"No runs recorded")
	} else {
		rows := make([]table.Row, 0, len(snapshot.Summaries))
		for _, summary := range snapshot.Summaries {
			rows = append(rows, table.Row{summary.Kind, summary.Total, summary.Failed, formatTime(summary.LastRun)})
		}
		renderTable(out, table.Row{"Kind", "Total", "Failed", "Last Run"}, rows, 2, 3)
	}

	// A running daemon already verified its environment at boot and logs
	// regressions, so the checks only add signal while it is down.
	if !snapshot.Running {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderSectionHeader("Checks"))
		checkCtx, cancel := context.WithTimeout(execCtx, 5*time.Second)
		defer cancel()
		for _, result := range preflight.RunAll(checkCtx, cfg) {
			kind := statusOK
			message := "ok"
			if !result.Passed {
				kind = statusError
				message = result.Detail
			} else if result.Detail != "" {
				message = result.Detail
			}
			fmt.Fprintln(out, renderStatusLine(result.Name, kind, message, colorize))
		}
	}
}

func daemonStatusKind(snapshot *ipc.StatusResponse) statusKind {
	switch {
	case snapshot.Running:
		return statusOK
	case snapshot.PID > 0:
		return statusWarn
	default:
		return statusError
	}
}

func daemonStatusMessage(snapshot *ipc.StatusResponse) string {
	switch {
	case snapshot.Running:
		return fmt.Sprintf("Running (pid %d, state %s)", snapshot.PID, snapshot.State)
	case snapshot.PID > 0:
		return fmt.Sprintf("Process %d alive but not answering IPC", snapshot.PID)
	default:
		return "Not running"
	}
}
