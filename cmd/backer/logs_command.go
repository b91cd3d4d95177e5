package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"backer/internal/ipc"
	"backer/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon log lines",
		Long: "Prints the tail of the daemon log. With a running daemon the " +
			"lines come over IPC; otherwise the log file is read directly. " +
			"--follow keeps streaming new lines until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			limit := lines
			if limit < 0 {
				limit = 0
			}
			offset := int64(-1)
			if limit == 0 {
				offset = 0
			}

			client, dialErr := ctx.dialClient()
			if dialErr == nil {
				defer client.Close()
				printed := false
				for {
					resp, err := client.LogTail(ipc.LogTailRequest{
						Offset:     offset,
						Limit:      limit,
						Follow:     follow,
						WaitMillis: 1000,
					})
					if err != nil {
						return err
					}
					for _, line := range resp.Lines {
						fmt.Fprintln(out, line)
						printed = true
					}
					offset = resp.Offset
					limit = 0
					if !follow {
						if !printed {
							fmt.Fprintln(out, "No log entries available")
						}
						return nil
					}
					select {
					case <-cmd.Context().Done():
						return nil
					default:
					}
				}
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return tailLogFile(cmd.Context(), out, cfg.LogFilePath(), offset, limit, follow)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep streaming new log lines")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "number of trailing lines to print first")
	return cmd
}

// tailLogFile reads the log file directly when the daemon is unreachable.
func tailLogFile(execCtx context.Context, out io.Writer, path string, offset int64, limit int, follow bool) error {
	printed := false
	for {
		result, err := logs.Tail(execCtx, path, logs.TailOptions{
			Offset: offset,
			Limit:  limit,
			Follow: follow,
			Wait:   time.Second,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		for _, line := range result.Lines {
			fmt.Fprintln(out, line)
			printed = true
		}
		offset = result.Offset
		limit = 0
		if !follow {
			if !printed {
				fmt.Fprintln(out, "No log entries available")
			}
			return nil
		}
		select {
		case <-execCtx.Done():
			return nil
		default:
		}
	}
}
