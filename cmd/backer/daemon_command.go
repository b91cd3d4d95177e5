package main

import (
	"github.com/spf13/cobra"

	"backer/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the backup daemon in the foreground",
		Long: "Runs the scheduler, IPC server, and optional HTTP API in the " +
			"current process and blocks until a stop request arrives. SIGINT " +
			"and SIGTERM trigger a graceful shutdown; a second signal or an " +
			"expired grace period forces the process down and the command " +
			"exits non-zero.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:   logLevel,
				SocketPath: ctx.socketFlagValue,
			})
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	return cmd
}
