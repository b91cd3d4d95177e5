package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := newCommandContext()

	root := &cobra.Command{
		Use:   "backer",
		Short: "Continuous incremental ZFS backup",
		Long: "Backer snapshots ZFS filesystems on a schedule and streams the " +
			"increments to S3 or local storage. Most commands talk to the " +
			"background daemon over its Unix socket; backup, restore, and " +
			"list also run standalone when the daemon is stopped.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfigLoad(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&ctx.socketFlagValue, "socket", "", "path to the daemon control socket")
	flags.StringVarP(&ctx.configFlagValue, "config", "c", "", "path to the configuration file")

	root.AddCommand(
		newDaemonCommand(ctx),
		newStartCommand(ctx),
		newStopCommand(ctx),
		newRestartCommand(ctx),
		newStatusCommand(ctx),
		newBackupCommand(ctx),
		newIndexCommand(ctx),
		newRestoreCommand(ctx),
		newListCommand(ctx),
		newHistoryCommand(ctx),
		newLogsCommand(ctx),
		newTestNotifyCommand(ctx),
		newConfigCommand(ctx),
	)

	return root
}

// shouldSkipConfigLoad reports whether the command opts out of configuration
// loading, which commands like "config init" need so they can run before a
// config file exists.
func shouldSkipConfigLoad(cmd *cobra.Command) bool {
	for current := cmd; current != nil; current = current.Parent() {
		if current.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
