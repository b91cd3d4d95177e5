package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"backer/internal/config"
	"backer/internal/daemonctl"
	"backer/internal/ipc"
)

const daemonStartTimeout = 10 * time.Second

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("determine executable path: %w", err)
			}
			out := cmd.OutOrStdout()
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, launchOptions(ctx), daemonStartTimeout)
			if err != nil {
				return err
			}
			switch {
			case result.State == daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(out, "Daemon already running")
			case result.Launched:
				fmt.Fprintln(out, "Daemon started")
			default:
				fmt.Fprintln(out, "Daemon running")
			}
			return nil
		},
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		Long: "Asks the daemon to shut down gracefully and waits for the " +
			"process to exit. When the grace period elapses the process is " +
			"killed. --force skips the graceful drain and aborts in-flight " +
			"work immediately.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if force {
				return stopForced(ctx, out)
			}
			cfg := ctx.configValue()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), cfg, stopGracePeriod(cfg))
			if err != nil {
				if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
					fmt.Fprintln(out, "Daemon is not running")
					return nil
				}
				return err
			}
			if result.ForcedKill {
				return fmt.Errorf("daemon did not exit within the grace period; killed process %d", result.PID)
			}
			fmt.Fprintln(out, "Daemon stopped")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "abort in-flight work instead of draining it")
	return cmd
}

func stopForced(ctx *commandContext, out io.Writer) error {
	running, _, err := daemonctl.ProcessInfo(ctx.socketPath())
	if err != nil {
		return err
	}
	if !running {
		fmt.Fprintln(out, "Daemon is not running")
		return nil
	}
	err = ctx.withClient(func(client *ipc.Client) error {
		resp, err := client.Stop(true)
		if err != nil {
			return err
		}
		if resp == nil || !resp.Stopped {
			return errors.New("daemon rejected the stop request")
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := daemonctl.WaitForShutdown(ctx.socketPath(), daemonStartTimeout); err != nil {
		return err
	}
	fmt.Fprintln(out, "Daemon stopped")
	return nil
}

func newRestartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("determine executable path: %w", err)
			}
			result, err := daemonctl.Restart(ctx.socketPath(), cfg, exe, launchOptions(ctx), stopGracePeriod(cfg), daemonStartTimeout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if result.WasRunning {
				fmt.Fprintln(out, "Daemon restarted")
			} else {
				fmt.Fprintln(out, "Daemon started")
			}
			return nil
		},
	}
}

func launchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{
		SocketPath: ctx.socketFlagValue,
		ConfigPath: ctx.configFlagValue,
	}
}

// stopGracePeriod sizes the CLI-side wait so the daemon's own forced
// escalation fires before the CLI resorts to SIGKILL.
func stopGracePeriod(cfg *config.Config) time.Duration {
	if cfg == nil || cfg.Daemon.ShutdownGracePeriod <= 0 {
		return 10 * time.Second
	}
	return time.Duration(cfg.Daemon.ShutdownGracePeriod)*time.Second + 2*time.Second
}
