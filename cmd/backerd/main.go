// Command backerd runs the backup daemon directly, for init systems that
// prefer a dedicated daemon binary over `backer daemon`.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"backer/internal/config"
	"backer/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	logLevel := flag.String("log-level", "", "override the configured log level")
	socketPath := flag.String("socket", "", "path to the control socket")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backerd: %v\n", err)
		os.Exit(1)
	}

	err = daemonrun.Run(context.Background(), cfg, daemonrun.Options{
		LogLevel:   *logLevel,
		SocketPath: *socketPath,
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "backerd: %v\n", err)
		}
		os.Exit(1)
	}
}
