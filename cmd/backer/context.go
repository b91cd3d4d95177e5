package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"backer/internal/config"
	"backer/internal/ipc"
)

// commandContext carries the state shared by every subcommand: flag values,
// the lazily loaded configuration, and the daemon socket location.
type commandContext struct {
	socketFlagValue string
	configFlagValue string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

// ensureConfig loads the configuration once and reuses it for the rest of
// the invocation. Directories are created eagerly so follow-up operations
// can rely on them.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(c.configFlagValue)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

// configValue returns the loaded configuration or nil when loading failed.
func (c *commandContext) configValue() *config.Config {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil
	}
	return cfg
}

func (c *commandContext) socketPath() string {
	if strings.TrimSpace(c.socketFlagValue) != "" {
		return c.socketFlagValue
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.SocketPath()
	}
	return defaultSocketPath()
}

func (c *commandContext) dialClient() (*ipc.Client, error) {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err != nil {
		return nil, wrapDialError(socket, err)
	}
	return client, nil
}

func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	client, err := c.dialClient()
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

func wrapDialError(socket string, err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ENOENT):
		return fmt.Errorf("daemon socket %s not found; start the daemon with `backer start` (%w)", socket, err)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("daemon socket %s refused the connection; the daemon may have crashed, restart it with `backer start` (%w)", socket, err)
	}
	return fmt.Errorf("connect to daemon socket %s: %w", socket, err)
}

// defaultSocketPath is the fallback when no configuration could be loaded at
// all, so stop and status still have a socket to probe.
func defaultSocketPath() string {
	if cfg, _, _, err := config.Load(""); err == nil && cfg != nil {
		return cfg.SocketPath()
	}
	return filepath.Join(os.TempDir(), "backer.sock")
}
