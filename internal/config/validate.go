package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDaemon(); err != nil {
		return err
	}
	if err := c.validateRemotes(); err != nil {
		return err
	}
	if err := c.validateFilesystems(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDaemon() error {
	if err := ensurePositiveMap(map[string]int{
		"daemon.backup_interval":       c.Daemon.BackupInterval,
		"daemon.index_interval":        c.Daemon.IndexInterval,
		"daemon.poll_interval":         c.Daemon.PollInterval,
		"daemon.shutdown_grace_period": c.Daemon.ShutdownGracePeriod,
		"zfs.command_timeout":          c.ZFS.CommandTimeout,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRemotes() error {
	backends := map[string]struct{}{c.Remote.Backend: {}}
	for _, fs := range c.Filesystems {
		if fs.Remote != "" {
			backends[fs.Remote] = struct{}{}
		}
	}
	for backend := range backends {
		switch backend {
		case "s3":
			if c.S3.Bucket == "" {
				return errors.New("s3.bucket must be set when the s3 backend is selected")
			}
		case "local":
			if c.Local.Root == "" {
				return errors.New("local.root must be set when the local backend is selected")
			}
		default:
			return fmt.Errorf("remote.backend: unsupported value %q (expected s3 or local)", backend)
		}
	}
	return nil
}

func (c *Config) validateFilesystems() error {
	seen := make(map[string]struct{}, len(c.Filesystems))
	for _, fs := range c.Filesystems {
		if _, dup := seen[fs.Name]; dup {
			return fmt.Errorf("filesystems: duplicate entry %q", fs.Name)
		}
		seen[fs.Name] = struct{}{}
		if fs.BackupInterval < 0 {
			return fmt.Errorf("filesystems.%s.backup_interval must not be negative", fs.Name)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
