package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.Version = strings.TrimSpace(c.Version)
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDaemon()
	c.normalizeRemote()
	if err := c.normalizeS3(); err != nil {
		return err
	}
	if err := c.normalizeLocal(); err != nil {
		return err
	}
	c.normalizeZFS()
	c.normalizeFilesystems()
	c.normalizeNotifications()
	c.normalizeHistory()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ScratchDir) == "" {
		c.Paths.ScratchDir = defaultScratchDir
	}
	if c.Paths.ScratchDir, err = expandPath(c.Paths.ScratchDir); err != nil {
		return fmt.Errorf("paths.scratch_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeDaemon() {
	if c.Daemon.BackupInterval <= 0 {
		c.Daemon.BackupInterval = defaultBackupInterval
	}
	if c.Daemon.IndexInterval <= 0 {
		c.Daemon.IndexInterval = defaultIndexInterval
	}
	if c.Daemon.PollInterval <= 0 {
		c.Daemon.PollInterval = defaultPollInterval
	}
	if c.Daemon.ShutdownGracePeriod <= 0 {
		c.Daemon.ShutdownGracePeriod = defaultShutdownGrace
	}
}

func (c *Config) normalizeRemote() {
	c.Remote.Backend = strings.ToLower(strings.TrimSpace(c.Remote.Backend))
	if c.Remote.Backend == "" {
		c.Remote.Backend = defaultRemoteBackend
	}
}

func (c *Config) normalizeS3() error {
	c.S3.Bucket = strings.TrimSpace(c.S3.Bucket)
	c.S3.Prefix = strings.Trim(strings.TrimSpace(c.S3.Prefix), "/")
	c.S3.Region = strings.TrimSpace(c.S3.Region)
	c.S3.Endpoint = strings.TrimSpace(c.S3.Endpoint)
	c.S3.AccessKey = strings.TrimSpace(c.S3.AccessKey)
	if c.S3.AccessKey == "" {
		if value, ok := os.LookupEnv("AWS_ACCESS_KEY_ID"); ok {
			c.S3.AccessKey = strings.TrimSpace(value)
		}
	}
	c.S3.SecretKey = strings.TrimSpace(c.S3.SecretKey)
	if c.S3.SecretKey == "" {
		if value, ok := os.LookupEnv("AWS_SECRET_ACCESS_KEY"); ok {
			c.S3.SecretKey = strings.TrimSpace(value)
		}
	}
	if c.S3.PartSizeMiB <= 0 {
		c.S3.PartSizeMiB = defaultS3PartSizeMiB
	}
	return nil
}

func (c *Config) normalizeLocal() error {
	c.Local.Root = strings.TrimSpace(c.Local.Root)
	if c.Local.Root == "" {
		return nil
	}
	var err error
	if c.Local.Root, err = expandPath(c.Local.Root); err != nil {
		return fmt.Errorf("local.root: %w", err)
	}
	return nil
}

func (c *Config) normalizeZFS() {
	c.ZFS.Binary = strings.TrimSpace(c.ZFS.Binary)
	if c.ZFS.Binary == "" {
		c.ZFS.Binary = "zfs"
	}
	if c.ZFS.CommandTimeout <= 0 {
		c.ZFS.CommandTimeout = defaultZFSCommandTimeout
	}
}

func (c *Config) normalizeFilesystems() {
	kept := c.Filesystems[:0]
	for _, fs := range c.Filesystems {
		fs.Name = strings.TrimSpace(fs.Name)
		if fs.Name == "" {
			continue
		}
		fs.ID = strings.TrimSpace(fs.ID)
		fs.Remote = strings.ToLower(strings.TrimSpace(fs.Remote))
		kept = append(kept, fs)
	}
	c.Filesystems = kept
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeHistory() {
	if c.History.RetentionDays <= 0 {
		c.History.RetentionDays = defaultHistoryRetention
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = defaultLogRetentionDays
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups <= 0 {
		c.Logging.MaxBackups = defaultLogMaxBackups
	}
}
