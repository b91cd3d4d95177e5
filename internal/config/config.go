package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
	ScratchDir string `toml:"scratch_dir"`
	APIBind    string `toml:"api_bind"`
}

// Daemon contains timing configuration for the background loops and shutdown.
type Daemon struct {
	BackupInterval      int `toml:"backup_interval"`
	IndexInterval       int `toml:"index_interval"`
	PollInterval        int `toml:"poll_interval"`
	ShutdownGracePeriod int `toml:"shutdown_grace_period"`
}

// Remote selects the default backup target backend.
type Remote struct {
	Backend string `toml:"backend"`
}

// S3 contains configuration for the S3 backup target.
type S3 struct {
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	Region         string `toml:"region"`
	Endpoint       string `toml:"endpoint"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
	PartSizeMiB    int    `toml:"part_size_mib"`
}

// Local contains configuration for the filesystem backup target.
type Local struct {
	Root string `toml:"root"`
}

// ZFS contains configuration for invoking the zfs command line tool.
type ZFS struct {
	Binary         string `toml:"binary"`
	CommandTimeout int    `toml:"command_timeout"`
}

// Filesystem describes one ZFS filesystem to protect. Unset fields fall
// back to the matching global setting.
type Filesystem struct {
	Name           string `toml:"name"`
	ID             string `toml:"id"`
	Remote         string `toml:"remote"`
	BackupInterval int    `toml:"backup_interval"`
	Disabled       bool   `toml:"disabled"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	BackupComplete bool   `toml:"backup_complete"`
	RestoreDone    bool   `toml:"restore_done"`
	Errors         bool   `toml:"errors"`
}

// History contains configuration for the run history database.
type History struct {
	RetentionDays int `toml:"retention_days"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
	MaxSizeMB     int    `toml:"max_size_mb"`
	MaxBackups    int    `toml:"max_backups"`
}

// Config encapsulates all configuration values for backer.
//
// Configuration sections by subsystem:
//   - Version: optional remote format version pin; a mismatch aborts start
//   - Paths: state, scratch, and log directories plus the API bind address
//   - Daemon: loop intervals and the shutdown grace period
//   - Remote: default backup target backend (s3 or local)
//   - S3 / Local: backend connection settings
//   - ZFS: zfs binary location and command timeout
//   - Filesystems: the datasets to protect with per-dataset overrides
//   - Notifications: ntfy push notification settings
//   - History: run history retention
//   - Logging: log format, level, rotation, and retention
type Config struct {
	Version       string        `toml:"version"`
	Paths         Paths         `toml:"paths"`
	Daemon        Daemon        `toml:"daemon"`
	Remote        Remote        `toml:"remote"`
	S3            S3            `toml:"s3"`
	Local         Local         `toml:"local"`
	ZFS           ZFS           `toml:"zfs"`
	Filesystems   []Filesystem  `toml:"filesystems"`
	Notifications Notifications `toml:"notifications"`
	History       History       `toml:"history"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/backer/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("backer.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.ScratchDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FilesystemFor returns the configured entry for the named filesystem.
func (c *Config) FilesystemFor(name string) (Filesystem, bool) {
	for _, fs := range c.Filesystems {
		if fs.Name == name {
			return fs, true
		}
	}
	return Filesystem{}, false
}

// FilesystemNames lists the enabled filesystems in configuration order.
func (c *Config) FilesystemNames() []string {
	names := make([]string, 0, len(c.Filesystems))
	for _, fs := range c.Filesystems {
		if fs.Disabled {
			continue
		}
		names = append(names, fs.Name)
	}
	return names
}

// RemoteFor resolves the backend name for the given filesystem entry,
// falling back to the global default when the entry leaves it unset.
func (c *Config) RemoteFor(fs Filesystem) string {
	if strings.TrimSpace(fs.Remote) != "" {
		return fs.Remote
	}
	return c.Remote.Backend
}

// BackupIntervalFor resolves the backup interval in seconds for the given
// filesystem entry.
func (c *Config) BackupIntervalFor(fs Filesystem) int {
	if fs.BackupInterval > 0 {
		return fs.BackupInterval
	}
	return c.Daemon.BackupInterval
}

// BackupIDFor resolves the backup id for the given filesystem entry. Every
// dataset carries an independent snapshot chain per backup id.
func (c *Config) BackupIDFor(fs Filesystem) string {
	if strings.TrimSpace(fs.ID) != "" {
		return fs.ID
	}
	return DefaultBackupID
}

// PIDFilePath returns the location of the daemon PID record.
func (c *Config) PIDFilePath() string {
	return filepath.Join(c.Paths.LogDir, "backer.pid")
}

// SocketPath returns the location of the daemon control socket.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.LogDir, "backer.sock")
}

// LockFilePath returns the location of the daemon instance lock.
func (c *Config) LockFilePath() string {
	return filepath.Join(c.Paths.LogDir, "backer.lock")
}

// LogFilePath returns the location of the daemon log file.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.LogDir, "backer.log")
}

// HistoryDBPath returns the location of the run history database.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// ZFSBinary returns the zfs executable name or path.
func (c *Config) ZFSBinary() string {
	if strings.TrimSpace(c.ZFS.Binary) != "" {
		return c.ZFS.Binary
	}
	return "zfs"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration document.
func SampleConfig() string {
	return sampleConfig
}

// WriteSample writes the sample configuration to the given path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
