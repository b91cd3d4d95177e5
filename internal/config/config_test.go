package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"backer/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
version = " 10 "

[local]
root = "/backup/backer"

[[filesystems]]
name = "tank/data"
`)

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be reported as existing")
	}
	if resolved != path {
		t.Fatalf("resolved path = %q, want %q", resolved, path)
	}
	if cfg.Version != "10" {
		t.Fatalf("Version = %q, want trimmed %q", cfg.Version, "10")
	}
	if cfg.Daemon.BackupInterval != 3600 {
		t.Fatalf("BackupInterval = %d, want default 3600", cfg.Daemon.BackupInterval)
	}
	if cfg.Daemon.ShutdownGracePeriod != 30 {
		t.Fatalf("ShutdownGracePeriod = %d, want default 30", cfg.Daemon.ShutdownGracePeriod)
	}
	if cfg.Remote.Backend != "local" {
		t.Fatalf("Backend = %q, want local", cfg.Remote.Backend)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("Logging.Format = %q, want console", cfg.Logging.Format)
	}
}

func TestLoadExpandsHomePaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := writeConfig(t, `
[paths]
log_dir = "~/logs"

[local]
root = "~/backups"
`)

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.LogDir != filepath.Join(home, "logs") {
		t.Fatalf("LogDir = %q, want under %q", cfg.Paths.LogDir, home)
	}
	if cfg.Local.Root != filepath.Join(home, "backups") {
		t.Fatalf("Local.Root = %q, want under %q", cfg.Local.Root, home)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := writeConfig(t, `
[remote]
backend = "tape"
`)

	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for unsupported backend")
	}
}

func TestLoadRequiresBucketForS3(t *testing.T) {
	path := writeConfig(t, `
[remote]
backend = "s3"
`)

	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error when s3 backend lacks a bucket")
	}
	if !strings.Contains(err.Error(), "s3.bucket") {
		t.Fatalf("error should mention s3.bucket, got %v", err)
	}
}

func TestLoadRequiresRootForLocalOverride(t *testing.T) {
	path := writeConfig(t, `
[remote]
backend = "s3"

[s3]
bucket = "backups"

[[filesystems]]
name = "tank/data"
remote = "local"
`)

	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error when a filesystem selects local without local.root")
	}
}

func TestLoadRejectsDuplicateFilesystems(t *testing.T) {
	path := writeConfig(t, `
[local]
root = "/backup"

[[filesystems]]
name = "tank/data"

[[filesystems]]
name = "tank/data"
`)

	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for duplicate filesystem entries")
	}
}

func TestS3CredentialsFallBackToEnvironment(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "env-access")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "env-secret")

	path := writeConfig(t, `
[remote]
backend = "s3"

[s3]
bucket = "backups"
`)

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.S3.AccessKey != "env-access" || cfg.S3.SecretKey != "env-secret" {
		t.Fatalf("expected env credentials, got %q / %q", cfg.S3.AccessKey, cfg.S3.SecretKey)
	}
}

func TestFilesystemOverridesFallBack(t *testing.T) {
	path := writeConfig(t, `
[daemon]
backup_interval = 1800

[remote]
backend = "local"

[local]
root = "/backup"

[s3]
bucket = "backups"

[[filesystems]]
name = "tank/fast"
id = "nightly"
backup_interval = 300
remote = "s3"

[[filesystems]]
name = "tank/slow"
`)

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	fast, ok := cfg.FilesystemFor("tank/fast")
	if !ok {
		t.Fatal("expected tank/fast entry")
	}
	if got := cfg.BackupIntervalFor(fast); got != 300 {
		t.Fatalf("BackupIntervalFor(fast) = %d, want 300", got)
	}
	if got := cfg.RemoteFor(fast); got != "s3" {
		t.Fatalf("RemoteFor(fast) = %q, want s3", got)
	}
	if got := cfg.BackupIDFor(fast); got != "nightly" {
		t.Fatalf("BackupIDFor(fast) = %q, want nightly", got)
	}

	slow, ok := cfg.FilesystemFor("tank/slow")
	if !ok {
		t.Fatal("expected tank/slow entry")
	}
	if got := cfg.BackupIntervalFor(slow); got != 1800 {
		t.Fatalf("BackupIntervalFor(slow) = %d, want 1800", got)
	}
	if got := cfg.RemoteFor(slow); got != "local" {
		t.Fatalf("RemoteFor(slow) = %q, want local", got)
	}
	if got := cfg.BackupIDFor(slow); got != config.DefaultBackupID {
		t.Fatalf("BackupIDFor(slow) = %q, want %q", got, config.DefaultBackupID)
	}
}

func TestFilesystemNamesSkipsDisabled(t *testing.T) {
	path := writeConfig(t, `
[local]
root = "/backup"

[[filesystems]]
name = "tank/a"

[[filesystems]]
name = "tank/b"
disabled = true
`)

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	names := cfg.FilesystemNames()
	if len(names) != 1 || names[0] != "tank/a" {
		t.Fatalf("FilesystemNames = %v, want [tank/a]", names)
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.WriteSample(path); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if err := config.WriteSample(path); err == nil {
		t.Fatal("expected error when overwriting existing config")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(content), "[daemon]") {
		t.Fatalf("sample config missing daemon section: %q", content)
	}
}

func TestPathHelpers(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = "/var/log/backer"
	cfg.Paths.StateDir = "/var/lib/backer"

	if got := cfg.PIDFilePath(); got != "/var/log/backer/backer.pid" {
		t.Fatalf("PIDFilePath = %q", got)
	}
	if got := cfg.SocketPath(); got != "/var/log/backer/backer.sock" {
		t.Fatalf("SocketPath = %q", got)
	}
	if got := cfg.HistoryDBPath(); got != "/var/lib/backer/history.db" {
		t.Fatalf("HistoryDBPath = %q", got)
	}
}
