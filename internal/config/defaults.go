package config

// DefaultBackupID names the snapshot chain used when a filesystem entry does
// not set one explicitly.
const DefaultBackupID = "default"

const (
	defaultStateDir            = "~/.local/share/backer/state"
	defaultLogDir              = "~/.local/share/backer/logs"
	defaultScratchDir          = "~/.local/share/backer/scratch"
	defaultAPIBind             = "127.0.0.1:7319"
	defaultBackupInterval      = 3600
	defaultIndexInterval       = 3600
	defaultPollInterval        = 5
	defaultShutdownGrace       = 30
	defaultRemoteBackend       = "local"
	defaultS3PartSizeMiB       = 16
	defaultZFSCommandTimeout   = 600
	defaultNotifyTimeout       = 10
	defaultHistoryRetention    = 90
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 60
	defaultLogMaxSizeMB        = 50
	defaultLogMaxBackups       = 5
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
			ScratchDir: defaultScratchDir,
			APIBind:    defaultAPIBind,
		},
		Daemon: Daemon{
			BackupInterval:      defaultBackupInterval,
			IndexInterval:       defaultIndexInterval,
			PollInterval:        defaultPollInterval,
			ShutdownGracePeriod: defaultShutdownGrace,
		},
		Remote: Remote{
			Backend: defaultRemoteBackend,
		},
		S3: S3{
			PartSizeMiB: defaultS3PartSizeMiB,
		},
		ZFS: ZFS{
			Binary:         "zfs",
			CommandTimeout: defaultZFSCommandTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			BackupComplete: true,
			RestoreDone:    true,
			Errors:         true,
		},
		History: History{
			RetentionDays: defaultHistoryRetention,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
			MaxSizeMB:     defaultLogMaxSizeMB,
			MaxBackups:    defaultLogMaxBackups,
		},
	}
}
