package preflight

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"backer/internal/backup"
	"backer/internal/config"
	"backer/internal/logging"
	"backer/internal/remote"
)

// Pinger is implemented by stores that can cheaply probe their backing target.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckBinary verifies that the command resolves to an executable, either on
// PATH or at the configured absolute location.
func CheckBinary(name, command string) Result {
	command = strings.TrimSpace(command)
	if command == "" {
		return Result{Name: name, Detail: "command not configured"}
	}
	resolved, err := exec.LookPath(command)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("binary %q not found", command)}
	}
	return Result{Name: name, Passed: true, Detail: resolved}
}

// CheckRemote verifies that the named backend can be constructed from the
// config and, when the store supports probing, that its target answers.
// It uses a 10-second timeout and a single attempt.
func CheckRemote(ctx context.Context, cfg *config.Config, backend string) Result {
	name := fmt.Sprintf("Remote (%s)", backend)

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	store, err := remote.Open(checkCtx, cfg, backend, logging.NewNop())
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	pinger, ok := store.(Pinger)
	if !ok {
		return Result{Name: name, Passed: true, Detail: "configured"}
	}
	if err := pinger.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

// CheckFormatVersion reports whether the config's pinned remote format
// version matches the one this build writes.
func CheckFormatVersion(cfg *config.Config) Result {
	const name = "Format version"
	if err := VerifyFormatVersion(cfg); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if cfg != nil && cfg.Version == "" {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (unpinned)", backup.FormatVersion)}
	}
	return Result{Name: name, Passed: true, Detail: backup.FormatVersion}
}
