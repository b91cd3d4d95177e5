package lifecycle

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrNoPIDRecord indicates no PID record exists on disk.
var ErrNoPIDRecord = errors.New("pid record not found")

// PIDFile is the on-disk record identifying the live daemon process.
type PIDFile struct {
	path string
}

// NewPIDFile returns a PID record handle for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// Path returns the record location.
func (p *PIDFile) Path() string {
	return p.path
}

// Acquire writes the current process ID, reclaiming records left behind by
// dead processes. It returns a StartupError wrapping ErrAlreadyRunning when
// the recorded process is still alive.
func (p *PIDFile) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}
	for attempt := 0; attempt < 2; attempt++ {
		file, err := os.OpenFile(p.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, writeErr := file.WriteString(strconv.Itoa(os.Getpid()) + "\n")
			closeErr := file.Close()
			if writeErr != nil {
				return fmt.Errorf("write pid record: %w", writeErr)
			}
			if closeErr != nil {
				return fmt.Errorf("close pid record: %w", closeErr)
			}
			return nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("create pid record: %w", err)
		}

		pid, readErr := p.Read()
		if readErr == nil && pid != os.Getpid() && Alive(pid) {
			return &StartupError{
				Reason: "another instance is already running",
				PID:    pid,
				Err:    ErrAlreadyRunning,
			}
		}
		// Stale or unreadable record: reclaim it and retry the exclusive create.
		if removeErr := os.Remove(p.path); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
			return fmt.Errorf("reclaim stale pid record: %w", removeErr)
		}
	}
	return fmt.Errorf("claim pid record %s: too many contenders", p.path)
}

// Read returns the recorded process ID. ErrNoPIDRecord is returned when the
// record does not exist.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, ErrNoPIDRecord
		}
		return 0, fmt.Errorf("read pid record: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid record %s: %w", p.path, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("parse pid record %s: non-positive pid %d", p.path, pid)
	}
	return pid, nil
}

// Release removes the record. Missing records are not an error.
func (p *PIDFile) Release() error {
	if err := os.Remove(p.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove pid record: %w", err)
	}
	return nil
}

// LivePID returns the recorded process ID if that process is still alive.
func (p *PIDFile) LivePID() (int, bool) {
	pid, err := p.Read()
	if err != nil {
		return 0, false
	}
	if !Alive(pid) {
		return 0, false
	}
	return pid, true
}

// Alive reports whether a process with the given ID exists. Signal 0 probes
// existence without delivering anything; EPERM still proves the process is
// there.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, unix.EPERM)
}
