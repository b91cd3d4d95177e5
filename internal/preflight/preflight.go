package preflight

import (
	"context"
	"fmt"
	"sort"

	"backer/internal/backup"
	"backer/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Remote reachability is probed once per distinct backend the config
// references, not per filesystem.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	results = append(results, CheckDirectoryAccess("Scratch directory", cfg.Paths.ScratchDir))
	results = append(results, CheckBinary("ZFS binary", cfg.ZFSBinary()))

	for _, backend := range backendsInUse(cfg) {
		results = append(results, CheckRemote(ctx, cfg, backend))
	}

	results = append(results, CheckFormatVersion(cfg))

	return results
}

// backendsInUse collects the distinct backend names the config references:
// the global default plus the per-filesystem overrides of enabled entries.
// The same set Validate accepts, so every name here maps to a constructor.
func backendsInUse(cfg *config.Config) []string {
	seen := map[string]bool{cfg.Remote.Backend: true}
	for _, fs := range cfg.Filesystems {
		if fs.Disabled {
			continue
		}
		seen[cfg.RemoteFor(fs)] = true
	}
	backends := make([]string, 0, len(seen))
	for backend := range seen {
		backends = append(backends, backend)
	}
	sort.Strings(backends)
	return backends
}

// VerifyFormatVersion returns an error when the config pins a remote format
// version other than the one this build writes. An unset version is accepted.
func VerifyFormatVersion(cfg *config.Config) error {
	if cfg == nil || cfg.Version == "" || cfg.Version == backup.FormatVersion {
		return nil
	}
	return fmt.Errorf("config version %q does not match format version %q", cfg.Version, backup.FormatVersion)
}
