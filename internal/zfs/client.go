package zfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"backer/internal/logging"
)

// Client wraps zfs CLI interactions for a single host.
type Client struct {
	binary  string
	timeout time.Duration
	exec    Executor
	logger  *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// New constructs a zfs client.
func New(binary string, commandTimeoutSeconds int, logger *slog.Logger, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("zfs binary required")
	}
	client := &Client{
		binary:  binary,
		timeout: time.Duration(commandTimeoutSeconds) * time.Second,
		exec:    commandExecutor{},
		logger:  logging.NewComponentLogger(logger, "zfs"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// SnapshotName joins a filesystem and short snapshot name into the full
// dataset@snapshot form.
func SnapshotName(fs, name string) string {
	return fs + "@" + name
}

func (c *Client) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) run(ctx context.Context, args ...string) ([]string, error) {
	runCtx, cancel := c.queryCtx(ctx)
	defer cancel()

	var lines []string
	err := c.exec.Run(runCtx, c.binary, args, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// GUID returns the pool-assigned guid for the filesystem. The guid survives
// renames, so it anchors the remote layout for a dataset.
func (c *Client) GUID(ctx context.Context, fs string) (string, error) {
	lines, err := c.run(ctx, "get", "-H", "-p", "-o", "value", "guid", fs)
	if err != nil {
		return "", fmt.Errorf("read guid for %s: %w", fs, err)
	}
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return "", fmt.Errorf("read guid for %s: empty output", fs)
	}
	return strings.TrimSpace(lines[0]), nil
}

// Creation returns the dataset creation time as a unix timestamp.
func (c *Client) Creation(ctx context.Context, fs string) (int64, error) {
	lines, err := c.run(ctx, "get", "-H", "-p", "-o", "value", "creation", fs)
	if err != nil {
		return 0, fmt.Errorf("read creation for %s: %w", fs, err)
	}
	if len(lines) == 0 {
		return 0, fmt.Errorf("read creation for %s: empty output", fs)
	}
	created, err := strconv.ParseInt(strings.TrimSpace(lines[0]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("read creation for %s: %w", fs, err)
	}
	return created, nil
}

// ListFilesystems returns the names of all ZFS filesystems on the host.
func (c *Client) ListFilesystems(ctx context.Context) ([]string, error) {
	lines, err := c.run(ctx, "list", "-H", "-t", "filesystem", "-o", "name")
	if err != nil {
		return nil, fmt.Errorf("list filesystems: %w", err)
	}
	names := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names, nil
}

// Exists reports whether the dataset exists.
func (c *Client) Exists(ctx context.Context, fs string) (bool, error) {
	_, err := c.run(ctx, "list", "-H", "-o", "name", fs)
	if err == nil {
		return true, nil
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && strings.Contains(cmdErr.Stderr, "does not exist") {
		return false, nil
	}
	return false, fmt.Errorf("check dataset %s: %w", fs, err)
}

// Snapshot creates fs@name. User properties in props are applied at
// creation time so the snapshot never exists without them.
func (c *Client) Snapshot(ctx context.Context, fs, name string, props map[string]string) error {
	args := []string{"snapshot"}
	for _, key := range sortedKeys(props) {
		args = append(args, "-o", key+"="+props[key])
	}
	args = append(args, SnapshotName(fs, name))
	if _, err := c.run(ctx, args...); err != nil {
		return fmt.Errorf("create snapshot %s: %w", SnapshotName(fs, name), err)
	}
	c.logger.Debug("snapshot created",
		logging.String(logging.FieldFilesystem, fs),
		logging.String(logging.FieldSnapshot, name),
	)
	return nil
}

// DestroySnapshot destroys fs@name.
func (c *Client) DestroySnapshot(ctx context.Context, fs, name string) error {
	if _, err := c.run(ctx, "destroy", SnapshotName(fs, name)); err != nil {
		return fmt.Errorf("destroy snapshot %s: %w", SnapshotName(fs, name), err)
	}
	c.logger.Debug("snapshot destroyed",
		logging.String(logging.FieldFilesystem, fs),
		logging.String(logging.FieldSnapshot, name),
	)
	return nil
}

// Snapshots returns the short snapshot names of fs in creation order.
func (c *Client) Snapshots(ctx context.Context, fs string) ([]string, error) {
	lines, err := c.run(ctx, "list", "-H", "-t", "snapshot", "-o", "name", "-s", "createtxg", "-d", "1", fs)
	if err != nil {
		return nil, fmt.Errorf("list snapshots for %s: %w", fs, err)
	}
	names := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if idx := strings.IndexByte(trimmed, '@'); idx >= 0 {
			names = append(names, trimmed[idx+1:])
		}
	}
	return names, nil
}

// SnapshotProperty pairs a short snapshot name with one property value.
type SnapshotProperty struct {
	Name  string
	Value string
}

// SnapshotsWithProperty returns the snapshots of fs in creation order along
// with the value of prop on each. Value is empty when the property is unset.
func (c *Client) SnapshotsWithProperty(ctx context.Context, fs, prop string) ([]SnapshotProperty, error) {
	lines, err := c.run(ctx, "list", "-H", "-t", "snapshot", "-o", "name,"+prop, "-s", "createtxg", "-d", "1", fs)
	if err != nil {
		return nil, fmt.Errorf("list snapshots for %s: %w", fs, err)
	}
	snaps := make([]SnapshotProperty, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		fields := strings.SplitN(trimmed, "\t", 2)
		name := fields[0]
		if idx := strings.IndexByte(name, '@'); idx >= 0 {
			name = name[idx+1:]
		} else {
			continue
		}
		value := ""
		if len(fields) == 2 && fields[1] != "-" {
			value = fields[1]
		}
		snaps = append(snaps, SnapshotProperty{Name: name, Value: value})
	}
	return snaps, nil
}

// HasChanges reports whether fs has changed since the named snapshot.
func (c *Client) HasChanges(ctx context.Context, fs, snapshot string) (bool, error) {
	lines, err := c.run(ctx, "diff", SnapshotName(fs, snapshot), fs)
	if err != nil {
		return false, fmt.Errorf("diff %s against %s: %w", fs, snapshot, err)
	}
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			return true, nil
		}
	}
	return false, nil
}

// Send writes a replication stream for fs@name to w. When from is non-empty
// the stream is incremental from fs@from. The -p flag carries dataset
// properties inside the stream so a restored filesystem keeps them.
func (c *Client) Send(ctx context.Context, fs, from, name string, w io.Writer) error {
	args := []string{"send", "-p"}
	if from != "" {
		args = append(args, "-i", SnapshotName(fs, from))
	}
	args = append(args, SnapshotName(fs, name))

	started := time.Now()
	if err := c.exec.RunStream(ctx, c.binary, args, nil, w); err != nil {
		return fmt.Errorf("send %s: %w", SnapshotName(fs, name), err)
	}
	c.logger.Debug("send stream complete",
		logging.String(logging.FieldFilesystem, fs),
		logging.String(logging.FieldSnapshot, name),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// Receive applies a replication stream from r into fs. The dataset is left
// unmounted so a restore never shadows live data.
func (c *Client) Receive(ctx context.Context, fs string, r io.Reader) error {
	if err := c.exec.RunStream(ctx, c.binary, []string{"receive", "-u", fs}, r, nil); err != nil {
		return fmt.Errorf("receive into %s: %w", fs, err)
	}
	return nil
}

// GetProperty returns a property value for fs. ok is false when the
// property is unset.
func (c *Client) GetProperty(ctx context.Context, fs, prop string) (string, bool, error) {
	lines, err := c.run(ctx, "get", "-H", "-o", "value", prop, fs)
	if err != nil {
		return "", false, fmt.Errorf("get %s on %s: %w", prop, fs, err)
	}
	if len(lines) == 0 {
		return "", false, nil
	}
	value := strings.TrimSpace(lines[0])
	if value == "-" {
		return "", false, nil
	}
	return value, true, nil
}

// SetProperty sets a user property on fs.
func (c *Client) SetProperty(ctx context.Context, fs, prop, value string) error {
	if _, err := c.run(ctx, "set", prop+"="+value, fs); err != nil {
		return fmt.Errorf("set %s on %s: %w", prop, fs, err)
	}
	return nil
}

// ClearProperty removes a user property from fs.
func (c *Client) ClearProperty(ctx context.Context, fs, prop string) error {
	if _, err := c.run(ctx, "inherit", prop, fs); err != nil {
		return fmt.Errorf("clear %s on %s: %w", prop, fs, err)
	}
	return nil
}

func sortedKeys(props map[string]string) []string {
	if len(props) == 0 {
		return nil
	}
	keys := make([]string, 0, len(props))
	for key := range props {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
