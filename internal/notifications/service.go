package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"backer/internal/config"
	"backer/internal/logging"
)

const userAgent = "Backer-Go/0.1.0"

// Event identifies a notification-worthy milestone.
type Event string

const (
	// EventBackupCompleted fires after a backup run uploads new data.
	EventBackupCompleted Event = "backup_completed"
	// EventRestoreCompleted fires after a restore finishes receiving a chain.
	EventRestoreCompleted Event = "restore_completed"
	// EventError fires when a scheduled run or daemon operation fails.
	EventError Event = "error"
	// EventTest exercises the delivery path from the CLI.
	EventTest Event = "test"
)

// Payload carries event-specific fields for message formatting.
type Payload map[string]any

// Service defines the notification surface exposed to daemon components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventBackupCompleted:  cfg.Notifications.BackupComplete,
			EventRestoreCompleted: cfg.Notifications.RestoreDone,
			EventError:            cfg.Notifications.Errors,
			EventTest:             true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled[event] {
		return nil
	}
	switch event {
	case EventBackupCompleted:
		return n.send(ctx, formatBackupCompleted(payload))
	case EventRestoreCompleted:
		return n.send(ctx, formatRestoreCompleted(payload))
	case EventError:
		return n.send(ctx, formatError(payload))
	case EventTest:
		return n.send(ctx, message{
			title:    "Backer - Test",
			body:     "Notification system test",
			tags:     []string{"backer", "test"},
			priority: "low",
		})
	default:
		return nil
	}
}

func formatBackupCompleted(payload Payload) message {
	filesystem := payloadString(payload, "filesystem")
	snapshot := payloadString(payload, "snapshot")
	body := fmt.Sprintf("Backup complete: %s", filesystem)
	if snapshot != "" {
		body = fmt.Sprintf("%s\nSnapshot: %s", body, snapshot)
	}
	if bytes, ok := payloadInt64(payload, "bytes"); ok && bytes > 0 {
		body = fmt.Sprintf("%s\nUploaded: %s", body, logging.FormatBytes(bytes))
	}
	return message{
		title: "Backer - Backup Complete",
		body:  body,
		tags:  []string{"backer", "backup", "completed"},
	}
}

func formatRestoreCompleted(payload Payload) message {
	filesystem := payloadString(payload, "filesystem")
	target := payloadString(payload, "target")
	body := fmt.Sprintf("Restore complete: %s", target)
	if filesystem != "" {
		body = fmt.Sprintf("%s\nSource: %s", body, filesystem)
	}
	return message{
		title: "Backer - Restore Complete",
		body:  body,
		tags:  []string{"backer", "restore", "completed"},
	}
}

func formatError(payload Payload) message {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel := payloadString(payload, "context"); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if errText := payloadString(payload, "error"); errText != "" {
		builder.WriteString(errText)
	} else {
		builder.WriteString("unknown")
	}
	return message{
		title:    "Backer - Error",
		body:     builder.String(),
		tags:     []string{"backer", "error", "alert"},
		priority: "high",
	}
}

func payloadString(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	switch value := payload[key].(type) {
	case string:
		return strings.TrimSpace(value)
	case error:
		if value == nil {
			return ""
		}
		return strings.TrimSpace(value.Error())
	case fmt.Stringer:
		return strings.TrimSpace(value.String())
	default:
		return ""
	}
}

func payloadInt64(payload Payload, key string) (int64, bool) {
	if payload == nil {
		return 0, false
	}
	switch value := payload[key].(type) {
	case int64:
		return value, true
	case int:
		return int64(value), true
	default:
		return 0, false
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
