package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vodingest/internal/config"
)

const userAgent = "vodingest/0.1"

// Event names a notification type.
type Event string

const (
	EventJobCompleted Event = "job_completed"
	EventJobFailed    Event = "job_failed"
	EventTest         Event = "test"
)

// Payload carries event fields. Unknown keys are ignored.
type Payload map[string]string

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil || strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		return noopService{}
	}

	timeout := cfg.NotificationTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: strings.TrimSpace(cfg.Notifications.NtfyTopic),
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventJobCompleted: cfg.Notifications.NotifyCompleted,
			EventJobFailed:    cfg.Notifications.NotifyFailed,
			EventTest:         true,
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
	msg, ok := format(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	name := strings.TrimSpace(payload["name"])
	if name == "" {
		name = payload["jobId"]
	}
	fileType := strings.TrimSpace(payload["fileType"])
	if fileType == "" {
		fileType = "media"
	}

	switch event {
	case EventJobCompleted:
		body := fmt.Sprintf("Ingested %s: %s", fileType, name)
		if url := payload["resultUrl"]; url != "" {
			body += "\n" + url
		}
		return message{
			title: "vodingest - Ingest Complete",
			body:  body,
			tags:  []string{"vodingest", fileType, "completed"},
		}, true
	case EventJobFailed:
		var b strings.Builder
		fmt.Fprintf(&b, "Failed to ingest %s: %s", fileType, name)
		if reason := strings.TrimSpace(payload["error"]); reason != "" {
			fmt.Fprintf(&b, "\nError: %s", reason)
		}
		if attempts := payload["attempts"]; attempts != "" {
			fmt.Fprintf(&b, "\nAttempts: %s", attempts)
		}
		return message{
			title:    "vodingest - Ingest Failed",
			body:     b.String(),
			tags:     []string{"vodingest", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "vodingest - Test",
			body:     "Notification system test",
			tags:     []string{"vodingest", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
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
