package workflow

import (
	"context"
	"strconv"
	"time"

	"vodingest/internal/logging"
	"vodingest/internal/notifications"
)

const notifyTimeout = 15 * time.Second

// notify publishes a job outcome. Errors are logged and otherwise ignored.
func (m *Manager) notify(ctx context.Context, run *jobRun, event notifications.Event, resultURL string) {
	if m.deps.Notifier == nil || run == nil || run.job == nil {
		return
	}
	job := run.job
	payload := notifications.Payload{
		"jobId":    job.ID,
		"name":     job.OriginalName,
		"fileType": string(job.FileType),
		"target":   job.Target.Name(),
	}
	switch event {
	case notifications.EventJobCompleted:
		payload["resultUrl"] = resultURL
	case notifications.EventJobFailed:
		payload["error"] = job.Error
		if run.lease != nil {
			payload["attempts"] = strconv.Itoa(run.lease.Attempt)
		}
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := m.deps.Notifier.Publish(notifyCtx, event, payload); err != nil {
		logging.WarnWithContext(run.logger, "job notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "operators were not told about this job"),
		)
	}
}
