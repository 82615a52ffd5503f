package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"vodingest/internal/ingest"
	"vodingest/internal/logging"
	"vodingest/internal/queue"
)

// errLeaseLost is the cancellation cause when the worker no longer holds
// the job's lease.
var errLeaseLost = errors.New("lease lost")

// heartbeat extends the lease every interval until ctx ends. Losing the
// lease cancels the job through cancel.
func (m *Manager) heartbeat(ctx context.Context, token string, cancel context.CancelCauseFunc, logger *slog.Logger) {
	interval := m.cfg.HeartbeatInterval()
	if interval <= 0 {
		interval = m.queue.LeaseDuration() / 3
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.queue.Extend(ctx, token, 0); err != nil {
				if errors.Is(err, queue.ErrLeaseLost) {
					logging.WarnWithContext(logger, "lease lost; abandoning job", "lease_lost",
						logging.String(logging.FieldErrorHint, "lease expired before heartbeat; raise queue.lease_seconds if this repeats"),
						logging.String(logging.FieldImpact, "another worker will redeliver the job"),
					)
					cancel(errLeaseLost)
					return
				}
				if ctx.Err() != nil {
					return
				}
				logging.WarnWithContext(logger, "heartbeat failed", "heartbeat_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check database connectivity"),
					logging.String(logging.FieldImpact, "lease may expire and the job be redelivered"),
				)
			}
		}
	}
}

// progressReporter writes job progress on whole-percent changes. A fenced
// write that finds the lease gone cancels the job.
type progressReporter struct {
	m      *Manager
	ctx    context.Context
	cancel context.CancelCauseFunc
	jobID  string
	lease  string
	logger *slog.Logger
	last   int
}

func (p *progressReporter) report(status ingest.Status, pct int) {
	if pct <= p.last {
		return
	}
	p.last = pct
	err := p.m.store.UpdateProgress(p.ctx, p.jobID, status, p.lease, pct)
	if err == nil || p.ctx.Err() != nil {
		return
	}
	if isConflict(err) {
		p.cancel(errLeaseLost)
		return
	}
	p.logger.Debug("progress write failed", logging.Error(err))
}
