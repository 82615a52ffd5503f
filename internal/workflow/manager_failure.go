package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"vodingest/internal/ingest"
	"vodingest/internal/jobstore"
	"vodingest/internal/logging"
	"vodingest/internal/notifications"
	"vodingest/internal/queue"
	"vodingest/internal/services"
)

const releaseTimeout = 10 * time.Second

// catalogError marks a failure of the catalog write after the artifact was
// published. The job fails but the artifact stays for reconciliation.
type catalogError struct {
	err error
}

func (e *catalogError) Error() string { return "catalog write failed: " + e.err.Error() }

func (e *catalogError) Unwrap() error { return e.err }

func isConflict(err error) bool {
	return services.Kind(err) == services.KindConflict
}

func jobstoreFields(lease string, progress int, prefix string) jobstore.Fields {
	return jobstore.Fields{Lease: lease, Progress: jobstore.Progress(progress), ArtifactPrefix: prefix}
}

func completedFields(lease, resultURL string) jobstore.Fields {
	return jobstore.Fields{Lease: lease, ResultURL: resultURL}
}

// settleFailure applies the failure policy to a phase error.
func (m *Manager) settleFailure(ctx context.Context, run *jobRun, err error) {
	logger := run.logger
	m.setLastError(err)

	if ctx.Err() != nil {
		m.release(ctx, run)
		return
	}
	if isConflict(err) {
		logger.Info("job advanced by another worker; abandoning",
			logging.String("reason", services.Details(err).Message),
			logging.String(logging.FieldEventType, "job_abandoned"),
		)
		return
	}

	var catErr *catalogError
	if errors.As(err, &catErr) {
		message := "catalog write failed: " + services.Details(catErr.err).Message
		if m.failJob(ctx, run, message, true) {
			m.nackDead(ctx, run, message)
		}
		return
	}

	details := services.Details(err)
	message := details.Message
	if run.cataloged {
		message = "completion write failed after catalog update: " + message
	}
	if !services.IsRetryable(err) {
		if m.failJob(ctx, run, message, run.cataloged) {
			m.nackDead(ctx, run, message)
		}
		return
	}

	// The last permitted attempt fails the job before parking the entry so a
	// crash in between leaves a redeliverable entry, never a stranded job.
	if run.lease.Attempt >= run.lease.MaxAttempts {
		if m.failJob(ctx, run, "retries exhausted: "+message, run.cataloged) {
			m.nackDead(ctx, run, message)
		}
		return
	}

	result, nackErr := m.queue.Nack(ctx, run.lease.Token, true, details.Message)
	if nackErr != nil {
		if !errors.Is(nackErr, queue.ErrLeaseLost) {
			logging.WarnWithContext(logger, "failed to schedule retry", "queue_nack_failed",
				logging.Error(nackErr),
				logging.String(logging.FieldImpact, "job is redelivered after its lease expires"),
			)
		}
		return
	}
	if result.Dead {
		m.failJob(ctx, run, "retries exhausted: "+message, run.cataloged)
		return
	}
	logging.WarnWithContext(logger, "transient failure; retry scheduled", "job_retry",
		logging.ErrorKind(err),
		logging.String("error_message", details.Message),
		logging.Attempt(result.Attempt, run.lease.MaxAttempts),
		logging.Time("retry_at", result.RetryAt),
		logging.String(logging.FieldErrorHint, "no action needed unless retries keep failing"),
		logging.String(logging.FieldImpact, "job stays "+string(run.status)+" until the retry"),
	)
}

// failJob moves the job to failed and, unless keepArtifact or the catalog
// already references the artifact, removes anything published under its
// prefix. It reports whether the status write landed.
func (m *Manager) failJob(ctx context.Context, run *jobRun, message string, keepArtifact bool) bool {
	logger := run.logger
	keepArtifact = keepArtifact || run.cataloged
	if message == "" {
		message = "job failed"
	}
	err := m.store.UpdateStatus(ctx, run.job.ID, run.status, ingest.StatusFailed, jobstore.Fields{
		Lease: run.lease.Token,
		Error: message,
	})
	if err != nil {
		if isConflict(err) {
			logger.Info("job advanced by another worker; not marking failed",
				logging.String(logging.FieldEventType, "job_abandoned"),
			)
		} else {
			logging.ErrorWithContext(logger, "failed to record job failure", "job_fail_write_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "job is redelivered after its lease expires"),
			)
		}
		return false
	}
	previous := run.status
	run.status = ingest.StatusFailed

	if !keepArtifact && run.prefix != "" {
		if err := m.deps.Storage.DeletePrefix(ctx, run.prefix); err != nil {
			logging.WarnWithContext(logger, "failed to remove partial artifacts", "artifact_cleanup_failed",
				logging.String("prefix", run.prefix),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "delete the prefix from the object store manually"),
				logging.String(logging.FieldImpact, "orphaned objects remain in storage"),
			)
		}
	}

	level := slog.LevelError
	if message == ingest.CancelledReason {
		level = slog.LevelInfo
	}
	logger.Log(ctx, level, "job failed", logging.Args(
		logging.String("from_status", string(previous)),
		logging.String("error_message", message),
		logging.Bool("artifact_kept", keepArtifact && run.prefix != ""),
		logging.String(logging.FieldEventType, "job_failed"),
	)...)
	if message != ingest.CancelledReason {
		run.job.Error = message
		m.notify(ctx, run, notifications.EventJobFailed, "")
	}
	return true
}

func (m *Manager) nackDead(ctx context.Context, run *jobRun, reason string) {
	if _, err := m.queue.Nack(ctx, run.lease.Token, false, reason); err != nil && !errors.Is(err, queue.ErrLeaseLost) {
		logging.WarnWithContext(run.logger, "failed to park queue entry", "queue_nack_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "entry is redelivered and dropped as stale"),
		)
	}
}

// release hands the lease back during shutdown.
func (m *Manager) release(ctx context.Context, run *jobRun) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := m.queue.Release(releaseCtx, run.lease.Token); err != nil && !errors.Is(err, queue.ErrLeaseLost) {
		logging.WarnWithContext(run.logger, "failed to release lease on shutdown", "queue_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "job is redelivered after its lease expires"),
		)
		return
	}
	run.logger.Info("lease released for shutdown",
		logging.String("status", string(run.status)),
		logging.String(logging.FieldEventType, "job_released"),
	)
}

// awaitRedelivery leaves the lease to lapse after an infrastructure error
// before the job was claimed.
func (m *Manager) awaitRedelivery(lease *queue.Lease, err error, logger *slog.Logger) {
	logging.WarnWithContext(logger, "could not start job; waiting for redelivery", "job_start_failed",
		logging.Error(err),
		logging.Time("lease_expires", lease.ExpiresAt),
		logging.String(logging.FieldErrorHint, "check database connectivity"),
		logging.String(logging.FieldImpact, "job restarts after the lease expires"),
	)
}
