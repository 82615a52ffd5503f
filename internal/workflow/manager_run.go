package workflow

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"vodingest/internal/catalog"
	"vodingest/internal/ingest"
	"vodingest/internal/logging"
	"vodingest/internal/notifications"
	"vodingest/internal/objectstore"
	"vodingest/internal/queue"
	"vodingest/internal/services"
	"vodingest/internal/staging"
)

// jobRun is the state of one delivery of a job to this worker.
type jobRun struct {
	job    *ingest.Job
	lease  *queue.Lease
	worker string
	logger *slog.Logger

	// status is the job's status as this worker last wrote it.
	status ingest.Status
	// prefix is where artifacts are (or will be) published.
	prefix    string
	published bool
	// cataloged is set once the catalog references the published artifact.
	// From then on a failure must leave the artifact in place.
	cataloged bool
}

func (m *Manager) runJob(ctx context.Context, worker string, lease *queue.Lease) {
	jobID := lease.JobID
	if p, err := decodePayload(lease.Payload); err == nil && p.JobID != "" {
		jobID = p.JobID
	}
	ctx = logContext(ctx, jobID, worker)
	logger := logging.WithContext(ctx, m.logger).With(logging.Attempt(lease.Attempt, lease.MaxAttempts))

	m.trackStart(jobID, worker)
	defer m.trackDone(jobID)

	job, err := m.store.GetByJobID(ctx, jobID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			logging.WarnWithContext(logger, "queue entry has no job record; dropping", "orphan_entry",
				logging.String(logging.FieldImpact, "entry removed from the queue"),
			)
			m.ack(ctx, lease, logger)
			return
		}
		m.setLastError(err)
		m.awaitRedelivery(lease, err, logger)
		return
	}

	run := &jobRun{job: job, lease: lease, worker: worker, logger: logger, status: job.Status, prefix: job.ArtifactPrefix}
	if !m.claim(ctx, run) {
		return
	}

	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		m.heartbeat(jobCtx, lease.Token, cancel, logger)
	}()

	err = m.execute(jobCtx, cancel, run)
	cancel(nil)
	<-hbDone

	if cause := context.Cause(jobCtx); errors.Is(cause, errLeaseLost) {
		logger.Info("job abandoned after lease loss", logging.String(logging.FieldEventType, "job_abandoned"))
		return
	}
	if err != nil {
		m.settleFailure(ctx, run, err)
	}
	m.cleanStaging(run)
}

// claim takes the job record for this lease. It reports false when the
// worker must not proceed.
func (m *Manager) claim(ctx context.Context, run *jobRun) bool {
	job := run.job
	if job.Status.Terminal() {
		run.logger.Info("job already terminal; dropping queue entry",
			logging.String("status", string(job.Status)),
			logging.String(logging.FieldEventType, "stale_entry"),
		)
		m.ack(ctx, run.lease, run.logger)
		return false
	}

	next := job.Status
	if job.Status == ingest.StatusPending {
		next = ingest.StatusDownloading
	}
	err := m.store.Claim(ctx, job.ID, job.Status, next, job.LeaseToken, run.lease.Token, run.worker)
	if err != nil {
		if isConflict(err) {
			m.abandonAfterConflict(ctx, run, err)
			return false
		}
		m.setLastError(err)
		m.awaitRedelivery(run.lease, err, run.logger)
		return false
	}
	run.status = next
	run.logger.Info("job claimed",
		logging.String("status", string(next)),
		logging.Lease(run.lease.Token),
		logging.String(logging.FieldEventType, "job_claimed"),
	)

	if run.lease.Exhausted() {
		if m.failJob(ctx, run, "retries exhausted: job was abandoned on every attempt", false) {
			m.nackDead(ctx, run, "attempts exhausted")
		}
		return false
	}
	return true
}

// abandonAfterConflict handles a lost claim race. A job that became terminal
// meanwhile has its stale entry dropped; otherwise the newer holder owns it
// and this worker writes nothing.
func (m *Manager) abandonAfterConflict(ctx context.Context, run *jobRun, cause error) {
	current, err := m.store.GetByJobID(ctx, run.job.ID)
	if err == nil && current.Status.Terminal() {
		m.ack(ctx, run.lease, run.logger)
		return
	}
	run.logger.Info("claim lost to another worker",
		logging.String("reason", services.Details(cause).Message),
		logging.String(logging.FieldEventType, "claim_conflict"),
	)
}

// execute runs the phases the job still needs.
func (m *Manager) execute(ctx context.Context, cancel context.CancelCauseFunc, run *jobRun) error {
	job := run.job
	root := m.cfg.Paths.StagingDir
	reporter := &progressReporter{m: m, ctx: ctx, cancel: cancel, jobID: job.ID, lease: run.lease.Token, logger: run.logger, last: job.Progress}

	// Download. A job redelivered in processing fetches again without
	// moving its status or progress backwards.
	fetchStart := time.Now()
	fetchCtx, fetchCancel := context.WithTimeout(logPhase(ctx, "download"), m.cfg.DownloadTimeout())
	src, err := m.deps.Fetcher.Fetch(fetchCtx, job, staging.SourceDir(root, job.ID), func(pct float64) {
		if run.status == ingest.StatusDownloading {
			reporter.report(run.status, ingest.BandDownload.Scale(pct))
		}
	})
	fetchCancel()
	if err != nil {
		return err
	}
	run.logger.Info("download phase complete",
		logging.String("size", humanize.IBytes(uint64(src.Bytes))),
		logging.Duration("duration", time.Since(fetchStart)),
		logging.String(logging.FieldEventType, "phase_complete"),
		logging.Phase("download"),
	)

	if cancelled, err := m.checkCancel(ctx, run); cancelled || err != nil {
		return err
	}

	if run.status == ingest.StatusDownloading {
		if run.prefix == "" {
			run.prefix = objectstore.ArtifactPrefix(job, m.now())
		}
		if err := m.store.UpdateStatus(ctx, job.ID, ingest.StatusDownloading, ingest.StatusProcessing, jobstoreFields(run.lease.Token, ingest.BandDownload.End, run.prefix)); err != nil {
			return err
		}
		run.status = ingest.StatusProcessing
		reporter.last = max(reporter.last, ingest.BandDownload.End)
	}
	if run.prefix == "" {
		run.prefix = objectstore.ArtifactPrefix(job, m.now())
	}

	// Process.
	processStart := time.Now()
	processCtx, processCancel := context.WithTimeout(logPhase(ctx, "process"), m.cfg.ProcessTimeout())
	art, err := m.deps.Processor.Process(processCtx, job, src.Path, staging.OutputDir(root, job.ID), func(pct float64) {
		reporter.report(ingest.StatusProcessing, ingest.BandProcess.Scale(pct))
	})
	processCancel()
	if err != nil {
		return err
	}
	run.logger.Info("process phase complete",
		logging.Int("files", len(art.Files)),
		logging.Duration("duration", time.Since(processStart)),
		logging.String(logging.FieldEventType, "phase_complete"),
		logging.Phase("process"),
	)

	// Publish.
	keys, err := m.deps.Storage.PublishDir(logPhase(ctx, "publish"), art.Dir, run.prefix)
	if len(keys) > 0 {
		run.published = true
	}
	if err != nil {
		return err
	}
	resultURL := m.deps.Storage.FileURL(path.Join(run.prefix, art.Entry))
	reporter.report(ingest.StatusProcessing, ingest.BandPublish.End)

	if cancelled, err := m.checkCancel(ctx, run); cancelled || err != nil {
		return err
	}

	if err := m.deps.Catalog.Publish(logPhase(ctx, "catalog"), catalog.Request{
		Target:    job.Target,
		FileType:  job.FileType,
		OwnerID:   job.OwnerID,
		ResultURL: resultURL,
	}); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &catalogError{err: err}
	}
	run.cataloged = true

	if err := m.store.UpdateStatus(ctx, job.ID, ingest.StatusProcessing, ingest.StatusCompleted, completedFields(run.lease.Token, resultURL)); err != nil {
		return err
	}
	run.status = ingest.StatusCompleted
	m.ack(ctx, run.lease, run.logger)
	run.logger.Info("job completed",
		logging.String("result_url", resultURL),
		logging.Attempt(run.lease.Attempt, run.lease.MaxAttempts),
		logging.String(logging.FieldEventType, "job_completed"),
	)
	m.notify(ctx, run, notifications.EventJobCompleted, resultURL)
	return nil
}

// checkCancel fails the job at a phase boundary when cancellation was
// requested. It reports true when the job was cancelled.
func (m *Manager) checkCancel(ctx context.Context, run *jobRun) (bool, error) {
	requested, err := m.store.CancelRequested(ctx, run.job.ID)
	if err != nil {
		return false, err
	}
	if !requested {
		return false, nil
	}
	run.logger.Info("cancellation requested; stopping at checkpoint", logging.String(logging.FieldEventType, "job_cancelling"))
	if m.failJob(ctx, run, ingest.CancelledReason, false) {
		m.ack(ctx, run.lease, run.logger)
	}
	return true, nil
}

func (m *Manager) cleanStaging(run *jobRun) {
	if err := staging.Remove(m.cfg.Paths.StagingDir, run.job.ID); err != nil {
		logging.WarnWithContext(run.logger, "failed to remove staging directory", "staging_cleanup_failed",
			logging.String("path", filepath.Clean(staging.JobDir(m.cfg.Paths.StagingDir, run.job.ID))),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "retention removes stale staging directories"),
			logging.String(logging.FieldImpact, "disk space held until retention runs"),
		)
	}
}

func (m *Manager) ack(ctx context.Context, lease *queue.Lease, logger *slog.Logger) {
	if err := m.queue.Ack(context.WithoutCancel(ctx), lease.Token); err != nil && !errors.Is(err, queue.ErrLeaseLost) {
		logging.WarnWithContext(logger, "failed to ack queue entry", "queue_ack_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "entry is redelivered and dropped as stale"),
		)
	}
}

func logContext(ctx context.Context, jobID, worker string) context.Context {
	return services.WithWorker(services.WithJobID(ctx, jobID), worker)
}

func logPhase(ctx context.Context, phase string) context.Context {
	return services.WithPhase(ctx, phase)
}
