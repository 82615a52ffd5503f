package workflow

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"vodingest/internal/ingest"
	"vodingest/internal/jobstore"
	"vodingest/internal/logging"
	"vodingest/internal/objectstore"
	"vodingest/internal/services"
	"vodingest/internal/textutil"
)

// CreateRequest is a caller's ingestion request.
type CreateRequest struct {
	// JobID is an optional caller-chosen idempotency key. A duplicate is a conflict.
	JobID        string
	FileType     ingest.FileType
	Source       ingest.Source
	OriginalName string
	Target       ingest.Target
}

// Submission is the outcome of a successful Submit.
type Submission struct {
	Job      *ingest.Job
	Position int
}

// Submit validates req, records a pending job and enqueues it. Validation
// happens before any write. If enqueueing fails the record is marked failed
// so it never sits pending without queued work.
func (m *Manager) Submit(ctx context.Context, principal ingest.Principal, req CreateRequest) (Submission, error) {
	if strings.TrimSpace(principal.UserID) == "" {
		return Submission{}, services.Wrap(services.ErrForbidden, component, "submit", "caller identity is required", nil)
	}
	jobID := strings.TrimSpace(req.JobID)
	if jobID == "" {
		jobID = uuid.NewString()
	}
	job := &ingest.Job{
		ID:           jobID,
		OwnerID:      principal.UserID,
		Target:       req.Target,
		Source:       req.Source,
		OriginalName: strings.TrimSpace(req.OriginalName),
		FileType:     req.FileType,
		Policy: ingest.Policy{
			MaxBytes:    m.cfg.MaxBytesFor(string(req.FileType)),
			MaxAttempts: m.cfg.Queue.MaxAttempts,
		},
	}
	if err := job.Validate(); err != nil {
		return Submission{}, err
	}
	if err := m.checkSource(ctx, principal, job); err != nil {
		return Submission{}, err
	}
	if err := m.checkTarget(ctx, job); err != nil {
		return Submission{}, err
	}

	created, err := m.store.Create(ctx, job)
	if err != nil {
		return Submission{}, err
	}
	ctx = services.WithJobID(ctx, created.ID)
	logger := logging.WithContext(ctx, m.logger)

	body, err := encodePayload(created)
	if err == nil {
		var position int
		position, err = m.queue.Enqueue(ctx, created.ID, body, created.FileType.Priority(), created.Policy.MaxAttempts)
		if err == nil {
			logger.Info("job submitted",
				logging.String("file_type", string(created.FileType)),
				logging.String("source_kind", string(created.Source.Kind)),
				logging.Int("queue_position", position),
				logging.String(logging.FieldEventType, "job_submitted"),
			)
			return Submission{Job: created, Position: position}, nil
		}
	}

	message := "enqueue failed: " + services.Details(err).Message
	if failErr := m.store.UpdateStatus(context.WithoutCancel(ctx), created.ID, ingest.StatusPending, ingest.StatusFailed, jobstore.Fields{Error: message}); failErr != nil {
		logging.ErrorWithContext(logger, "failed to mark unqueued job failed", "job_fail_write_failed",
			logging.Error(failErr),
			logging.String(logging.FieldErrorHint, "job stays pending with no queue entry; cancel it manually"),
		)
	}
	return Submission{}, err
}

// checkSource verifies an upload key belongs to the caller, matches the file
// type and points at an uploaded object.
func (m *Manager) checkSource(ctx context.Context, principal ingest.Principal, job *ingest.Job) error {
	if job.Source.Kind != ingest.SourceUpload {
		return nil
	}
	key := job.Source.UploadKey
	parts := strings.Split(key, "/")
	if len(parts) != 4 || parts[0] != job.FileType.Plural() {
		return services.Invalid("source.key", "upload key %q is not a %s upload", key, job.FileType)
	}
	if !principal.Admin && parts[1] != textutil.SanitizeToken(principal.UserID) {
		return services.Wrap(services.ErrForbidden, component, "submit", "upload key belongs to another user", nil)
	}
	exists, err := m.deps.Storage.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return services.Invalid("source.key", "no upload found at %q", key)
	}
	if job.OriginalName == "" {
		job.OriginalName = objectstore.UploadedName(key)
	}
	return nil
}

func (m *Manager) checkTarget(ctx context.Context, job *ingest.Job) error {
	if job.FileType == ingest.FileTypeAvatar {
		ok, err := m.deps.Catalog.UserExists(ctx, job.OwnerID)
		if err != nil {
			return err
		}
		if !ok {
			return services.Wrap(services.ErrNotFound, component, "submit", "user "+job.OwnerID+" not found", nil)
		}
		return nil
	}
	if job.Target.IsZero() {
		return nil
	}
	ok, err := m.deps.Catalog.Exists(ctx, job.Target)
	if err != nil {
		return err
	}
	if !ok {
		return services.Wrap(services.ErrNotFound, component, "submit", "target "+job.Target.Name()+" not found", nil)
	}
	return nil
}

// Cancel cancels a job on behalf of principal. A pending job fails at once
// and leaves the queue; an active job is flagged and stops at its next phase
// boundary. Terminal jobs cannot be cancelled.
func (m *Manager) Cancel(ctx context.Context, principal ingest.Principal, jobID string) (*ingest.Job, error) {
	job, err := m.authorize(ctx, principal, jobID)
	if err != nil {
		return nil, err
	}
	ctx = services.WithJobID(ctx, job.ID)
	logger := logging.WithContext(ctx, m.logger)

	for range 2 {
		switch {
		case job.Status == ingest.StatusPending:
			err = m.store.UpdateStatus(ctx, job.ID, ingest.StatusPending, ingest.StatusFailed, jobstore.Fields{Error: ingest.CancelledReason})
			if err == nil {
				if _, rmErr := m.queue.Remove(ctx, job.ID); rmErr != nil {
					logging.WarnWithContext(logger, "failed to remove cancelled job from queue", "queue_remove_failed",
						logging.Error(rmErr),
						logging.String(logging.FieldImpact, "entry is dropped as stale when delivered"),
					)
				}
				logger.Info("pending job cancelled", logging.String(logging.FieldEventType, "job_cancelled"))
				return m.store.GetByJobID(ctx, job.ID)
			}
		case job.Status.Active():
			var flagged bool
			flagged, err = m.store.RequestCancel(ctx, job.ID)
			if err != nil {
				return nil, err
			}
			if flagged {
				logger.Info("cancellation requested for active job",
					logging.String("status", string(job.Status)),
					logging.String(logging.FieldEventType, "job_cancel_requested"),
				)
				return m.store.GetByJobID(ctx, job.ID)
			}
			err = services.Wrap(services.ErrConflict, component, "cancel", "job "+job.ID+" finished meanwhile", nil)
		default:
			return nil, services.Wrap(services.ErrConflict, component, "cancel", "job "+job.ID+" is already "+string(job.Status), nil)
		}
		if !isConflict(err) {
			return nil, err
		}
		// A worker moved the job between our read and write; decide again.
		if job, err = m.store.GetByJobID(ctx, job.ID); err != nil {
			return nil, err
		}
	}
	return nil, services.Wrap(services.ErrConflict, component, "cancel", "job "+jobID+" keeps changing; try again", nil)
}

// Delete removes a terminal job's record and any dead queue entry.
// Published artifacts stay; the catalog may reference them.
func (m *Manager) Delete(ctx context.Context, principal ingest.Principal, jobID string) error {
	job, err := m.authorize(ctx, principal, jobID)
	if err != nil {
		return err
	}
	if err := m.store.Delete(ctx, job.ID); err != nil {
		return err
	}
	if _, err := m.queue.Remove(ctx, job.ID); err != nil {
		logging.WarnWithContext(logging.WithContext(services.WithJobID(ctx, job.ID), m.logger), "failed to remove queue entry of deleted job", "queue_remove_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "retention purges the entry later"),
		)
	}
	return nil
}

// Get returns a job the principal may see.
func (m *Manager) Get(ctx context.Context, principal ingest.Principal, jobID string) (*ingest.Job, error) {
	return m.authorize(ctx, principal, jobID)
}

func (m *Manager) authorize(ctx context.Context, principal ingest.Principal, jobID string) (*ingest.Job, error) {
	job, err := m.store.GetByJobID(ctx, strings.TrimSpace(jobID))
	if err != nil {
		return nil, err
	}
	if !principal.CanAccess(job.OwnerID) {
		return nil, services.Wrap(services.ErrForbidden, component, "authorize", "job "+job.ID+" belongs to another user", nil)
	}
	return job, nil
}
