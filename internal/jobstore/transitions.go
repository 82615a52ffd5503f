package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"vodingest/internal/ingest"
	"vodingest/internal/services"
)

// Fields carries the optional column updates of a status transition.
type Fields struct {
	// Lease fences the update: when set, the row must still carry this lease token.
	Lease          string
	Progress       *int
	ResultURL      string
	ArtifactPrefix string
	Error          string
}

// Progress is a convenience for building Fields.Progress.
func Progress(pct int) *int {
	return &pct
}

func validateFields(expected, next ingest.Status, f Fields) error {
	if !ingest.CanTransition(expected, next) {
		return services.Invalid("status", "transition %s -> %s is not allowed", expected, next)
	}
	if next == ingest.StatusCompleted && strings.TrimSpace(f.ResultURL) == "" {
		return services.Invalid("result_url", "completion requires a result url")
	}
	if next != ingest.StatusCompleted && f.ResultURL != "" {
		return services.Invalid("result_url", "result url is only set on completion")
	}
	if next == ingest.StatusFailed && strings.TrimSpace(f.Error) == "" {
		return services.Invalid("error", "failure requires an error message")
	}
	if next != ingest.StatusFailed && f.Error != "" {
		return services.Invalid("error", "error is only set on failure")
	}
	if f.Progress != nil && (*f.Progress < 0 || *f.Progress > 100) {
		return services.Invalid("progress", "progress %d is outside 0-100", *f.Progress)
	}
	return nil
}

// UpdateStatus moves a job from expected to next with compare-and-swap
// semantics. A job no longer in expected (or no longer carrying f.Lease) fails
// with a conflict and the caller must abandon its work.
func (s *Store) UpdateStatus(ctx context.Context, jobID string, expected, next ingest.Status, f Fields) error {
	if err := validateFields(expected, next, f); err != nil {
		return err
	}

	progressExpr := "progress"
	args := []any{string(next)}
	switch {
	case next == ingest.StatusCompleted:
		progressExpr = "100"
	case f.Progress != nil:
		progressExpr = s.db.Greatest("progress", "?")
		args = append(args, *f.Progress)
	}
	args = append(args, f.ResultURL, f.Error, f.ArtifactPrefix, f.ArtifactPrefix, s.timestamp(), jobID, string(expected))

	query := `UPDATE ingestion_jobs
        SET status = ?, progress = ` + progressExpr + `, result_url = ?, error = ?,
            artifact_prefix = CASE WHEN ? = '' THEN artifact_prefix ELSE ? END,
            updated_at = ?
        WHERE job_id = ? AND status = ?`
	if f.Lease != "" {
		query += ` AND lease_token = ?`
		args = append(args, f.Lease)
	}

	affected, err := s.db.ExecAffected(ctx, query, args...)
	if err != nil {
		return services.Wrap(services.ErrTransient, component, "update status", "write status", err)
	}
	if affected == 0 {
		return s.explainMiss(ctx, "update status", jobID, expected)
	}
	return nil
}

// Claim takes ownership of a job for a lease holder. next is either the
// successor of expected (first claim) or expected itself (redelivery). The
// swap also requires the row to still carry previousLease, so two workers
// racing from the same snapshot cannot both win.
func (s *Store) Claim(ctx context.Context, jobID string, expected, next ingest.Status, previousLease, lease, worker string) error {
	if expected.Terminal() {
		return services.Wrap(services.ErrConflict, component, "claim", "job "+jobID+" is already "+string(expected), nil)
	}
	if next != expected && !ingest.CanTransition(expected, next) {
		return services.Invalid("status", "transition %s -> %s is not allowed", expected, next)
	}
	if next.Terminal() {
		return services.Invalid("status", "cannot claim into terminal status %s", next)
	}
	if strings.TrimSpace(lease) == "" {
		return services.Invalid("lease", "lease token is required")
	}

	affected, err := s.db.ExecAffected(ctx,
		`UPDATE ingestion_jobs
        SET status = ?, lease_token = ?, worker_id = ?, attempts = attempts + 1, updated_at = ?
        WHERE job_id = ? AND status = ? AND lease_token = ?`,
		string(next), lease, worker, s.timestamp(), jobID, string(expected), previousLease,
	)
	if err != nil {
		return services.Wrap(services.ErrTransient, component, "claim", "write claim", err)
	}
	if affected == 0 {
		return s.explainMiss(ctx, "claim", jobID, expected)
	}
	return nil
}

// UpdateProgress raises the job's progress without ever lowering it. The write
// is fenced on status and lease; a stale holder gets a conflict.
func (s *Store) UpdateProgress(ctx context.Context, jobID string, status ingest.Status, lease string, pct int) error {
	if !status.Active() {
		return services.Invalid("status", "progress is only tracked while downloading or processing")
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 99 {
		pct = 99
	}
	affected, err := s.db.ExecAffected(ctx,
		`UPDATE ingestion_jobs
        SET progress = `+s.db.Greatest("progress", "?")+`, updated_at = ?
        WHERE job_id = ? AND status = ? AND lease_token = ? AND progress < ?`,
		pct, s.timestamp(), jobID, string(status), lease, pct,
	)
	if err != nil {
		return services.Wrap(services.ErrTransient, component, "update progress", "write progress", err)
	}
	if affected > 0 {
		return nil
	}

	// No row changed: either progress was already at or above pct, or the fence failed.
	job, err := s.GetByJobID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != status || job.LeaseToken != lease {
		return services.Wrap(services.ErrConflict, component, "update progress", "job "+jobID+" lease no longer held", nil)
	}
	return nil
}

// RequestCancel flags an active job for cancellation at its next checkpoint.
// It returns false when the job is not active.
func (s *Store) RequestCancel(ctx context.Context, jobID string) (bool, error) {
	affected, err := s.db.ExecAffected(ctx,
		`UPDATE ingestion_jobs SET cancel_requested = 1, updated_at = ?
        WHERE job_id = ? AND status IN (?, ?)`,
		s.timestamp(), jobID, string(ingest.StatusDownloading), string(ingest.StatusProcessing),
	)
	if err != nil {
		return false, services.Wrap(services.ErrTransient, component, "request cancel", "write flag", err)
	}
	return affected > 0, nil
}

// CancelRequested reports whether cancellation was requested for the job.
func (s *Store) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	var flag int64
	err := s.db.ScanRow(ctx, `SELECT cancel_requested FROM ingestion_jobs WHERE job_id = ?`, []any{jobID}, &flag)
	if errors.Is(err, sql.ErrNoRows) {
		return false, services.Wrap(services.ErrNotFound, component, "cancel requested", "job "+jobID+" not found", nil)
	}
	if err != nil {
		return false, services.Wrap(services.ErrTransient, component, "cancel requested", "read flag", err)
	}
	return flag != 0, nil
}
