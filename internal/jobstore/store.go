package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"vodingest/internal/database"
	"vodingest/internal/ingest"
	"vodingest/internal/services"
)

const component = "jobstore"

const jobColumns = "job_id, owner_id, file_type, source_kind, source_key, source_url, remote_video_id, original_name, target_content_id, target_episode_id, policy_max_bytes, policy_max_attempts, status, progress, result_url, artifact_prefix, error, cancel_requested, lease_token, worker_id, attempts, created_at, updated_at"

// Store persists ingestion job records.
type Store struct {
	db  *database.DB
	now func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a Store over an open database.
func New(db *database.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) timestamp() int64 {
	return database.Millis(s.now().UTC())
}

// Create inserts a new pending job. A duplicate job id is a conflict.
func (s *Store) Create(ctx context.Context, job *ingest.Job) (*ingest.Job, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	now := s.timestamp()
	_, err := s.db.Exec(ctx,
		`INSERT INTO ingestion_jobs (`+jobColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, '', '', '', 0, '', '', 0, ?, ?)`,
		job.ID,
		job.OwnerID,
		string(job.FileType),
		string(job.Source.Kind),
		job.Source.UploadKey,
		job.Source.URL,
		job.Source.RemoteVideoID,
		job.OriginalName,
		job.Target.ContentID,
		job.Target.EpisodeID,
		job.Policy.MaxBytes,
		job.Policy.MaxAttempts,
		string(ingest.StatusPending),
		now,
		now,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, services.Wrap(services.ErrConflict, component, "create", "job id "+job.ID+" already exists", nil)
		}
		return nil, services.Wrap(services.ErrTransient, component, "create", "insert job", err)
	}
	return s.GetByJobID(ctx, job.ID)
}

// GetByJobID loads a job record.
func (s *Store) GetByJobID(ctx context.Context, jobID string) (*ingest.Job, error) {
	rows, err := s.db.Query(ctx, `SELECT `+jobColumns+` FROM ingestion_jobs WHERE job_id = ?`, jobID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, component, "get", "query job", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, services.Wrap(services.ErrTransient, component, "get", "query job", err)
		}
		return nil, services.Wrap(services.ErrNotFound, component, "get", "job "+jobID+" not found", nil)
	}
	job, err := scanJob(rows)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, component, "get", "scan job", err)
	}
	return job, nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*ingest.Job, error) {
	var (
		job             ingest.Job
		fileType        string
		sourceKind      string
		status          string
		cancelRequested int64
		createdAt       int64
		updatedAt       int64
	)
	if err := scanner.Scan(
		&job.ID,
		&job.OwnerID,
		&fileType,
		&sourceKind,
		&job.Source.UploadKey,
		&job.Source.URL,
		&job.Source.RemoteVideoID,
		&job.OriginalName,
		&job.Target.ContentID,
		&job.Target.EpisodeID,
		&job.Policy.MaxBytes,
		&job.Policy.MaxAttempts,
		&status,
		&job.Progress,
		&job.ResultURL,
		&job.ArtifactPrefix,
		&job.Error,
		&cancelRequested,
		&job.LeaseToken,
		&job.WorkerID,
		&job.Attempts,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	job.FileType = ingest.FileType(fileType)
	job.Source.Kind = ingest.SourceKind(sourceKind)
	job.Status = ingest.Status(status)
	job.CancelRequested = cancelRequested != 0
	job.CreatedAt = database.FromMillis(createdAt)
	job.UpdatedAt = database.FromMillis(updatedAt)
	return &job, nil
}

// explainMiss turns a zero-row CAS into NotFound or Conflict.
func (s *Store) explainMiss(ctx context.Context, operation, jobID string, expected ingest.Status) error {
	var current string
	err := s.db.ScanRow(ctx, `SELECT status FROM ingestion_jobs WHERE job_id = ?`, []any{jobID}, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return services.Wrap(services.ErrNotFound, component, operation, "job "+jobID+" not found", nil)
	}
	if err != nil {
		return services.Wrap(services.ErrTransient, component, operation, "read current status", err)
	}
	if current != string(expected) {
		return services.Wrap(services.ErrConflict, component, operation,
			"job "+jobID+" is "+current+", expected "+string(expected), nil)
	}
	return services.Wrap(services.ErrConflict, component, operation, "job "+jobID+" lease no longer held", nil)
}
