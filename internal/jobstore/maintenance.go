package jobstore

import (
	"context"
	"strings"
	"time"

	"vodingest/internal/database"
	"vodingest/internal/ingest"
	"vodingest/internal/services"
)

const defaultListLimit = 50

// Filter narrows List results.
type Filter struct {
	OwnerID  string
	Statuses []ingest.Status
	Limit    int
	Offset   int
}

// List returns jobs newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]*ingest.Job, error) {
	var (
		clauses []string
		args    []any
	)
	if f.OwnerID != "" {
		clauses = append(clauses, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if len(f.Statuses) > 0 {
		placeholders := make([]string, len(f.Statuses))
		for i, status := range f.Statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		clauses = append(clauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	query := `SELECT ` + jobColumns + ` FROM ingestion_jobs`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	query += ` ORDER BY created_at DESC, job_id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, component, "list", "query jobs", err)
	}
	defer rows.Close()

	var jobs []*ingest.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, component, "list", "scan job", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrTransient, component, "list", "iterate jobs", err)
	}
	return jobs, nil
}

// Stats returns the number of jobs per status. Every status is present.
func (s *Store) Stats(ctx context.Context) (map[ingest.Status]int, error) {
	rows, err := s.db.Query(ctx, `SELECT status, COUNT(1) FROM ingestion_jobs GROUP BY status`)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, component, "stats", "query counts", err)
	}
	defer rows.Close()

	stats := make(map[ingest.Status]int, len(ingest.AllStatuses()))
	for _, status := range ingest.AllStatuses() {
		stats[status] = 0
	}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, services.Wrap(services.ErrTransient, component, "stats", "scan counts", err)
		}
		stats[ingest.Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrTransient, component, "stats", "iterate counts", err)
	}
	return stats, nil
}

// Delete removes a terminal job record. Active and pending jobs are a conflict.
func (s *Store) Delete(ctx context.Context, jobID string) error {
	affected, err := s.db.ExecAffected(ctx,
		`DELETE FROM ingestion_jobs WHERE job_id = ? AND status IN (?, ?)`,
		jobID, string(ingest.StatusCompleted), string(ingest.StatusFailed),
	)
	if err != nil {
		return services.Wrap(services.ErrTransient, component, "delete", "delete job", err)
	}
	if affected > 0 {
		return nil
	}
	job, err := s.GetByJobID(ctx, jobID)
	if err != nil {
		return err
	}
	return services.Wrap(services.ErrConflict, component, "delete", "job "+jobID+" is "+string(job.Status)+"; only terminal jobs can be deleted", nil)
}

// PurgeTerminal deletes terminal jobs last updated before cutoff.
func (s *Store) PurgeTerminal(ctx context.Context, cutoff time.Time) (int64, error) {
	affected, err := s.db.ExecAffected(ctx,
		`DELETE FROM ingestion_jobs WHERE status IN (?, ?) AND updated_at < ?`,
		string(ingest.StatusCompleted), string(ingest.StatusFailed), database.Millis(cutoff.UTC()),
	)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, component, "purge", "delete terminal jobs", err)
	}
	return affected, nil
}
