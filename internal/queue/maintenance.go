package queue

import (
	"context"
	"database/sql"
	"time"

	"vodingest/internal/database"
	"vodingest/internal/services"
)

// Entry is a read-only view of a queue row.
type Entry struct {
	JobID          string
	State          State
	Priority       int
	Attempts       int
	MaxAttempts    int
	VisibleAt      time.Time
	LeaseExpiresAt time.Time
	LastError      string
	CreatedAt      time.Time
}

// Stats aggregates queue depth.
type Stats struct {
	Ready       int
	Delayed     int
	Leased      int
	Expired     int
	Dead        int
	OldestReady time.Time
}

// Remove deletes a not-yet-leased entry, used when a pending job is cancelled.
func (q *Queue) Remove(ctx context.Context, jobID string) (bool, error) {
	affected, err := q.db.ExecAffected(ctx,
		`DELETE FROM queue_entries WHERE job_id = ? AND state IN ('ready', 'dead')`, jobID)
	if err != nil {
		return false, services.Wrap(services.ErrTransient, component, "remove", "delete entry", err)
	}
	return affected > 0, nil
}

// Stats counts entries by delivery state.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	now := database.Millis(q.now())
	var (
		ready, delayed, leased, expired, dead sql.NullInt64
		oldest                                sql.NullInt64
	)
	if err := q.db.ScanRow(ctx,
		`SELECT
            SUM(CASE WHEN state = 'ready' AND visible_at <= ? THEN 1 ELSE 0 END),
            SUM(CASE WHEN state = 'ready' AND visible_at > ? THEN 1 ELSE 0 END),
            SUM(CASE WHEN state = 'leased' AND lease_expires_at > ? THEN 1 ELSE 0 END),
            SUM(CASE WHEN state = 'leased' AND lease_expires_at <= ? THEN 1 ELSE 0 END),
            SUM(CASE WHEN state = 'dead' THEN 1 ELSE 0 END),
            MIN(CASE WHEN state = 'ready' THEN created_at END)
         FROM queue_entries`,
		[]any{now, now, now, now},
		&ready, &delayed, &leased, &expired, &dead, &oldest,
	); err != nil {
		return Stats{}, services.Wrap(services.ErrTransient, component, "stats", "count entries", err)
	}
	stats := Stats{
		Ready:   int(ready.Int64),
		Delayed: int(delayed.Int64),
		Leased:  int(leased.Int64),
		Expired: int(expired.Int64),
		Dead:    int(dead.Int64),
	}
	if oldest.Valid {
		stats.OldestReady = database.FromMillis(oldest.Int64)
	}
	return stats, nil
}

// List returns entries in delivery order, dead entries last.
func (q *Queue) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.db.Query(ctx,
		`SELECT job_id, state, priority, attempts, max_attempts, visible_at, lease_expires_at, last_error, created_at
         FROM queue_entries
         ORDER BY CASE WHEN state = 'dead' THEN 1 ELSE 0 END, priority DESC, seq ASC
         LIMIT ?`, limit)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, component, "list", "query entries", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                           Entry
			state                       string
			visible, expires, createdAt int64
		)
		if err := rows.Scan(&e.JobID, &state, &e.Priority, &e.Attempts, &e.MaxAttempts, &visible, &expires, &e.LastError, &createdAt); err != nil {
			return nil, services.Wrap(services.ErrTransient, component, "list", "scan entry", err)
		}
		e.State = State(state)
		e.VisibleAt = database.FromMillis(visible)
		e.LeaseExpiresAt = database.FromMillis(expires)
		e.CreatedAt = database.FromMillis(createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrTransient, component, "list", "iterate entries", err)
	}
	return entries, nil
}

// PurgeDead deletes dead entries last touched before cutoff.
func (q *Queue) PurgeDead(ctx context.Context, cutoff time.Time) (int64, error) {
	affected, err := q.db.ExecAffected(ctx,
		`DELETE FROM queue_entries WHERE state = 'dead' AND updated_at < ?`, database.Millis(cutoff.UTC()))
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, component, "purge", "delete dead entries", err)
	}
	return affected, nil
}
