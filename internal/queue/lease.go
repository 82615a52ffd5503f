package queue

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"vodingest/internal/database"
	"vodingest/internal/services"
)

const dequeueRaceRetries = 5

// Lease is an exclusive, time-bounded claim on one queue entry.
type Lease struct {
	JobID       string
	Payload     []byte
	Token       string
	Attempt     int
	MaxAttempts int
	ExpiresAt   time.Time
}

// Exhausted reports whether this delivery is beyond the attempt ceiling. That
// happens when earlier holders crashed without nacking.
func (l *Lease) Exhausted() bool {
	return l.Attempt > l.MaxAttempts
}

// NackResult tells the caller what became of a nacked entry.
type NackResult struct {
	Dead    bool
	RetryAt time.Time
	Attempt int
}

const availableClause = `((state = 'ready' AND visible_at <= ?) OR (state = 'leased' AND lease_expires_at <= ?))`

// TryDequeue leases the next available entry, or returns nil when none is due.
func (q *Queue) TryDequeue(ctx context.Context) (*Lease, error) {
	for attempt := 0; attempt < dequeueRaceRetries; attempt++ {
		now := q.now()
		nowMs := database.Millis(now)
		expires := now.Add(q.opts.LeaseDuration)
		token := uuid.NewString()

		var (
			lease   = Lease{Token: token, ExpiresAt: expires}
			payload string
		)
		err := q.db.ScanRow(ctx,
			`UPDATE queue_entries
             SET state = 'leased', attempts = attempts + 1, lease_token = ?, lease_expires_at = ?, updated_at = ?
             WHERE seq = (
                 SELECT seq FROM queue_entries
                 WHERE `+availableClause+`
                 ORDER BY priority DESC, seq ASC
                 LIMIT 1`+q.db.SkipLocked()+`
             ) AND `+availableClause+`
             RETURNING job_id, payload, attempts, max_attempts`,
			[]any{token, database.Millis(expires), nowMs, nowMs, nowMs, nowMs, nowMs},
			&lease.JobID, &payload, &lease.Attempt, &lease.MaxAttempts,
		)
		if err == nil {
			lease.Payload = []byte(payload)
			return &lease, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, services.Wrap(services.ErrTransient, component, "dequeue", "lease entry", err)
		}
		// Either nothing is due or a concurrent worker took the candidate.
		available, err := q.available(ctx, nowMs)
		if err != nil {
			return nil, err
		}
		if !available {
			return nil, nil
		}
	}
	return nil, nil
}

func (q *Queue) available(ctx context.Context, nowMs int64) (bool, error) {
	var count int
	if err := q.db.ScanRow(ctx,
		`SELECT COUNT(1) FROM queue_entries WHERE `+availableClause,
		[]any{nowMs, nowMs}, &count,
	); err != nil {
		return false, services.Wrap(services.ErrTransient, component, "dequeue", "count available", err)
	}
	return count > 0, nil
}

// nextDue returns the earliest instant a ready or leased entry becomes deliverable.
func (q *Queue) nextDue(ctx context.Context) (time.Time, bool, error) {
	var next sql.NullInt64
	if err := q.db.ScanRow(ctx,
		`SELECT MIN(CASE WHEN state = 'ready' THEN visible_at ELSE lease_expires_at END)
         FROM queue_entries WHERE state IN ('ready', 'leased')`,
		nil, &next,
	); err != nil {
		return time.Time{}, false, services.Wrap(services.ErrTransient, component, "dequeue", "read next due", err)
	}
	if !next.Valid {
		return time.Time{}, false, nil
	}
	return database.FromMillis(next.Int64), true, nil
}

// Dequeue blocks until an entry can be leased or ctx ends. It wakes on
// enqueues made through this Queue, on the earliest pending due time, and
// otherwise every poll interval.
func (q *Queue) Dequeue(ctx context.Context) (*Lease, error) {
	for {
		signal := q.waitChannel()
		lease, err := q.TryDequeue(ctx)
		if err != nil {
			return nil, err
		}
		if lease != nil {
			return lease, nil
		}

		wait := q.opts.PollInterval
		if due, ok, err := q.nextDue(ctx); err == nil && ok {
			if until := due.Sub(q.now()); until < wait {
				wait = max(until, minWait)
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-signal:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// Extend pushes the lease deadline ttl into the future. ttl <= 0 uses the
// queue's lease duration.
func (q *Queue) Extend(ctx context.Context, token string, ttl time.Duration) (time.Time, error) {
	if ttl <= 0 {
		ttl = q.opts.LeaseDuration
	}
	now := q.now()
	expires := now.Add(ttl)
	affected, err := q.db.ExecAffected(ctx,
		`UPDATE queue_entries SET lease_expires_at = ?, updated_at = ?
         WHERE lease_token = ? AND state = 'leased'`,
		database.Millis(expires), database.Millis(now), token,
	)
	if err != nil {
		return time.Time{}, services.Wrap(services.ErrTransient, component, "extend", "write lease", err)
	}
	if affected == 0 {
		return time.Time{}, ErrLeaseLost
	}
	return expires, nil
}

// Ack removes the entry permanently.
func (q *Queue) Ack(ctx context.Context, token string) error {
	affected, err := q.db.ExecAffected(ctx,
		`DELETE FROM queue_entries WHERE lease_token = ? AND state = 'leased'`, token)
	if err != nil {
		return services.Wrap(services.ErrTransient, component, "ack", "delete entry", err)
	}
	if affected == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Nack gives the entry back. With retry and attempts to spare it is requeued
// after backoff; otherwise it is parked as dead and the result says so.
func (q *Queue) Nack(ctx context.Context, token string, retry bool, reason string) (NackResult, error) {
	var attempts, maxAttempts int
	err := q.db.ScanRow(ctx,
		`SELECT attempts, max_attempts FROM queue_entries WHERE lease_token = ? AND state = 'leased'`,
		[]any{token}, &attempts, &maxAttempts,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return NackResult{}, ErrLeaseLost
	}
	if err != nil {
		return NackResult{}, services.Wrap(services.ErrTransient, component, "nack", "read entry", err)
	}

	now := q.now()
	result := NackResult{Attempt: attempts}
	var affected int64
	if retry && attempts < maxAttempts {
		result.RetryAt = now.Add(q.opts.Backoff.Delay(attempts))
		affected, err = q.db.ExecAffected(ctx,
			`UPDATE queue_entries
             SET state = 'ready', visible_at = ?, lease_token = '', lease_expires_at = 0, last_error = ?, updated_at = ?
             WHERE lease_token = ? AND state = 'leased'`,
			database.Millis(result.RetryAt), reason, database.Millis(now), token,
		)
	} else {
		result.Dead = true
		affected, err = q.db.ExecAffected(ctx,
			`UPDATE queue_entries
             SET state = 'dead', lease_token = '', lease_expires_at = 0, last_error = ?, updated_at = ?
             WHERE lease_token = ? AND state = 'leased'`,
			reason, database.Millis(now), token,
		)
	}
	if err != nil {
		return NackResult{}, services.Wrap(services.ErrTransient, component, "nack", "write entry", err)
	}
	if affected == 0 {
		return NackResult{}, ErrLeaseLost
	}
	if !result.Dead {
		q.notify()
	}
	return result, nil
}

// Release hands a lease back without consuming an attempt, for orderly shutdown.
func (q *Queue) Release(ctx context.Context, token string) error {
	now := database.Millis(q.now())
	affected, err := q.db.ExecAffected(ctx,
		`UPDATE queue_entries
         SET state = 'ready', attempts = CASE WHEN attempts > 0 THEN attempts - 1 ELSE 0 END,
             visible_at = ?, lease_token = '', lease_expires_at = 0, updated_at = ?
         WHERE lease_token = ? AND state = 'leased'`,
		now, now, token,
	)
	if err != nil {
		return services.Wrap(services.ErrTransient, component, "release", "write entry", err)
	}
	if affected == 0 {
		return ErrLeaseLost
	}
	q.notify()
	return nil
}
