package queue

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"vodingest/internal/config"
	"vodingest/internal/database"
	"vodingest/internal/services"
)

const component = "queue"

// State is the delivery state of a queue entry.
type State string

const (
	StateReady  State = "ready"
	StateLeased State = "leased"
	StateDead   State = "dead"
)

const (
	defaultLeaseDuration = 2 * time.Minute
	defaultPollInterval  = 5 * time.Second
	defaultMaxAttempts   = 5
	minWait              = 10 * time.Millisecond
)

// Options configures a Queue.
type Options struct {
	LeaseDuration      time.Duration
	PollInterval       time.Duration
	DefaultMaxAttempts int
	Backoff            Backoff
	Clock              func() time.Time
}

// OptionsFromConfig derives queue options from configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		LeaseDuration:      cfg.LeaseDuration(),
		PollInterval:       cfg.PollInterval(),
		DefaultMaxAttempts: cfg.Queue.MaxAttempts,
		Backoff: Backoff{
			Base: cfg.BackoffBase(),
			Max:  cfg.BackoffMax(),
		},
	}
}

// Queue is a database-backed leased work queue.
type Queue struct {
	db   *database.DB
	opts Options

	mu     sync.Mutex
	signal chan struct{}
}

// New returns a Queue over an open database.
func New(db *database.DB, opts Options) *Queue {
	if opts.LeaseDuration <= 0 {
		opts.LeaseDuration = defaultLeaseDuration
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.DefaultMaxAttempts <= 0 {
		opts.DefaultMaxAttempts = defaultMaxAttempts
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Queue{db: db, opts: opts, signal: make(chan struct{})}
}

// LeaseDuration returns the default visibility timeout.
func (q *Queue) LeaseDuration() time.Duration {
	return q.opts.LeaseDuration
}

func (q *Queue) now() time.Time {
	return q.opts.Clock().UTC()
}

// waitChannel returns a channel closed on the next notify.
func (q *Queue) waitChannel() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.signal
}

// notify wakes every waiting Dequeue in this process.
func (q *Queue) notify() {
	q.mu.Lock()
	close(q.signal)
	q.signal = make(chan struct{})
	q.mu.Unlock()
}

// Enqueue inserts work for jobID and returns its 1-based position among ready
// entries (0 while leased). Re-enqueueing a live job id is a no-op; a job id
// whose entry went dead is a conflict.
func (q *Queue) Enqueue(ctx context.Context, jobID string, payload []byte, priority, maxAttempts int) (int, error) {
	if jobID == "" {
		return 0, services.Invalid("jobId", "job id is required")
	}
	if maxAttempts <= 0 {
		maxAttempts = q.opts.DefaultMaxAttempts
	}
	now := database.Millis(q.now())
	affected, err := q.db.ExecAffected(ctx,
		`INSERT INTO queue_entries (job_id, payload, priority, state, attempts, max_attempts, visible_at, created_at, updated_at)
         VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)
         ON CONFLICT (job_id) DO NOTHING`,
		jobID, string(payload), priority, string(StateReady), maxAttempts, now, now, now,
	)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, component, "enqueue", "insert entry", err)
	}

	var state string
	if err := q.db.ScanRow(ctx, `SELECT state FROM queue_entries WHERE job_id = ?`, []any{jobID}, &state); err != nil {
		return 0, services.Wrap(services.ErrTransient, component, "enqueue", "read entry", err)
	}
	if State(state) == StateDead {
		return 0, services.Wrap(services.ErrConflict, component, "enqueue", "job "+jobID+" already exhausted its retries", nil)
	}
	if affected > 0 {
		q.notify()
	}
	return q.Position(ctx, jobID)
}

// Position returns the 1-based position of a ready entry, 0 for a leased
// entry, and NotFound when the job has no entry.
func (q *Queue) Position(ctx context.Context, jobID string) (int, error) {
	var (
		state    string
		priority int
		seq      int64
	)
	err := q.db.ScanRow(ctx, `SELECT state, priority, seq FROM queue_entries WHERE job_id = ?`, []any{jobID}, &state, &priority, &seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, services.Wrap(services.ErrNotFound, component, "position", "job "+jobID+" is not queued", nil)
	}
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, component, "position", "read entry", err)
	}
	if State(state) != StateReady {
		return 0, nil
	}
	var ahead int
	if err := q.db.ScanRow(ctx,
		`SELECT COUNT(1) FROM queue_entries
         WHERE state = ? AND (priority > ? OR (priority = ? AND seq < ?))`,
		[]any{string(StateReady), priority, priority, seq}, &ahead,
	); err != nil {
		return 0, services.Wrap(services.ErrTransient, component, "position", "count ahead", err)
	}
	return ahead + 1, nil
}
