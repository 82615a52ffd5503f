package retention

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"vodingest/internal/config"
	"vodingest/internal/ingest"
	"vodingest/internal/jobstore"
	"vodingest/internal/logging"
	"vodingest/internal/queue"
	"vodingest/internal/staging"
)

const (
	component = "retention"
	pageSize  = 500
	// orphanGrace keeps directories of jobs submitted during a sweep.
	orphanGrace = 15 * time.Minute
)

// Report summarises one retention run.
type Report struct {
	Skipped        bool
	JobsPurged     int64
	EntriesPurged  int64
	StaleDirs      int
	OrphanedDirs   int
	CleanupErrors  int
	Duration       time.Duration
	RetentionUntil time.Time
}

// Janitor purges expired records and staging data.
type Janitor struct {
	cfg    *config.Config
	store  *jobstore.Store
	queue  *queue.Queue
	logger *slog.Logger
	now    func() time.Time
	lock   *flock.Flock
	group  singleflight.Group
}

// Option customizes a Janitor.
type Option func(*Janitor)

// WithClock overrides the time source used for cutoffs.
func WithClock(now func() time.Time) Option {
	return func(j *Janitor) {
		if now != nil {
			j.now = now
		}
	}
}

// New constructs a Janitor.
func New(cfg *config.Config, store *jobstore.Store, q *queue.Queue, logger *slog.Logger, opts ...Option) *Janitor {
	j := &Janitor{
		cfg:    cfg,
		store:  store,
		queue:  q,
		logger: logging.NewComponentLogger(logger, component),
		now:    time.Now,
		lock:   flock.New(cfg.RetentionLockPath()),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run performs one sweep. Concurrent callers share the same sweep; when
// another process holds the lock the report is marked skipped.
func (j *Janitor) Run(ctx context.Context) (Report, error) {
	v, err, _ := j.group.Do("sweep", func() (any, error) {
		return j.sweep(ctx)
	})
	report, _ := v.(Report)
	return report, err
}

// Schedule registers Run on the configured cron expression.
func (j *Janitor) Schedule(ctx context.Context, c *cron.Cron) (cron.EntryID, error) {
	spec := j.cfg.Retention.Schedule
	id, err := c.AddFunc(spec, func() {
		if _, err := j.Run(ctx); err != nil {
			logging.ErrorWithContext(j.logger, "scheduled retention failed", "retention_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check database connectivity"),
			)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("schedule retention %q: %w", spec, err)
	}
	j.logger.Info("retention scheduled",
		logging.String("schedule", spec),
		logging.String(logging.FieldEventType, "retention_scheduled"),
	)
	return id, nil
}

func (j *Janitor) sweep(ctx context.Context) (Report, error) {
	start := time.Now()
	if err := os.MkdirAll(filepath.Dir(j.lock.Path()), 0o755); err != nil {
		return Report{}, fmt.Errorf("create lock dir: %w", err)
	}
	locked, err := j.lock.TryLock()
	if err != nil {
		return Report{}, fmt.Errorf("acquire retention lock: %w", err)
	}
	if !locked {
		j.logger.Info("retention already running elsewhere; skipping",
			logging.String("lock", j.lock.Path()),
			logging.String(logging.FieldEventType, "retention_skipped"),
		)
		return Report{Skipped: true}, nil
	}
	defer func() {
		if err := j.lock.Unlock(); err != nil {
			j.logger.Warn("failed to release retention lock", logging.Error(err))
		}
	}()

	cutoff := j.now().Add(-j.cfg.RetentionMaxAge())
	report := Report{RetentionUntil: cutoff}

	if report.JobsPurged, err = j.store.PurgeTerminal(ctx, cutoff); err != nil {
		return report, err
	}
	if report.EntriesPurged, err = j.queue.PurgeDead(ctx, cutoff); err != nil {
		return report, err
	}

	stagingDir := j.cfg.Paths.StagingDir
	stale := staging.CleanStale(ctx, stagingDir, j.cfg.StagingMaxAge(), j.logger)
	report.StaleDirs = len(stale.Removed)
	report.CleanupErrors = len(stale.Errors)

	active, err := j.activeJobs(ctx)
	if err != nil {
		return report, err
	}
	orphaned := staging.CleanOrphaned(ctx, stagingDir, active, orphanGrace, j.logger)
	report.OrphanedDirs = len(orphaned.Removed)
	report.CleanupErrors += len(orphaned.Errors)
	report.Duration = time.Since(start)

	j.logger.Info("retention complete",
		logging.Int64("jobs_purged", report.JobsPurged),
		logging.Int64("entries_purged", report.EntriesPurged),
		logging.Int("stale_dirs", report.StaleDirs),
		logging.Int("orphaned_dirs", report.OrphanedDirs),
		logging.Int("cleanup_errors", report.CleanupErrors),
		logging.Time("cutoff", cutoff),
		logging.Duration("duration", report.Duration),
		logging.String(logging.FieldEventType, "retention_complete"),
	)
	return report, nil
}

func (j *Janitor) activeJobs(ctx context.Context) (map[string]struct{}, error) {
	active := make(map[string]struct{})
	statuses := []ingest.Status{ingest.StatusPending, ingest.StatusDownloading, ingest.StatusProcessing}
	for offset := 0; ; offset += pageSize {
		jobs, err := j.store.List(ctx, jobstore.Filter{Statuses: statuses, Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		for _, job := range jobs {
			active[job.ID] = struct{}{}
		}
		if len(jobs) < pageSize {
			return active, nil
		}
	}
}
