package retention_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"

	"vodingest/internal/ingest"
	"vodingest/internal/jobstore"
	"vodingest/internal/logging"
	"vodingest/internal/queue"
	"vodingest/internal/retention"
	"vodingest/internal/staging"
	"vodingest/internal/testsupport"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newJob(id string) *ingest.Job {
	return &ingest.Job{
		ID:       id,
		OwnerID:  "alice",
		FileType: ingest.FileTypeVideo,
		Source:   ingest.Source{Kind: ingest.SourceRemoteURL, URL: "https://videos.example.com/" + id},
		Policy:   ingest.Policy{MaxBytes: 1 << 20, MaxAttempts: 3},
	}
}

func mustCreate(t *testing.T, store *jobstore.Store, id string, fail bool) {
	t.Helper()
	ctx := context.Background()
	if _, err := store.Create(ctx, newJob(id)); err != nil {
		t.Fatalf("Create %s: %v", id, err)
	}
	if fail {
		if err := store.UpdateStatus(ctx, id, ingest.StatusPending, ingest.StatusFailed, jobstore.Fields{Error: "boom"}); err != nil {
			t.Fatalf("UpdateStatus %s: %v", id, err)
		}
	}
}

func TestRunPurgesExpiredWork(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Retention.MaxAgeHours = 24 * 7
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := &clock{now: now.Add(-30 * 24 * time.Hour)}

	store := testsupport.MustOpenStore(t, cfg, jobstore.WithClock(clk.Now))
	q := testsupport.MustOpenQueue(t, cfg, func(o *queue.Options) { o.Clock = clk.Now })

	mustCreate(t, store, "old-failed", true)
	if _, err := q.Enqueue(ctx, "old-failed", []byte(`{}`), 0, 1); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	lease, err := q.TryDequeue(ctx)
	if err != nil || lease == nil {
		t.Fatalf("TryDequeue: %v %v", lease, err)
	}
	if _, err := q.Nack(ctx, lease.Token, false, "boom"); err != nil {
		t.Fatalf("Nack: %v", err)
	}

	clk.Set(now)
	mustCreate(t, store, "recent-failed", true)
	mustCreate(t, store, "still-pending", false)

	hourAgo := time.Now().Add(-time.Hour)
	activeDir := staging.JobDir(cfg.Paths.StagingDir, "still-pending")
	orphanDir := staging.JobDir(cfg.Paths.StagingDir, "old-failed")
	freshOrphan := staging.JobDir(cfg.Paths.StagingDir, "just-submitted")
	for _, dir := range []string{activeDir, orphanDir, freshOrphan} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	for _, dir := range []string{activeDir, orphanDir} {
		if err := os.Chtimes(dir, hourAgo, hourAgo); err != nil {
			t.Fatalf("chtimes %s: %v", dir, err)
		}
	}

	janitor := retention.New(cfg, store, q, logging.NewNop(), retention.WithClock(clk.Now))
	report, err := janitor.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Skipped || report.JobsPurged != 1 || report.EntriesPurged != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.OrphanedDirs != 1 || report.StaleDirs != 0 {
		t.Fatalf("unexpected staging counts: %+v", report)
	}

	if _, err := store.GetByJobID(ctx, "old-failed"); err == nil {
		t.Fatal("expired job should be purged")
	}
	for _, id := range []string{"recent-failed", "still-pending"} {
		if _, err := store.GetByJobID(ctx, id); err != nil {
			t.Fatalf("job %s should survive: %v", id, err)
		}
	}
	if _, err := os.Stat(orphanDir); !os.IsNotExist(err) {
		t.Fatalf("orphaned staging dir should be removed, stat err %v", err)
	}
	for _, dir := range []string{activeDir, freshOrphan} {
		if _, err := os.Stat(dir); err != nil {
			t.Fatalf("%s should survive: %v", filepath.Base(dir), err)
		}
	}
}

func TestRunSkipsWhenLockHeld(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	q := testsupport.MustOpenQueue(t, cfg)

	if err := os.MkdirAll(filepath.Dir(cfg.RetentionLockPath()), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	other := flock.New(cfg.RetentionLockPath())
	locked, err := other.TryLock()
	if err != nil || !locked {
		t.Fatalf("TryLock: %v %v", locked, err)
	}
	defer other.Unlock()

	report, err := retention.New(cfg, store, q, logging.NewNop()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Skipped {
		t.Fatalf("expected skipped run, got %+v", report)
	}
}

func TestSchedule(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	janitor := retention.New(cfg, testsupport.MustOpenStore(t, cfg), testsupport.MustOpenQueue(t, cfg), logging.NewNop())

	c := cron.New()
	if _, err := janitor.Schedule(context.Background(), c); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(c.Entries()) != 1 {
		t.Fatalf("expected one cron entry, got %d", len(c.Entries()))
	}

	cfg.Retention.Schedule = "not a schedule"
	if _, err := janitor.Schedule(context.Background(), cron.New()); err == nil {
		t.Fatal("expected invalid schedule to fail")
	}
}
