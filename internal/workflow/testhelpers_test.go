package workflow_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"vodingest/internal/catalog"
	"vodingest/internal/config"
	"vodingest/internal/fetch"
	"vodingest/internal/ingest"
	"vodingest/internal/jobstore"
	"vodingest/internal/logging"
	"vodingest/internal/notifications"
	"vodingest/internal/objectstore"
	"vodingest/internal/queue"
	"vodingest/internal/stage"
	"vodingest/internal/testsupport"
	"vodingest/internal/transcode"
	"vodingest/internal/workflow"
)

var (
	alice = ingest.Principal{UserID: "alice"}
	bob   = ingest.Principal{UserID: "bob"}
	admin = ingest.Principal{UserID: "ops", Admin: true}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeFetcher writes a small source file. hook, when set, runs first and may
// fail the call.
type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	hook  func(ctx context.Context, call int, job *ingest.Job) error
}

func (f *fakeFetcher) Fetch(ctx context.Context, job *ingest.Job, destDir string, progress fetch.ProgressFunc) (fetch.Result, error) {
	f.mu.Lock()
	f.calls++
	call, hook := f.calls, f.hook
	f.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, call, job); err != nil {
			return fetch.Result{}, err
		}
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fetch.Result{}, err
	}
	target := filepath.Join(destDir, "source.bin")
	if err := os.WriteFile(target, []byte("source-bytes"), 0o644); err != nil {
		return fetch.Result{}, err
	}
	if progress != nil {
		progress(50)
		progress(100)
	}
	return fetch.Result{Path: target, Bytes: 12, Method: "fake"}, nil
}

func (f *fakeFetcher) HealthCheck(context.Context) stage.Health { return stage.Healthy("fetch") }

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeProcessor writes a one-segment playlist for videos and a single file
// for images.
type fakeProcessor struct {
	mu    sync.Mutex
	calls int
	hook  func(ctx context.Context, call int, job *ingest.Job) error
}

func (p *fakeProcessor) Process(ctx context.Context, job *ingest.Job, src, outDir string, progress transcode.ProgressFunc) (transcode.Artifact, error) {
	p.mu.Lock()
	p.calls++
	call, hook := p.calls, p.hook
	p.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, call, job); err != nil {
			return transcode.Artifact{}, err
		}
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return transcode.Artifact{}, err
	}
	files := map[string]string{}
	entry := transcode.PlaylistName
	if job.FileType.IsImage() {
		entry = string(job.FileType) + ".png"
		files[entry] = "png"
	} else {
		files[entry] = "#EXTM3U\nsegment_00000.ts\n#EXT-X-ENDLIST\n"
		files["segment_00000.ts"] = "ts"
	}
	var names []string
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(outDir, name), []byte(body), 0o644); err != nil {
			return transcode.Artifact{}, err
		}
		names = append(names, name)
	}
	if progress != nil {
		progress(50)
		progress(100)
	}
	return transcode.Artifact{Dir: outDir, Entry: entry, Files: names}, nil
}

func (p *fakeProcessor) HealthCheck(context.Context) stage.Health { return stage.Healthy("transcode") }

func (p *fakeProcessor) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeCatalog struct {
	mu       sync.Mutex
	requests []catalog.Request
	err      error
	missing  map[string]bool
	noUsers  bool
}

func (c *fakeCatalog) Publish(_ context.Context, req catalog.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.requests = append(c.requests, req)
	return nil
}

func (c *fakeCatalog) Exists(_ context.Context, target ingest.Target) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.missing[target.Name()], nil
}

func (c *fakeCatalog) UserExists(context.Context, string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.noUsers, nil
}

func (c *fakeCatalog) Requests() []catalog.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]catalog.Request(nil), c.requests...)
}

type sentNotification struct {
	event   notifications.Event
	payload notifications.Payload
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (n *fakeNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{event: event, payload: payload})
	return n.err
}

func (n *fakeNotifier) Sent() []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentNotification(nil), n.sent...)
}

type harness struct {
	cfg       *config.Config
	clock     *fakeClock
	store     *jobstore.Store
	queue     *queue.Queue
	gateway   *objectstore.Gateway
	fetcher   *fakeFetcher
	processor *fakeProcessor
	catalog   *fakeCatalog
	notifier  *fakeNotifier
	manager   *workflow.Manager
}

type harnessOption func(*config.Config)

func withMaxAttempts(n int) harnessOption {
	return func(cfg *config.Config) { cfg.Queue.MaxAttempts = n }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.Workers = 1
	for _, opt := range opts {
		opt(cfg)
	}
	clock := newFakeClock()
	h := &harness{
		cfg:       cfg,
		clock:     clock,
		store:     testsupport.MustOpenStore(t, cfg, jobstore.WithClock(clock.Now)),
		queue:     testsupport.MustOpenQueue(t, cfg, func(o *queue.Options) { o.Clock = clock.Now }),
		fetcher:   &fakeFetcher{},
		processor: &fakeProcessor{},
		catalog:   &fakeCatalog{missing: map[string]bool{}},
		notifier:  &fakeNotifier{},
	}
	h.gateway = objectstore.New(objectstore.NewLocalBucket(cfg.Paths.StorageDir), objectstore.NewSigner(cfg.Storage.SigningSecret, clock.Now), objectstore.Options{
		PublicBaseURL: cfg.Storage.PublicBaseURL,
		UploadBaseURL: cfg.API.PublicURL,
		Policies:      objectstore.PoliciesFromConfig(cfg),
		Clock:         clock.Now,
	})
	h.manager = workflow.NewManager(cfg, h.store, h.queue, workflow.Deps{
		Fetcher:   h.fetcher,
		Processor: h.processor,
		Storage:   h.gateway,
		Catalog:   h.catalog,
		Notifier:  h.notifier,
	}, logging.NewNop(), workflow.WithClock(clock.Now), workflow.WithWorkerPrefix("test"))
	return h
}

func (h *harness) submitVideo(t *testing.T, target ingest.Target) *ingest.Job {
	t.Helper()
	sub, err := h.manager.Submit(context.Background(), alice, workflow.CreateRequest{
		FileType: ingest.FileTypeVideo,
		Source:   ingest.Source{Kind: ingest.SourceRemoteURL, URL: "https://videos.example.com/watch/42"},
		Target:   target,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return sub.Job
}

func (h *harness) processNext(t *testing.T) {
	t.Helper()
	ran, err := h.manager.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	if !ran {
		t.Fatal("expected a due queue entry")
	}
}

func (h *harness) job(t *testing.T, id string) *ingest.Job {
	t.Helper()
	job, err := h.store.GetByJobID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByJobID: %v", err)
	}
	return job
}

func (h *harness) queueStats(t *testing.T) queue.Stats {
	t.Helper()
	stats, err := h.queue.Stats(context.Background())
	if err != nil {
		t.Fatalf("queue stats: %v", err)
	}
	return stats
}

func (h *harness) objectExists(t *testing.T, key string) bool {
	t.Helper()
	ok, err := h.gateway.Exists(context.Background(), key)
	if err != nil {
		t.Fatalf("Exists %s: %v", key, err)
	}
	return ok
}
