package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"vodingest/internal/ingest"
	"vodingest/internal/jobstore"
	"vodingest/internal/services"
)

type mockJobReader struct {
	jobs    map[string]*ingest.Job
	filters []jobstore.Filter
	listErr error
}

func (m *mockJobReader) GetByJobID(_ context.Context, jobID string) (*ingest.Job, error) {
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "jobstore", "get", "job "+jobID+" not found", nil)
	}
	return job, nil
}

func (m *mockJobReader) List(_ context.Context, f jobstore.Filter) ([]*ingest.Job, error) {
	m.filters = append(m.filters, f)
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*ingest.Job
	for _, job := range m.jobs {
		if f.OwnerID == "" || job.OwnerID == f.OwnerID {
			out = append(out, job)
		}
	}
	return out, nil
}

func newReader() *mockJobReader {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &mockJobReader{jobs: map[string]*ingest.Job{
		"done": {
			ID: "done", OwnerID: "alice", FileType: ingest.FileTypeVideo, Status: ingest.StatusCompleted,
			Progress: 100, ResultURL: "http://cdn/videos/done/index.m3u8", LeaseToken: "secret-lease",
			Attempts: 3, CreatedAt: now, UpdatedAt: now,
		},
		"busy": {
			ID: "busy", OwnerID: "bob", FileType: ingest.FileTypePoster, Status: ingest.StatusProcessing,
			Progress: 60, CancelRequested: true, CreatedAt: now, UpdatedAt: now,
		},
	}}
}

func TestJobServiceGet(t *testing.T) {
	svc := NewJobService(newReader())
	ctx := context.Background()

	view, err := svc.Get(ctx, "done", ingest.Principal{UserID: "alice"})
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if view.JobID != "done" || view.Status != "completed" || view.Progress != 100 {
		t.Fatalf("unexpected view: %+v", view)
	}
	if view.ResultURL != "http://cdn/videos/done/index.m3u8" {
		t.Fatalf("unexpected result url: %q", view.ResultURL)
	}
	if view.CreatedAt != "2026-01-02T03:04:05.000Z" {
		t.Fatalf("unexpected timestamp format: %q", view.CreatedAt)
	}

	if _, err := svc.Get(ctx, "done", ingest.Principal{UserID: "bob"}); !errors.Is(err, services.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := svc.Get(ctx, "done", ingest.Principal{UserID: "ops", Admin: true}); err != nil {
		t.Fatalf("admin Get returned error: %v", err)
	}
	if _, err := svc.Get(ctx, "missing", ingest.Principal{UserID: "alice"}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.Get(ctx, "  ", ingest.Principal{UserID: "alice"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestJobServiceGetActiveJobHidesResult(t *testing.T) {
	svc := NewJobService(newReader())
	view, err := svc.Get(context.Background(), "busy", ingest.Principal{UserID: "bob"})
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if view.ResultURL != "" || !view.Cancelling {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestJobServiceListScopesToOwner(t *testing.T) {
	reader := newReader()
	svc := NewJobService(reader)
	ctx := context.Background()

	views, err := svc.List(ctx, ingest.Principal{UserID: "alice"}, ListRequest{Limit: 10_000})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(views) != 1 || views[0].JobID != "done" {
		t.Fatalf("unexpected views: %+v", views)
	}
	if f := reader.filters[0]; f.OwnerID != "alice" || f.Limit != maxListLimit {
		t.Fatalf("unexpected filter: %+v", f)
	}

	views, err = svc.List(ctx, ingest.Principal{UserID: "ops", Admin: true}, ListRequest{})
	if err != nil {
		t.Fatalf("admin List returned error: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("admin should see all jobs, got %d", len(views))
	}
	if f := reader.filters[1]; f.OwnerID != "" || f.Limit != defaultListLimit {
		t.Fatalf("unexpected admin filter: %+v", f)
	}

	if _, err := svc.List(ctx, ingest.Principal{}, ListRequest{}); !errors.Is(err, services.ErrForbidden) {
		t.Fatalf("expected forbidden for anonymous caller, got %v", err)
	}
}

func TestJobServiceListPropagatesErrors(t *testing.T) {
	reader := newReader()
	reader.listErr = errors.New("boom")
	if _, err := NewJobService(reader).List(context.Background(), ingest.Principal{UserID: "alice"}, ListRequest{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseStatuses(t *testing.T) {
	got, err := ParseStatuses([]string{"pending, failed", "", "completed"})
	if err != nil {
		t.Fatalf("ParseStatuses returned error: %v", err)
	}
	if len(got) != 3 || got[0] != ingest.StatusPending || got[2] != ingest.StatusCompleted {
		t.Fatalf("unexpected statuses: %v", got)
	}
	if _, err := ParseStatuses([]string{"running"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
