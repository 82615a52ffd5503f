package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"vodingest/internal/catalog"
	"vodingest/internal/config"
	"vodingest/internal/fetch"
	"vodingest/internal/jobstore"
	"vodingest/internal/logging"
	"vodingest/internal/notifications"
	"vodingest/internal/objectstore"
	"vodingest/internal/retention"
	"vodingest/internal/testsupport"
	"vodingest/internal/transcode"
	"vodingest/internal/workflow"
)

type fixture struct {
	cfg     *config.Config
	daemon  *Daemon
	store   *jobstore.Store
	gateway *objectstore.Gateway
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	return newFixtureWithConfig(t, cfg)
}

func newFixtureWithConfig(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := logging.NewNop()

	db := testsupport.MustOpenDB(t, cfg)
	store := jobstore.New(db)
	q := testsupport.MustOpenQueue(t, cfg)
	gateway, err := objectstore.NewFromConfig(cfg, logger)
	if err != nil {
		t.Fatalf("objectstore.NewFromConfig: %v", err)
	}
	publisher := catalog.New(db, logger)
	if err := publisher.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := publisher.Seed(ctx, []string{"alice", "bob"}, []string{"show-1"}, map[string]string{"ep-1": "show-1"}); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	manager := workflow.NewManager(cfg, store, q, workflow.Deps{
		Fetcher:   fetch.NewFromConfig(cfg, gateway, logger),
		Processor: transcode.NewFromConfig(cfg, logger),
		Storage:   gateway,
		Catalog:   publisher,
		Notifier:  notifications.NewService(cfg),
	}, logger)

	d, err := New(cfg, Components{
		DB:       db,
		Store:    store,
		Queue:    q,
		Gateway:  gateway,
		Workflow: manager,
		Janitor:  retention.New(cfg, store, q, logger),
	}, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return &fixture{cfg: cfg, daemon: d, store: store, gateway: gateway}
}

type caller struct {
	userID string
	role   string
	token  string
}

var (
	alice = caller{userID: "alice"}
	bob   = caller{userID: "bob"}
	ops   = caller{userID: "ops", role: "admin"}
)

var nobody caller

func (f *fixture) do(t *testing.T, who caller, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if who.userID != "" {
		req.Header.Set(HeaderUserID, who.userID)
	}
	if who.role != "" {
		req.Header.Set(HeaderUserRole, who.role)
	}
	if who.token != "" {
		req.Header.Set("Authorization", "Bearer "+who.token)
	}
	rec := httptest.NewRecorder()
	f.daemon.api.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) raw(t *testing.T, method, target, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.daemon.api.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected HTTP %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func remoteJob(url string) map[string]any {
	return map[string]any{
		"sourceKind": "remoteUrl",
		"file_type":  "video",
		"url":        url,
	}
}

func submitRemote(t *testing.T, f *fixture, who caller, url string) string {
	t.Helper()
	rec := f.do(t, who, http.MethodPost, "/api/jobs", remoteJob(url))
	expectStatus(t, rec, http.StatusCreated)
	return decode[map[string]any](t, rec)["jobId"].(string)
}
