package daemonctl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"vodingest/internal/api"
	"vodingest/internal/daemon"
	"vodingest/internal/testsupport"
)

func TestDialAddress(t *testing.T) {
	cases := map[string]string{
		":7480":          "127.0.0.1:7480",
		"0.0.0.0:7480":   "127.0.0.1:7480",
		"[::]:7480":      "127.0.0.1:7480",
		"10.0.0.5:9000":  "10.0.0.5:9000",
		"localhost:7480": "localhost:7480",
	}
	for bind, want := range cases {
		if got := dialAddress(bind); got != want {
			t.Fatalf("dialAddress(%q) = %q, want %q", bind, got, want)
		}
	}
}

func TestNewClientDisabledWithoutBind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = ""
	client := NewClient(cfg)
	if client != nil {
		t.Fatal("expected nil client when api is disabled")
	}
	if _, err := client.Status(context.Background()); !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestClientStatusSendsAdminIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get(daemon.HeaderUserRole) != "admin" || r.Header.Get(daemon.HeaderUserID) == "" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"admin role required"}`))
			return
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: true, PID: 42, Storage: "local"})
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("secret"))
	cfg.API.Bind = strings.TrimPrefix(srv.URL, "http://")

	status, err := NewClient(cfg).Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || status.PID != 42 || status.Storage != "local" {
		t.Fatalf("unexpected status: %+v", status)
	}

	cfg.API.Token = "wrong"
	_, err = NewClient(cfg).Status(context.Background())
	if err == nil || !strings.Contains(err.Error(), "HTTP 401: unauthorized") {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	if errors.Is(err, ErrDaemonNotRunning) {
		t.Fatal("an answering daemon must not be reported as not running")
	}
}

func TestProcessInfo(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	running, pid, err := ProcessInfo(cfg)
	if err != nil || running || pid != 0 {
		t.Fatalf("expected idle data dir, got running=%v pid=%d err=%v", running, pid, err)
	}

	if err := os.WriteFile(cfg.PIDPath(), []byte("4242\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	held := flock.New(cfg.LockPath())
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("lock: ok=%v err=%v", ok, err)
	}
	running, pid, err = ProcessInfo(cfg)
	if err != nil || !running || pid != 4242 {
		t.Fatalf("expected running daemon 4242, got running=%v pid=%d err=%v", running, pid, err)
	}

	_ = held.Unlock()
	running, _, err = ProcessInfo(cfg)
	if err != nil || running {
		t.Fatalf("expected released lock to read as stopped, got running=%v err=%v", running, err)
	}
}

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	status, live, err := BuildStatusSnapshot(context.Background(), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if live || status.Running {
		t.Fatalf("expected offline snapshot, got live=%v running=%v", live, status.Running)
	}
	if !status.Database.Reachable || status.Database.Dialect != "sqlite" {
		t.Fatalf("expected reachable sqlite database, got %+v", status.Database)
	}
	if status.Workflow.Running {
		t.Fatal("offline snapshot must not report running workers")
	}
	if len(status.Dependencies) == 0 {
		t.Fatal("expected dependency checks in offline snapshot")
	}
}
