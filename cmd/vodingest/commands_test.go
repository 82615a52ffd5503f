package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"vodingest/internal/api"
	"vodingest/internal/ingest"
	"vodingest/internal/queue"
)

func TestJobsCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	env.submit(t, "job-alpha")
	env.submit(t, "job-beta")

	out, _, err := runCLI(t, []string{"jobs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "job-alpha")
	requireContains(t, out, "job-beta")
	requireContains(t, out, "Pending")

	out, _, err = runCLI(t, []string{"jobs", "list", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list --json: %v", err)
	}
	var listed api.JobListResponse
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Jobs) != 2 || listed.Jobs[0].OwnerID != "alice" {
		t.Fatalf("unexpected json listing: %+v", listed.Jobs)
	}

	out, _, err = runCLI(t, []string{"jobs", "show", "job-alpha"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs show: %v", err)
	}
	requireContains(t, out, "Status:")
	requireContains(t, out, "alice")

	out, _, err = runCLI(t, []string{"jobs", "cancel", "job-alpha"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs cancel: %v", err)
	}
	requireContains(t, out, "Cancelled job job-alpha")

	job, err := env.stack.Store.GetByJobID(context.Background(), "job-alpha")
	if err != nil {
		t.Fatalf("GetByJobID: %v", err)
	}
	if job.Status != ingest.StatusFailed || job.Error != ingest.CancelledReason {
		t.Fatalf("expected cancelled job to fail with %q, got %s %q", ingest.CancelledReason, job.Status, job.Error)
	}

	out, _, err = runCLI(t, []string{"jobs", "list", "--status", "failed"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list --status: %v", err)
	}
	requireContains(t, out, "job-alpha")
	if strings.Contains(out, "job-beta") {
		t.Fatalf("status filter leaked a pending job: %q", out)
	}

	if _, _, err := runCLI(t, []string{"jobs", "rm", "job-beta"}, env.configPath); err == nil {
		t.Fatal("expected deleting a pending job to fail")
	}
	out, _, err = runCLI(t, []string{"jobs", "rm", "job-alpha"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs rm: %v", err)
	}
	requireContains(t, out, "Deleted job job-alpha")

	if _, _, err := runCLI(t, []string{"jobs", "show", "job-alpha"}, env.configPath); err == nil {
		t.Fatal("expected deleted job to be gone")
	}
	if _, _, err := runCLI(t, []string{"jobs", "list", "--status", "bogus"}, env.configPath); err == nil {
		t.Fatal("expected unknown status filter to fail")
	}
}

func TestQueueCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"queue", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "Queue is empty")

	env.submit(t, "job-one")
	env.submit(t, "job-two")

	out, _, err = runCLI(t, []string{"queue", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "Ready")
	requireContains(t, out, "2")

	out, _, err = runCLI(t, []string{"queue", "status", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("queue status --json: %v", err)
	}
	var stats api.QueueStats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Ready != 2 || stats.OldestReady == "" {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	out, _, err = runCLI(t, []string{"queue", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "job-one")
	requireContains(t, out, "job-two")
	if strings.Index(out, "job-one") > strings.Index(out, "job-two") {
		t.Fatalf("expected delivery order, got %q", out)
	}
}

func TestQueueListRows(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := buildQueueListRows([]queue.Entry{
		{JobID: "a", State: queue.StateReady, Attempts: 0, MaxAttempts: 5, VisibleAt: now.Add(-time.Minute)},
		{JobID: "b", State: queue.StateReady, Attempts: 2, MaxAttempts: 5, VisibleAt: now.Add(10 * time.Minute), LastError: strings.Repeat("x", 100)},
		{JobID: "c", State: queue.StateDead, Attempts: 5, MaxAttempts: 5, LastError: "gave up"},
	}, now)

	if rows[0][3] != "now" {
		t.Fatalf("expected due entry to read now, got %q", rows[0][3])
	}
	if !strings.Contains(rows[1][3], "from now") || rows[1][2] != "2/5" {
		t.Fatalf("unexpected delayed row: %v", rows[1])
	}
	if len([]rune(rows[1][4])) != 60 {
		t.Fatalf("expected last error truncated to 60 runes, got %d", len([]rune(rows[1][4])))
	}
	if rows[2][3] != "" || rows[2][4] != "gave up" {
		t.Fatalf("unexpected dead row: %v", rows[2])
	}
}

func TestStatusCommandOffline(t *testing.T) {
	env := setupCLITestEnv(t)
	env.submit(t, "job-status")

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Daemon:")
	requireContains(t, out, "not running")
	requireContains(t, out, "Database:")
	requireContains(t, out, "[OK] sqlite")
	requireContains(t, out, "Staging directory:")
	requireContains(t, out, "Pending")

	out, _, err = runCLI(t, []string{"status", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var status api.DaemonStatus
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Running || status.Workflow.JobCounts["pending"] != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestCleanupCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"cleanup"}, env.configPath)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	requireContains(t, out, "Jobs purged:")
	requireContains(t, out, "Orphaned staging dirs:")

	out, _, err = runCLI(t, []string{"cleanup", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("cleanup --json: %v", err)
	}
	var report map[string]any
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report["skipped"] != false || report["jobsPurged"] != float64(0) {
		t.Fatalf("unexpected report: %v", report)
	}
}

func TestWorkOnceWithEmptyQueue(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"work", "--once"}, env.configPath)
	if err != nil {
		t.Fatalf("work --once: %v", err)
	}
	requireContains(t, out, "Processed 0 job(s)")
}

func TestTestNotifyCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify without topic: %v", err)
	}
	requireContains(t, out, "Notifications are disabled")

	var mu sync.Mutex
	var titles []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		titles = append(titles, r.Header.Get("Title"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	env.cfg.Notifications.NtfyTopic = srv.URL + "/vodingest"
	writeTestConfig(t, env.configPath, env.cfg)

	out, _, err = runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Test notification sent")
	mu.Lock()
	defer mu.Unlock()
	if len(titles) != 1 || titles[0] != "vodingest - Test" {
		t.Fatalf("unexpected ntfy requests: %v", titles)
	}
}
