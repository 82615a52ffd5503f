package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vodingest/internal/logging"
)

func TestCleanStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStale(context.Background(), dir, time.Hour, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanStaleRemovesOldDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	oldDir := filepath.Join(tmpDir, "old-staging")
	if err := os.Mkdir(oldDir, 0o755); err != nil {
		t.Fatalf("create old dir: %v", err)
	}
	oldTime := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldDir, oldTime, oldTime); err != nil {
		t.Fatalf("set old time: %v", err)
	}

	recentDir := filepath.Join(tmpDir, "recent-staging")
	if err := os.Mkdir(recentDir, 0o755); err != nil {
		t.Fatalf("create recent dir: %v", err)
	}

	result := CleanStale(context.Background(), tmpDir, time.Hour, logging.NewNop())

	if len(result.Removed) != 1 {
		t.Fatalf("expected 1 removed, got %d", len(result.Removed))
	}
	if result.Removed[0] != oldDir {
		t.Errorf("expected %s to be removed, got %s", oldDir, result.Removed[0])
	}

	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Error("old directory should have been removed")
	}

	if _, err := os.Stat(recentDir); err != nil {
		t.Error("recent directory should still exist")
	}
}

func TestCleanStaleIgnoresFiles(t *testing.T) {
	tmpDir := t.TempDir()

	oldFile := filepath.Join(tmpDir, "old-file.txt")
	if err := os.WriteFile(oldFile, []byte("test"), 0o644); err != nil {
		t.Fatalf("create file: %v", err)
	}
	oldTime := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldFile, oldTime, oldTime); err != nil {
		t.Fatalf("set old time: %v", err)
	}

	result := CleanStale(context.Background(), tmpDir, time.Hour, logging.NewNop())

	if len(result.Removed) != 0 {
		t.Errorf("expected no removals for files, got %d", len(result.Removed))
	}

	if _, err := os.Stat(oldFile); err != nil {
		t.Error("file should not have been removed")
	}
}

func TestCleanOrphanedEmptyDir(t *testing.T) {
	for _, dir := range []string{"", "   "} {
		result := CleanOrphaned(context.Background(), dir, nil, 0, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanOrphanedRemovesInactiveJobDirs(t *testing.T) {
	tmpDir := t.TempDir()

	liveDir := JobDir(tmpDir, "Job-Live")
	deadDir := JobDir(tmpDir, "job-dead")
	foreignDir := filepath.Join(tmpDir, "not-a-job")
	for _, dir := range []string{liveDir, deadDir, foreignDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("create %s: %v", dir, err)
		}
	}

	result := CleanOrphaned(context.Background(), tmpDir, map[string]struct{}{"Job-Live": {}}, time.Hour, logging.NewNop())
	if len(result.Removed) != 0 {
		t.Fatalf("fresh directories must survive the grace period, got %v", result.Removed)
	}

	old := time.Now().Add(-2 * time.Hour)
	for _, dir := range []string{liveDir, deadDir, foreignDir} {
		if err := os.Chtimes(dir, old, old); err != nil {
			t.Fatalf("set old time: %v", err)
		}
	}
	result = CleanOrphaned(context.Background(), tmpDir, map[string]struct{}{"Job-Live": {}}, time.Hour, logging.NewNop())

	if len(result.Removed) != 1 || result.Removed[0] != deadDir {
		t.Fatalf("expected only %s removed, got %v", deadDir, result.Removed)
	}
	for _, dir := range []string{liveDir, foreignDir} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("%s should still exist", dir)
		}
	}
}

func TestJobDirLayout(t *testing.T) {
	root := "/var/staging"
	if got := JobDir(root, "abc-123"); got != "/var/staging/job-abc-123" {
		t.Fatalf("unexpected job dir: %s", got)
	}
	if got := SourceDir(root, "abc-123"); got != "/var/staging/job-abc-123/source" {
		t.Fatalf("unexpected source dir: %s", got)
	}
	if got := OutputDir(root, "abc-123"); got != "/var/staging/job-abc-123/out" {
		t.Fatalf("unexpected output dir: %s", got)
	}
	if id, ok := jobIDFromDir("job-abc-123"); !ok || id != "abc-123" {
		t.Fatalf("unexpected reverse: %q %v", id, ok)
	}
	if _, ok := jobIDFromDir("job-"); ok {
		t.Fatal("empty id must not parse")
	}
}

func TestRemoveMissingDirIsFine(t *testing.T) {
	if err := Remove(t.TempDir(), "never-created"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
}

func TestCleanStaleStopsOnCancelledContext(t *testing.T) {
	tmpDir := t.TempDir()
	old := time.Now().Add(-2 * time.Hour)
	for _, name := range []string{"a", "b"} {
		dir := filepath.Join(tmpDir, name)
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if err := os.Chtimes(dir, old, old); err != nil {
			t.Fatalf("set old time: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := CleanStale(ctx, tmpDir, time.Hour, nil)
	if len(result.Removed) != 0 {
		t.Fatalf("cancelled sweep removed %v", result.Removed)
	}
}
