package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vodingest/internal/config"
	"vodingest/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func writeStub(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rclone")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckRcloneRemote_OK(t *testing.T) {
	bin := writeStub(t, "#!/bin/sh\n[ \"$4\" = \"media:vod/prod\" ] || exit 3\necho videos/\n")
	result := CheckRcloneRemote(context.Background(), bin, "media:", "/vod/prod/")
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckRcloneRemote_Failure(t *testing.T) {
	bin := writeStub(t, "#!/bin/sh\necho 'Failed to lsf: directory not found' >&2\nexit 3\n")
	result := CheckRcloneRemote(context.Background(), bin, "media", "vod")
	if result.Passed {
		t.Fatal("expected failure when rclone exits non-zero")
	}
	if !strings.Contains(result.Detail, "directory not found") {
		t.Fatalf("expected rclone stderr in detail, got %q", result.Detail)
	}
}

func TestCheckRcloneRemote_MissingRemote(t *testing.T) {
	result := CheckRcloneRemote(context.Background(), "rclone", "", "vod")
	if result.Passed {
		t.Fatal("expected failure for missing remote")
	}
}

func TestCheckPublicURL(t *testing.T) {
	cases := map[string]bool{
		"https://cdn.example.com/media": true,
		"http://127.0.0.1:7490/media":   true,
		"":                              false,
		"/media":                        false,
		"ftp://cdn.example.com":         false,
	}
	for raw, want := range cases {
		if got := CheckPublicURL("url", raw).Passed; got != want {
			t.Fatalf("CheckPublicURL(%q) passed=%v, want %v", raw, got, want)
		}
	}
}

func TestRunAllLocalBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	results := RunAll(context.Background(), cfg)
	if len(results) != 4 {
		t.Fatalf("expected 4 checks, got %d: %+v", len(results), results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("expected all checks to pass, got %s", Summary(failed))
	}

	if err := os.RemoveAll(cfg.Paths.StagingDir); err != nil {
		t.Fatalf("remove staging: %v", err)
	}
	failed := Failed(RunAll(context.Background(), cfg))
	if len(failed) != 1 || failed[0].Name != "Staging directory" {
		t.Fatalf("expected staging check to fail, got %+v", failed)
	}
}

func TestRunAllRcloneBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	cfg.Storage.Backend = config.StorageBackendRclone
	cfg.Storage.RcloneRemote = "media"
	cfg.Storage.RcloneBinary = writeStub(t, "#!/bin/sh\nexit 0\n")

	results := RunAll(context.Background(), cfg)
	var sawRclone bool
	for _, r := range results {
		if r.Name == "Object storage" {
			t.Fatal("local storage dir must not be checked for the rclone backend")
		}
		if r.Name == "Rclone remote" {
			sawRclone = r.Passed
		}
	}
	if !sawRclone {
		t.Fatalf("expected passing rclone check, got %+v", results)
	}
}
