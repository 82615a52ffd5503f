package deps

import (
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"vodingest/internal/config"
	"vodingest/internal/testsupport"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}

	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
}

func TestCheckBinariesUnconfiguredCommand(t *testing.T) {
	lookPath = func(string) (string, error) {
		t.Fatal("lookPath must not run for an empty command")
		return "", nil
	}
	t.Cleanup(func() { lookPath = exec.LookPath })

	results := CheckBinaries([]Requirement{{Name: "yt-dlp", Command: "  "}})
	if results[0].Available || results[0].Detail != "command not configured" {
		t.Fatalf("unexpected status: %+v", results[0])
	}
}

func TestRequirementsFollowStorageBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Storage.Backend = config.StorageBackendLocal
	for _, req := range Requirements(cfg) {
		if req.Name == "rclone" && !req.Optional {
			t.Fatal("rclone should be optional for local storage")
		}
		if req.Name == "FFmpeg" && req.Optional {
			t.Fatal("ffmpeg is required")
		}
	}
	cfg.Storage.Backend = config.StorageBackendRclone
	for _, req := range Requirements(cfg) {
		if req.Name == "rclone" && req.Optional {
			t.Fatal("rclone should be required for the rclone backend")
		}
	}
}

func TestMissingRequired(t *testing.T) {
	statuses := []Status{
		{Requirement: Requirement{Name: "a"}, Available: true},
		{Requirement: Requirement{Name: "b", Optional: true}},
		{Requirement: Requirement{Name: "c"}},
	}
	missing := MissingRequired(statuses)
	if len(missing) != 1 || missing[0].Name != "c" {
		t.Fatalf("unexpected missing set: %+v", missing)
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "not", "yet", "created")
	status := CheckFreeSpace("Staging", dir, 1)
	if !status.Available || !strings.HasSuffix(status.Detail, "free") {
		t.Fatalf("expected space available, got %+v", status)
	}
	status = CheckFreeSpace("Staging", dir, math.MaxInt64)
	if status.Available || !strings.Contains(status.Detail, "below") {
		t.Fatalf("expected space shortfall, got %+v", status)
	}
}
