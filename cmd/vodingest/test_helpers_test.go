package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"vodingest/internal/config"
	"vodingest/internal/daemonrun"
	"vodingest/internal/ingest"
	"vodingest/internal/logging"
	"vodingest/internal/testsupport"
	"vodingest/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	stack      *daemonrun.Stack
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("INGEST_NTFY_TOPIC", "")

	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = ""
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	configPath := filepath.Join(homeDir, ".config", "vodingest", "config.toml")
	writeTestConfig(t, configPath, cfg)

	stack, err := daemonrun.Open(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemonrun.Open: %v", err)
	}
	t.Cleanup(func() { _ = stack.Close() })

	return &cliTestEnv{
		cfg:        cfg,
		stack:      stack,
		configPath: configPath,
		baseDir:    base,
	}
}

func (env *cliTestEnv) submit(t *testing.T, jobID string) {
	t.Helper()
	_, err := env.stack.Workflow.Submit(context.Background(), ingest.Principal{UserID: "alice"}, workflow.CreateRequest{
		JobID:    jobID,
		FileType: ingest.FileTypeVideo,
		Source:   ingest.Source{Kind: ingest.SourceRemoteURL, URL: "https://videos.example.com/" + jobID + ".mp4"},
	})
	if err != nil {
		t.Fatalf("Submit %s: %v", jobID, err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
