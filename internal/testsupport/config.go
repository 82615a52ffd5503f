package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"vodingest/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.StorageDir = filepath.Join(base, "objects")
	cfgVal.Database.Driver = config.DriverSQLite
	cfgVal.Database.DSN = filepath.Join(base, "data", "ingest.db")
	cfgVal.Database.CatalogDSN = cfgVal.Database.DSN
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.API.PublicURL = "http://ingest.test"
	cfgVal.Storage.PublicBaseURL = "http://ingest.test/media"
	cfgVal.Storage.SigningSecret = "test-signing-secret-0123456789"
	cfgVal.Queue.BackoffBaseSeconds = 1
	cfgVal.Queue.BackoffMaxSeconds = 4
	cfgVal.Queue.PollIntervalSeconds = 1
	cfgVal.Workflow.HeartbeatIntervalSeconds = 1
	cfgVal.Workflow.ErrorRetryIntervalSeconds = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithPostgres points both the ingest and catalog connections at dsn.
func WithPostgres(dsn string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Database.Driver = config.DriverPostgres
		b.cfg.Database.DSN = dsn
		b.cfg.Database.CatalogDSN = dsn
	}
}

// WithAPIToken sets the shared bearer token on the test config.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Token = token
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default external binaries
// are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe", "yt-dlp"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// WriteScript writes an executable shell script named name into a bin
// directory under the config's base dir and returns its path.
func WriteScript(t testing.TB, cfg *config.Config, name, body string) string {
	t.Helper()
	binDir := filepath.Join(BaseDir(cfg), "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(binDir, name)
	if err := os.WriteFile(target, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script %s: %v", name, err)
	}
	return target
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
