package preflight

import (
	"context"
	"strings"

	"vodingest/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Backend-specific checks only run for the configured storage backend.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
	}

	switch cfg.Storage.Backend {
	case config.StorageBackendLocal:
		results = append(results, CheckDirectoryAccess("Object storage", cfg.Paths.StorageDir))
	case config.StorageBackendRclone:
		results = append(results, CheckRcloneRemote(ctx, cfg.Storage.RcloneBinary, cfg.Storage.RcloneRemote, cfg.Storage.RcloneBasePath))
	}

	results = append(results, CheckPublicURL("Public media URL", cfg.Storage.PublicBaseURL))
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// Summary joins failed check names for error messages.
func Summary(results []Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Name+": "+r.Detail)
	}
	return strings.Join(parts, "; ")
}
