package staging

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vodingest/internal/logging"
	"vodingest/internal/textutil"
)

// SweepResult lists what a sweep removed and what it could not.
type SweepResult struct {
	Removed []string
	Errors  []SweepError
}

// SweepError pairs a directory with the error that kept it on disk.
type SweepError struct {
	Path  string
	Error error
}

// candidate is a directory directly below the staging root.
type candidate struct {
	name string
	path string
	info fs.FileInfo
}

// CleanStale removes staging directories not modified within maxAge,
// whatever their owner.
func CleanStale(ctx context.Context, stagingDir string, maxAge time.Duration, logger *slog.Logger) SweepResult {
	cutoff := time.Now().Add(-maxAge)
	return sweep(ctx, stagingDir, "stale", logger, func(c candidate) ([]logging.Attr, bool) {
		if !c.info.ModTime().Before(cutoff) {
			return nil, false
		}
		return []logging.Attr{logging.Duration("age", time.Since(c.info.ModTime()))}, true
	})
}

// CleanOrphaned removes job directories whose job id is not in active.
// Directories modified within minAge and directories that JobDir did not
// create are left alone.
func CleanOrphaned(ctx context.Context, stagingDir string, active map[string]struct{}, minAge time.Duration, logger *slog.Logger) SweepResult {
	live := make(map[string]struct{}, len(active))
	for id := range active {
		live[textutil.SanitizeToken(id)] = struct{}{}
	}
	return sweep(ctx, stagingDir, "orphaned", logger, func(c candidate) ([]logging.Attr, bool) {
		id, ok := jobIDFromDir(c.name)
		if !ok {
			return nil, false
		}
		if _, ok := live[id]; ok {
			return nil, false
		}
		if minAge > 0 && time.Since(c.info.ModTime()) < minAge {
			return nil, false
		}
		return []logging.Attr{logging.JobID(id)}, true
	})
}

// sweep removes every directory under root that selects. Plain files are
// never touched and a missing root is an empty result.
func sweep(ctx context.Context, root, kind string, logger *slog.Logger, selects func(candidate) ([]logging.Attr, bool)) SweepResult {
	var result SweepResult
	root = strings.TrimSpace(root)
	if root == "" {
		return result
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, SweepError{Path: root, Error: err})
		}
		return result
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return result
		}
		if !entry.IsDir() {
			continue
		}
		c := candidate{name: entry.Name(), path: filepath.Join(root, entry.Name())}
		if c.info, err = entry.Info(); err != nil {
			result.Errors = append(result.Errors, SweepError{Path: c.path, Error: err})
			continue
		}
		attrs, ok := selects(c)
		if !ok {
			continue
		}

		if err := os.RemoveAll(c.path); err != nil {
			result.Errors = append(result.Errors, SweepError{Path: c.path, Error: err})
			logging.WarnWithContext(logger, "failed to remove "+kind+" staging directory", "staging_cleanup_failed",
				logging.String("path", c.path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, c.path)
		attrs = append(attrs,
			logging.String("path", c.path),
			logging.String("reason", kind),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		)
		logger.Info("removed staging directory", logging.Args(attrs...)...)
	}
	return result
}
