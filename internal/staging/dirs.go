package staging

import (
	"os"
	"path/filepath"
	"strings"

	"vodingest/internal/textutil"
)

const jobDirPrefix = "job-"

// JobDir returns the scratch directory for a job.
func JobDir(root, jobID string) string {
	return filepath.Join(root, jobDirPrefix+textutil.SanitizeToken(jobID))
}

// SourceDir is where the fetched source lands.
func SourceDir(root, jobID string) string {
	return filepath.Join(JobDir(root, jobID), "source")
}

// OutputDir is where the transcoder writes artifacts.
func OutputDir(root, jobID string) string {
	return filepath.Join(JobDir(root, jobID), "out")
}

// Remove deletes a job's scratch directory. A missing directory is fine.
func Remove(root, jobID string) error {
	err := os.RemoveAll(JobDir(root, jobID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// jobIDFromDir reverses JobDir for directory names it produced.
func jobIDFromDir(name string) (string, bool) {
	if !strings.HasPrefix(name, jobDirPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(name, jobDirPrefix)
	return id, id != ""
}
