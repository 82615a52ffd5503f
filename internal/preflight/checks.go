package preflight

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// rcloneTimeout bounds the remote listing used to prove credentials work.
const rcloneTimeout = 15 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckRcloneRemote lists the top level of the configured remote to verify
// the binary runs and the remote's credentials are accepted.
func CheckRcloneRemote(ctx context.Context, binary, remote, basePath string) Result {
	const name = "Rclone remote"

	remote = strings.TrimSuffix(strings.TrimSpace(remote), ":")
	if remote == "" {
		return Result{Name: name, Detail: "missing remote"}
	}
	if strings.TrimSpace(binary) == "" {
		binary = "rclone"
	}
	target := remote + ":" + strings.Trim(basePath, "/")

	checkCtx, cancel := context.WithTimeout(ctx, rcloneTimeout)
	defer cancel()

	cmd := exec.CommandContext(checkCtx, binary, "lsf", "--max-depth", "1", target)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(checkCtx.Err(), context.DeadlineExceeded) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (listing timed out)", target)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (%s)", target, summarizeOutput(output, err))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (reachable)", target)}
}

// CheckPublicURL verifies the base URL artifacts are published under is an
// absolute http(s) URL.
func CheckPublicURL(name, raw string) Result {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", raw, err)}
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: must be an absolute http or https url)", raw)}
	}
	return Result{Name: name, Passed: true, Detail: raw}
}

func summarizeOutput(output []byte, err error) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return err.Error()
	}
	return last
}
