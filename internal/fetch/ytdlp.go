package fetch

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"vodingest/internal/ingest"
	"vodingest/internal/logging"
	"vodingest/internal/services"
	"vodingest/internal/stage"
)

var progressRe = regexp.MustCompile(`\[download\]\s+(\d+\.?\d*)%`)

// ytdlpArgs builds the download command line.
func (f *Fetcher) ytdlpArgs(job *ingest.Job, destDir string) []string {
	args := []string{
		"--no-warnings",
		"--newline",
		"--progress",
		"--no-playlist",
		"--no-part",
		"-o", filepath.Join(destDir, "source.%(ext)s"),
	}
	if f.opts.YtDlpFormat != "" {
		args = append(args, "-f", f.opts.YtDlpFormat, "--merge-output-format", "mp4")
	}
	if job.Policy.MaxBytes > 0 {
		args = append(args, "--max-filesize", strconv.FormatInt(job.Policy.MaxBytes, 10))
	}
	return append(args, job.Source.URL)
}

func (f *Fetcher) fetchYtDlp(ctx context.Context, job *ingest.Job, destDir string, progress ProgressFunc) (Result, error) {
	logger := logging.WithContext(ctx, f.logger)
	cmd := exec.CommandContext(ctx, f.opts.YtDlpBinary, f.ytdlpArgs(job, destDir)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransient, component, "yt-dlp", "pipe", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, component, "yt-dlp", "start "+f.opts.YtDlpBinary, err)
	}

	var (
		lastError string
		skipped   bool
	)
	sampler := logging.NewProgressSampler(25)
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if pct, ok := parseProgressLine(line); ok {
			progress(pct)
			if sampler.ShouldLog(int(pct), "download") {
				logger.Debug("yt-dlp progress", logging.Int("percent", int(pct)))
			}
		}
		if strings.HasPrefix(line, "ERROR:") {
			lastError = strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
		}
		if strings.Contains(line, "File is larger than max-filesize") {
			skipped = true
		}
	}

	if err := cmd.Wait(); err != nil {
		return Result{}, stage.ToolFailure(ctx, component, "yt-dlp", lastError, err)
	}
	if skipped {
		return Result{}, oversize(job.Policy.MaxBytes+1, job.Policy.MaxBytes)
	}

	path, size, err := findDownloaded(destDir)
	if err != nil {
		return Result{}, err
	}
	if job.Policy.MaxBytes > 0 && size > job.Policy.MaxBytes {
		return Result{}, oversize(size, job.Policy.MaxBytes)
	}
	return Result{Path: path, Bytes: size, Method: "ytdlp"}, nil
}

func parseProgressLine(line string) (float64, bool) {
	matches := progressRe.FindStringSubmatch(line)
	if len(matches) < 2 {
		return 0, false
	}
	pct, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, false
	}
	return pct, true
}

// findDownloaded locates the merged output yt-dlp wrote as source.<ext>.
func findDownloaded(destDir string) (string, int64, error) {
	matches, err := filepath.Glob(filepath.Join(destDir, "source.*"))
	if err != nil {
		return "", 0, services.Wrap(services.ErrTransient, component, "yt-dlp", "scan output", err)
	}
	var (
		best     string
		bestSize int64 = -1
	)
	for _, m := range matches {
		if strings.HasSuffix(m, ".part") || strings.HasSuffix(m, ".ytdl") {
			continue
		}
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Size() > bestSize {
			best, bestSize = m, info.Size()
		}
	}
	if best == "" {
		return "", 0, services.Wrap(services.ErrExternalTool, component, "yt-dlp", "yt-dlp exited without producing a file", nil)
	}
	return best, bestSize, nil
}
