package transcode

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"vodingest/internal/logging"
	"vodingest/internal/media/ffprobe"
	"vodingest/internal/services"
	"vodingest/internal/stage"
)

const stderrTail = 4096

func (p *Processor) ffmpegArgs(src, outDir string) []string {
	return []string{
		"-hide_banner", "-nostdin", "-y",
		"-loglevel", "error",
		"-i", src,
		"-map", "0:v:0", "-map", "0:a:0?",
		"-c:v", "libx264", "-preset", "veryfast", "-profile:v", "main", "-pix_fmt", "yuv420p",
		"-c:a", "aac", "-b:a", "128k", "-ac", "2",
		"-f", "hls",
		"-hls_time", strconv.Itoa(p.opts.SegmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_flags", "independent_segments",
		"-hls_segment_filename", filepath.Join(outDir, "segment_%05d.ts"),
		"-progress", "pipe:1", "-nostats",
		filepath.Join(outDir, PlaylistName),
	}
}

func (p *Processor) processVideo(ctx context.Context, src, outDir string, progress ProgressFunc) (Artifact, error) {
	logger := logging.WithContext(ctx, p.logger)
	probe, err := ffprobe.Inspect(ctx, p.opts.FFprobeBinary, src)
	if err != nil {
		return Artifact{}, err
	}
	if err := probe.RequireVideo(); err != nil {
		return Artifact{}, err
	}
	duration := probe.DurationSeconds()

	cmd := exec.CommandContext(ctx, p.opts.FFmpegBinary, p.ffmpegArgs(src, outDir)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Artifact{}, services.Wrap(services.ErrTransient, component, "ffmpeg", "pipe", err)
	}
	stderr := &tailBuffer{limit: stderrTail}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return Artifact{}, services.Wrap(services.ErrExternalTool, component, "ffmpeg", "start "+p.opts.FFmpegBinary, err)
	}

	sampler := logging.NewProgressSampler(25)
	parseProgress(stdout, duration, func(pct float64) {
		progress(pct)
		if sampler.ShouldLog(int(pct), "transcode") {
			logger.Debug("ffmpeg progress", logging.Int("percent", int(pct)))
		}
	})

	if err := cmd.Wait(); err != nil {
		return Artifact{}, stage.ToolFailure(ctx, component, "ffmpeg", stderr.String(), err)
	}
	if err := verifyPlaylist(outDir); err != nil {
		return Artifact{}, err
	}
	return Artifact{Entry: PlaylistName, DurationSeconds: duration}, nil
}

// parseProgress reads ffmpeg -progress key=value blocks. out_time_us (and the
// misnamed out_time_ms, also microseconds) is scaled against duration.
func parseProgress(r io.Reader, duration float64, report func(float64)) {
	scanner := bufio.NewScanner(r)
	last := -1.0
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			if duration <= 0 {
				continue
			}
			micros, err := strconv.ParseInt(value, 10, 64)
			if err != nil || micros < 0 {
				continue
			}
			pct := float64(micros) / 1e6 / duration * 100
			if pct > 99 {
				pct = 99
			}
			if pct > last {
				last = pct
				report(pct)
			}
		case "progress":
			if value == "end" {
				report(100)
			}
		}
	}
	_, _ = io.Copy(io.Discard, r)
}

// verifyPlaylist checks ffmpeg left a non-empty playlist referencing at least
// one segment that exists.
func verifyPlaylist(outDir string) error {
	data, err := os.ReadFile(filepath.Join(outDir, PlaylistName))
	if err != nil {
		return services.Wrap(services.ErrExternalTool, component, "verify", "ffmpeg produced no playlist", err)
	}
	segments := 0
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := os.Stat(filepath.Join(outDir, filepath.Base(line))); err != nil {
			return services.Wrap(services.ErrExternalTool, component, "verify",
				fmt.Sprintf("playlist references missing segment %s", line), err)
		}
		segments++
	}
	if segments == 0 {
		return services.Wrap(services.ErrExternalTool, component, "verify", "playlist has no segments", nil)
	}
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(t.buf.String())
}
