package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"vodingest/internal/config"
	"vodingest/internal/ingest"
	"vodingest/internal/logging"
	"vodingest/internal/services"
	"vodingest/internal/stage"
)

const component = "transcode"

// PlaylistName is the entry file of a video artifact.
const PlaylistName = "index.m3u8"

// ProgressFunc receives processing progress in percent (0-100).
type ProgressFunc func(percent float64)

// Artifact lists what Process wrote into its output directory.
type Artifact struct {
	Dir string
	// Entry is the file a player or <img> tag should reference, relative to Dir.
	Entry string
	// Files are all produced files relative to Dir, sorted.
	Files []string
	// DurationSeconds is set for video artifacts.
	DurationSeconds float64
}

// Options configures a Processor.
type Options struct {
	FFmpegBinary   string
	FFprobeBinary  string
	SegmentSeconds int
	// MaxImagePixels bounds width*height of accepted images.
	MaxImagePixels int
	Logger         *slog.Logger
}

// Processor converts fetched sources into artifacts.
type Processor struct {
	opts   Options
	logger *slog.Logger
}

// New returns a Processor.
func New(opts Options) *Processor {
	if opts.FFmpegBinary == "" {
		opts.FFmpegBinary = "ffmpeg"
	}
	if opts.FFprobeBinary == "" {
		opts.FFprobeBinary = "ffprobe"
	}
	if opts.SegmentSeconds <= 0 {
		opts.SegmentSeconds = 6
	}
	if opts.MaxImagePixels <= 0 {
		opts.MaxImagePixels = 64 << 20
	}
	return &Processor{opts: opts, logger: logging.NewComponentLogger(opts.Logger, component)}
}

// NewFromConfig returns a Processor configured from cfg.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Processor {
	return New(Options{
		FFmpegBinary:   cfg.Tools.FFmpeg,
		FFprobeBinary:  cfg.Tools.FFprobe,
		SegmentSeconds: cfg.Tools.HLSSegmentSeconds,
		Logger:         logger,
	})
}

// Process converts src into outDir according to the job's file type. Any
// previous content of outDir is discarded so a redelivered job starts clean.
func (p *Processor) Process(ctx context.Context, job *ingest.Job, src, outDir string, progress ProgressFunc) (Artifact, error) {
	if progress == nil {
		progress = func(float64) {}
	}
	if err := os.RemoveAll(outDir); err != nil {
		return Artifact{}, services.Wrap(services.ErrTransient, component, "prepare", "reset output dir", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Artifact{}, services.Wrap(services.ErrTransient, component, "prepare", "create output dir", err)
	}

	var (
		art Artifact
		err error
	)
	switch {
	case job.FileType == ingest.FileTypeVideo:
		art, err = p.processVideo(ctx, src, outDir, progress)
	case job.FileType.IsImage():
		art, err = p.processImage(ctx, job.FileType, src, outDir)
	default:
		return Artifact{}, services.Invalid("fileType", "unsupported file type %q", job.FileType)
	}
	if err != nil {
		return Artifact{}, err
	}
	files, err := listFiles(outDir)
	if err != nil {
		return Artifact{}, services.Wrap(services.ErrTransient, component, "collect", "list output", err)
	}
	art.Dir = outDir
	art.Files = files
	progress(100)

	logging.WithContext(ctx, p.logger).Info("artifact ready",
		logging.String("entry", art.Entry),
		logging.Int("files", len(files)),
		logging.String(logging.FieldEventType, "process_complete"),
	)
	return art, nil
}

// HealthCheck reports whether ffmpeg and ffprobe are on PATH.
func (p *Processor) HealthCheck(context.Context) stage.Health {
	for _, bin := range []string{p.opts.FFmpegBinary, p.opts.FFprobeBinary} {
		if _, err := exec.LookPath(bin); err != nil {
			return stage.Unhealthy(component, fmt.Sprintf("binary %q not found", bin))
		}
	}
	return stage.Healthy(component)
}

func listFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(files)
	return files, err
}
