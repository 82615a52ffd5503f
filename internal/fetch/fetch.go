package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"vodingest/internal/config"
	"vodingest/internal/ingest"
	"vodingest/internal/logging"
	"vodingest/internal/objectstore"
	"vodingest/internal/services"
	"vodingest/internal/stage"
)

const component = "fetch"

// ProgressFunc receives download progress in percent (0-100).
type ProgressFunc func(percent float64)

// Result describes the fetched source on local disk.
type Result struct {
	Path  string
	Bytes int64
	// Method names how the bytes were obtained: upload, http or ytdlp.
	Method string
}

// Opener reads uploaded objects. objectstore.Gateway satisfies it.
type Opener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, objectstore.ObjectInfo, error)
}

// Options configures a Fetcher.
type Options struct {
	YtDlpBinary string
	YtDlpFormat string
	// YtDlpHosts lists hosts (and their subdomains) fetched through yt-dlp.
	YtDlpHosts []string
	// AllowPrivateNetworks disables the public-address check on direct
	// downloads. It has no effect when HTTPClient is supplied.
	AllowPrivateNetworks bool
	HTTPClient           *http.Client
	Logger               *slog.Logger
}

// Fetcher retrieves job sources into a staging directory.
type Fetcher struct {
	uploads Opener
	opts    Options
	logger  *slog.Logger
}

// New returns a Fetcher.
func New(uploads Opener, opts Options) *Fetcher {
	if opts.YtDlpBinary == "" {
		opts.YtDlpBinary = "yt-dlp"
	}
	if opts.HTTPClient == nil {
		dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
		if !opts.AllowPrivateNetworks {
			dialer.Control = refusePrivateAddress
		}
		opts.HTTPClient = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				ResponseHeaderTimeout: 30 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
			},
		}
	}
	return &Fetcher{
		uploads: uploads,
		opts:    opts,
		logger:  logging.NewComponentLogger(opts.Logger, component),
	}
}

// NewFromConfig returns a Fetcher configured from cfg.
func NewFromConfig(cfg *config.Config, uploads Opener, logger *slog.Logger) *Fetcher {
	return New(uploads, Options{
		YtDlpBinary:          cfg.Tools.YtDlp,
		YtDlpFormat:          cfg.Tools.YtDlpFormat,
		YtDlpHosts:           cfg.Tools.YtDlpHosts,
		AllowPrivateNetworks: cfg.Tools.AllowPrivateNetworks,
		Logger:               logger,
	})
}

// Fetch copies the job's source into destDir. Oversize sources, missing
// uploads and rejected URLs fail permanently; network trouble is transient.
func (f *Fetcher) Fetch(ctx context.Context, job *ingest.Job, destDir string, progress ProgressFunc) (Result, error) {
	if progress == nil {
		progress = func(float64) {}
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrTransient, component, "prepare", "create staging dir", err)
	}
	if err := job.Source.Validate(); err != nil {
		return Result{}, err
	}

	logger := logging.WithContext(ctx, f.logger)
	var (
		res Result
		err error
	)
	switch job.Source.Kind {
	case ingest.SourceUpload:
		res, err = f.fetchUpload(ctx, job, destDir, progress)
	case ingest.SourceRemoteURL:
		if f.useYtDlp(job.Source) {
			res, err = f.fetchYtDlp(ctx, job, destDir, progress)
		} else {
			res, err = f.fetchHTTP(ctx, job, destDir, progress)
		}
	default:
		return Result{}, services.Invalid("sourceKind", "unsupported source kind %q", job.Source.Kind)
	}
	if err != nil {
		return Result{}, err
	}
	progress(100)
	logger.Info("source fetched",
		logging.String("method", res.Method),
		logging.String("size", humanize.IBytes(uint64(res.Bytes))),
		logging.String(logging.FieldEventType, "fetch_complete"),
	)
	return res, nil
}

func (f *Fetcher) useYtDlp(src ingest.Source) bool {
	if src.RemoteVideoID != "" {
		return true
	}
	host := src.Host()
	for _, h := range f.opts.YtDlpHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// HealthCheck reports whether yt-dlp is available for remote video hosts.
func (f *Fetcher) HealthCheck(context.Context) stage.Health {
	if len(f.opts.YtDlpHosts) == 0 {
		return stage.Healthy(component)
	}
	if _, err := exec.LookPath(f.opts.YtDlpBinary); err != nil {
		return stage.Unhealthy(component, fmt.Sprintf("binary %q not found", f.opts.YtDlpBinary))
	}
	return stage.Healthy(component)
}

func oversize(size, limit int64) error {
	return services.Wrap(services.ErrFatal, component, "size check",
		fmt.Sprintf("source is %s, limit is %s", humanize.IBytes(uint64(size)), humanize.IBytes(uint64(limit))), nil)
}

// copyWithProgress streams src into path, reporting against total when known
// and failing once limit is passed.
func copyWithProgress(ctx context.Context, src io.Reader, path string, total, limit int64, progress ProgressFunc) (int64, error) {
	out, err := os.Create(path)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, component, "copy", "create staging file", err)
	}
	defer out.Close()

	buf := make([]byte, 256*1024)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return written, services.Wrap(services.ErrTransient, component, "copy", "write staging file", err)
			}
			written += int64(n)
			if limit > 0 && written > limit {
				return written, oversize(written, limit)
			}
			if total > 0 {
				progress(float64(written) * 100 / float64(total))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return written, readErr
		}
	}
	if err := out.Close(); err != nil {
		return written, services.Wrap(services.ErrTransient, component, "copy", "close staging file", err)
	}
	return written, nil
}

// sourceName picks a staging file name keeping a known media extension.
func sourceName(candidate string) string {
	ext := strings.ToLower(filepath.Ext(candidate))
	if ext == "" || len(ext) > 6 || !slices.Contains(knownExtensions, ext) {
		return "source"
	}
	return "source" + ext
}

var knownExtensions = []string{".mp4", ".m4v", ".mov", ".mkv", ".webm", ".avi", ".jpg", ".jpeg", ".png", ".gif"}
