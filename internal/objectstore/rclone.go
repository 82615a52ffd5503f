package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"vodingest/internal/logging"
	"vodingest/internal/services"
)

// rclone exit codes for a missing directory or file.
const (
	rcloneExitDirNotFound  = 3
	rcloneExitFileNotFound = 4
)

// RcloneConfig holds the settings for an rclone-backed bucket.
type RcloneConfig struct {
	Remote   string // e.g. "b2"
	BasePath string // e.g. "media-bucket/vod"
	Binary   string // default: "rclone"
}

// RcloneBucket implements Bucket with the rclone CLI.
type RcloneBucket struct {
	cfg    RcloneConfig
	logger *slog.Logger
}

// NewRcloneBucket returns a bucket over an already configured rclone remote.
func NewRcloneBucket(cfg RcloneConfig, logger *slog.Logger) *RcloneBucket {
	if cfg.Binary == "" {
		cfg.Binary = "rclone"
	}
	cfg.BasePath = strings.Trim(cfg.BasePath, "/")
	return &RcloneBucket{cfg: cfg, logger: logging.NewComponentLogger(logger, "rclone")}
}

func (b *RcloneBucket) Name() string { return "rclone" }

// Check validates that the rclone binary works and the remote is reachable.
func (b *RcloneBucket) Check(ctx context.Context) error {
	out, err := b.run(ctx, nil, "version")
	if err != nil {
		return fmt.Errorf("rclone binary not found or not working: %w", err)
	}
	version := strings.SplitN(string(out), "\n", 2)[0]
	b.logger.Debug("rclone binary found", logging.String("version", version))

	if _, err := b.run(ctx, nil, "lsd", b.remotePath("")); err != nil && !isRcloneNotFound(err) {
		return fmt.Errorf("rclone remote %q not accessible: %w", b.cfg.Remote, err)
	}
	return nil
}

// Put streams r into the remote object with rclone rcat.
func (b *RcloneBucket) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	if err := ValidateKey(key); err != nil {
		return 0, err
	}
	counter := &countingReader{r: contextReader{ctx: ctx, r: r}}
	start := time.Now()
	if _, err := b.run(ctx, counter, "rcat", b.remotePath(key)); err != nil {
		if counter.err != nil {
			return counter.n, counter.err
		}
		return counter.n, services.Wrap(services.ErrTransient, component, "put", "rclone rcat", err)
	}
	b.logger.Debug("rclone upload completed",
		logging.String("key", key),
		logging.Int64("bytes", counter.n),
		logging.Duration("duration", time.Since(start)),
	)
	return counter.n, nil
}

// Open streams the object with rclone cat. Closing the reader waits for the process.
func (b *RcloneBucket) Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	info, err := b.Stat(ctx, key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	cmd := exec.CommandContext(ctx, b.cfg.Binary, "cat", b.remotePath(key))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, ObjectInfo{}, fmt.Errorf("rclone cat pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, ObjectInfo{}, services.Wrap(services.ErrTransient, component, "open", "rclone cat start", err)
	}
	return &processReader{ReadCloser: stdout, cmd: cmd, stderr: &stderr}, info, nil
}

// rcloneLsjsonEntry represents a single entry from rclone lsjson output.
type rcloneLsjsonEntry struct {
	Path    string `json:"Path"`
	Name    string `json:"Name"`
	Size    int64  `json:"Size"`
	IsDir   bool   `json:"IsDir"`
	ModTime string `json:"ModTime"`
}

func (b *RcloneBucket) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	if err := ValidateKey(key); err != nil {
		return ObjectInfo{}, err
	}
	out, err := b.run(ctx, nil, "lsjson", "--stat", b.remotePath(key))
	if err != nil {
		if isRcloneNotFound(err) {
			return ObjectInfo{}, ErrObjectNotFound
		}
		return ObjectInfo{}, services.Wrap(services.ErrTransient, component, "stat", "rclone lsjson", err)
	}
	var entry rcloneLsjsonEntry
	if err := json.Unmarshal(out, &entry); err != nil {
		return ObjectInfo{}, fmt.Errorf("parse rclone lsjson output: %w", err)
	}
	if entry.IsDir {
		return ObjectInfo{}, ErrObjectNotFound
	}
	info := ObjectInfo{Key: key, Size: entry.Size, ContentType: ContentTypeFor(key)}
	if ts, err := time.Parse(time.RFC3339Nano, entry.ModTime); err == nil {
		info.ModTime = ts.UTC()
	}
	return info, nil
}

func (b *RcloneBucket) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if _, err := b.run(ctx, nil, "deletefile", b.remotePath(key)); err != nil && !isRcloneNotFound(err) {
		return services.Wrap(services.ErrTransient, component, "delete", "rclone deletefile", err)
	}
	return nil
}

func (b *RcloneBucket) DeletePrefix(ctx context.Context, prefix string) error {
	if err := ValidateKey(prefix); err != nil {
		return err
	}
	if _, err := b.run(ctx, nil, "purge", b.remotePath(prefix)); err != nil && !isRcloneNotFound(err) {
		return services.Wrap(services.ErrTransient, component, "delete prefix", "rclone purge", err)
	}
	return nil
}

// remotePath builds the full rclone remote path for a key.
func (b *RcloneBucket) remotePath(key string) string {
	base := b.cfg.Remote + ":" + b.cfg.BasePath
	if key != "" {
		if b.cfg.BasePath != "" {
			base += "/"
		}
		base += key
	}
	return base
}

// rcloneError keeps the exit code so callers can tell "not found" from failure.
type rcloneError struct {
	code   int
	err    error
	stderr string
}

func (e *rcloneError) Error() string {
	return fmt.Sprintf("%s (stderr: %s)", e.err, e.stderr)
}

func (e *rcloneError) Unwrap() error { return e.err }

func isRcloneNotFound(err error) bool {
	var rerr *rcloneError
	if !errors.As(err, &rerr) {
		return false
	}
	if rerr.code == rcloneExitDirNotFound || rerr.code == rcloneExitFileNotFound {
		return true
	}
	msg := strings.ToLower(rerr.stderr)
	return strings.Contains(msg, "not found")
}

// run executes an rclone command and returns stdout.
func (b *RcloneBucket) run(ctx context.Context, stdin io.Reader, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, b.cfg.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		stderrStr := strings.TrimSpace(stderr.String())
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &rcloneError{code: code, err: err, stderr: stderrStr}
	}
	b.logger.Debug("rclone command completed",
		logging.Any("args", args),
		logging.Duration("duration", time.Since(start)),
	)
	return stdout.Bytes(), nil
}

type countingReader struct {
	r   io.Reader
	n   int64
	err error
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if err != nil && err != io.EOF {
		c.err = err
	}
	return n, err
}

type processReader struct {
	io.ReadCloser
	cmd    *exec.Cmd
	stderr *bytes.Buffer
}

func (p *processReader) Close() error {
	_ = p.ReadCloser.Close()
	if err := p.cmd.Wait(); err != nil {
		return fmt.Errorf("rclone cat: %s (stderr: %s)", err, strings.TrimSpace(p.stderr.String()))
	}
	return nil
}
