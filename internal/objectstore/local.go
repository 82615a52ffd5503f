package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"vodingest/internal/services"
)

// DiskStats reports capacity of the filesystem backing a LocalBucket.
type DiskStats struct {
	Total     int64
	Used      int64
	Available int64
}

// LocalBucket stores objects as files under a root directory.
type LocalBucket struct {
	root string
}

// NewLocalBucket returns a bucket rooted at dir.
func NewLocalBucket(dir string) *LocalBucket {
	return &LocalBucket{root: dir}
}

func (b *LocalBucket) Name() string { return "local" }

// Root returns the directory objects are stored under.
func (b *LocalBucket) Root() string { return b.root }

// Path maps a key to its file path.
func (b *LocalBucket) Path(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(b.root, filepath.FromSlash(key)), nil
}

// Put writes r to key through a temp file so readers never see partial objects.
func (b *LocalBucket) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	target, err := b.Path(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, services.Wrap(services.ErrTransient, component, "put", "create directory", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, component, "put", "create temp file", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	written, err := io.Copy(tmp, contextReader{ctx: ctx, r: r})
	if err != nil {
		cleanup()
		return written, err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return written, services.Wrap(services.ErrTransient, component, "put", "sync", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return written, services.Wrap(services.ErrTransient, component, "put", "close", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return written, services.Wrap(services.ErrTransient, component, "put", "chmod", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return written, services.Wrap(services.ErrTransient, component, "put", "rename", err)
	}
	return written, nil
}

func (b *LocalBucket) Open(_ context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	p, err := b.Path(key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, ObjectInfo{}, mapFSError("open", err)
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, ObjectInfo{}, mapFSError("stat", err)
	}
	if stat.IsDir() {
		_ = f.Close()
		return nil, ObjectInfo{}, ErrObjectNotFound
	}
	return f, infoFromStat(key, stat), nil
}

func (b *LocalBucket) Stat(_ context.Context, key string) (ObjectInfo, error) {
	p, err := b.Path(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	stat, err := os.Stat(p)
	if err != nil {
		return ObjectInfo{}, mapFSError("stat", err)
	}
	if stat.IsDir() {
		return ObjectInfo{}, ErrObjectNotFound
	}
	return infoFromStat(key, stat), nil
}

func (b *LocalBucket) Delete(_ context.Context, key string) error {
	p, err := b.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrTransient, component, "delete", key, err)
	}
	return nil
}

func (b *LocalBucket) DeletePrefix(_ context.Context, prefix string) error {
	p, err := b.Path(prefix)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(p); err != nil {
		return services.Wrap(services.ErrTransient, component, "delete prefix", prefix, err)
	}
	return nil
}

// Check ensures the root exists and is writable.
func (b *LocalBucket) Check(_ context.Context) error {
	if err := os.MkdirAll(b.root, 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}
	if err := unix.Access(b.root, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("storage dir %s not writable: %w", b.root, err)
	}
	return nil
}

// DiskUsage reports capacity of the filesystem holding the bucket.
func (b *LocalBucket) DiskUsage() (DiskStats, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(b.root, &stat); err != nil {
		return DiskStats{}, err
	}
	total := int64(stat.Blocks) * int64(stat.Bsize)
	available := int64(stat.Bavail) * int64(stat.Bsize)
	return DiskStats{
		Total:     total,
		Used:      total - available,
		Available: available,
	}, nil
}

func infoFromStat(key string, stat fs.FileInfo) ObjectInfo {
	return ObjectInfo{
		Key:         key,
		Size:        stat.Size(),
		ContentType: ContentTypeFor(key),
		ModTime:     stat.ModTime().UTC(),
	}
}

func mapFSError(op string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return ErrObjectNotFound
	}
	return services.Wrap(services.ErrTransient, component, op, "filesystem", err)
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
