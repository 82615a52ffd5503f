package objectstore

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"vodingest/internal/services"
)

const component = "objectstore"

// ErrObjectNotFound is returned when a key has no object.
var ErrObjectNotFound = fmt.Errorf("%w: objectstore: object not found", services.ErrNotFound)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// Bucket is a flat key/value object store. Keys are slash-separated.
type Bucket interface {
	Name() string
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// Delete removes one object. A missing object is not an error.
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every object under prefix. A missing prefix is not an error.
	DeletePrefix(ctx context.Context, prefix string) error
	Check(ctx context.Context) error
}

// ValidateKey rejects keys that could escape the bucket root.
func ValidateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return services.Invalid("key", "object key is required")
	case strings.HasPrefix(key, "/"), strings.Contains(key, "\\"):
		return services.Invalid("key", "object key %q must be a relative slash-separated path", key)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return services.Invalid("key", "object key %q has an empty or relative segment", key)
		}
	}
	return nil
}

// ContentTypeFor guesses a content type from the key's extension.
func ContentTypeFor(key string) string {
	ext := strings.ToLower(path.Ext(key))
	switch ext {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".m4s":
		return "video/iso.segment"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
