package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"vodingest/internal/config"
	"vodingest/internal/ingest"
	"vodingest/internal/logging"
	"vodingest/internal/services"
)

const (
	defaultUploadTTL = 15 * time.Minute
	maxUploadTTL     = 24 * time.Hour
	uploadRoute      = "/uploads/"
)

// Options configures a Gateway.
type Options struct {
	// PublicBaseURL prefixes keys to form public file URLs.
	PublicBaseURL string
	// UploadBaseURL is where the upload sink is served; tokens are appended
	// under /uploads/.
	UploadBaseURL string
	UploadTTL     time.Duration
	Policies      Policies
	Clock         func() time.Time
	Logger        *slog.Logger
}

// Gateway applies upload policy and credentials on top of a Bucket.
type Gateway struct {
	bucket Bucket
	signer *Signer
	opts   Options
	logger *slog.Logger
}

// UploadTicket is a time-boxed credential for a direct upload.
type UploadTicket struct {
	UploadURL string
	FileURL   string
	Key       string
	ExpiresAt time.Time
	ExpiresIn time.Duration
}

// UploadRequest is a caller's declaration of a file it wants to upload.
type UploadRequest struct {
	Filename    string
	FileSize    int64
	FileType    ingest.FileType
	ContentType string
	TargetName  string
}

// New returns a Gateway.
func New(bucket Bucket, signer *Signer, opts Options) *Gateway {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.UploadTTL <= 0 {
		opts.UploadTTL = defaultUploadTTL
	}
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")
	opts.UploadBaseURL = strings.TrimRight(opts.UploadBaseURL, "/")
	return &Gateway{
		bucket: bucket,
		signer: signer,
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, component),
	}
}

// NewFromConfig builds the configured bucket and a Gateway over it.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	var bucket Bucket
	switch cfg.Storage.Backend {
	case config.StorageBackendLocal:
		bucket = NewLocalBucket(cfg.Paths.StorageDir)
	case config.StorageBackendRclone:
		bucket = NewRcloneBucket(RcloneConfig{
			Remote:   cfg.Storage.RcloneRemote,
			BasePath: cfg.Storage.RcloneBasePath,
			Binary:   cfg.Storage.RcloneBinary,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
	return New(bucket, NewSigner(cfg.Storage.SigningSecret, nil), Options{
		PublicBaseURL: cfg.Storage.PublicBaseURL,
		UploadBaseURL: cfg.API.PublicURL,
		UploadTTL:     cfg.UploadTTL(),
		Policies:      PoliciesFromConfig(cfg),
		Logger:        logger,
	}), nil
}

// Bucket exposes the underlying store.
func (g *Gateway) Bucket() Bucket { return g.bucket }

// Policies returns the upload policy table.
func (g *Gateway) Policies() Policies { return g.opts.Policies }

// ResolveKey derives a fresh key for an upload at the current time.
func (g *Gateway) ResolveKey(ownerID string, fileType ingest.FileType, filename, targetName string) string {
	return ResolveKey(ownerID, fileType, filename, targetName, g.opts.Clock())
}

// RequestUpload issues a credential to upload at most maxSize bytes of
// contentType to key, valid for ttl (zero uses the configured default).
func (g *Gateway) RequestUpload(ctx context.Context, key, contentType string, maxSize int64, ttl time.Duration) (UploadTicket, error) {
	if err := ctx.Err(); err != nil {
		return UploadTicket{}, err
	}
	if err := ValidateKey(key); err != nil {
		return UploadTicket{}, err
	}
	policy, err := g.opts.Policies.ForKey(key)
	if err != nil {
		return UploadTicket{}, err
	}
	if err := policy.CheckContentType(contentType); err != nil {
		return UploadTicket{}, err
	}
	if err := policy.CheckSize(maxSize); err != nil {
		return UploadTicket{}, err
	}
	if ttl <= 0 {
		ttl = g.opts.UploadTTL
	}
	if ttl > maxUploadTTL {
		return UploadTicket{}, services.Invalid("ttl", "upload credentials may live at most %s", maxUploadTTL)
	}

	expires := g.opts.Clock().Add(ttl).Truncate(time.Second)
	token := g.signer.Sign(UploadGrant{
		Key:         key,
		ContentType: NormalizeContentType(contentType),
		MaxBytes:    maxSize,
		ExpiresAt:   expires,
	})
	return UploadTicket{
		UploadURL: g.opts.UploadBaseURL + uploadRoute + token,
		FileURL:   g.FileURL(key),
		Key:       key,
		ExpiresAt: expires,
		ExpiresIn: ttl,
	}, nil
}

// Authorize validates a caller's declared upload, derives its key and issues
// a credential.
func (g *Gateway) Authorize(ctx context.Context, ownerID string, req UploadRequest) (UploadTicket, error) {
	if strings.TrimSpace(ownerID) == "" {
		return UploadTicket{}, services.Invalid("ownerId", "owner is required")
	}
	policy, err := g.opts.Policies.For(req.FileType)
	if err != nil {
		return UploadTicket{}, err
	}
	if err := policy.Check(req.Filename, req.ContentType, req.FileSize); err != nil {
		return UploadTicket{}, err
	}
	key := g.ResolveKey(ownerID, req.FileType, req.Filename, req.TargetName)
	return g.RequestUpload(ctx, key, req.ContentType, req.FileSize, 0)
}

// AcceptUpload verifies token and stores body under the key it grants. Bodies
// larger than the signed size are rejected and nothing is kept.
func (g *Gateway) AcceptUpload(ctx context.Context, token, contentType string, body io.Reader) (ObjectInfo, error) {
	grant, err := g.signer.Verify(token)
	if err != nil {
		return ObjectInfo{}, err
	}
	if got := NormalizeContentType(contentType); got != "" && got != grant.ContentType {
		return ObjectInfo{}, services.Invalid("contentType", "upload content type %q does not match the credential (%s)", got, grant.ContentType)
	}

	limited := &capReader{r: body, remaining: grant.MaxBytes}
	written, err := g.bucket.Put(ctx, grant.Key, limited)
	if limited.exceeded {
		_ = g.bucket.Delete(context.WithoutCancel(ctx), grant.Key)
		return ObjectInfo{}, services.Invalid("fileSize", "upload exceeds the %s granted", humanize.IBytes(uint64(grant.MaxBytes)))
	}
	if err != nil {
		return ObjectInfo{}, err
	}
	g.logger.Info("upload stored",
		logging.String("key", grant.Key),
		logging.String("size", humanize.IBytes(uint64(written))),
		logging.String(logging.FieldEventType, "upload_stored"),
	)
	return ObjectInfo{Key: grant.Key, Size: written, ContentType: grant.ContentType, ModTime: g.opts.Clock().UTC()}, nil
}

// Delete removes key. Deleting a missing key succeeds.
func (g *Gateway) Delete(ctx context.Context, key string) error {
	return g.bucket.Delete(ctx, key)
}

// DeletePrefix removes everything under prefix.
func (g *Gateway) DeletePrefix(ctx context.Context, prefix string) error {
	return g.bucket.DeletePrefix(ctx, prefix)
}

// Exists reports whether key holds an object.
func (g *Gateway) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.bucket.Stat(ctx, key)
	if errors.Is(err, ErrObjectNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Stat describes the object at key.
func (g *Gateway) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	return g.bucket.Stat(ctx, key)
}

// Open streams the object at key.
func (g *Gateway) Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	return g.bucket.Open(ctx, key)
}

// PublishDir uploads every regular file below localDir under prefix and
// returns the keys written, in walk order.
func (g *Gateway) PublishDir(ctx context.Context, localDir, prefix string) ([]string, error) {
	if err := ValidateKey(prefix); err != nil {
		return nil, err
	}
	var keys []string
	err := filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		key := path.Join(prefix, filepath.ToSlash(rel))
		if err := g.PublishFile(ctx, p, key); err != nil {
			return err
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return keys, err
	}
	return keys, nil
}

// PublishFile uploads one local file to key.
func (g *Gateway) PublishFile(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return services.Wrap(services.ErrFatal, component, "publish", "open artifact", err)
	}
	defer f.Close()
	if _, err := g.bucket.Put(ctx, key, f); err != nil {
		return err
	}
	return nil
}

// FileURL returns the public URL for key.
func (g *Gateway) FileURL(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return g.opts.PublicBaseURL + "/" + strings.Join(segments, "/")
}

// Check verifies the bucket is usable.
func (g *Gateway) Check(ctx context.Context) error {
	return g.bucket.Check(ctx)
}

// capReader fails once more than remaining bytes have been read.
type capReader struct {
	r         io.Reader
	remaining int64
	exceeded  bool
}

var errUploadTooLarge = errors.New("upload exceeds granted size")

func (c *capReader) Read(p []byte) (int, error) {
	if c.remaining < 0 {
		c.exceeded = true
		return 0, errUploadTooLarge
	}
	if int64(len(p)) > c.remaining+1 {
		p = p[:c.remaining+1]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		c.exceeded = true
		return n, errUploadTooLarge
	}
	return n, err
}
