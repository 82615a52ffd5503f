package objectstore

import (
	"mime"
	"path"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"vodingest/internal/config"
	"vodingest/internal/ingest"
	"vodingest/internal/services"
)

// Policy restricts what may be uploaded for one file type.
type Policy struct {
	FileType     ingest.FileType
	MaxBytes     int64
	Extensions   []string
	ContentTypes []string
}

var (
	videoExtensions   = []string{".mp4", ".m4v", ".mov", ".mkv", ".webm", ".avi"}
	videoContentTypes = []string{"video/mp4", "video/x-m4v", "video/quicktime", "video/x-matroska", "video/webm", "video/x-msvideo"}
	imageExtensions   = []string{".jpg", ".jpeg", ".png", ".gif"}
	imageContentTypes = []string{"image/jpeg", "image/png", "image/gif"}
)

// Policies maps each file type to its upload policy.
type Policies map[ingest.FileType]Policy

// PoliciesFromConfig builds the policy table using the configured size ceilings.
func PoliciesFromConfig(cfg *config.Config) Policies {
	return Policies{
		ingest.FileTypeVideo: {
			FileType:     ingest.FileTypeVideo,
			MaxBytes:     cfg.MaxBytesFor(string(ingest.FileTypeVideo)),
			Extensions:   videoExtensions,
			ContentTypes: videoContentTypes,
		},
		ingest.FileTypePoster: {
			FileType:     ingest.FileTypePoster,
			MaxBytes:     cfg.MaxBytesFor(string(ingest.FileTypePoster)),
			Extensions:   imageExtensions,
			ContentTypes: imageContentTypes,
		},
		ingest.FileTypeAvatar: {
			FileType:     ingest.FileTypeAvatar,
			MaxBytes:     cfg.MaxBytesFor(string(ingest.FileTypeAvatar)),
			Extensions:   imageExtensions,
			ContentTypes: imageContentTypes,
		},
	}
}

// For returns the policy of a file type.
func (p Policies) For(fileType ingest.FileType) (Policy, error) {
	policy, ok := p[fileType]
	if !ok {
		return Policy{}, services.Invalid("fileType", "file type %q is not one of video, poster, avatar", fileType)
	}
	return policy, nil
}

// ForKey resolves the policy from a key's leading namespace segment.
func (p Policies) ForKey(key string) (Policy, error) {
	namespace, _, _ := strings.Cut(key, "/")
	for _, policy := range p {
		if policy.FileType.Plural() == namespace {
			return policy, nil
		}
	}
	return Policy{}, services.Invalid("key", "object key %q is outside any upload namespace", key)
}

// Check validates a declared upload against the policy.
func (p Policy) Check(filename, contentType string, size int64) error {
	if strings.TrimSpace(filename) == "" {
		return services.Invalid("filename", "filename is required")
	}
	ext := strings.ToLower(path.Ext(filename))
	if !slices.Contains(p.Extensions, ext) {
		return services.Invalid("filename", "extension %q is not allowed for %s uploads (allowed: %s)",
			ext, p.FileType, strings.Join(p.Extensions, ", "))
	}
	if err := p.CheckContentType(contentType); err != nil {
		return err
	}
	return p.CheckSize(size)
}

// CheckContentType accepts the MIME types the policy allows, ignoring parameters.
func (p Policy) CheckContentType(contentType string) error {
	mediaType := NormalizeContentType(contentType)
	if mediaType == "" {
		return services.Invalid("contentType", "content type is required")
	}
	if !slices.Contains(p.ContentTypes, mediaType) {
		return services.Invalid("contentType", "content type %q is not allowed for %s uploads", mediaType, p.FileType)
	}
	return nil
}

// CheckSize rejects empty and oversize uploads.
func (p Policy) CheckSize(size int64) error {
	if size <= 0 {
		return services.Invalid("fileSize", "file size must be positive")
	}
	if p.MaxBytes > 0 && size > p.MaxBytes {
		return services.Invalid("fileSize", "%s exceeds the %s limit for %s uploads",
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(p.MaxBytes)), p.FileType)
	}
	return nil
}

// NormalizeContentType lowercases the media type and drops parameters.
func NormalizeContentType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(contentType)
	}
	return mediaType
}
