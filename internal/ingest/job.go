package ingest

import (
	"net/url"
	"strings"
	"time"

	"vodingest/internal/services"
)

// SourceKind discriminates the Source union.
type SourceKind string

const (
	SourceUpload    SourceKind = "upload"
	SourceRemoteURL SourceKind = "remote_url"
)

// ParseSourceKind accepts the wire spellings used by the web layer.
func ParseSourceKind(raw string) (SourceKind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "upload":
		return SourceUpload, true
	case "remoteurl", "remote_url", "remote-url":
		return SourceRemoteURL, true
	default:
		return "", false
	}
}

// Source is where the job's bytes come from. Exactly one branch is populated:
// UploadKey for SourceUpload, URL (and optionally RemoteVideoID) for
// SourceRemoteURL.
type Source struct {
	Kind          SourceKind
	UploadKey     string
	URL           string
	RemoteVideoID string
}

// Validate checks the union is well formed.
func (s Source) Validate() error {
	switch s.Kind {
	case SourceUpload:
		if strings.TrimSpace(s.UploadKey) == "" {
			return services.Invalid("source.key", "upload key is required")
		}
		if s.URL != "" || s.RemoteVideoID != "" {
			return services.Invalid("source.url", "upload sources cannot carry a remote url")
		}
		if strings.Contains(s.UploadKey, "..") || strings.HasPrefix(s.UploadKey, "/") {
			return services.Invalid("source.key", "upload key %q is not a valid object key", s.UploadKey)
		}
		return nil
	case SourceRemoteURL:
		if s.UploadKey != "" {
			return services.Invalid("source.key", "remote sources cannot carry an upload key")
		}
		raw := strings.TrimSpace(s.URL)
		if raw == "" {
			return services.Invalid("source.url", "remote url is required")
		}
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Host == "" {
			return services.Invalid("source.url", "remote url %q is not a valid absolute url", raw)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return services.Invalid("source.url", "remote url scheme %q is not supported", parsed.Scheme)
		}
		return nil
	default:
		return services.Invalid("sourceKind", "source kind must be upload or remoteUrl")
	}
}

// Host returns the lowercase host of a remote source, without a www. prefix.
func (s Source) Host() string {
	if s.Kind != SourceRemoteURL {
		return ""
	}
	parsed, err := url.Parse(strings.TrimSpace(s.URL))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

// Target optionally names the catalog entity a job populates.
type Target struct {
	ContentID string
	EpisodeID string
}

// IsZero reports whether no target was given.
func (t Target) IsZero() bool {
	return t.ContentID == "" && t.EpisodeID == ""
}

// Name returns the most specific identifier, used for object key derivation.
func (t Target) Name() string {
	if t.EpisodeID != "" {
		return t.EpisodeID
	}
	return t.ContentID
}

// ValidateFor checks the target makes sense for the file type.
func (t Target) ValidateFor(fileType FileType) error {
	switch fileType {
	case FileTypePoster:
		if t.EpisodeID != "" {
			return services.Invalid("target.episodeId", "posters attach to content, not episodes")
		}
	case FileTypeAvatar:
		if !t.IsZero() {
			return services.Invalid("target", "avatars attach to the owner and take no target")
		}
	}
	return nil
}

// Policy is the per-job snapshot of limits taken at submission.
type Policy struct {
	MaxBytes    int64
	MaxAttempts int
}

// Job is the persisted ingestion job record.
type Job struct {
	ID              string
	OwnerID         string
	Target          Target
	Source          Source
	OriginalName    string
	FileType        FileType
	Policy          Policy
	Status          Status
	Progress        int
	ResultURL       string
	ArtifactPrefix  string
	Error           string
	CancelRequested bool
	LeaseToken      string
	WorkerID        string
	Attempts        int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Validate checks the fields a caller supplies at submission.
func (j *Job) Validate() error {
	if j == nil {
		return services.Invalid("", "job is required")
	}
	if strings.TrimSpace(j.ID) == "" {
		return services.Invalid("jobId", "job id is required")
	}
	if strings.TrimSpace(j.OwnerID) == "" {
		return services.Invalid("ownerId", "owner is required")
	}
	if _, ok := ParseFileType(string(j.FileType)); !ok {
		return services.Invalid("file_type", "file type %q is not one of video, poster, avatar", j.FileType)
	}
	if err := j.Source.Validate(); err != nil {
		return err
	}
	if j.Source.Kind == SourceRemoteURL && j.FileType != FileTypeVideo {
		return services.Invalid("sourceKind", "remote downloads are only supported for video")
	}
	if err := j.Target.ValidateFor(j.FileType); err != nil {
		return err
	}
	if j.Policy.MaxBytes <= 0 {
		return services.Invalid("policy.maxBytes", "size limit must be positive")
	}
	if j.Policy.MaxAttempts <= 0 {
		return services.Invalid("policy.maxAttempts", "attempt ceiling must be positive")
	}
	return nil
}

// Clone returns a shallow copy safe to mutate.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	return &cp
}
