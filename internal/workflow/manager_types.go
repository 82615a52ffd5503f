package workflow

import (
	"context"
	"encoding/json"

	"vodingest/internal/catalog"
	"vodingest/internal/fetch"
	"vodingest/internal/ingest"
	"vodingest/internal/notifications"
	"vodingest/internal/services"
	"vodingest/internal/stage"
	"vodingest/internal/transcode"
)

// Fetcher retrieves a job's source into a staging directory.
type Fetcher interface {
	Fetch(ctx context.Context, job *ingest.Job, destDir string, progress fetch.ProgressFunc) (fetch.Result, error)
	HealthCheck(ctx context.Context) stage.Health
}

// Processor turns a fetched source into publishable artifacts.
type Processor interface {
	Process(ctx context.Context, job *ingest.Job, src, outDir string, progress transcode.ProgressFunc) (transcode.Artifact, error)
	HealthCheck(ctx context.Context) stage.Health
}

// Storage is the object store surface the workflow needs.
type Storage interface {
	Exists(ctx context.Context, key string) (bool, error)
	PublishDir(ctx context.Context, localDir, prefix string) ([]string, error)
	DeletePrefix(ctx context.Context, prefix string) error
	FileURL(key string) string
	Check(ctx context.Context) error
}

// Catalog applies finished artifacts to catalog rows.
type Catalog interface {
	Publish(ctx context.Context, req catalog.Request) error
	Exists(ctx context.Context, target ingest.Target) (bool, error)
	UserExists(ctx context.Context, userID string) (bool, error)
}

// Notifier announces job outcomes. Delivery failures never change a job.
type Notifier interface {
	Publish(ctx context.Context, event notifications.Event, payload notifications.Payload) error
}

// Deps bundles the collaborators a Manager drives. A nil Notifier disables
// notifications.
type Deps struct {
	Fetcher   Fetcher
	Processor Processor
	Storage   Storage
	Catalog   Catalog
	Notifier  Notifier
}

// payload is the queue entry body. The job record is the source of truth;
// the payload only names it.
type payload struct {
	JobID    string          `json:"job_id"`
	FileType ingest.FileType `json:"file_type"`
}

func encodePayload(job *ingest.Job) ([]byte, error) {
	return json.Marshal(payload{JobID: job.ID, FileType: job.FileType})
}

func decodePayload(raw []byte) (payload, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return payload{}, services.Wrap(services.ErrFatal, component, "decode payload", "malformed queue payload", err)
	}
	return p, nil
}
