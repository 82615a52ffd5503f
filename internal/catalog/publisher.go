package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vodingest/internal/database"
	"vodingest/internal/ingest"
	"vodingest/internal/logging"
	"vodingest/internal/services"
)

const component = "catalog"

// Request names what to publish and where.
type Request struct {
	Target    ingest.Target
	FileType  ingest.FileType
	OwnerID   string
	ResultURL string
}

// Publisher applies artifact URLs to catalog rows.
type Publisher struct {
	db     *database.DB
	now    func() time.Time
	logger *slog.Logger
}

// New returns a Publisher over the catalog database.
func New(db *database.DB, logger *slog.Logger) *Publisher {
	return &Publisher{db: db, now: time.Now, logger: logging.NewComponentLogger(logger, component)}
}

// Publish sets the target's media URL. An episode video also marks the
// episode ready and a content video clears is_draft. Jobs without a target
// have nothing to publish. A missing row is a NotFound error.
func (p *Publisher) Publish(ctx context.Context, req Request) error {
	if strings.TrimSpace(req.ResultURL) == "" {
		return services.Invalid("resultUrl", "result url is required")
	}
	if err := req.Target.ValidateFor(req.FileType); err != nil {
		return err
	}
	now := database.Millis(p.now().UTC())

	var (
		query  string
		args   []any
		entity string
	)
	switch req.FileType {
	case ingest.FileTypeVideo:
		switch {
		case req.Target.EpisodeID != "":
			entity = "episode " + req.Target.EpisodeID
			query = `UPDATE episodes SET video_url = ?, status = 'ready', updated_at = ? WHERE id = ? AND (? = '' OR content_id = ?)`
			args = []any{req.ResultURL, now, req.Target.EpisodeID, req.Target.ContentID, req.Target.ContentID}
		case req.Target.ContentID != "":
			entity = "content " + req.Target.ContentID
			query = `UPDATE contents SET video_url = ?, is_draft = ?, updated_at = ? WHERE id = ?`
			args = []any{req.ResultURL, false, now, req.Target.ContentID}
		default:
			return nil
		}
	case ingest.FileTypePoster:
		if req.Target.ContentID == "" {
			return nil
		}
		entity = "content " + req.Target.ContentID
		query = `UPDATE contents SET poster_url = ?, updated_at = ? WHERE id = ?`
		args = []any{req.ResultURL, now, req.Target.ContentID}
	case ingest.FileTypeAvatar:
		if strings.TrimSpace(req.OwnerID) == "" {
			return services.Invalid("ownerId", "avatar publish needs an owner")
		}
		entity = "user " + req.OwnerID
		query = `UPDATE users SET avatar_url = ?, updated_at = ? WHERE id = ?`
		args = []any{req.ResultURL, now, req.OwnerID}
	default:
		return services.Invalid("fileType", "unsupported file type %q", req.FileType)
	}

	affected, err := p.db.ExecAffected(ctx, query, args...)
	if err != nil {
		return services.Wrap(services.ErrTransient, component, "publish", "update "+entity, err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, component, "publish", entity+" does not exist", nil)
	}
	logging.WithContext(ctx, p.logger).Info("catalog updated",
		logging.String("entity", entity),
		logging.String("file_type", string(req.FileType)),
		logging.String(logging.FieldEventType, "catalog_publish"),
	)
	return nil
}

// Exists reports whether the target's rows are present, and that an episode
// belongs to the named content. A zero target always exists.
func (p *Publisher) Exists(ctx context.Context, target ingest.Target) (bool, error) {
	if target.IsZero() {
		return true, nil
	}
	var (
		query string
		args  []any
	)
	if target.EpisodeID != "" {
		query = `SELECT COUNT(1) FROM episodes WHERE id = ? AND (? = '' OR content_id = ?)`
		args = []any{target.EpisodeID, target.ContentID, target.ContentID}
	} else {
		query = `SELECT COUNT(1) FROM contents WHERE id = ?`
		args = []any{target.ContentID}
	}
	var count int
	if err := p.db.ScanRow(ctx, query, args, &count); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, services.Wrap(services.ErrTransient, component, "exists", "lookup target", err)
	}
	return count > 0, nil
}

// UserExists reports whether a user row exists.
func (p *Publisher) UserExists(ctx context.Context, userID string) (bool, error) {
	var count int
	if err := p.db.ScanRow(ctx, `SELECT COUNT(1) FROM users WHERE id = ?`, []any{userID}, &count); err != nil {
		return false, services.Wrap(services.ErrTransient, component, "exists", "lookup user", err)
	}
	return count > 0, nil
}

// Lookup returns the media URLs currently stored for a target, for
// operators reconciling a failed catalog write.
func (p *Publisher) Lookup(ctx context.Context, target ingest.Target) (Entry, error) {
	var entry Entry
	var err error
	if target.EpisodeID != "" {
		entry.Kind = "episode"
		entry.ID = target.EpisodeID
		err = p.db.ScanRow(ctx, `SELECT video_url, status FROM episodes WHERE id = ?`, []any{target.EpisodeID}, &entry.VideoURL, &entry.Status)
	} else {
		entry.Kind = "content"
		entry.ID = target.ContentID
		var draft bool
		err = p.db.ScanRow(ctx, `SELECT video_url, poster_url, is_draft FROM contents WHERE id = ?`, []any{target.ContentID}, &entry.VideoURL, &entry.PosterURL, &draft)
		entry.Draft = draft
	}
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, services.Wrap(services.ErrNotFound, component, "lookup", fmt.Sprintf("%s %s does not exist", entry.Kind, entry.ID), nil)
	}
	if err != nil {
		return Entry{}, services.Wrap(services.ErrTransient, component, "lookup", "read "+entry.Kind, err)
	}
	return entry, nil
}

// Entry is a snapshot of a catalog row's media fields.
type Entry struct {
	Kind      string
	ID        string
	VideoURL  string
	PosterURL string
	Status    string
	Draft     bool
}
