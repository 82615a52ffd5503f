package catalog

import (
	"context"
	"strings"

	"vodingest/internal/database"
	"vodingest/internal/services"
)

// schema is the subset of the web application's catalog that ingestion
// touches. It is only created when missing, for development and tests.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
    id         TEXT PRIMARY KEY,
    avatar_url TEXT NOT NULL DEFAULT '',
    updated_at BIGINT NOT NULL DEFAULT 0
)`,
	`CREATE TABLE IF NOT EXISTS contents (
    id         TEXT PRIMARY KEY,
    owner_id   TEXT NOT NULL DEFAULT '',
    title      TEXT NOT NULL DEFAULT '',
    video_url  TEXT NOT NULL DEFAULT '',
    poster_url TEXT NOT NULL DEFAULT '',
    is_draft   BOOLEAN NOT NULL DEFAULT TRUE,
    updated_at BIGINT NOT NULL DEFAULT 0
)`,
	`CREATE TABLE IF NOT EXISTS episodes (
    id         TEXT PRIMARY KEY,
    content_id TEXT NOT NULL REFERENCES contents(id) ON DELETE CASCADE,
    title      TEXT NOT NULL DEFAULT '',
    video_url  TEXT NOT NULL DEFAULT '',
    status     TEXT NOT NULL DEFAULT 'draft',
    updated_at BIGINT NOT NULL DEFAULT 0
)`,
	`CREATE INDEX IF NOT EXISTS idx_episodes_content ON episodes(content_id)`,
}

// EnsureSchema creates the catalog tables when they do not exist.
func (p *Publisher) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.Exec(ctx, stmt); err != nil {
			return services.Wrap(services.ErrFatal, component, "schema", firstLine(stmt), err)
		}
	}
	return nil
}

// Seed inserts catalog rows for development setups; existing rows are kept.
func (p *Publisher) Seed(ctx context.Context, users, contents []string, episodes map[string]string) error {
	insert := func(query string, args ...any) error {
		_, err := p.db.Exec(ctx, query, args...)
		if err != nil && !database.IsUniqueViolation(err) {
			return services.Wrap(services.ErrTransient, component, "seed", firstLine(query), err)
		}
		return nil
	}
	for _, id := range users {
		if err := insert(`INSERT INTO users (id) VALUES (?)`, id); err != nil {
			return err
		}
	}
	for _, id := range contents {
		if err := insert(`INSERT INTO contents (id) VALUES (?)`, id); err != nil {
			return err
		}
	}
	for id, contentID := range episodes {
		if err := insert(`INSERT INTO episodes (id, content_id) VALUES (?, ?)`, id, contentID); err != nil {
			return err
		}
	}
	return nil
}

func firstLine(stmt string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(stmt), "\n")
	return strings.TrimSuffix(strings.TrimSpace(line), "(")
}
