package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"vodingest/internal/config"
)

// Dialect names the SQL flavour spoken by the underlying connection.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Options configures Open.
type Options struct {
	Driver string
	DSN    string
	// SkipMigrations opens the connection without applying the ingest schema.
	// The catalog connection uses this when it points at a foreign database.
	SkipMigrations bool
}

// DB wraps a *sql.DB with dialect helpers and busy-retry execution.
type DB struct {
	sql     *sql.DB
	dialect Dialect
	dsn     string
}

// OptionsFromConfig returns the options for the ingest (queue + job record) database.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN}
}

// CatalogOptionsFromConfig returns the options for the catalog database.
func CatalogOptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Driver:         cfg.Database.Driver,
		DSN:            cfg.Database.CatalogDSN,
		SkipMigrations: cfg.Database.CatalogDSN != cfg.Database.DSN,
	}
}

// Open connects to the configured database and applies pending migrations.
func Open(ctx context.Context, opts Options) (*DB, error) {
	ctx = ensureContext(ctx)
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", config.DriverSQLite:
		return openSQLite(ctx, opts)
	case config.DriverPostgres:
		return openPostgres(ctx, opts)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
}

func openSQLite(ctx context.Context, opts Options) (*DB, error) {
	path := strings.TrimSpace(opts.DSN)
	if path == "" {
		return nil, errors.New("sqlite dsn is empty")
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// An in-memory database lives and dies with its connection.
	if path == ":memory:" {
		conn.SetMaxOpenConns(1)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	db := &DB{sql: conn, dialect: DialectSQLite, dsn: path}
	if !opts.SkipMigrations {
		if err := db.applyMigrations(ctx); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return db, nil
}

// sqlitePragmas are applied to every pooled connection through the DSN.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	params := url.Values{}
	for _, pragma := range sqlitePragmas {
		params.Add("_pragma", pragma)
	}
	return "file:" + path + "?" + params.Encode()
}

func openPostgres(ctx context.Context, opts Options) (*DB, error) {
	dsn := strings.TrimSpace(opts.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db := &DB{sql: conn, dialect: DialectPostgres, dsn: dsn}
	if !opts.SkipMigrations {
		if err := db.applyMigrations(ctx); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return db, nil
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	if db == nil || db.sql == nil {
		return nil
	}
	return db.sql.Close()
}

// Dialect reports the SQL flavour of the connection.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// SQL exposes the raw handle for callers that need transactions.
func (db *DB) SQL() *sql.DB {
	return db.sql
}

// Rebind rewrites ? placeholders into the dialect's positional form.
func (db *DB) Rebind(query string) string {
	if db.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Greatest renders the two-argument maximum for the dialect.
func (db *DB) Greatest(a, b string) string {
	if db.dialect == DialectPostgres {
		return "GREATEST(" + a + ", " + b + ")"
	}
	return "MAX(" + a + ", " + b + ")"
}

// SkipLocked returns the row-locking suffix for queue claim subqueries.
func (db *DB) SkipLocked() string {
	if db.dialect == DialectPostgres {
		return " FOR UPDATE SKIP LOCKED"
	}
	return ""
}

// Location returns a loggable description of the database without credentials.
func (db *DB) Location() string {
	if db.dialect == DialectSQLite {
		return db.dsn
	}
	parsed, err := url.Parse(db.dsn)
	if err != nil || parsed.Host == "" {
		return "postgres"
	}
	return parsed.Host + parsed.Path
}

// Health summarizes connectivity and schema state.
type Health struct {
	Dialect   Dialect
	Location  string
	Version   string
	Reachable bool
	Detail    string
}

// Health pings the database and reads the latest applied migration.
func (db *DB) Health(ctx context.Context) Health {
	ctx = ensureContext(ctx)
	h := Health{Dialect: db.dialect, Location: db.Location()}
	if err := db.sql.PingContext(ctx); err != nil {
		h.Detail = err.Error()
		return h
	}
	h.Reachable = true
	version, err := db.SchemaVersion(ctx)
	if err != nil {
		h.Detail = err.Error()
		return h
	}
	h.Version = version
	return h
}
