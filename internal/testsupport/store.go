package testsupport

import (
	"context"
	"testing"

	"vodingest/internal/config"
	"vodingest/internal/database"
	"vodingest/internal/jobstore"
	"vodingest/internal/queue"
)

// MustOpenDB opens the configured ingest database and registers cleanup.
func MustOpenDB(t testing.TB, cfg *config.Config) *database.DB {
	t.Helper()

	db, err := database.Open(context.Background(), database.OptionsFromConfig(cfg))
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// MustOpenStore opens a jobstore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...jobstore.Option) *jobstore.Store {
	t.Helper()
	return jobstore.New(MustOpenDB(t, cfg), opts...)
}

// MustOpenQueue opens a queue.Queue over a fresh connection using options
// derived from cfg. Callers may adjust the options before they are applied.
func MustOpenQueue(t testing.TB, cfg *config.Config, adjust ...func(*queue.Options)) *queue.Queue {
	t.Helper()
	opts := queue.OptionsFromConfig(cfg)
	for _, fn := range adjust {
		fn(&opts)
	}
	return queue.New(MustOpenDB(t, cfg), opts)
}
