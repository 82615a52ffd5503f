package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"vodingest/internal/catalog"
	"vodingest/internal/config"
	"vodingest/internal/daemon"
	"vodingest/internal/database"
	"vodingest/internal/deps"
	"vodingest/internal/fetch"
	"vodingest/internal/jobstore"
	"vodingest/internal/logging"
	"vodingest/internal/notifications"
	"vodingest/internal/objectstore"
	"vodingest/internal/preflight"
	"vodingest/internal/queue"
	"vodingest/internal/retention"
	"vodingest/internal/transcode"
	"vodingest/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Stack is the assembled service graph shared by the daemon and the CLI.
type Stack struct {
	Config    *config.Config
	Logger    *slog.Logger
	DB        *database.DB
	CatalogDB *database.DB
	Store     *jobstore.Store
	Queue     *queue.Queue
	Gateway   *objectstore.Gateway
	Catalog   *catalog.Publisher
	Workflow  *workflow.Manager
	Janitor   *retention.Janitor
}

// Open connects the databases and builds every service over them. When the
// catalog shares the ingest database its tables are created on open.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stack, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	db, err := database.Open(ctx, database.OptionsFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("open ingest database: %w", err)
	}
	s := &Stack{Config: cfg, Logger: logger, DB: db, CatalogDB: db}
	if cfg.Database.CatalogDSN != cfg.Database.DSN {
		catalogDB, err := database.Open(ctx, database.CatalogOptionsFromConfig(cfg))
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("open catalog database: %w", err)
		}
		s.CatalogDB = catalogDB
	}

	s.Catalog = catalog.New(s.CatalogDB, logger)
	if s.CatalogDB == db {
		if err := s.Catalog.EnsureSchema(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	s.Gateway, err = objectstore.NewFromConfig(cfg, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.Store = jobstore.New(db)
	s.Queue = queue.New(db, queue.OptionsFromConfig(cfg))
	s.Workflow = workflow.NewManager(cfg, s.Store, s.Queue, workflow.Deps{
		Fetcher:   fetch.NewFromConfig(cfg, s.Gateway, logger),
		Processor: transcode.NewFromConfig(cfg, logger),
		Storage:   s.Gateway,
		Catalog:   s.Catalog,
		Notifier:  notifications.NewService(cfg),
	}, logger)
	s.Janitor = retention.New(cfg, s.Store, s.Queue, logger)
	return s, nil
}

// Components returns the services the daemon runs.
func (s *Stack) Components() daemon.Components {
	return daemon.Components{
		DB:       s.DB,
		Store:    s.Store,
		Queue:    s.Queue,
		Gateway:  s.Gateway,
		Workflow: s.Workflow,
		Janitor:  s.Janitor,
	}
}

// Close releases the database connections.
func (s *Stack) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.CatalogDB != nil && s.CatalogDB != s.DB {
		errs = append(errs, s.CatalogDB.Close())
	}
	if s.DB != nil {
		errs = append(errs, s.DB.Close())
	}
	return errors.Join(errs...)
}

// NewLogger builds the process logger. A non-empty level overrides the
// configured one.
func NewLogger(cfg *config.Config, opts Options) (*slog.Logger, error) {
	outputPaths := []string{"stdout"}
	if cfg.Paths.DataDir != "" {
		outputPaths = append(outputPaths, filepath.Join(cfg.Paths.DataDir, "vodingest.log"))
	}
	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	return logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputPaths,
		Development: opts.Development,
	})
}

// Run starts the API server, the workers and the retention schedule and
// blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := NewLogger(cfg, opts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logDependencySnapshot(logger, cfg)
	if err := runPreflight(signalCtx, logger, cfg); err != nil {
		return err
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	stack, err := Open(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("open services", logging.Error(err))
		return err
	}
	defer stack.Close()

	d, err := daemon.New(cfg, stack.Components(), logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the api bind address and that no other daemon uses this data dir"),
		)
		return err
	}
	defer d.Stop()

	<-signalCtx.Done()
	logger.Info("vodingest daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// RunWorkers processes jobs without the API server or the daemon lock, so
// several worker processes may share one Postgres database. With once set it
// drains the ready queue and returns the number of jobs handled.
func RunWorkers(cmdCtx context.Context, stack *Stack, once bool) (int, error) {
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if once {
		return stack.Workflow.Drain(signalCtx)
	}
	if err := stack.Workflow.Start(signalCtx); err != nil {
		return 0, err
	}
	<-signalCtx.Done()
	stack.Workflow.Stop()
	return 0, nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// runPreflight logs every readiness check and fails when any did not pass.
func runPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	results := preflight.RunAll(ctx, cfg)
	for _, r := range results {
		if r.Passed {
			logger.Info("preflight check passed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.String(logging.FieldEventType, "preflight_passed"),
			)
			continue
		}
		logging.ErrorWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "fix the path or storage settings, then restart"),
		)
	}
	if failed := preflight.Failed(results); len(failed) > 0 {
		return fmt.Errorf("preflight failed: %s", preflight.Summary(failed))
	}
	return nil
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	for _, status := range deps.Check(cfg) {
		attrs := []logging.Attr{
			logging.String("dependency", status.Name),
			logging.String("command", status.Command),
			logging.Bool("available", status.Available),
			logging.Bool("optional", status.Optional),
			logging.String(logging.FieldEventType, "dependency_snapshot"),
		}
		if status.Detail != "" {
			attrs = append(attrs, logging.String("detail", status.Detail))
		}
		if !status.Available && !status.Optional {
			logging.WarnWithContext(logger, "required dependency unavailable", "dependency_missing", attrs...)
			continue
		}
		logger.Info("dependency snapshot", logging.Args(attrs...)...)
	}
}
