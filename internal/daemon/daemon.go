package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"

	"vodingest/internal/api"
	"vodingest/internal/config"
	"vodingest/internal/database"
	"vodingest/internal/deps"
	"vodingest/internal/jobstore"
	"vodingest/internal/logging"
	"vodingest/internal/objectstore"
	"vodingest/internal/preflight"
	"vodingest/internal/queue"
	"vodingest/internal/retention"
	"vodingest/internal/workflow"
)

// Components are the collaborators a Daemon runs.
type Components struct {
	DB       *database.DB
	Store    *jobstore.Store
	Queue    *queue.Queue
	Gateway  *objectstore.Gateway
	Workflow *workflow.Manager
	Janitor  *retention.Janitor
}

// Daemon coordinates the background processing services and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *database.DB
	store    *jobstore.Store
	queue    *queue.Queue
	gateway  *objectstore.Gateway
	workflow *workflow.Manager
	janitor  *retention.Janitor
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	cron    *cron.Cron
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	Database     database.Health
	LockFilePath string
	Storage      string
	Disk         *objectstore.DiskStats
	Dependencies []deps.Status
	Checks       []preflight.Result
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, c Components, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || c.Store == nil || c.Queue == nil || c.Gateway == nil || c.Workflow == nil || c.Janitor == nil {
		return nil, errors.New("daemon requires config, store, queue, gateway, workflow manager, and janitor")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		db:       c.DB,
		store:    c.Store,
		queue:    c.Queue,
		gateway:  c.Gateway,
		workflow: c.Workflow,
		janitor:  c.Janitor,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	server, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = server
	return d, nil
}

// Start acquires the daemon lock, then launches the workers, the retention
// schedule and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another vodingest daemon is already running (lock %s)", d.lockPath)
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start workflow: %w", err)
	}

	d.cron = cron.New()
	if _, err := d.janitor.Schedule(d.ctx, d.cron); err != nil {
		d.workflow.Stop()
		d.abortStart()
		return err
	}
	d.cron.Start()

	if err := d.api.start(d.ctx); err != nil {
		<-d.cron.Stop().Done()
		d.workflow.Stop()
		d.abortStart()
		return err
	}

	d.running.Store(true)
	d.logger.Info("vodingest daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_start"),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
	d.cron = nil
}

// Stop stops the API server, the retention schedule and the workers, then
// releases the daemon lock. In-flight jobs hand their leases back.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cron != nil {
		<-d.cron.Stop().Done()
		d.cron = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("vodingest daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// APIAddress returns the address the API server listens on, or "" when it is
// not listening.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Status(ctx),
		LockFilePath: d.lockPath,
		Storage:      d.gateway.Bucket().Name(),
		Dependencies: deps.Check(d.cfg),
		Checks:       preflight.RunAll(ctx, d.cfg),
	}
	if d.db != nil {
		status.Database = d.db.Health(ctx)
	}
	if local, ok := d.gateway.Bucket().(*objectstore.LocalBucket); ok {
		if usage, err := local.DiskUsage(); err == nil {
			status.Disk = &usage
		} else {
			d.logger.Debug("disk usage unavailable", logging.Error(err))
		}
	}
	return status
}

// View converts the status into its API representation.
func (s Status) View() api.DaemonStatus {
	view := api.DaemonStatus{
		Running:      s.Running,
		PID:          s.PID,
		Database:     api.FromDatabaseHealth(s.Database),
		LockFilePath: s.LockFilePath,
		Storage:      s.Storage,
		Workflow:     api.FromStatusSummary(s.Workflow),
		Dependencies: api.FromDependencies(s.Dependencies),
		SystemChecks: api.FromPreflight(s.Checks),
	}
	if s.Disk != nil {
		view.Disk = api.FromDiskStats(*s.Disk)
	}
	return view
}
