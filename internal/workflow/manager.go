package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"vodingest/internal/config"
	"vodingest/internal/jobstore"
	"vodingest/internal/logging"
	"vodingest/internal/queue"
)

const component = "workflow"

// Manager runs submissions and the worker pool.
type Manager struct {
	cfg    *config.Config
	store  *jobstore.Store
	queue  *queue.Queue
	deps   Deps
	logger *slog.Logger
	now    func() time.Time

	workerPrefix string

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	group    *errgroup.Group
	lastErr  error
	lastJob  string
	inflight map[string]string
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for artifact keys.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithWorkerPrefix overrides the worker identity prefix recorded on claimed jobs.
func WithWorkerPrefix(prefix string) Option {
	return func(m *Manager) {
		if prefix != "" {
			m.workerPrefix = prefix
		}
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *jobstore.Store, q *queue.Queue, deps Deps, logger *slog.Logger, opts ...Option) *Manager {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	m := &Manager{
		cfg:          cfg,
		store:        store,
		queue:        q,
		deps:         deps,
		logger:       logging.NewComponentLogger(logger, component),
		now:          time.Now,
		workerPrefix: fmt.Sprintf("%s-%d", host, os.Getpid()),
		inflight:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches cfg.Workflow.Workers workers. They run until Stop or until
// ctx is cancelled.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	workers := m.cfg.Workflow.Workers
	if workers <= 0 {
		workers = 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	for i := 1; i <= workers; i++ {
		worker := fmt.Sprintf("%s-w%d", m.workerPrefix, i)
		group.Go(func() error {
			m.workerLoop(groupCtx, worker)
			return nil
		})
	}
	m.cancel = cancel
	m.group = group
	m.running = true

	m.logger.Info("workflow started",
		logging.Int("workers", workers),
		logging.String(logging.FieldEventType, "workflow_start"),
	)
	return nil
}

// Stop cancels the workers and waits for them. Jobs in flight hand their
// lease back without consuming an attempt.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel, group := m.cancel, m.group
	m.running = false
	m.cancel = nil
	m.group = nil
	m.mu.Unlock()

	cancel()
	_ = group.Wait()
	m.logger.Info("workflow stopped", logging.String(logging.FieldEventType, "workflow_stop"))
}

func (m *Manager) workerLoop(ctx context.Context, worker string) {
	logger := m.logger.With(logging.String(logging.FieldWorker, worker))
	for {
		lease, err := m.queue.Dequeue(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			m.setLastError(err)
			logging.ErrorWithContext(logger, "failed to lease queue entry", "queue_dequeue_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check database connectivity"),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.cfg.ErrorRetryInterval()):
			}
			continue
		}
		m.runJob(ctx, worker, lease)
	}
}

// ProcessNext leases and runs one due entry in the calling goroutine. It
// reports false when nothing was due.
func (m *Manager) ProcessNext(ctx context.Context) (bool, error) {
	lease, err := m.queue.TryDequeue(ctx)
	if err != nil {
		return false, err
	}
	if lease == nil {
		return false, nil
	}
	m.runJob(ctx, m.workerPrefix+"-once", lease)
	return true, nil
}

// Drain runs due entries until none remain or ctx ends, returning how many ran.
func (m *Manager) Drain(ctx context.Context) (int, error) {
	count := 0
	for ctx.Err() == nil {
		ran, err := m.ProcessNext(ctx)
		if err != nil {
			return count, err
		}
		if !ran {
			break
		}
		count++
	}
	return count, ctx.Err()
}

func (m *Manager) trackStart(jobID, worker string) {
	m.mu.Lock()
	m.inflight[jobID] = worker
	m.lastJob = jobID
	m.mu.Unlock()
}

func (m *Manager) trackDone(jobID string) {
	m.mu.Lock()
	delete(m.inflight, jobID)
	m.mu.Unlock()
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
