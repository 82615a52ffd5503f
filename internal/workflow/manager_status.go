package workflow

import (
	"context"
	"maps"

	"vodingest/internal/ingest"
	"vodingest/internal/logging"
	"vodingest/internal/queue"
	"vodingest/internal/stage"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool
	Workers     int
	InFlight    map[string]string
	LastError   string
	LastJob     string
	Queue       queue.Stats
	Jobs        map[ingest.Status]int
	PhaseHealth map[string]stage.Health
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:  m.running,
		InFlight: maps.Clone(m.inflight),
		LastJob:  m.lastJob,
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	m.mu.RUnlock()
	if summary.Running {
		summary.Workers = max(m.cfg.Workflow.Workers, 1)
	}

	var err error
	if summary.Queue, err = m.queue.Stats(ctx); err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	if summary.Jobs, err = m.store.Stats(ctx); err != nil {
		m.logger.Warn("failed to read job stats", logging.Error(err))
	}

	summary.PhaseHealth = map[string]stage.Health{}
	if m.deps.Fetcher != nil {
		summary.PhaseHealth["fetch"] = m.deps.Fetcher.HealthCheck(ctx)
	}
	if m.deps.Processor != nil {
		summary.PhaseHealth["transcode"] = m.deps.Processor.HealthCheck(ctx)
	}
	if m.deps.Storage != nil {
		if err := m.deps.Storage.Check(ctx); err != nil {
			summary.PhaseHealth["objectstore"] = stage.Unhealthy("objectstore", err.Error())
		} else {
			summary.PhaseHealth["objectstore"] = stage.Healthy("objectstore")
		}
	}
	return summary
}
