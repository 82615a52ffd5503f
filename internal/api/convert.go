package api

import (
	"slices"
	"time"

	"vodingest/internal/database"
	"vodingest/internal/deps"
	"vodingest/internal/ingest"
	"vodingest/internal/objectstore"
	"vodingest/internal/preflight"
	"vodingest/internal/stage"
	"vodingest/internal/workflow"
)

// FromJob converts a job record to its API representation.
func FromJob(job *ingest.Job) JobView {
	if job == nil {
		return JobView{}
	}
	view := JobView{
		JobID:        job.ID,
		Status:       string(job.Status),
		Progress:     job.Progress,
		FileType:     string(job.FileType),
		OwnerID:      job.OwnerID,
		ContentID:    job.Target.ContentID,
		EpisodeID:    job.Target.EpisodeID,
		OriginalName: job.OriginalName,
		Error:        job.Error,
		Cancelling:   job.CancelRequested && job.Status.Active(),
		CreatedAt:    FormatTime(job.CreatedAt),
		UpdatedAt:    FormatTime(job.UpdatedAt),
	}
	if job.Status == ingest.StatusCompleted {
		view.ResultURL = job.ResultURL
	}
	return view
}

// FromJobs converts a slice of job records into API DTOs.
func FromJobs(jobs []*ingest.Job) []JobView {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromStatusSummary converts workflow diagnostics.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	counts := make(map[string]int, len(summary.Jobs))
	for status, count := range summary.Jobs {
		counts[string(status)] = count
	}
	return WorkflowStatus{
		Running:   summary.Running,
		Workers:   summary.Workers,
		InFlight:  len(summary.InFlight),
		JobCounts: counts,
		Queue: QueueStats{
			Ready:       summary.Queue.Ready,
			Delayed:     summary.Queue.Delayed,
			Leased:      summary.Queue.Leased,
			Expired:     summary.Queue.Expired,
			Dead:        summary.Queue.Dead,
			OldestReady: FormatTime(summary.Queue.OldestReady),
		},
		LastError:   summary.LastError,
		LastJobID:   summary.LastJob,
		PhaseHealth: PhaseHealthSlice(summary.PhaseHealth),
	}
}

// FromDependencies converts dependency checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	return out
}

// FromPreflight converts readiness check results.
func FromPreflight(results []preflight.Result) []SystemCheck {
	out := make([]SystemCheck, len(results))
	for i, r := range results {
		out[i] = SystemCheck{Name: r.Name, Passed: r.Passed, Detail: r.Detail}
	}
	return out
}

// FromDatabaseHealth converts a database health probe.
func FromDatabaseHealth(h database.Health) DatabaseStatus {
	return DatabaseStatus{
		Dialect:   string(h.Dialect),
		Location:  h.Location,
		Version:   h.Version,
		Reachable: h.Reachable,
		Detail:    h.Detail,
	}
}

// FromDiskStats converts local volume usage.
func FromDiskStats(stats objectstore.DiskStats) *DiskUsage {
	return &DiskUsage{
		TotalBytes:     stats.Total,
		UsedBytes:      stats.Used,
		AvailableBytes: stats.Available,
	}
}

// PhaseHealthSlice converts a phase health map into a deterministic slice.
func PhaseHealthSlice(health map[string]stage.Health) []PhaseHealth {
	if len(health) == 0 {
		return nil
	}
	names := make([]string, 0, len(health))
	for name := range health {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]PhaseHealth, 0, len(names))
	for _, name := range names {
		h := health[name]
		out = append(out, PhaseHealth{Name: name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// ParseTime parses a timestamp produced by FormatTime.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}
