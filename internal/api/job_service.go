package api

import (
	"context"
	"strings"

	"vodingest/internal/ingest"
	"vodingest/internal/jobstore"
	"vodingest/internal/services"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// JobReader abstracts job persistence needed for status queries.
type JobReader interface {
	GetByJobID(ctx context.Context, jobID string) (*ingest.Job, error)
	List(ctx context.Context, f jobstore.Filter) ([]*ingest.Job, error)
}

// JobService exposes read-only job queries returning API DTOs.
type JobService struct {
	store JobReader
}

// NewJobService constructs a JobService around the provided reader.
func NewJobService(store JobReader) *JobService {
	if store == nil {
		return nil
	}
	return &JobService{store: store}
}

// Get returns the caller-visible state of a job. Jobs owned by someone else
// are forbidden unless the principal is an admin.
func (s *JobService) Get(ctx context.Context, jobID string, principal ingest.Principal) (JobView, error) {
	if s == nil || s.store == nil {
		return JobView{}, services.Wrap(services.ErrTransient, "api", "get job", "job store unavailable", nil)
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return JobView{}, services.Invalid("jobId", "job id is required")
	}
	job, err := s.store.GetByJobID(ctx, jobID)
	if err != nil {
		return JobView{}, err
	}
	if !principal.CanAccess(job.OwnerID) {
		return JobView{}, services.Wrap(services.ErrForbidden, "api", "get job", "job "+jobID+" belongs to another user", nil)
	}
	return FromJob(job), nil
}

// ListRequest filters a job listing.
type ListRequest struct {
	Statuses []ingest.Status
	Limit    int
	Offset   int
}

// List returns the principal's jobs, newest first. Admins see every job.
func (s *JobService) List(ctx context.Context, principal ingest.Principal, req ListRequest) ([]JobView, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	if strings.TrimSpace(principal.UserID) == "" && !principal.Admin {
		return nil, services.Wrap(services.ErrForbidden, "api", "list jobs", "caller identity is required", nil)
	}
	limit := req.Limit
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	filter := jobstore.Filter{Statuses: req.Statuses, Limit: limit, Offset: max(req.Offset, 0)}
	if !principal.Admin {
		filter.OwnerID = principal.UserID
	}
	jobs, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return FromJobs(jobs), nil
}

// ParseStatuses converts raw status names, rejecting unknown values.
func ParseStatuses(raw []string) ([]ingest.Status, error) {
	var out []ingest.Status
	for _, value := range raw {
		for part := range strings.SplitSeq(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			status, ok := ingest.ParseStatus(part)
			if !ok {
				return nil, services.Invalid("status", "unknown status %q", part)
			}
			out = append(out, status)
		}
	}
	return out, nil
}
