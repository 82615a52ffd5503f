package daemon

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"vodingest/internal/api"
	"vodingest/internal/ingest"
	"vodingest/internal/objectstore"
	"vodingest/internal/services"
	"vodingest/internal/workflow"
)

type jobIDInput struct {
	JobID string `path:"jobId" doc:"Ingestion job id"`
}

type createUploadInput struct {
	Body struct {
		Filename    string `json:"filename" doc:"Original file name, used for the extension check"`
		FileSize    int64  `json:"fileSize" doc:"Declared size in bytes"`
		FileType    string `json:"fileType" doc:"video, poster or avatar"`
		ContentType string `json:"contentType" doc:"MIME type the upload will be sent with"`
		TargetName  string `json:"targetName,omitempty" doc:"Content or episode the file is for; used in the object key"`
	}
}

type createUploadOutput struct {
	Body api.UploadCredential
}

type targetBody struct {
	ContentID string `json:"contentId,omitempty" doc:"Catalog content id"`
	EpisodeID string `json:"episodeId,omitempty" doc:"Catalog episode id"`
}

type createJobInput struct {
	Body struct {
		JobID         string      `json:"jobId,omitempty" doc:"Caller-chosen job id; generated when empty"`
		SourceKind    string      `json:"sourceKind" doc:"upload or remoteUrl"`
		FileType      string      `json:"file_type" doc:"video, poster or avatar"`
		Key           string      `json:"key,omitempty" doc:"Object key returned by POST /uploads (upload sources)"`
		URL           string      `json:"url,omitempty" doc:"Remote video URL (remoteUrl sources)"`
		RemoteVideoID string      `json:"remoteVideoId,omitempty" doc:"Provider video id, when known"`
		OriginalName  string      `json:"originalName,omitempty" doc:"Display name of the source file"`
		Target        *targetBody `json:"target,omitempty" doc:"Catalog row the result attaches to"`
	}
}

type jobCreatedOutput struct {
	Body api.JobCreated
}

type jobOutput struct {
	Body api.JobView
}

type listJobsInput struct {
	Status string `query:"status" doc:"Comma-separated statuses to include"`
	Limit  int    `query:"limit" doc:"Maximum jobs to return (default 50, max 500)"`
	Offset int    `query:"offset" doc:"Jobs to skip"`
}

type listJobsOutput struct {
	Body api.JobListResponse
}

type statusOutput struct {
	Body api.DaemonStatus
}

func (s *apiServer) register(humaAPI huma.API) {
	security := []map[string][]string{{"BearerAuth": {}}}

	huma.Register(humaAPI, huma.Operation{
		OperationID:   "create-upload",
		Method:        http.MethodPost,
		Path:          "/uploads",
		Summary:       "Request a direct upload credential",
		Tags:          []string{"Uploads"},
		Security:      security,
		DefaultStatus: http.StatusCreated,
	}, s.createUpload)

	huma.Register(humaAPI, huma.Operation{
		OperationID:   "create-job",
		Method:        http.MethodPost,
		Path:          "/jobs",
		Summary:       "Submit an ingestion job",
		Tags:          []string{"Jobs"},
		Security:      security,
		DefaultStatus: http.StatusCreated,
	}, s.createJob)

	huma.Register(humaAPI, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List ingestion jobs, newest first",
		Tags:        []string{"Jobs"},
		Security:    security,
	}, s.listJobs)

	huma.Register(humaAPI, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/jobs/{jobId}",
		Summary:     "Get ingestion job status",
		Tags:        []string{"Jobs"},
		Security:    security,
	}, s.getJob)

	huma.Register(humaAPI, huma.Operation{
		OperationID:   "cancel-job",
		Method:        http.MethodPost,
		Path:          "/jobs/{jobId}/cancel",
		Summary:       "Cancel an ingestion job",
		Tags:          []string{"Jobs"},
		Security:      security,
		DefaultStatus: http.StatusAccepted,
	}, s.cancelJob)

	huma.Register(humaAPI, huma.Operation{
		OperationID:   "delete-job",
		Method:        http.MethodDelete,
		Path:          "/jobs/{jobId}",
		Summary:       "Delete a finished ingestion job",
		Tags:          []string{"Jobs"},
		Security:      security,
		DefaultStatus: http.StatusNoContent,
	}, s.deleteJob)

	huma.Register(humaAPI, huma.Operation{
		OperationID: "daemon-status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Daemon, queue and dependency status (admin)",
		Tags:        []string{"Admin"},
		Security:    security,
	}, s.status)
}

func (s *apiServer) createUpload(ctx context.Context, in *createUploadInput) (*createUploadOutput, error) {
	principal := principalFrom(ctx)
	if principal.UserID == "" {
		return nil, s.fail(ctx, services.Wrap(services.ErrForbidden, "api", "upload", "caller identity is required", nil))
	}
	fileType, ok := ingest.ParseFileType(in.Body.FileType)
	if !ok {
		return nil, s.fail(ctx, services.Invalid("fileType", "file type %q is not one of video, poster, avatar", in.Body.FileType))
	}
	ticket, err := s.daemon.gateway.Authorize(ctx, principal.UserID, objectstore.UploadRequest{
		Filename:    in.Body.Filename,
		FileSize:    in.Body.FileSize,
		FileType:    fileType,
		ContentType: in.Body.ContentType,
		TargetName:  in.Body.TargetName,
	})
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return &createUploadOutput{Body: api.UploadCredential{
		UploadURL: ticket.UploadURL,
		FileURL:   ticket.FileURL,
		Key:       ticket.Key,
		ExpiresIn: int64(ticket.ExpiresIn / time.Second),
	}}, nil
}

func (s *apiServer) createJob(ctx context.Context, in *createJobInput) (*jobCreatedOutput, error) {
	body := in.Body
	kind, ok := ingest.ParseSourceKind(body.SourceKind)
	if !ok {
		return nil, s.fail(ctx, services.Invalid("sourceKind", "source kind %q is not one of upload, remoteUrl", body.SourceKind))
	}
	fileType, ok := ingest.ParseFileType(body.FileType)
	if !ok {
		return nil, s.fail(ctx, services.Invalid("file_type", "file type %q is not one of video, poster, avatar", body.FileType))
	}
	req := workflow.CreateRequest{
		JobID:    body.JobID,
		FileType: fileType,
		Source: ingest.Source{
			Kind:          kind,
			UploadKey:     body.Key,
			URL:           body.URL,
			RemoteVideoID: body.RemoteVideoID,
		},
		OriginalName: body.OriginalName,
	}
	if body.Target != nil {
		req.Target = ingest.Target{ContentID: body.Target.ContentID, EpisodeID: body.Target.EpisodeID}
	}
	sub, err := s.daemon.workflow.Submit(ctx, principalFrom(ctx), req)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return &jobCreatedOutput{Body: api.JobCreated{
		JobID:         sub.Job.ID,
		Status:        string(sub.Job.Status),
		QueuePosition: sub.Position,
	}}, nil
}

func (s *apiServer) listJobs(ctx context.Context, in *listJobsInput) (*listJobsOutput, error) {
	statuses, err := api.ParseStatuses([]string{in.Status})
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	jobs, err := s.jobs.List(ctx, principalFrom(ctx), api.ListRequest{Statuses: statuses, Limit: in.Limit, Offset: in.Offset})
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	if jobs == nil {
		jobs = []api.JobView{}
	}
	return &listJobsOutput{Body: api.JobListResponse{Jobs: jobs}}, nil
}

func (s *apiServer) getJob(ctx context.Context, in *jobIDInput) (*jobOutput, error) {
	view, err := s.jobs.Get(ctx, in.JobID, principalFrom(ctx))
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return &jobOutput{Body: view}, nil
}

func (s *apiServer) cancelJob(ctx context.Context, in *jobIDInput) (*jobOutput, error) {
	job, err := s.daemon.workflow.Cancel(ctx, principalFrom(ctx), in.JobID)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return &jobOutput{Body: api.FromJob(job)}, nil
}

func (s *apiServer) deleteJob(ctx context.Context, in *jobIDInput) (*struct{}, error) {
	if err := s.daemon.workflow.Delete(ctx, principalFrom(ctx), in.JobID); err != nil {
		return nil, s.fail(ctx, err)
	}
	return nil, nil
}

func (s *apiServer) status(ctx context.Context, _ *struct{}) (*statusOutput, error) {
	if !principalFrom(ctx).Admin {
		return nil, s.fail(ctx, services.Wrap(services.ErrForbidden, "api", "status", "admin role required", nil))
	}
	return &statusOutput{Body: s.daemon.Status(ctx).View()}, nil
}
