package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// JobView describes an ingestion job in a transport-friendly format.
type JobView struct {
	JobID        string `json:"jobId"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	FileType     string `json:"fileType"`
	OwnerID      string `json:"ownerId,omitempty"`
	ContentID    string `json:"contentId,omitempty"`
	EpisodeID    string `json:"episodeId,omitempty"`
	OriginalName string `json:"originalName,omitempty"`
	ResultURL    string `json:"result_url,omitempty"`
	Error        string `json:"error,omitempty"`
	Cancelling   bool   `json:"cancelling,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []JobView `json:"jobs"`
}

// JobCreated acknowledges an accepted submission.
type JobCreated struct {
	JobID         string `json:"jobId"`
	Status        string `json:"status"`
	QueuePosition int    `json:"queuePosition,omitempty"`
}

// UploadCredential is a time-boxed direct upload grant.
type UploadCredential struct {
	UploadURL string `json:"uploadUrl"`
	FileURL   string `json:"fileUrl"`
	Key       string `json:"key"`
	ExpiresIn int64  `json:"expiresIn"`
}

// UploadReceipt confirms an object stored through the upload sink.
type UploadReceipt struct {
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	Workers     int            `json:"workers"`
	InFlight    int            `json:"inFlight"`
	JobCounts   map[string]int `json:"jobCounts"`
	Queue       QueueStats     `json:"queue"`
	LastError   string         `json:"lastError,omitempty"`
	LastJobID   string         `json:"lastJobId,omitempty"`
	PhaseHealth []PhaseHealth  `json:"phaseHealth"`
}

// QueueStats mirrors queue entry counts by delivery state.
type QueueStats struct {
	Ready       int    `json:"ready"`
	Delayed     int    `json:"delayed"`
	Leased      int    `json:"leased"`
	Expired     int    `json:"expired"`
	Dead        int    `json:"dead"`
	OldestReady string `json:"oldestReady,omitempty"`
}

// PhaseHealth mirrors readiness reporting for pipeline phases.
type PhaseHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// SystemCheck is the outcome of one readiness check.
type SystemCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// DatabaseStatus reports connectivity of the ingest database.
type DatabaseStatus struct {
	Dialect   string `json:"dialect"`
	Location  string `json:"location"`
	Version   string `json:"schemaVersion,omitempty"`
	Reachable bool   `json:"reachable"`
	Detail    string `json:"detail,omitempty"`
}

// DiskUsage reports capacity of the local object store volume.
type DiskUsage struct {
	TotalBytes     int64 `json:"totalBytes"`
	UsedBytes      int64 `json:"usedBytes"`
	AvailableBytes int64 `json:"availableBytes"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	Database     DatabaseStatus     `json:"database"`
	LockFilePath string             `json:"lockFilePath"`
	Storage      string             `json:"storage"`
	Disk         *DiskUsage         `json:"disk,omitempty"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Dependencies []DependencyStatus `json:"dependencies"`
	SystemChecks []SystemCheck      `json:"systemChecks"`
}
