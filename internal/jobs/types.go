package jobs

import (
	"context"
	"errors"
	"time"
)

// ErrJobNotFound is returned by a JobStore for an unknown job id.
var ErrJobNotFound = errors.New("job not found")

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeReprocessUpload runs a stored raw file through the upload
	// pipeline again.
	JobTypeReprocessUpload JobType = "reprocess_upload"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is waiting for another attempt.
	JobStatusRetrying JobStatus = "retrying"
)

// ReprocessUploadJob re-runs the pipeline over the raw file of an earlier
// upload. The result is stored as a new upload.
type ReprocessUploadJob struct {
	JobID string `json:"jobId"`

	// UploadID is the upload whose raw file is reprocessed.
	UploadID   string `json:"uploadId"`
	StorageURI string `json:"storageUri"`
	Filename   string `json:"filename"`
	MimeType   string `json:"mimeType"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retryCount"`
	MaxRetries  int        `json:"maxRetries"`

	// ResultUploadID is the upload created by a successful run.
	ResultUploadID string `json:"resultUploadId,omitempty"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

func (j *ReprocessUploadJob) GetID() string        { return j.JobID }
func (j *ReprocessUploadJob) GetType() JobType     { return JobTypeReprocessUpload }
func (j *ReprocessUploadJob) GetStatus() JobStatus { return j.Status }

// Publisher enqueues jobs.
type Publisher interface {
	PublishReprocessUpload(ctx context.Context, job *ReprocessUploadJob) error
	Close() error
}

// Consumer runs queued jobs through a handler.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. A returned error marks the attempt failed and
// may trigger a retry.
type JobHandler func(ctx context.Context, job Job) error

// JobStore keeps job state for status queries.
type JobStore interface {
	SaveJob(ctx context.Context, job *ReprocessUploadJob) error
	GetJob(ctx context.Context, jobID string) (*ReprocessUploadJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*ReprocessUploadJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	UploadID string
	Status   JobStatus
	Limit    int
	Offset   int
}
