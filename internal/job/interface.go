package job

import (
	"context"
	"errors"
	"time"

	"github.com/SNU-SE/analysisq/internal/dto"
	"github.com/SNU-SE/analysisq/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

var (
	// ErrJobNotFound reports that no job exists for the given id.
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidState reports a transition attempted from a state that
	// does not allow it.
	ErrInvalidState = errors.New("invalid job state for this operation")
)

// QueueCounts groups jobs by where they sit in the pipeline.
type QueueCounts struct {
	Waiting   int64
	Active    int64
	Completed int64
	Failed    int64
	Delayed   int64
}

// JobRepoInterface defines the contract for job repository operations.
// Every transition carries its own state guard so a lost race surfaces
// as zero affected rows instead of a corrupted record.
type JobRepoInterface interface {
	Create(ctx context.Context, job *models.AnalysisJob) error
	Get(ctx context.Context, id string) (*models.AnalysisJob, error)

	// Claim moves a due pending job to processing and increments its
	// attempts counter. Returns (nil, nil) when the job is not claimable.
	Claim(ctx context.Context, id string, now time.Time) (*models.AnalysisJob, error)

	// MarkCompleted, MarkFailed and RetryLater finish an execution. The
	// attempts value from the claimed row fences out a worker whose claim
	// was released and handed to someone else.
	MarkCompleted(ctx context.Context, id string, attempts int, result datatypes.JSON) error
	MarkFailed(ctx context.Context, id string, attempts int, errMsg, errKind string) error
	RetryLater(ctx context.Context, id string, attempts int, notBefore time.Time) error

	// CancelPending cancels a job that has not started; a processing job
	// is cancelled cooperatively through RequestCancel and the worker's
	// MarkCancelled checkpoint instead.
	CancelPending(ctx context.Context, id string) (bool, error)
	MarkCancelled(ctx context.Context, id string, attempts int) error
	RequestCancel(ctx context.Context, id string) (bool, error)
	CancelRequested(ctx context.Context, id string) (bool, error)

	ResetForRetry(ctx context.Context, id string) error
	UpdateProgress(ctx context.Context, id string, attempts, progress int) error
	Release(ctx context.Context, id string) error

	AggregateCounts(ctx context.Context, now time.Time) (*QueueCounts, error)
	ListStuckProcessing(ctx context.Context, olderThan time.Time) ([]models.AnalysisJob, error)
	ListDroppedPending(ctx context.Context, now, olderThan time.Time) ([]models.AnalysisJob, error)

	Ping(ctx context.Context) error
}

// JobServiceInterface defines the contract for job business logic operations.
type JobServiceInterface interface {
	CreateJob(ctx context.Context, req *dto.AnalyzeRequest) (string, error)
	GetJobStatus(ctx context.Context, id string) (*dto.JobStatusResponse, error)
	CancelJob(ctx context.Context, id string) (bool, error)
	RetryJob(ctx context.Context, id string) (string, error)
	QueueStatus(ctx context.Context) (*dto.QueueStatusResponse, error)
	Healthy(ctx context.Context) error
}

// JobHandlerInterface defines the contract for HTTP request handlers.
type JobHandlerInterface interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	Cancel(c *gin.Context)
	Retry(c *gin.Context)
	QueueStatus(c *gin.Context)
	Health(c *gin.Context)
}
