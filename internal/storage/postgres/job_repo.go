package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SNU-SE/analysisq/internal/config"
	"github.com/SNU-SE/analysisq/internal/job"
	"github.com/SNU-SE/analysisq/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

var _ job.JobRepoInterface = (*JobRepository)(nil)

// Create inserts a new job record into the database. It uses the provided
// context for cancellation and timeout propagation. Returns an error if the
// database operation fails.
func (r *JobRepository) Create(ctx context.Context, j *models.AnalysisJob) error {
	if err := r.db.WithContext(ctx).Create(j).Error; err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// Get retrieves a single job record by its ID. Returns job.ErrJobNotFound
// wrapped when no such record exists.
func (r *JobRepository) Get(ctx context.Context, id string) (*models.AnalysisJob, error) {
	var j models.AnalysisJob
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job %s: %w", id, job.ErrJobNotFound)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

// Claim atomically moves a due pending job to processing. The attempts
// counter increments here, exactly once per execution, using gorm.Expr so
// concurrent claimers cannot double-count. Only one caller sees a non-nil
// job; everyone else gets (nil, nil) because the guarded update matched
// zero rows.
func (r *JobRepository) Claim(ctx context.Context, id string, now time.Time) (*models.AnalysisJob, error) {
	res := r.db.WithContext(ctx).Model(&models.AnalysisJob{}).
		Where("id = ? AND status = ? AND available_at <= ?", id, config.JobStatePending, now).
		Updates(map[string]any{
			"status":     config.JobStateProcessing,
			"attempts":   gorm.Expr("attempts + ?", 1),
			"started_at": gorm.Expr("COALESCE(started_at, ?)", now),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("claim job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return r.Get(ctx, id)
}

// MarkCompleted finishes a successful execution: progress snaps to 100,
// the stored error is cleared and the result payload is saved. The
// attempts fence rejects the write if this worker's claim was released
// and the job handed to another execution in the meantime.
func (r *JobRepository) MarkCompleted(ctx context.Context, id string, attempts int, result datatypes.JSON) error {
	res := r.db.WithContext(ctx).Model(&models.AnalysisJob{}).
		Where("id = ? AND status = ? AND attempts = ?", id, config.JobStateProcessing, attempts).
		Updates(map[string]any{
			"status":       config.JobStateCompleted,
			"progress":     100,
			"result":       result,
			"error":        "",
			"error_kind":   "",
			"completed_at": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("mark completed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("complete job %s: %w", id, job.ErrInvalidState)
	}
	return nil
}

// MarkFailed records a terminal failure with its message and classification.
func (r *JobRepository) MarkFailed(ctx context.Context, id string, attempts int, errMsg, errKind string) error {
	res := r.db.WithContext(ctx).Model(&models.AnalysisJob{}).
		Where("id = ? AND status = ? AND attempts = ?", id, config.JobStateProcessing, attempts).
		Updates(map[string]any{
			"status":       config.JobStateFailed,
			"error":        errMsg,
			"error_kind":   errKind,
			"completed_at": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("mark failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("fail job %s: %w", id, job.ErrInvalidState)
	}
	return nil
}

// RetryLater returns a job to pending for another execution once notBefore
// has passed. The stored error stays empty because a job waiting on a
// retry has not failed yet.
func (r *JobRepository) RetryLater(ctx context.Context, id string, attempts int, notBefore time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.AnalysisJob{}).
		Where("id = ? AND status = ? AND attempts = ?", id, config.JobStateProcessing, attempts).
		Updates(map[string]any{
			"status":       config.JobStatePending,
			"progress":     0,
			"available_at": notBefore,
		})
	if res.Error != nil {
		return fmt.Errorf("retry later: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("retry job %s: %w", id, job.ErrInvalidState)
	}
	return nil
}

// CancelPending cancels a job that no worker has claimed. Returns false
// when the job already left pending, so callers can fall back to the
// cooperative path or report "nothing to cancel".
func (r *JobRepository) CancelPending(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.AnalysisJob{}).
		Where("id = ? AND status = ?", id, config.JobStatePending).
		Updates(map[string]any{
			"status":       config.JobStateCancelled,
			"completed_at": time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("cancel pending: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkCancelled finishes an execution whose cancel flag was observed at a
// checkpoint. Fenced like the other outcome writes.
func (r *JobRepository) MarkCancelled(ctx context.Context, id string, attempts int) error {
	res := r.db.WithContext(ctx).Model(&models.AnalysisJob{}).
		Where("id = ? AND status = ? AND attempts = ?", id, config.JobStateProcessing, attempts).
		Updates(map[string]any{
			"status":       config.JobStateCancelled,
			"completed_at": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("mark cancelled: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("cancel job %s: %w", id, job.ErrInvalidState)
	}
	return nil
}

// RequestCancel raises the cooperative cancellation flag on a processing
// job. The worker observes the flag at its next checkpoint.
func (r *JobRepository) RequestCancel(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.AnalysisJob{}).
		Where("id = ? AND status = ?", id, config.JobStateProcessing).
		Update("cancel_requested", true)
	if res.Error != nil {
		return false, fmt.Errorf("request cancel: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// CancelRequested reads the cooperative cancellation flag.
func (r *JobRepository) CancelRequested(ctx context.Context, id string) (bool, error) {
	var row struct{ CancelRequested bool }
	err := r.db.WithContext(ctx).Model(&models.AnalysisJob{}).
		Select("cancel_requested").
		Where("id = ?", id).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, fmt.Errorf("job %s: %w", id, job.ErrJobNotFound)
		}
		return false, fmt.Errorf("read cancel flag: %w", err)
	}
	return row.CancelRequested, nil
}

// ResetForRetry rewinds a failed job to a clean pending slate for a manual
// re-run: attempts, progress, error and result all reset, and the job is
// immediately due again.
func (r *JobRepository) ResetForRetry(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&models.AnalysisJob{}).
		Where("id = ? AND status = ?", id, config.JobStateFailed).
		Updates(map[string]any{
			"status":           config.JobStatePending,
			"attempts":         0,
			"progress":         0,
			"error":            "",
			"error_kind":       "",
			"result":           nil,
			"cancel_requested": false,
			"available_at":     time.Now(),
			"started_at":       nil,
			"completed_at":     nil,
		})
	if res.Error != nil {
		return fmt.Errorf("reset for retry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("reset job %s: %w", id, job.ErrInvalidState)
	}
	return nil
}

// UpdateProgress advances the progress percentage. The guard keeps it
// monotonic within an execution and doubles as a liveness heartbeat, since
// a matched update refreshes updated_at.
func (r *JobRepository) UpdateProgress(ctx context.Context, id string, attempts, progress int) error {
	res := r.db.WithContext(ctx).Model(&models.AnalysisJob{}).
		Where("id = ? AND status = ? AND attempts = ? AND progress <= ?",
			id, config.JobStateProcessing, attempts, progress).
		Update("progress", progress)
	if res.Error != nil {
		return fmt.Errorf("update progress: %w", res.Error)
	}
	return nil
}

// Release returns a processing job to pending without touching its
// attempts counter. The janitor uses it to recover jobs whose worker went
// away mid-execution.
func (r *JobRepository) Release(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&models.AnalysisJob{}).
		Where("id = ? AND status = ?", id, config.JobStateProcessing).
		Updates(map[string]any{
			"status":       config.JobStatePending,
			"progress":     0,
			"available_at": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("release job: %w", res.Error)
	}
	return nil
}

// AggregateCounts buckets jobs for the queue status surface. Pending jobs
// whose available_at is still in the future count as delayed rather than
// waiting. Cancelled jobs are not part of the surface.
func (r *JobRepository) AggregateCounts(ctx context.Context, now time.Time) (*job.QueueCounts, error) {
	var rows []struct {
		Bucket string
		N      int64
	}
	err := r.db.WithContext(ctx).Model(&models.AnalysisJob{}).
		Select("CASE WHEN status = ? AND available_at > ? THEN 'delayed' ELSE status END AS bucket, COUNT(*) AS n",
			config.JobStatePending, now).
		Group("bucket").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate counts: %w", err)
	}

	counts := &job.QueueCounts{}
	for _, row := range rows {
		switch row.Bucket {
		case string(config.JobStatePending):
			counts.Waiting = row.N
		case string(config.JobStateProcessing):
			counts.Active = row.N
		case string(config.JobStateCompleted):
			counts.Completed = row.N
		case string(config.JobStateFailed):
			counts.Failed = row.N
		case "delayed":
			counts.Delayed = row.N
		}
	}
	return counts, nil
}

// ListStuckProcessing finds processing jobs whose last heartbeat predates
// olderThan. Their worker most likely died.
func (r *JobRepository) ListStuckProcessing(ctx context.Context, olderThan time.Time) ([]models.AnalysisJob, error) {
	var jobs []models.AnalysisJob
	if err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", config.JobStateProcessing, olderThan).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list stuck jobs: %w", err)
	}
	return jobs, nil
}

// ListDroppedPending finds due pending jobs that have not been touched
// since olderThan. They are likely missing from the broker and need to be
// republished; publishing is idempotent so false positives are harmless.
func (r *JobRepository) ListDroppedPending(ctx context.Context, now, olderThan time.Time) ([]models.AnalysisJob, error) {
	var jobs []models.AnalysisJob
	if err := r.db.WithContext(ctx).
		Where("status = ? AND available_at <= ? AND updated_at < ?", config.JobStatePending, now, olderThan).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list dropped jobs: %w", err)
	}
	return jobs, nil
}

// Ping verifies the database connection is alive.
func (r *JobRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}
