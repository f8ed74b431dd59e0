package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/SNU-SE/analysisq/common"
	"github.com/SNU-SE/analysisq/internal/broker"
	"github.com/SNU-SE/analysisq/internal/config"
	"github.com/SNU-SE/analysisq/internal/dto"
	"github.com/SNU-SE/analysisq/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type JobService struct {
	repo        JobRepoInterface
	broker      broker.Broker
	maxAttempts int
	log         *zap.Logger
}

func NewJobService(repo JobRepoInterface, br broker.Broker, maxAttempts int, log *zap.Logger) *JobService {
	if log == nil {
		log = zap.NewNop()
	}
	return &JobService{repo: repo, broker: br, maxAttempts: maxAttempts, log: log}
}

var _ JobServiceInterface = (*JobService)(nil)

// CreateJob validates the submission, persists a pending job and publishes
// its id to the broker. The database write is the source of truth: a
// failed publish is only logged, because the reconcile sweep republishes
// any pending job the broker lost.
func (s *JobService) CreateJob(ctx context.Context, req *dto.AnalyzeRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", common.Errf(http.StatusRequestTimeout, "request canceled or timed out")
	}

	if len(req.Providers) == 0 {
		return "", common.Errf(http.StatusBadRequest, "at least one provider is required")
	}

	seen := make(map[string]struct{}, len(req.Providers))
	for _, p := range req.Providers {
		if !slices.Contains(config.KnownProviders, p) {
			return "", common.Errf(http.StatusBadRequest, "unknown provider").WithFields(map[string]any{
				"provided": p,
				"allowed":  config.KnownProviders,
			})
		}
		if _, dup := seen[p]; dup {
			return "", common.Errf(http.StatusBadRequest, "duplicate provider").WithFields(map[string]any{
				"provided": p,
			})
		}
		seen[p] = struct{}{}
	}

	providersJSON, err := json.Marshal(req.Providers)
	if err != nil {
		return "", common.Errf(http.StatusInternalServerError, "failed to encode providers")
	}

	j := models.AnalysisJob{
		ID:        uuid.NewString(),
		PaperID:   req.PaperID,
		OwnerID:   req.OwnerID,
		Providers: datatypes.JSON(providersJSON),
		// Jobs asking for more providers represent more owner-visible
		// work, so they jump the line.
		Priority:    len(req.Providers),
		Status:      string(config.JobStatePending),
		MaxAttempts: s.maxAttempts,
		AvailableAt: time.Now(),
	}

	if err := s.repo.Create(ctx, &j); err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			return "", common.Errf(http.StatusRequestTimeout, "request was canceled")
		case errors.Is(err, context.DeadlineExceeded):
			return "", common.Errf(http.StatusRequestTimeout, "request timeout")
		default:
			return "", common.Errf(http.StatusInternalServerError, "failed to add job to database")
		}
	}

	if err := s.broker.Publish(ctx, j.ID, j.Priority); err != nil {
		s.log.Warn("publish failed, job waits for reconcile",
			zap.String("job_id", j.ID),
			zap.Error(err),
		)
	}

	return j.ID, nil
}

// GetJobStatus retrieves a job's status surface by its ID. It maps
// repository errors to appropriate API errors (not found, timeout, or
// internal failure).
func (s *JobService) GetJobStatus(ctx context.Context, id string) (*dto.JobStatusResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	j, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, context.Canceled) {
			return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
		}
		if errors.Is(err, ErrJobNotFound) {
			return nil, common.Errf(http.StatusNotFound, "job not found")
		}
		return nil, common.Errf(http.StatusInternalServerError, "failed to get job")
	}

	resp := &dto.JobStatusResponse{
		ID:          j.ID,
		Status:      j.Status,
		Progress:    j.Progress,
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
	}
	if len(j.Result) > 0 {
		resp.Result = json.RawMessage(j.Result)
	}
	return resp, nil
}

// CancelJob stops a job if it still can be stopped. A pending job is
// cancelled outright and dropped from the broker; a processing job only
// gets its cooperative flag raised, and the worker finishes the
// transition at its next checkpoint. Missing and already-terminal jobs
// report false rather than an error.
func (s *JobService) CancelJob(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	j, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return false, nil
		}
		if errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, context.Canceled) {
			return false, common.Errf(http.StatusRequestTimeout, "request timed out")
		}
		return false, common.Errf(http.StatusInternalServerError, "failed to get job")
	}

	switch j.Status {
	case string(config.JobStatePending):
		cancelled, err := s.repo.CancelPending(ctx, id)
		if err != nil {
			return false, common.Errf(http.StatusInternalServerError, "failed to cancel job")
		}
		if cancelled {
			if err := s.broker.Discard(ctx, id); err != nil {
				s.log.Warn("discard failed after cancel",
					zap.String("job_id", id),
					zap.Error(err),
				)
			}
			return true, nil
		}
		// A worker claimed the job between our read and the cancel.
		fallthrough
	case string(config.JobStateProcessing):
		flagged, err := s.repo.RequestCancel(ctx, id)
		if err != nil {
			return false, common.Errf(http.StatusInternalServerError, "failed to request cancel")
		}
		return flagged, nil
	default:
		return false, nil
	}
}

// RetryJob re-queues a failed job under its existing id with a clean
// attempts budget.
func (s *JobService) RetryJob(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	j, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return "", common.Errf(http.StatusNotFound, "job not found")
		}
		if errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, context.Canceled) {
			return "", common.Errf(http.StatusRequestTimeout, "request timed out")
		}
		return "", common.Errf(http.StatusInternalServerError, "failed to get job")
	}

	if j.Status != string(config.JobStateFailed) {
		return "", common.Errf(http.StatusConflict, "only failed jobs can be retried").WithFields(map[string]any{
			"status": j.Status,
		})
	}

	if err := s.repo.ResetForRetry(ctx, id); err != nil {
		if errors.Is(err, ErrInvalidState) {
			return "", common.Errf(http.StatusConflict, "only failed jobs can be retried")
		}
		return "", common.Errf(http.StatusInternalServerError, "failed to reset job")
	}

	if err := s.broker.Publish(ctx, j.ID, j.Priority); err != nil {
		s.log.Warn("publish failed, job waits for reconcile",
			zap.String("job_id", j.ID),
			zap.Error(err),
		)
	}

	return j.ID, nil
}

// QueueStatus reports how many jobs sit in each stage of the pipeline.
func (s *JobService) QueueStatus(ctx context.Context) (*dto.QueueStatusResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	counts, err := s.repo.AggregateCounts(ctx, time.Now())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, context.Canceled) {
			return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
		}
		return nil, common.Errf(http.StatusInternalServerError, "failed to aggregate queue status")
	}

	return &dto.QueueStatusResponse{
		Waiting:   counts.Waiting,
		Active:    counts.Active,
		Completed: counts.Completed,
		Failed:    counts.Failed,
		Delayed:   counts.Delayed,
	}, nil
}

// Healthy reports whether both backing stores answer.
func (s *JobService) Healthy(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	if err := s.broker.Ping(ctx); err != nil {
		return fmt.Errorf("broker unreachable: %w", err)
	}
	return nil
}
