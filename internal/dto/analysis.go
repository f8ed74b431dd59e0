package dto

import (
	"encoding/json"
	"time"
)

// AnalyzeRequest is the job submission body. Providers must come from the
// known provider vocabulary; the service checks that after binding.
type AnalyzeRequest struct {
	PaperID   string   `json:"paper_id" validate:"required"`
	Providers []string `json:"providers" validate:"required,min=1,dive,required"`
	OwnerID   string   `json:"owner_id" validate:"required"`
}

type EnqueueResponse struct {
	JobID string `json:"job_id"`
}

type JobStatusResponse struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Progress    int             `json:"progress"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Error       string          `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

type QueueStatusResponse struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}

type WorkerStatsResponse struct {
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Active    int64  `json:"active"`
}

// OpsStatsResponse is the worker admin surface: fleet counters next to
// the queue depth they are draining.
type OpsStatsResponse struct {
	Workers WorkerStatsResponse `json:"workers"`
	Queue   QueueStatusResponse `json:"queue"`
}

type HealthResponse struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}
