package notify

import "context"

const (
	TypeAnalysisComplete = "analysis_complete"
	TypeAnalysisFailed   = "analysis_failed"
)

// Event is the terminal-state message delivered to the notification sink.
// The core only emits these; delivery to the user happens elsewhere.
type Event struct {
	Type    string `json:"type"`
	OwnerID string `json:"owner_id"`
	JobID   string `json:"job_id"`
	Summary string `json:"summary,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Alerter receives system-health failures. These outrank per-job errors:
// a critical classification means the worker fleet itself may be sick.
type Alerter interface {
	Alert(ctx context.Context, jobID string, err error)
}
