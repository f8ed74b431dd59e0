package provider

import "context"

// AnalysisProvider is one named analysis backend. The worker invokes it
// once per job per requested provider; implementations wrap the actual
// LLM clients and must honor ctx cancellation.
type AnalysisProvider interface {
	Name() string
	Analyze(ctx context.Context, req Request) (*Result, error)
}

// Request identifies the paper a provider should analyze.
type Request struct {
	JobID   string
	PaperID string
	OwnerID string
}

// Result is one provider's contribution to a job's result set.
type Result struct {
	Provider string `json:"provider"`
	Summary  string `json:"summary"`
	Model    string `json:"model,omitempty"`
	Tokens   int    `json:"tokens,omitempty"`
}
