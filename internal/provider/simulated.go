package provider

import (
	"context"
	"fmt"
	"time"
)

// Simulated stands in for a real LLM backend in development and tests.
// It waits for its configured latency, then returns a canned summary.
type Simulated struct {
	name    string
	latency time.Duration
}

func NewSimulated(name string, latency time.Duration) *Simulated {
	return &Simulated{name: name, latency: latency}
}

var _ AnalysisProvider = (*Simulated)(nil)

func (s *Simulated) Name() string { return s.name }

func (s *Simulated) Analyze(ctx context.Context, req Request) (*Result, error) {
	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return &Result{
		Provider: s.name,
		Summary:  fmt.Sprintf("simulated %s analysis of paper %s", s.name, req.PaperID),
		Model:    s.name + "-simulated",
	}, nil
}
