package worker

import (
	"sync/atomic"

	"github.com/SNU-SE/analysisq/internal/dto"
)

// Stats aggregates counters across every worker sharing it. processed
// and failed count terminal outcomes this fleet wrote; active is the
// number of jobs being executed right now.
type Stats struct {
	processed atomic.Uint64
	failed    atomic.Uint64
	active    atomic.Int64
}

func (s *Stats) start() { s.active.Add(1) }
func (s *Stats) done()  { s.active.Add(-1) }

func (s *Stats) Snapshot() dto.WorkerStatsResponse {
	return dto.WorkerStatsResponse{
		Processed: s.processed.Load(),
		Failed:    s.failed.Load(),
		Active:    s.active.Load(),
	}
}
