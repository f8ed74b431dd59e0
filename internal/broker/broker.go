package broker

import (
	"context"
	"time"
)

// Broker hands job ids to workers in priority order and holds delayed
// retries back until they are due. Job payloads stay in the status store;
// only ids and priorities travel through here, so a lost broker entry is
// recoverable from the store.
type Broker interface {
	Publish(ctx context.Context, jobID string, priority int) error
	Delay(ctx context.Context, jobID string, priority int, notBefore time.Time) error
	// Reserve pops the highest-priority due job id, FIFO within a
	// priority. ok is false when nothing is ready.
	Reserve(ctx context.Context) (jobID string, ok bool, err error)
	Discard(ctx context.Context, jobID string) error
	// MoveDue promotes delayed entries whose time has come. Reserve does
	// this opportunistically; the pool janitor calls it as a backstop.
	MoveDue(ctx context.Context, now time.Time) (int, error)
	Ping(ctx context.Context) error
	Close() error
}
