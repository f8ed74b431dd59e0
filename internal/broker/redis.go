package broker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyReady    = "analysisq:jobs:ready"
	keyDelayed  = "analysisq:jobs:delayed"
	keyPriority = "analysisq:jobs:priority"
	keySeq      = "analysisq:jobs:seq"

	moveBatch = 128
)

// Redis backs the broker with two sorted sets: ready jobs scored so that
// higher priority pops first with FIFO ties, and delayed jobs scored by
// their due time in unix milliseconds. Priorities of delayed jobs are
// parked in a hash until promotion.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

var _ Broker = (*Redis)(nil)

// score packs priority and arrival order into one float. Integers below
// 2^53 are exact in float64, which holds for priorities into the
// thousands and sequences into the trillions.
func score(priority int, seq int64) float64 {
	return float64(priority)*1e12 - float64(seq)
}

func (r *Redis) Publish(ctx context.Context, jobID string, priority int) error {
	seq, err := r.client.Incr(ctx, keySeq).Result()
	if err != nil {
		return fmt.Errorf("advance sequence: %w", err)
	}

	pipe := r.client.TxPipeline()
	// NX keeps the original position when a reconcile republishes an id
	// that is already queued.
	pipe.ZAddNX(ctx, keyReady, redis.Z{Score: score(priority, seq), Member: jobID})
	pipe.ZRem(ctx, keyDelayed, jobID)
	pipe.HDel(ctx, keyPriority, jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish job %s: %w", jobID, err)
	}
	return nil
}

func (r *Redis) Delay(ctx context.Context, jobID string, priority int, notBefore time.Time) error {
	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, keyDelayed, redis.Z{Score: float64(notBefore.UnixMilli()), Member: jobID})
	pipe.HSet(ctx, keyPriority, jobID, priority)
	pipe.ZRem(ctx, keyReady, jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delay job %s: %w", jobID, err)
	}
	return nil
}

func (r *Redis) Reserve(ctx context.Context) (string, bool, error) {
	if _, err := r.MoveDue(ctx, time.Now()); err != nil {
		return "", false, err
	}

	popped, err := r.client.ZPopMax(ctx, keyReady, 1).Result()
	if err != nil {
		return "", false, fmt.Errorf("pop ready job: %w", err)
	}
	if len(popped) == 0 {
		return "", false, nil
	}

	id, ok := popped[0].Member.(string)
	if !ok {
		return "", false, fmt.Errorf("unexpected ready member type %T", popped[0].Member)
	}
	return id, true, nil
}

func (r *Redis) Discard(ctx context.Context, jobID string) error {
	pipe := r.client.TxPipeline()
	pipe.ZRem(ctx, keyReady, jobID)
	pipe.ZRem(ctx, keyDelayed, jobID)
	pipe.HDel(ctx, keyPriority, jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("discard job %s: %w", jobID, err)
	}
	return nil
}

func (r *Redis) MoveDue(ctx context.Context, now time.Time) (int, error) {
	ids, err := r.client.ZRangeByScore(ctx, keyDelayed, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: moveBatch,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan delayed jobs: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	prios, err := r.client.HMGet(ctx, keyPriority, ids...).Result()
	if err != nil {
		return 0, fmt.Errorf("load delayed priorities: %w", err)
	}

	end, err := r.client.IncrBy(ctx, keySeq, int64(len(ids))).Result()
	if err != nil {
		return 0, fmt.Errorf("advance sequence: %w", err)
	}
	first := end - int64(len(ids)) + 1

	pipe := r.client.TxPipeline()
	for i, id := range ids {
		priority := 0
		if s, ok := prios[i].(string); ok {
			priority, _ = strconv.Atoi(s)
		}
		pipe.ZAddNX(ctx, keyReady, redis.Z{Score: score(priority, first+int64(i)), Member: id})
	}
	pipe.ZRem(ctx, keyDelayed, asMembers(ids)...)
	pipe.HDel(ctx, keyPriority, ids...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("promote due jobs: %w", err)
	}
	return len(ids), nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func asMembers(ids []string) []any {
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	return members
}
