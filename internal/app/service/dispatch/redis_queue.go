package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	pendingListKey    = "billing:jobs:pending"
	processingListKey = "billing:jobs:processing"
	scheduledSetKey   = "billing:jobs:scheduled"
	jobKeyPrefix      = "billing:jobs:data:"

	// jobDataTTL bounds how long acked or orphaned payloads linger; every
	// live list entry refreshes its payload well inside this window.
	jobDataTTL = 7 * 24 * time.Hour
)

// RedisQueue persists jobs in redis so deferred work survives worker crashes
// and process restarts. The lists hold job ids; payloads live under their own
// keys. Dequeue moves an id onto a processing list where it stays until Ack,
// and delayed retries sit in a sorted set scored by due time, so neither a
// crash mid-attempt nor a restart with scheduled retries loses a job. The
// stuck-job reclaim returns abandoned in-flight entries to the pending list.
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) error {
	if err := q.storeJob(ctx, job); err != nil {
		return err
	}
	if err := q.client.LPush(ctx, pendingListKey, job.ID).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

func (q *RedisQueue) EnqueueAfter(ctx context.Context, job *Job, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, job)
	}
	if err := q.storeJob(ctx, job); err != nil {
		return err
	}
	due := float64(time.Now().Add(delay).UnixMilli())
	if err := q.client.ZAdd(ctx, scheduledSetKey, redis.Z{Score: due, Member: job.ID}).Err(); err != nil {
		return fmt.Errorf("failed to schedule job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	for {
		if err := q.promoteDue(ctx); err != nil {
			return nil, err
		}
		id, err := q.client.BLMove(ctx, pendingListKey, processingListKey, "RIGHT", "LEFT", time.Second).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		job, err := q.loadJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job == nil {
			// Payload expired; drop the stray id.
			q.client.LRem(ctx, processingListKey, 1, id)
			continue
		}
		now := time.Now()
		job.StartedAt = &now
		if err := q.storeJob(ctx, job); err != nil {
			return nil, err
		}
		return job, nil
	}
}

// Ack removes a completed delivery from the processing list. The payload key
// is left to its TTL: a scheduled retry reuses the same id, so deleting it
// here would race the retry's own write.
func (q *RedisQueue) Ack(ctx context.Context, job *Job) error {
	if err := q.client.LRem(ctx, processingListKey, 1, job.ID).Err(); err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}
	return nil
}

// promoteDue moves scheduled jobs whose due time has passed onto the pending
// list. ZRem is the claim: when several workers promote concurrently, only
// the one that removed the member pushes it.
func (q *RedisQueue) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	ids, err := q.client.ZRangeByScore(ctx, scheduledSetKey, &redis.ZRangeBy{Min: "-inf", Max: now, Count: 100}).Result()
	if err != nil {
		return err
	}
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, scheduledSetKey, id).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, pendingListKey, id).Err(); err != nil {
			return err
		}
	}
	return nil
}

// ReclaimStuck returns in-flight jobs older than maxAge to the pending list.
// They are the leftovers of workers that died between dequeue and ack.
func (q *RedisQueue) ReclaimStuck(ctx context.Context, maxAge time.Duration) (int, error) {
	ids, err := q.client.LRange(ctx, processingListKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	recovered := 0
	now := time.Now()
	for _, id := range ids {
		job, err := q.loadJob(ctx, id)
		if err != nil {
			return recovered, err
		}
		if job == nil {
			q.client.LRem(ctx, processingListKey, 1, id)
			continue
		}
		if job.StartedAt == nil || now.Sub(*job.StartedAt) <= maxAge {
			continue
		}
		job.StartedAt = nil
		if err := q.storeJob(ctx, job); err != nil {
			return recovered, err
		}
		// LRem is the claim against concurrent reclaimers.
		removed, err := q.client.LRem(ctx, processingListKey, 1, id).Result()
		if err != nil {
			return recovered, err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.RPush(ctx, pendingListKey, id).Err(); err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}

func (q *RedisQueue) storeJob(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.Set(ctx, jobKeyPrefix+job.ID, raw, jobDataTTL).Err(); err != nil {
		return fmt.Errorf("failed to store job: %w", err)
	}
	return nil
}

func (q *RedisQueue) loadJob(ctx context.Context, id string) (*Job, error) {
	raw, err := q.client.Get(ctx, jobKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	return &job, nil
}
