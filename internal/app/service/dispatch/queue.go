package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bukukita/billing/pkg/tool"
)

type JobKind string

const (
	JobKindReconcile JobKind = "reconcile"
	JobKindEmail     JobKind = "email"
)

// Job is one unit of deferred work. Attempt counts completed attempts, so a
// freshly enqueued job carries zero.
type Job struct {
	ID      string          `json:"id"`
	Kind    JobKind         `json:"kind"`
	Payload json.RawMessage `json:"payload"`
	Attempt int             `json:"attempt"`
	// StartedAt is set by the queue when a worker picks the job up; the
	// stuck-job reclaim uses it to age in-flight entries.
	StartedAt *time.Time `json:"started_at,omitempty"`
}

func NewJob(kind JobKind, payload any) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}
	return &Job{ID: tool.GenerateUUIDV7(), Kind: kind, Payload: raw}, nil
}

// ReconcileJobPayload replays a raw notification through the orchestrator.
type ReconcileJobPayload struct {
	EventID string          `json:"event_id"`
	Raw     json.RawMessage `json:"raw"`
}

// EmailJobPayload is a rendered email awaiting delivery.
type EmailJobPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Queue is an at-least-once job transport. Dequeue blocks until a job is
// available or ctx is done; a dequeued job stays tracked as in-flight until
// Ack, so a worker crash mid-attempt leaves it recoverable.
type Queue interface {
	Enqueue(ctx context.Context, job *Job) error
	// EnqueueAfter makes the job dequeueable once delay has elapsed.
	EnqueueAfter(ctx context.Context, job *Job, delay time.Duration) error
	Dequeue(ctx context.Context) (*Job, error)
	// Ack marks a dequeued job complete and drops its in-flight tracking.
	Ack(ctx context.Context, job *Job) error
}

// MemoryQueue is the in-process Queue used in dev and tests. Delayed jobs
// sit on process-local timers and in-flight jobs are not tracked, so it
// offers no crash recovery; the redis queue is the production transport.
type MemoryQueue struct {
	ch chan *Job
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1024
	}
	return &MemoryQueue{ch: make(chan *Job, size)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job *Job) error {
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Second):
		return fmt.Errorf("memory queue full")
	}
}

func (q *MemoryQueue) EnqueueAfter(ctx context.Context, job *Job, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, job)
	}
	time.AfterFunc(delay, func() {
		_ = q.Enqueue(context.Background(), job)
	})
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Job, error) {
	select {
	case job := <-q.ch:
		return job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Ack(context.Context, *Job) error { return nil }
