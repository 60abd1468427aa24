// Package dispatch is the at-least-once delivery wrapper around deferred
// work: a queue, a worker pool, and a bounded retry policy. Transient
// failures never reach the gateway; only a burned retry budget surfaces to
// operators.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bukukita/billing/pkg/metrics"
)

// RetryPolicy bounds how hard the shell tries before declaring a job dead.
type RetryPolicy struct {
	MaxAttempts    int
	Backoff        []time.Duration
	AttemptTimeout time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    5,
		Backoff:        []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second, 120 * time.Second, 300 * time.Second},
		AttemptTimeout: 120 * time.Second,
	}
}

// Delay returns the wait before the next attempt, given how many attempts
// have completed. Past the end of the schedule it sticks to the last step.
func (p RetryPolicy) Delay(completedAttempts int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	idx := completedAttempts - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(p.Backoff) {
		idx = len(p.Backoff) - 1
	}
	return p.Backoff[idx]
}

type HandlerFunc func(ctx context.Context, job *Job) error

// stuckReclaimer is implemented by queues that track in-flight jobs and can
// return abandoned ones to the pending list.
type stuckReclaimer interface {
	ReclaimStuck(ctx context.Context, maxAge time.Duration) (int, error)
}

const (
	reclaimInterval = time.Minute
	// reclaimMaxAge stays well past AttemptTimeout so live attempts are
	// never reclaimed.
	reclaimMaxAge = 10 * time.Minute
)

// FailureMarker records terminal job failure in the notification ledger.
type FailureMarker interface {
	MarkFailed(ctx context.Context, eventID string, lastErr error) error
}

type Shell struct {
	queue   Queue
	policy  RetryPolicy
	marker  FailureMarker
	log     *zap.SugaredLogger
	workers int

	mu       sync.Mutex
	handlers map[JobKind]HandlerFunc
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewShell(queue Queue, marker FailureMarker, log *zap.SugaredLogger, workers int) *Shell {
	if workers <= 0 {
		workers = 3
	}
	return &Shell{
		queue:    queue,
		policy:   DefaultRetryPolicy(),
		marker:   marker,
		log:      log,
		workers:  workers,
		handlers: map[JobKind]HandlerFunc{},
		stopCh:   make(chan struct{}),
	}
}

// Register binds a handler to a job kind. Must happen before Start.
func (s *Shell) Register(kind JobKind, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = h
}

func (s *Shell) Enqueue(ctx context.Context, job *Job) error {
	return s.queue.Enqueue(ctx, job)
}

func (s *Shell) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.log.Infow("dispatch shell starting", "workers", s.workers)
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	if r, ok := s.queue.(stuckReclaimer); ok {
		s.wg.Add(1)
		go s.reclaimLoop(r)
	}
}

// reclaimLoop periodically returns jobs abandoned by dead workers to the
// pending list.
func (s *Shell) reclaimLoop(r stuckReclaimer) {
	defer s.wg.Done()
	ticker := time.NewTicker(reclaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := r.ReclaimStuck(ctx, reclaimMaxAge)
			cancel()
			if err != nil {
				s.log.Errorw("stuck job reclaim failed", "err", err)
				continue
			}
			if n > 0 {
				s.log.Warnw("recovered stuck jobs", "count", n)
			}
		}
	}
}

func (s *Shell) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.log.Infow("dispatch shell stopped")
}

func (s *Shell) worker(id int) {
	defer s.wg.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stopCh
		cancel()
	}()

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		job, err := s.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Errorw("dequeue failed", "worker", id, "err", err)
			time.Sleep(time.Second)
			continue
		}
		s.process(ctx, job)
	}
}

// process runs one attempt with the policy's wall-clock timeout. A timeout
// aborts the attempt cleanly; the persistence transaction inside the handler
// is the unit of atomicity, so an aborted attempt rolls back and the next
// attempt starts from the ledger's unprocessed state. The delivery is acked
// only once its outcome is settled: handled, scheduled for retry, or
// exhausted. An unacked delivery falls back to the stuck-job reclaim.
func (s *Shell) process(ctx context.Context, job *Job) {
	attempt := job.Attempt + 1
	attemptCtx, cancel := context.WithTimeout(ctx, s.policy.AttemptTimeout)
	defer cancel()

	s.mu.Lock()
	handler, ok := s.handlers[job.Kind]
	s.mu.Unlock()
	if !ok {
		s.log.Errorw("no handler for job kind", "kind", job.Kind, "job_id", job.ID)
		s.ack(job)
		return
	}

	err := handler(attemptCtx, job)
	if err == nil {
		metrics.DispatchAttempts.WithLabelValues(string(job.Kind), "ok").Inc()
		s.ack(job)
		return
	}
	metrics.DispatchAttempts.WithLabelValues(string(job.Kind), "fail").Inc()
	s.log.Errorw("job attempt failed",
		"kind", job.Kind, "job_id", job.ID, "attempt", attempt, "err", err)

	if attempt >= s.policy.MaxAttempts {
		s.exhaust(job, err)
		s.ack(job)
		return
	}

	retry := *job
	retry.Attempt = attempt
	retry.StartedAt = nil
	// The retry must be durably scheduled before the current delivery is
	// acked; if the schedule write fails, the unacked delivery is recovered
	// by the reclaim instead.
	if err := s.queue.EnqueueAfter(context.Background(), &retry, s.policy.Delay(attempt)); err != nil {
		s.log.Errorw("failed to schedule retry", "job_id", job.ID, "err", err)
		return
	}
	s.ack(job)
}

func (s *Shell) ack(job *Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.queue.Ack(ctx, job); err != nil {
		s.log.Errorw("failed to ack job", "job_id", job.ID, "err", err)
	}
}

// exhaust marks the job terminally failed and raises the operator alert.
func (s *Shell) exhaust(job *Job, lastErr error) {
	metrics.DispatchExhausted.WithLabelValues(string(job.Kind)).Inc()
	s.log.Errorw("job retry budget exhausted",
		"kind", job.Kind, "job_id", job.ID, "attempts", s.policy.MaxAttempts, "err", lastErr)

	if job.Kind != JobKindReconcile || s.marker == nil {
		return
	}
	var payload ReconcileJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		s.log.Errorw("cannot decode exhausted reconcile job", "job_id", job.ID, "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.marker.MarkFailed(ctx, payload.EventID, fmt.Errorf("retries exhausted: %w", lastErr)); err != nil {
		s.log.Errorw("failed to mark notification terminally failed",
			"event_id", payload.EventID, "err", err)
	}
}
