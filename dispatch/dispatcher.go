package dispatch

import (
	"context"
	"time"

	"github.com/eleven-am/compilation-orchestrator/clients"
	"github.com/eleven-am/compilation-orchestrator/log"
)

const (
	QueueDefault = "default_queue"
	QueueGPU     = "gpu_queue"
	Queue4K      = "4k_queue"
)

// ClassifyQueue is the Dispatcher's total function of (enable4K,
// videoCount, hasTextAnimation) -> queue name, the predicate
// table evaluated first-match-wins.
func ClassifyQueue(enable4K bool, videoCount int, hasTextAnimation bool) string {
	if (enable4K && videoCount > 20) || (!enable4K && videoCount > 40) {
		return Queue4K
	}
	if hasTextAnimation || (enable4K && videoCount <= 20) {
		return QueueGPU
	}
	return QueueDefault
}

// JobStore is the subset of clients.JobStore the Dispatcher needs.
type JobStore interface {
	SetTaskID(ctx context.Context, jobID, taskID string) error
	FailJob(ctx context.Context, jobID, errMessage string, completedAt time.Time) error
}

// Dispatcher is the Dispatcher component (C6).
type Dispatcher struct {
	Broker     Broker
	Store      JobStore
	Now        func() time.Time
	RetryDelay time.Duration
}

// New builds a Dispatcher with the real wall clock and a 1s retry delay.
func New(broker Broker, store JobStore) *Dispatcher {
	return &Dispatcher{Broker: broker, Store: store, Now: time.Now, RetryDelay: time.Second}
}

// Dispatch classifies a ready job and submits it with delivery
// confirmation, retrying recoverable broker errors up to 3 attempts
// total with a 1s sleep between them.
func (d *Dispatcher) Dispatch(ctx context.Context, jobID string, enable4K bool, videoCount int, hasTextAnimation bool) (queue, taskID string, err error) {
	queue = ClassifyQueue(enable4K, videoCount, hasTextAnimation)

	const maxAttempts = 3
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		taskID, lastErr = d.Broker.Submit(ctx, queue, jobID)
		if lastErr == nil {
			break
		}
		log.LogNoRequestID("broker submission failed, retrying", "job_id", jobID, "attempt", attempt, "err", lastErr)
		if attempt < maxAttempts {
			select {
			case <-time.After(d.RetryDelay):
			case <-ctx.Done():
				lastErr = ctx.Err()
				break
			}
		}
	}

	if lastErr != nil {
		failErr := d.Store.FailJob(ctx, jobID, "dispatch failed: "+lastErr.Error(), d.Now())
		if failErr != nil {
			log.LogNoRequestID("failed to mark job failed after dispatch exhaustion", "job_id", jobID, "err", failErr)
		}
		return queue, "", lastErr
	}

	if err := d.Store.SetTaskID(ctx, jobID, taskID); err != nil {
		return queue, taskID, err
	}
	return queue, taskID, nil
}

var _ JobStore = (*clients.JobStore)(nil)
