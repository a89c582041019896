// Package dispatch implements the Dispatcher (C6) and the Stale-Job
// Detector (C7): queue classification, task submission with delivery
// confirmation, and periodic re-dispatch of jobs the broker appears to
// have lost.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
)

// TaskState mirrors the Celery-style task states the original system's
// broker (Redis-backed Celery) reports.
type TaskState string

const (
	StatePending TaskState = "pending"
	StateStarted TaskState = "started"
	StateSuccess TaskState = "success"
	StateFailure TaskState = "failure"
	StateUnknown TaskState = "unknown"
)

// Broker is the message-queue collaborator the Dispatcher needs: enqueue
// with result-id return, task-state inspection by id, per-worker
// reserved-task listing, revoke-with-terminate.
type Broker interface {
	Submit(ctx context.Context, queue, jobID string) (taskID string, err error)
	TaskState(ctx context.Context, taskID string) (TaskState, error)
	MarkState(ctx context.Context, taskID string, state TaskState) error
	ReservedJobs(ctx context.Context, workerID string) ([]string, error)
	MarkReserved(ctx context.Context, workerID, jobID string) error
	Revoke(ctx context.Context, taskID string) error
}

// RedisBroker is the default Broker, backed by a redigo connection pool
// against a Celery-over-Redis-shaped broker. Grounded on the original's
// workers/celery_app.py (`broker=settings.redis_url`) — see DESIGN.md's
// Broker-choice Open Question.
type RedisBroker struct {
	pool *redis.Pool
}

// NewRedisBroker dials the broker URL lazily via a pooled connection.
func NewRedisBroker(brokerURL string) *RedisBroker {
	return &RedisBroker{
		pool: &redis.Pool{
			MaxIdle:     8,
			IdleTimeout: 240 * time.Second,
			Dial: func() (redis.Conn, error) {
				return redis.DialURL(brokerURL)
			},
		},
	}
}

func (b *RedisBroker) Close() error {
	return b.pool.Close()
}

// Submit pushes a task onto the named queue and confirms the connection
// is actually live with a round-trip PING before returning.
func (b *RedisBroker) Submit(ctx context.Context, queue, jobID string) (string, error) {
	conn, err := b.pool.GetContext(ctx)
	if err != nil {
		return "", fmt.Errorf("broker connection: %w", err)
	}
	defer conn.Close()

	taskID := uuid.NewString()

	if _, err := conn.Do("LPUSH", "queue:"+queue, jobID); err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	if _, err := conn.Do("HSET", taskKey(taskID), "state", string(StatePending), "queue", queue, "job_id", jobID); err != nil {
		return "", fmt.Errorf("record task state: %w", err)
	}
	if _, err := redis.String(conn.Do("PING")); err != nil {
		return "", fmt.Errorf("broker round-trip: %w", err)
	}
	return taskID, nil
}

// TaskState reports the state a task is in, StateUnknown if the broker
// has no record of it at all (the signal the Stale-Job Detector treats
// as lost).
func (b *RedisBroker) TaskState(ctx context.Context, taskID string) (TaskState, error) {
	conn, err := b.pool.GetContext(ctx)
	if err != nil {
		return StateUnknown, fmt.Errorf("broker connection: %w", err)
	}
	defer conn.Close()

	state, err := redis.String(conn.Do("HGET", taskKey(taskID), "state"))
	if err == redis.ErrNil {
		return StateUnknown, nil
	}
	if err != nil {
		return StateUnknown, err
	}
	return TaskState(state), nil
}

// MarkState is called by the Worker Pipeline as a task progresses
// through started/success/failure, so the Stale-Job Detector's next scan
// sees an accurate state.
func (b *RedisBroker) MarkState(ctx context.Context, taskID string, state TaskState) error {
	conn, err := b.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("broker connection: %w", err)
	}
	defer conn.Close()
	_, err = conn.Do("HSET", taskKey(taskID), "state", string(state))
	return err
}

// ReservedJobs lists the job ids reserved for (claimed but not yet
// completed by) a worker, used by the next-job prefetch step of the
// Worker Pipeline, grounded on the original's
// `inspect.reserved()` Celery control call.
func (b *RedisBroker) ReservedJobs(ctx context.Context, workerID string) ([]string, error) {
	conn, err := b.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("broker connection: %w", err)
	}
	defer conn.Close()
	return redis.Strings(conn.Do("SMEMBERS", reservedKey(workerID)))
}

// MarkReserved records that a worker has claimed a job, populating the
// set ReservedJobs reads.
func (b *RedisBroker) MarkReserved(ctx context.Context, workerID, jobID string) error {
	conn, err := b.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("broker connection: %w", err)
	}
	defer conn.Close()
	_, err = conn.Do("SADD", reservedKey(workerID), jobID)
	return err
}

// Revoke marks a task revoked, the broker side of "revoke-with-terminate
// carrying a signal"; actual process termination is the caller's
// responsibility (the Worker Pipeline's cancellation check).
func (b *RedisBroker) Revoke(ctx context.Context, taskID string) error {
	return b.MarkState(ctx, taskID, TaskState("revoked"))
}

// Dequeue blocks up to timeout for a job id to appear on any of the given
// queues, using Redis BRPOP across all of them at once so a worker never
// has to poll each queue in turn. Returns ("", "", nil) on timeout.
func (b *RedisBroker) Dequeue(ctx context.Context, queues []string, timeout time.Duration) (jobID, queue string, err error) {
	conn, err := b.pool.GetContext(ctx)
	if err != nil {
		return "", "", fmt.Errorf("broker connection: %w", err)
	}
	defer conn.Close()

	args := redis.Args{}
	for _, q := range queues {
		args = args.Add("queue:" + q)
	}
	args = args.Add(int(timeout.Seconds()))

	reply, err := redis.Strings(conn.Do("BRPOP", args...))
	if err == redis.ErrNil {
		return "", "", nil
	}
	if err != nil {
		return "", "", err
	}
	if len(reply) != 2 {
		return "", "", fmt.Errorf("unexpected BRPOP reply shape: %v", reply)
	}
	queue = strings.TrimPrefix(reply[0], "queue:")
	return reply[1], queue, nil
}

func taskKey(taskID string) string       { return "task:" + taskID }
func reservedKey(workerID string) string { return "reserved:" + workerID }
