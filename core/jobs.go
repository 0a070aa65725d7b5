package core

import (
	"context"
	"time"
)

// JobExecutionMessage is the transport-neutral description of one queued
// run. Adapters translate it to the backing queue's message type.
type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}
