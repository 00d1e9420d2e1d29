// Package scheduler runs the distributed job queues behind the call
// lifecycle: initiation, retry, and fallback email, each on its own queue
// with bounded concurrency.
package scheduler

import (
	"encoding/json"

	"partsiq_backend/internal/calls"

	"github.com/hibiken/asynq"
)

// TaskCallInitiate runs a first call attempt.
const TaskCallInitiate = "calls.initiate"

// TaskCallRetry runs a follow-up attempt scheduled with backoff.
const TaskCallRetry = "calls.retry"

// TaskFallbackEmail sends the supplier a quote request by email.
const TaskFallbackEmail = "calls.fallback_email"

// Queue names. Weights are configured on the worker.
const (
	QueueInitiate = "call_initiate"
	QueueRetry    = "call_retry"
	QueueEmail    = "fallback_email"
)

func NewCallInitiateTask(payload calls.InitiateRequest) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCallInitiate, data), nil
}

func NewCallRetryTask(payload calls.InitiateRequest) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCallRetry, data), nil
}

func NewFallbackEmailTask(payload calls.InitiateRequest) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFallbackEmail, data), nil
}

func ParseInitiatePayload(task *asynq.Task) (calls.InitiateRequest, error) {
	var payload calls.InitiateRequest
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return calls.InitiateRequest{}, err
	}
	return payload, nil
}
