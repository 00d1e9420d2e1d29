package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"partsiq_backend/internal/calls"
	"partsiq_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Client enqueues call lifecycle jobs. It implements calls.TaskScheduler.
type Client struct {
	client *asynq.Client
}

// NewClient creates the enqueue side of the job queues.
func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return &Client{client: asynq.NewClient(opt)}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// ScheduleInitiateCall enqueues a first call attempt.
func (c *Client) ScheduleInitiateCall(ctx context.Context, req calls.InitiateRequest, runAt time.Time) error {
	task, err := NewCallInitiateTask(req)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, QueueInitiate, runAt)
}

// ScheduleRetryCall enqueues a retry attempt.
func (c *Client) ScheduleRetryCall(ctx context.Context, req calls.InitiateRequest, runAt time.Time) error {
	task, err := NewCallRetryTask(req)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, QueueRetry, runAt)
}

// ScheduleFallbackEmail enqueues the email fallback for a supplier.
func (c *Client) ScheduleFallbackEmail(ctx context.Context, req calls.InitiateRequest, runAt time.Time) error {
	task, err := NewFallbackEmailTask(req)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, QueueEmail, runAt)
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, queue string, runAt time.Time) error {
	// Retries are orchestrated by the coordinator, not asynq.
	_, err := c.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(runAt),
		asynq.Queue(queue),
		asynq.MaxRetry(0),
	)
	return err
}

var _ calls.TaskScheduler = (*Client)(nil)

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
