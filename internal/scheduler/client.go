package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"leadpilot_backend/platform/config"
	"leadpilot_backend/platform/logger"
)

// redisClientOpt builds the asynq Redis connection from the shared Redis
// URL, honoring the TLS-insecure escape hatch for managed Redis with
// self-signed certificates.
func redisClientOpt(cfg config.RedisConfig) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("parse redis url: %w", err)
	}

	clientOpt := asynq.RedisClientOpt{
		Addr:     opt.Addr,
		Username: opt.Username,
		Password: opt.Password,
		DB:       opt.DB,
	}
	if opt.TLSConfig != nil {
		tlsConfig := opt.TLSConfig.Clone()
		if cfg.GetRedisTLSInsecure() {
			tlsConfig.InsecureSkipVerify = true
		}
		clientOpt.TLSConfig = tlsConfig
	} else if cfg.GetRedisTLSInsecure() {
		clientOpt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return clientOpt, nil
}

// Client enqueues background tasks.
type Client struct {
	client *asynq.Client
	queue  string
	log    *logger.Logger
}

// NewClient creates the task client.
func NewClient(cfg config.SchedulerConfig, log *logger.Logger) (*Client, error) {
	opt, err := redisClientOpt(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{
		client: asynq.NewClient(opt),
		queue:  cfg.GetAsynqQueueName(),
		log:    log,
	}, nil
}

// Close releases the underlying Redis connections.
func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueLeadScore queues a scoring run for one lead.
func (c *Client) EnqueueLeadScore(ctx context.Context, leadID, agentID uuid.UUID) error {
	task, err := NewLeadScoreTask(leadID, agentID)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Minute),
	)
	if err != nil {
		return fmt.Errorf("enqueue lead score: %w", err)
	}
	return nil
}

// EnqueueFollowUpStep queues execution of one due follow-up step. A step
// already queued is silently skipped.
func (c *Client) EnqueueFollowUpStep(ctx context.Context, followUpID, agentID uuid.UUID, step int) error {
	task, err := NewFollowUpStepTask(followUpID, agentID, step)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(2),
		asynq.Timeout(time.Minute),
		asynq.Retention(time.Hour),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("enqueue follow-up step: %w", err)
	}
	return nil
}
