package dispatch

import (
	"context"
	"crypto/tls"
	"fmt"

	"fieldsync_backend/internal/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Client enqueues sync batches for asynchronous processing.
type Client struct {
	client   *asynq.Client
	queue    string
	maxRetry int
}

// NewClient creates an enqueue client from the Redis settings.
func NewClient(cfg *config.Config) (*Client, error) {
	opt, err := redisClientOpt(cfg.RedisURL, cfg.RedisTLSSkip)
	if err != nil {
		return nil, err
	}

	return &Client{
		client:   asynq.NewClient(opt),
		queue:    cfg.SyncQueueName,
		maxRetry: cfg.SyncMaxRetry,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueBatch queues one batch. The batch id is the correlation key the
// operator uses to find the trace in the worker's logs.
func (c *Client) EnqueueBatch(ctx context.Context, payload SyncBatchPayload) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("dispatch client not configured")
	}

	task, err := NewSyncBatchTask(payload)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(c.maxRetry),
	)
	return err
}

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
