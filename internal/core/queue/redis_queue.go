// Package queue provides the durable FIFO job queue backing ingestion.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/paul268484/document-mining/internal/core"
	"github.com/paul268484/document-mining/internal/models"
)

// DefaultPollTimeout bounds each blocking pop so workers can notice shutdown
// between polls.
const DefaultPollTimeout = 2 * time.Second

// RedisQueue is a durable FIFO over a named Redis list: LPUSH to enqueue,
// BRPOP to dequeue. Delivery is at-least-once; consumers must be idempotent.
type RedisQueue struct {
	client      *redis.Client
	key         string
	pollTimeout time.Duration
}

var _ core.JobQueue = (*RedisQueue)(nil)

func NewRedisQueue(redisURL, key string) (*RedisQueue, error) {
	if key == "" {
		return nil, errors.New("queue key is empty")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisQueue{
		client:      redis.NewClient(opts),
		key:         key,
		pollTimeout: DefaultPollTimeout,
	}, nil
}

// Ping verifies broker connectivity at startup.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Push enqueues a job without blocking.
func (q *RedisQueue) Push(ctx context.Context, job *models.IngestJob) error {
	if job == nil {
		return errors.New("nil job")
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Pop blocks up to the poll timeout and returns (nil, nil) when nothing
// arrived. Broker errors surface to the caller; the worker pool treats them
// as fatal.
func (q *RedisQueue) Pop(ctx context.Context) (*models.IngestJob, error) {
	res, err := q.client.BRPop(ctx, q.pollTimeout, q.key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop job: %w", err)
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("pop job: unexpected reply of %d elements", len(res))
	}

	var job models.IngestJob
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("decode job payload: %w", err)
	}
	return &job, nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
