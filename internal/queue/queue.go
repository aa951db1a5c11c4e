package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Outcome is a committed punch decision, published for downstream read
// models. It carries no person identity; the summary worker only tallies.
type Outcome struct {
	Kind   string `json:"kind"`
	Status string `json:"status"`
	Action string `json:"action,omitempty"`
	Date   string `json:"date"`
	First  bool   `json:"first"`
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, out Outcome) error
	Consume(ctx context.Context) (<-chan Outcome, error)
}

// InMemory is a minimal channel-backed queue for dev/testing.
type InMemory struct {
	ch chan Outcome
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Outcome, size)}
}

// Publish enqueues an outcome.
func (q *InMemory) Publish(ctx context.Context, out Outcome) error {
	select {
	case q.ch <- out:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for workers.
func (q *InMemory) Consume(ctx context.Context) (<-chan Outcome, error) {
	out := make(chan Outcome)
	go func() {
		defer close(out)
		for {
			select {
			case o := <-q.ch:
				out <- o
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue implements a simple Redis list-backed queue.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "punchclock:outcomes"
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues an outcome as JSON.
func (q *RedisQueue) Publish(ctx context.Context, out Outcome) error {
	payload, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, payload).Err()
}

// Consume streams outcomes using BRPOP. Undecodable entries are skipped.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Outcome, error) {
	out := make(chan Outcome)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if len(res) == 2 {
				var o Outcome
				if err := json.Unmarshal([]byte(res[1]), &o); err == nil {
					out <- o
				}
			}
		}
	}()
	return out, nil
}
