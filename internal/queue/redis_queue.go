// Package queue is the intake queue between job creation and the consumer.
// It is a plain Redis list: job IDs are pushed at the head and popped from
// the tail, so dequeue order matches submission order.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// IntakeQueue carries bare job_id tokens. The pop is destructive: once a
// token is handed to a consumer the queue forgets it.
type IntakeQueue struct {
	client *redis.Client
	name   string
}

// NewIntakeQueue wraps an existing client. The caller owns the connection.
func NewIntakeQueue(client *redis.Client, name string) *IntakeQueue {
	return &IntakeQueue{client: client, name: name}
}

// Push appends a job ID for processing.
func (q *IntakeQueue) Push(ctx context.Context, jobID string) error {
	if err := q.client.LPush(ctx, q.name, jobID).Err(); err != nil {
		return fmt.Errorf("push job %s: %w", jobID, err)
	}
	return nil
}

// Pop blocks up to timeout waiting for the next job ID. It returns an empty
// string with a nil error when the wait times out, keeping the consumer loop
// interruptible without treating idleness as a failure.
func (q *IntakeQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := q.client.BRPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("pop from %s: %w", q.name, err)
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return "", fmt.Errorf("pop from %s: unexpected reply %v", q.name, res)
	}
	return res[1], nil
}

// Depth reports how many job IDs are waiting.
func (q *IntakeQueue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.name).Result()
	if err != nil {
		return 0, fmt.Errorf("depth of %s: %w", q.name, err)
	}
	return n, nil
}
