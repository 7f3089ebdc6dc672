// Package worker hosts the intake queue consumer.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"claimease/internal/queue"
	"claimease/internal/telemetry"
)

// Runner executes the pipeline for one job. Satisfied by pipeline.Executor.
type Runner interface {
	Run(ctx context.Context, jobID string) error
}

// Consumer is the single loop that drains the intake queue. Each dequeued
// job ID is dispatched in its own goroutine, so runs for different jobs
// proceed concurrently while the loop keeps dequeuing. There is no cap on
// concurrent runs; the queue pop is the only backpressure.
type Consumer struct {
	queue          *queue.IntakeQueue
	runner         Runner
	logger         *slog.Logger
	dequeueTimeout time.Duration
	dequeueBackoff time.Duration

	wg sync.WaitGroup
}

func NewConsumer(q *queue.IntakeQueue, runner Runner, logger *slog.Logger, dequeueTimeout, dequeueBackoff time.Duration) *Consumer {
	return &Consumer{
		queue:          q,
		runner:         runner,
		logger:         logger,
		dequeueTimeout: dequeueTimeout,
		dequeueBackoff: dequeueBackoff,
	}
}

// Run consumes job IDs until the context is canceled, then waits for runs
// already dispatched to finish. The pop blocks up to the dequeue timeout so
// shutdown is never stuck behind an idle queue.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started",
		slog.Duration("dequeue_timeout", c.dequeueTimeout),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping, draining in-flight runs")
			c.wg.Wait()
			return ctx.Err()
		default:
		}

		if depth, err := c.queue.Depth(ctx); err == nil {
			telemetry.QueueDepthGauge.Set(float64(depth))
		}

		jobID, err := c.queue.Pop(ctx, c.dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.Error("dequeue failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
			case <-time.After(c.dequeueBackoff):
			}
			continue
		}
		if jobID == "" {
			continue
		}

		c.logger.Info("job dequeued", slog.String("job_id", jobID))
		c.dispatch(ctx, jobID)
	}
}

// dispatch is fire-and-forget: the loop does not wait for the run before
// popping the next token. The run gets a context detached from the loop
// context; once dispatched, a run is bounded only by the stage timeout,
// so shutdown drains it rather than aborting it mid-stage.
func (c *Consumer) dispatch(ctx context.Context, jobID string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.runner.Run(context.WithoutCancel(ctx), jobID); err != nil {
			// Store failures strand the job in its last written state;
			// nothing to do here beyond making the condition visible.
			c.logger.Error("pipeline run aborted",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
	}()
}
