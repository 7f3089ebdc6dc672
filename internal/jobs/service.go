// Package jobs exposes the job-creation and status-query operations consumed
// by the HTTP gateway.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"claimease/internal/jobstore"
	"claimease/internal/models"
	"claimease/internal/queue"
	"claimease/internal/telemetry"
)

// Service couples the job store with the intake queue.
type Service struct {
	store  jobstore.Store
	queue  *queue.IntakeQueue
	logger *slog.Logger
}

func NewService(store jobstore.Store, q *queue.IntakeQueue, logger *slog.Logger) *Service {
	return &Service{store: store, queue: q, logger: logger}
}

// Create registers a new job for subjectID and queues it for processing.
// It returns as soon as the record is written and the ID pushed; processing
// happens asynchronously.
func (s *Service) Create(ctx context.Context, subjectID string) (models.Job, error) {
	jobID := uuid.New().String()
	if err := s.store.Create(ctx, jobID, subjectID); err != nil {
		return models.Job{}, fmt.Errorf("create job for %q: %w", subjectID, err)
	}
	if err := s.queue.Push(ctx, jobID); err != nil {
		// The record exists but will never be dequeued; mark it so callers
		// are not left polling a job that cannot start.
		msg := fmt.Sprintf("enqueue failed: %v", err)
		if uerr := s.store.Update(ctx, jobID, jobstore.FailureUpdate(msg, time.Now().UTC())); uerr != nil {
			s.logger.Error("could not mark unqueued job failed",
				slog.String("job_id", jobID),
				slog.String("error", uerr.Error()),
			)
		}
		return models.Job{}, fmt.Errorf("enqueue job %s: %w", jobID, err)
	}

	telemetry.JobsCreated.Inc()
	s.logger.Info("job created",
		slog.String("job_id", jobID),
		slog.String("subject_id", subjectID),
	)

	return s.store.Get(ctx, jobID)
}

// Get returns the record for jobID.
func (s *Service) Get(ctx context.Context, jobID string) (models.Job, error) {
	return s.store.Get(ctx, jobID)
}

// List returns all known records, order unspecified.
func (s *Service) List(ctx context.Context) ([]models.Job, error) {
	return s.store.List(ctx)
}
