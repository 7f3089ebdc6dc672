// Package pipeline drives one job through the fixed stage sequence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"claimease/internal/jobstore"
	"claimease/internal/models"
	"claimease/internal/stage"
	"claimease/internal/telemetry"
)

// Executor runs the document, ocr, nlp, form sequence for a single job,
// checkpointing progress after each stage. The first stage failure ends the
// run; earlier stages' side-channel outputs are left in place for diagnosis
// and there are no retries. Reprocessing a failed subject means a new job.
type Executor struct {
	store  jobstore.Store
	stages stage.Invoker
	logger *slog.Logger
}

func NewExecutor(store jobstore.Store, stages stage.Invoker, logger *slog.Logger) *Executor {
	return &Executor{store: store, stages: stages, logger: logger}
}

// Run executes the pipeline for jobID. Stage failures are absorbed into the
// job record and return nil; only store failures, which strand the job in its
// last written state, propagate to the caller.
func (e *Executor) Run(ctx context.Context, jobID string) error {
	job, err := e.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrJobNotFound) {
			e.logger.Warn("dequeued job has no record, dropping",
				slog.String("job_id", jobID),
			)
			return nil
		}
		return fmt.Errorf("load job %s: %w", jobID, err)
	}

	log := e.logger.With(
		slog.String("job_id", jobID),
		slog.String("subject_id", job.SubjectID),
	)

	// Progress 10 marks the run as accepted before any stage work starts.
	if err := e.update(jobID, jobstore.StatusUpdate(models.StatusProcessing, models.DispatchProgress)); err != nil {
		if errors.Is(err, jobstore.ErrJobTerminal) {
			log.Warn("job already terminal, skipping run")
			return nil
		}
		return err
	}

	telemetry.InFlightGauge.Inc()
	defer telemetry.InFlightGauge.Dec()

	for _, stageName := range models.PipelineStages {
		log.Info("stage starting", slog.String("stage", stageName))

		if err := e.stages.Invoke(ctx, stageName, job.SubjectID); err != nil {
			log.Error("stage failed",
				slog.String("stage", stageName),
				slog.String("error", err.Error()),
			)
			telemetry.StageFailures.WithLabelValues(stageName).Inc()
			telemetry.PipelinesFailed.Inc()
			if uerr := e.update(jobID, jobstore.FailureUpdate(err.Error(), time.Now().UTC())); uerr != nil {
				if errors.Is(uerr, jobstore.ErrJobTerminal) {
					return nil
				}
				return uerr
			}
			return nil
		}

		checkpoint := models.ProgressCheckpoints[stageName]
		if err := e.update(jobID, jobstore.ProgressUpdate(checkpoint)); err != nil {
			if errors.Is(err, jobstore.ErrJobTerminal) {
				log.Warn("job finished by another run, stopping")
				return nil
			}
			return err
		}
		log.Info("stage completed",
			slog.String("stage", stageName),
			slog.Int("progress", checkpoint),
		)
	}

	if err := e.update(jobID, jobstore.StatusUpdate(models.StatusCompleted, 100)); err != nil {
		if errors.Is(err, jobstore.ErrJobTerminal) {
			return nil
		}
		return err
	}
	telemetry.PipelinesCompleted.Inc()
	log.Info("pipeline completed")
	return nil
}

// update writes job state with a background context: once a run has started,
// its record updates should land even if the dispatch context is shutting down.
func (e *Executor) update(jobID string, u jobstore.Update) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.store.Update(ctx, jobID, u); err != nil {
		if errors.Is(err, jobstore.ErrJobTerminal) {
			return err
		}
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	return nil
}
