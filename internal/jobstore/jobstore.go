// Package jobstore persists job records. It is the sole source of truth for
// job status and progress; the pipeline executor is the only writer after
// creation.
package jobstore

import (
	"context"
	"errors"
	"time"

	"claimease/internal/models"
)

var (
	// ErrJobExists is returned when creating a job whose ID is already taken.
	ErrJobExists = errors.New("job already exists")
	// ErrJobNotFound is returned for lookups and updates of unknown jobs.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobTerminal is returned when an update would change the status or
	// progress of a completed or failed job.
	ErrJobTerminal = errors.New("job is in a terminal state")
)

// Update carries the fields an update merges into an existing record.
// Nil fields are left untouched. UpdatedAt is always refreshed by the store.
type Update struct {
	Status   *string
	Progress *int
	Error    *string
	FailedAt *time.Time
}

// Store is the job record contract shared by the Redis and Postgres backends.
type Store interface {
	// Create writes a fresh record with status pending and progress 0.
	Create(ctx context.Context, jobID, subjectID string) error
	// Get returns the record for jobID.
	Get(ctx context.Context, jobID string) (models.Job, error)
	// Update merges the non-nil fields of u into the record. Once a record
	// is terminal, further status/progress changes are refused with
	// ErrJobTerminal so a duplicate run cannot corrupt a finished job.
	Update(ctx context.Context, jobID string, u Update) error
	// List returns all known records in unspecified order.
	List(ctx context.Context) ([]models.Job, error)
}

// StatusUpdate is a convenience constructor for the common status+progress write.
func StatusUpdate(status string, progress int) Update {
	return Update{Status: &status, Progress: &progress}
}

// ProgressUpdate records a new checkpoint without touching status.
func ProgressUpdate(progress int) Update {
	return Update{Progress: &progress}
}

// FailureUpdate marks a job failed with the given message.
func FailureUpdate(message string, at time.Time) Update {
	status := models.StatusFailed
	return Update{Status: &status, Error: &message, FailedAt: &at}
}
