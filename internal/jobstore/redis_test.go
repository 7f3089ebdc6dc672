package jobstore

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"claimease/internal/models"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Create(ctx, "job-1", "Jane Doe"); err != nil {
		t.Fatalf("create: %v", err)
	}

	job, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.SubjectID != "Jane Doe" {
		t.Fatalf("subject = %q, want Jane Doe", job.SubjectID)
	}
	if job.Status != models.StatusPending || job.Progress != 0 {
		t.Fatalf("new job status=%s progress=%d, want pending/0", job.Status, job.Progress)
	}
	if job.Error != nil {
		t.Fatalf("new job carries error %q", *job.Error)
	}
	if job.CreatedAt.IsZero() || job.UpdatedAt.IsZero() {
		t.Fatal("timestamps not set on create")
	}
}

func TestCreateDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Create(ctx, "job-1", "Jane Doe"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, "job-1", "John Roe"); !errors.Is(err, ErrJobExists) {
		t.Fatalf("duplicate create err = %v, want ErrJobExists", err)
	}

	// The original record must be untouched.
	job, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.SubjectID != "Jane Doe" {
		t.Fatalf("subject overwritten to %q", job.SubjectID)
	}
}

func TestCreateRefusesExistingKey(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// Any existing hash at the key counts as a claim, even one that only
	// carries a subject. Create never writes fields over it.
	if err := store.client.HSet(ctx, "job:job-1", "subject_id", "Jane Doe").Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := store.Create(ctx, "job-1", "John Roe"); !errors.Is(err, ErrJobExists) {
		t.Fatalf("err = %v, want ErrJobExists", err)
	}
	status, err := store.client.HGet(ctx, "job:job-1", "status").Result()
	if !errors.Is(err, redis.Nil) {
		t.Fatalf("status = %q %v, want unset", status, err)
	}
}

func TestGetUnknown(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func TestUpdateMergesFields(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Create(ctx, "job-1", "Jane Doe"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Update(ctx, "job-1", StatusUpdate(models.StatusProcessing, models.DispatchProgress)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := store.Update(ctx, "job-1", ProgressUpdate(25)); err != nil {
		t.Fatalf("update: %v", err)
	}

	job, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != models.StatusProcessing {
		t.Fatalf("status = %s, want processing", job.Status)
	}
	if job.Progress != 25 {
		t.Fatalf("progress = %d, want 25", job.Progress)
	}
}

func TestUpdateUnknown(t *testing.T) {
	store := newTestStore(t)
	err := store.Update(context.Background(), "nope", ProgressUpdate(25))
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func TestTerminalStateRefusesUpdates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Create(ctx, "job-1", "Jane Doe"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Update(ctx, "job-1", StatusUpdate(models.StatusCompleted, 100)); err != nil {
		t.Fatalf("complete: %v", err)
	}

	err := store.Update(ctx, "job-1", StatusUpdate(models.StatusProcessing, 10))
	if !errors.Is(err, ErrJobTerminal) {
		t.Fatalf("err = %v, want ErrJobTerminal", err)
	}

	job, _ := store.Get(ctx, "job-1")
	if job.Status != models.StatusCompleted || job.Progress != 100 {
		t.Fatalf("terminal record mutated: status=%s progress=%d", job.Status, job.Progress)
	}
}

func TestFailureUpdateSetsErrorAndTimestamp(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Create(ctx, "job-1", "Jane Doe"); err != nil {
		t.Fatalf("create: %v", err)
	}
	failedAt := time.Now().UTC()
	if err := store.Update(ctx, "job-1", FailureUpdate("engine unavailable", failedAt)); err != nil {
		t.Fatalf("fail: %v", err)
	}

	job, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != models.StatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
	if job.Error == nil || *job.Error != "engine unavailable" {
		t.Fatalf("error = %v, want engine unavailable", job.Error)
	}
	if job.FailedAt == nil {
		t.Fatal("failed_at not recorded")
	}
}

func TestListReturnsAllJobs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Create(ctx, id, "subject-"+id); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	jobs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("len = %d, want 3", len(jobs))
	}
	seen := map[string]bool{}
	for _, j := range jobs {
		seen[j.ID] = true
	}
	for _, id := range []string{"a", "b", "c"} {
		if !seen[id] {
			t.Fatalf("job %s missing from list", id)
		}
	}
}

func TestStatusErrorCoupling(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Create(ctx, "ok", "Jane Doe"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, "bad", "John Roe"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Update(ctx, "ok", StatusUpdate(models.StatusCompleted, 100)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := store.Update(ctx, "bad", FailureUpdate("boom", time.Now())); err != nil {
		t.Fatalf("fail: %v", err)
	}

	jobs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, j := range jobs {
		failed := j.Status == models.StatusFailed
		hasError := j.Error != nil && *j.Error != ""
		if failed != hasError {
			t.Fatalf("job %s: status=%s error=%v violates coupling", j.ID, j.Status, j.Error)
		}
	}
}
