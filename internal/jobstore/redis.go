package jobstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"claimease/internal/models"
)

const jobKeyPrefix = "job:"

// RedisStore keeps each job as a hash at job:{id}. This is the primary
// backend; records survive worker restarts as long as Redis persists.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client. The caller owns the connection.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func jobKey(jobID string) string {
	return jobKeyPrefix + jobID
}

// Create writes the full pending record in one Lua script. The script
// claims the key and sets every field in a single step, so a connection
// drop can never leave a half-written record behind, and duplicate IDs
// are rejected rather than overwritten.
func (s *RedisStore) Create(ctx context.Context, jobID, subjectID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := createScript.Run(ctx, s.client, []string{jobKey(jobID)},
		"subject_id", subjectID,
		"status", models.StatusPending,
		"progress", "0",
		"created_at", now,
		"updated_at", now,
	).Result()
	if err != nil {
		return fmt.Errorf("create job %s: %w", jobID, err)
	}
	switch res {
	case "ok":
		return nil
	case "exists":
		return ErrJobExists
	default:
		return fmt.Errorf("create job %s: unexpected script result %v", jobID, res)
	}
}

func (s *RedisStore) Get(ctx context.Context, jobID string) (models.Job, error) {
	fields, err := s.client.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return models.Job{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if len(fields) == 0 {
		return models.Job{}, ErrJobNotFound
	}
	return jobFromHash(jobID, fields), nil
}

// Update merges non-nil fields into the hash. A single Lua script performs
// the existence and terminal-state checks together with the writes so a
// racing duplicate run cannot interleave between check and write.
func (s *RedisStore) Update(ctx context.Context, jobID string, u Update) error {
	args := []any{"updated_at", time.Now().UTC().Format(time.RFC3339Nano)}
	if u.Status != nil {
		args = append(args, "status", *u.Status)
	}
	if u.Progress != nil {
		args = append(args, "progress", strconv.Itoa(*u.Progress))
	}
	if u.Error != nil {
		args = append(args, "error", *u.Error)
	}
	if u.FailedAt != nil {
		args = append(args, "failed_at", u.FailedAt.UTC().Format(time.RFC3339Nano))
	}

	res, err := updateScript.Run(ctx, s.client, []string{jobKey(jobID)}, args...).Result()
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	switch res {
	case "ok":
		return nil
	case "notfound":
		return ErrJobNotFound
	case "terminal":
		return ErrJobTerminal
	default:
		return fmt.Errorf("update job %s: unexpected script result %v", jobID, res)
	}
}

// List scans job:* and loads each hash. Order is unspecified.
func (s *RedisStore) List(ctx context.Context) ([]models.Job, error) {
	var jobs []models.Job
	iter := s.client.Scan(ctx, 0, jobKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		if len(fields) == 0 {
			continue
		}
		jobs = append(jobs, jobFromHash(key[len(jobKeyPrefix):], fields))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

func jobFromHash(jobID string, fields map[string]string) models.Job {
	job := models.Job{
		ID:        jobID,
		SubjectID: fields["subject_id"],
		Status:    fields["status"],
	}
	if p, err := strconv.Atoi(fields["progress"]); err == nil {
		job.Progress = p
	}
	if msg, ok := fields["error"]; ok && msg != "" {
		job.Error = &msg
	}
	job.CreatedAt = parseTime(fields["created_at"])
	job.UpdatedAt = parseTime(fields["updated_at"])
	if v, ok := fields["failed_at"]; ok && v != "" {
		t := parseTime(v)
		job.FailedAt = &t
	}
	return job
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 'exists'
end
for i = 1, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i+1])
end
return 'ok'
`)

var updateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 'notfound'
end
local status = redis.call('HGET', KEYS[1], 'status')
if status == 'completed' or status == 'failed' then
  return 'terminal'
end
for i = 1, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i+1])
end
return 'ok'
`)
