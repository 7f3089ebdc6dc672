package jobstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"claimease/internal/models"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// PostgresStore is the alternate job store backend for deployments that want
// job history in the relational database instead of Redis.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a pooled connection to Postgres.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// RunMigrations executes the embedded SQL migrations in order.
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		content, err := migrationFiles.ReadFile("migrations/" + e.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		sql := strings.TrimSpace(string(content))
		if sql == "" {
			continue
		}
		if _, err := s.pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("exec migration %s: %w", e.Name(), err)
		}
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, jobID, subjectID string) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, subject_id, status, progress, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $4)
	`, jobID, subjectID, models.StatusPending, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrJobExists
		}
		return fmt.Errorf("create job %s: %w", jobID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, jobID string) (models.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, subject_id, status, progress, error, created_at, updated_at, failed_at
		FROM jobs WHERE id = $1
	`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, ErrJobNotFound
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

// Update merges non-nil fields. The terminal guard is folded into the WHERE
// clause so the check and the write happen in one statement.
func (s *PostgresStore) Update(ctx context.Context, jobID string, u Update) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{jobID}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if u.Status != nil {
		sets = append(sets, "status = "+next(*u.Status))
	}
	if u.Progress != nil {
		sets = append(sets, "progress = "+next(*u.Progress))
	}
	if u.Error != nil {
		sets = append(sets, "error = "+next(*u.Error))
	}
	if u.FailedAt != nil {
		sets = append(sets, "failed_at = "+next(u.FailedAt.UTC()))
	}

	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE jobs SET %s WHERE id = $1 AND status NOT IN ('%s', '%s')
	`, strings.Join(sets, ", "), models.StatusCompleted, models.StatusFailed), args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing record from a terminal one.
		if _, err := s.Get(ctx, jobID); errors.Is(err, ErrJobNotFound) {
			return ErrJobNotFound
		} else if err != nil {
			return err
		}
		return ErrJobTerminal
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]models.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, subject_id, status, progress, error, created_at, updated_at, failed_at
		FROM jobs
	`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (models.Job, error) {
	var job models.Job
	var errMsg pgtype.Text
	var failedAt pgtype.Timestamptz
	if err := row.Scan(&job.ID, &job.SubjectID, &job.Status, &job.Progress, &errMsg, &job.CreatedAt, &job.UpdatedAt, &failedAt); err != nil {
		return models.Job{}, err
	}
	if errMsg.Valid {
		job.Error = &errMsg.String
	}
	if failedAt.Valid {
		t := failedAt.Time
		job.FailedAt = &t
	}
	return job, nil
}
