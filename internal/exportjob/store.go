package exportjob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Store persists job records in Postgres. All status writes are full
// overwrites of the mutable fields, so redelivered queue messages reapply
// cleanly instead of corrupting the record.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Insert(ctx context.Context, jobID, objectKey string, createdAt time.Time) (Job, error) {
	query := `
INSERT INTO export_jobs (job_id, status, s3_key, created_at)
VALUES ($1, $2, $3, $4)`
	if _, err := s.db.ExecContext(ctx, query, jobID, string(StatusPending), objectKey, createdAt.UTC()); err != nil {
		return Job{}, fmt.Errorf("insert export job: %w", err)
	}
	return Job{
		JobID:     jobID,
		Status:    StatusPending,
		ObjectKey: objectKey,
		CreatedAt: createdAt.UTC(),
	}, nil
}

func (s *Store) Get(ctx context.Context, jobID string) (Job, error) {
	query := `
SELECT job_id, status, s3_key, created_at, started_at, finished_at, row_count, error
FROM export_jobs
WHERE job_id = $1`

	var (
		job      Job
		status   string
		rowCount sql.NullInt64
		errText  sql.NullString
	)
	if err := s.db.QueryRowContext(ctx, query, jobID).Scan(
		&job.JobID,
		&status,
		&job.ObjectKey,
		&job.CreatedAt,
		&job.StartedAt,
		&job.FinishedAt,
		&rowCount,
		&errText,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, fmt.Errorf("get export job: %w", err)
	}
	job.Status = Status(status)
	if rowCount.Valid {
		job.RowCount = &rowCount.Int64
	}
	if errText.Valid {
		job.Error = errText.String
	}
	return job, nil
}

// MarkInProgress overwrites status and start time, and clears any leftover
// terminal fields from a previous delivery of the same job.
func (s *Store) MarkInProgress(ctx context.Context, jobID string, startedAt time.Time) error {
	query := `
UPDATE export_jobs
SET status = $2, started_at = $3, finished_at = NULL, row_count = NULL, error = NULL
WHERE job_id = $1`
	if _, err := s.db.ExecContext(ctx, query, jobID, string(StatusInProgress), startedAt.UTC()); err != nil {
		return fmt.Errorf("mark export job in progress: %w", err)
	}
	return nil
}

func (s *Store) MarkSuccess(ctx context.Context, jobID string, finishedAt time.Time, rowCount int64) error {
	query := `
UPDATE export_jobs
SET status = $2, finished_at = $3, row_count = $4, error = NULL
WHERE job_id = $1`
	if _, err := s.db.ExecContext(ctx, query, jobID, string(StatusSuccess), finishedAt.UTC(), rowCount); err != nil {
		return fmt.Errorf("mark export job success: %w", err)
	}
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, jobID string, finishedAt time.Time, message string) error {
	query := `
UPDATE export_jobs
SET status = $2, finished_at = $3, row_count = NULL, error = $4
WHERE job_id = $1`
	if _, err := s.db.ExecContext(ctx, query, jobID, string(StatusFailed), finishedAt.UTC(), TruncateError(message)); err != nil {
		return fmt.Errorf("mark export job failed: %w", err)
	}
	return nil
}
