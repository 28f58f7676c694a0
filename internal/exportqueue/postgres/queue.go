package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/askdb/askdb/internal/exportqueue"
)

type Queue struct {
	db          *sql.DB
	maxAttempts int
	clock       func() time.Time
}

func NewQueue(db *sql.DB, maxAttempts int) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Queue{db: db, maxAttempts: maxAttempts, clock: time.Now}
}

func (q *Queue) Enqueue(ctx context.Context, message exportqueue.Message) error {
	query := `
INSERT INTO export_queue (job_id, sql_text, s3_key, state, attempts, created_at)
VALUES ($1, $2, $3, 'queued', 0, NOW())`
	if _, err := q.db.ExecContext(ctx, query, message.JobID, message.SQL, message.ObjectKey); err != nil {
		return fmt.Errorf("enqueue export message for job %q: %w", message.JobID, err)
	}
	return nil
}

func (q *Queue) Claim(ctx context.Context, consumerID string, leaseSeconds int) (exportqueue.Delivery, bool, error) {
	if leaseSeconds <= 0 {
		leaseSeconds = 30
	}
	leaseUntil := q.clock().UTC().Add(time.Duration(leaseSeconds) * time.Second)

	query := `
WITH candidate AS (
    SELECT message_id
    FROM export_queue
    WHERE state = 'queued' AND (lease_until IS NULL OR lease_until <= NOW())
    ORDER BY message_id ASC
    FOR UPDATE SKIP LOCKED
    LIMIT 1
)
UPDATE export_queue AS m
SET state = 'claimed', attempts = m.attempts + 1, lease_owner = $1, lease_until = $2
FROM candidate
WHERE m.message_id = candidate.message_id
RETURNING m.message_id, m.job_id, m.sql_text, m.s3_key, m.attempts, m.lease_until`

	var delivery exportqueue.Delivery
	err := q.db.QueryRowContext(ctx, query, consumerID, leaseUntil).Scan(
		&delivery.MessageID,
		&delivery.Message.JobID,
		&delivery.Message.SQL,
		&delivery.Message.ObjectKey,
		&delivery.Attempt,
		&delivery.LeaseUntil,
	)
	if err == sql.ErrNoRows {
		return exportqueue.Delivery{}, false, nil
	}
	if err != nil {
		return exportqueue.Delivery{}, false, fmt.Errorf("claim export message: %w", err)
	}
	return delivery, true, nil
}

func (q *Queue) Ack(ctx context.Context, messageID int64) error {
	query := `
UPDATE export_queue
SET state = 'done', lease_owner = NULL, lease_until = NULL
WHERE message_id = $1`
	if _, err := q.db.ExecContext(ctx, query, messageID); err != nil {
		return fmt.Errorf("ack export message %d: %w", messageID, err)
	}
	return nil
}

func (q *Queue) Nack(ctx context.Context, messageID int64, reason string) error {
	query := `
UPDATE export_queue
SET state = CASE WHEN attempts >= $2 THEN 'dead' ELSE 'queued' END,
    lease_owner = NULL, lease_until = NULL, last_error = $3
WHERE message_id = $1`
	if _, err := q.db.ExecContext(ctx, query, messageID, q.maxAttempts, reason); err != nil {
		return fmt.Errorf("nack export message %d: %w", messageID, err)
	}
	return nil
}

func (q *Queue) RequeueExpired(ctx context.Context) (int, error) {
	query := `
WITH moved AS (
    UPDATE export_queue
    SET state = 'queued', lease_owner = NULL, lease_until = NULL
    WHERE state = 'claimed' AND lease_until IS NOT NULL AND lease_until < NOW()
    RETURNING message_id
)
SELECT COUNT(*) FROM moved`

	var count int
	if err := q.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("requeue expired export messages: %w", err)
	}
	return count, nil
}

var _ exportqueue.Queue = (*Queue)(nil)
