// Package worker drains the export queue: it runs each job's SQL against
// the warehouse, writes a CSV to a local temp file in batches, uploads it
// to object storage, and records the outcome on the job row.
package worker

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/askdb/askdb/internal/exportjob"
	"github.com/askdb/askdb/internal/exportqueue"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/storage"
)

type JobStore interface {
	MarkInProgress(ctx context.Context, jobID string, startedAt time.Time) error
	MarkSuccess(ctx context.Context, jobID string, finishedAt time.Time, rowCount int64) error
	MarkFailed(ctx context.Context, jobID string, finishedAt time.Time, message string) error
}

type Service struct {
	Store       JobStore
	Queue       exportqueue.Queue
	DB          *sql.DB
	ObjectStore storage.ObjectStore
	Config      Config
	Logger      *slog.Logger
	Clock       func() time.Time
}

type Config struct {
	ConsumerID   string
	BatchSize    int
	PollInterval time.Duration
	LeaseSeconds int
}

func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()

	ticker := time.NewTicker(s.Config.PollInterval)
	defer ticker.Stop()

	for {
		if requeued, err := s.Queue.RequeueExpired(ctx); err != nil {
			s.Logger.ErrorContext(ctx, "requeue expired export messages failed", slog.Any("error", err))
		} else if requeued > 0 {
			s.Logger.InfoContext(ctx, "requeued expired export messages", slog.Int("count", requeued))
		}

		if err := s.ProcessOnce(ctx); err != nil {
			s.Logger.ErrorContext(ctx, "export process cycle failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessOnce claims at most one message and runs it to a terminal job
// state. A failure is recorded on the job row first and then handed back to
// the queue, so the queue's retry and dead-letter policy stays in charge of
// redelivery.
func (s *Service) ProcessOnce(ctx context.Context) error {
	s.ensureDefaults()

	delivery, ok, err := s.Queue.Claim(ctx, s.Config.ConsumerID, s.Config.LeaseSeconds)
	if err != nil {
		return fmt.Errorf("claim export message: %w", err)
	}
	if !ok {
		return nil
	}

	jobID := delivery.Message.JobID
	rowCount, exportErr := s.runExport(ctx, delivery.Message)
	if exportErr != nil {
		diagnostic := exportjob.TruncateError(fmt.Sprintf("%T: %v", exportErr, exportErr))
		if markErr := s.Store.MarkFailed(ctx, jobID, s.Clock().UTC(), diagnostic); markErr != nil {
			s.Logger.ErrorContext(ctx, "mark export job failed errored", slog.String("job_id", jobID), slog.Any("error", markErr))
		}
		observability.IncrementExportJobs(string(exportjob.StatusFailed))
		if nackErr := s.Queue.Nack(ctx, delivery.MessageID, diagnostic); nackErr != nil {
			s.Logger.ErrorContext(ctx, "nack export message errored", slog.Int64("message_id", delivery.MessageID), slog.Any("error", nackErr))
		}
		return fmt.Errorf("process export job %q: %w", jobID, exportErr)
	}

	if err := s.Store.MarkSuccess(ctx, jobID, s.Clock().UTC(), rowCount); err != nil {
		if nackErr := s.Queue.Nack(ctx, delivery.MessageID, err.Error()); nackErr != nil {
			s.Logger.ErrorContext(ctx, "nack export message errored", slog.Int64("message_id", delivery.MessageID), slog.Any("error", nackErr))
		}
		return fmt.Errorf("mark export job %q success: %w", jobID, err)
	}
	if err := s.Queue.Ack(ctx, delivery.MessageID); err != nil {
		return fmt.Errorf("ack export message %d: %w", delivery.MessageID, err)
	}

	observability.IncrementExportJobs(string(exportjob.StatusSuccess))
	observability.AddExportedRows(rowCount)
	s.Logger.InfoContext(ctx, "export job completed",
		slog.String("job_id", jobID),
		slog.Int64("row_count", rowCount),
		slog.String("s3_key", delivery.Message.ObjectKey))
	return nil
}

// runExport writes the CSV to a temp file and uploads it only once the file
// is complete, so a failed run never leaves a partial object behind. The
// temp file is removed on every exit path.
func (s *Service) runExport(ctx context.Context, message exportqueue.Message) (int64, error) {
	if err := s.Store.MarkInProgress(ctx, message.JobID, s.Clock().UTC()); err != nil {
		return 0, fmt.Errorf("mark export job in progress: %w", err)
	}

	tmp, err := os.CreateTemp("", "askdb-export-*.csv")
	if err != nil {
		return 0, fmt.Errorf("create temp export file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	rowCount, err := s.writeCSV(ctx, tmp, message.SQL)
	if err != nil {
		return 0, err
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewind temp export file: %w", err)
	}
	info, err := tmp.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat temp export file: %w", err)
	}
	if _, err := s.ObjectStore.Put(ctx, message.ObjectKey, tmp, info.Size(), storage.PutOptions{ContentType: "text/csv"}); err != nil {
		return 0, fmt.Errorf("upload export file: %w", err)
	}
	return rowCount, nil
}

// writeCSV streams the result set into w: one header row of column names,
// then data rows, flushed every BatchSize rows so memory stays bounded
// regardless of result size.
func (s *Service) writeCSV(ctx context.Context, w io.Writer, sqlText string) (int64, error) {
	rows, err := s.DB.QueryContext(ctx, sqlText)
	if err != nil {
		return 0, fmt.Errorf("execute export query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return 0, fmt.Errorf("read export columns: %w", err)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(columns); err != nil {
		return 0, fmt.Errorf("write export header: %w", err)
	}

	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}
	record := make([]string, len(columns))

	var rowCount int64
	inBatch := 0
	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return 0, fmt.Errorf("scan export row: %w", err)
		}
		for i, value := range values {
			record[i] = formatValue(value)
		}
		if err := writer.Write(record); err != nil {
			return 0, fmt.Errorf("write export row: %w", err)
		}
		rowCount++
		inBatch++
		if inBatch >= s.Config.BatchSize {
			writer.Flush()
			if err := writer.Error(); err != nil {
				return 0, fmt.Errorf("flush export batch: %w", err)
			}
			inBatch = 0
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate export rows: %w", err)
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return 0, fmt.Errorf("flush export file: %w", err)
	}
	return rowCount, nil
}

func formatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case []byte:
		return string(typed)
	case time.Time:
		return typed.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(typed)
	}
}

func (s *Service) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.Config.BatchSize <= 0 {
		s.Config.BatchSize = 5000
	}
	if s.Config.PollInterval <= 0 {
		s.Config.PollInterval = time.Second
	}
	if s.Config.LeaseSeconds <= 0 {
		s.Config.LeaseSeconds = 60
	}
	if s.Config.ConsumerID == "" {
		s.Config.ConsumerID = "askdb-worker"
	}
}
