// Package pipeline orchestrates a question through generation, validation,
// and execution. Single pass, no internal retries; retry policy belongs to
// the caller.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/askdb/askdb/internal/glossary"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/sqlguard"
	"github.com/askdb/askdb/internal/warehouse"
)

type Service struct {
	generator nl2sql.Generator
	executor  *warehouse.Executor
	enricher  *glossary.Enricher
	logger    *slog.Logger
}

// NewService wires the pipeline. A nil generator is allowed; every request
// then fails with KindNotConfigured until credentials are provided.
func NewService(generator nl2sql.Generator, executor *warehouse.Executor, enricher *glossary.Enricher, logger *slog.Logger) *Service {
	if enricher == nil {
		enricher = glossary.NewEnricher()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		generator: generator,
		executor:  executor,
		enricher:  enricher,
		logger:    logger,
	}
}

// Answer is one fully materialized page for a natural-language question.
type Answer struct {
	SQL  string
	Page warehouse.Page
}

// GenerateSQL runs the generation/validation prefix shared by queries and
// exports: enrich the question, build the prompt against the live schema,
// call the model, extract the statement, and validate it. Outcome counting
// happens in Answer and AnswerStream; export starts share this prefix but
// report under the export job metric instead.
func (s *Service) GenerateSQL(ctx context.Context, question string) (string, error) {
	if s.generator == nil {
		return "", newError(KindNotConfigured, "sql generator is not configured", nil)
	}

	schema, err := s.executor.SchemaText(ctx)
	if err != nil {
		return "", newError(KindExecutionFailed, "load warehouse schema", err)
	}

	enriched := s.enricher.Enrich(question)
	prompt := nl2sql.BuildPrompt(schema, enriched)

	started := time.Now()
	raw, err := s.generator.Generate(ctx, prompt)
	observability.ObserveGenerationLatency(time.Since(started))
	if err != nil {
		return "", newError(KindGenerationFailed, "generate sql", err)
	}

	sqlText := sqlguard.ExtractSQL(raw)
	if !sqlguard.IsSelect(sqlText) || !sqlguard.IsSafe(sqlText) {
		// The full statement goes to the log for operators; the caller only
		// sees the uniform rejection.
		s.logger.Warn("generated sql rejected", "sql", sqlText)
		return "", newError(KindRejected, RejectionMessage, nil)
	}
	return sqlText, nil
}

// recordQueryOutcome feeds the per-outcome query counter for the
// interactive query surface.
func recordQueryOutcome(err error) {
	if err == nil {
		observability.IncrementQueries("success")
		return
	}
	if kind, ok := KindOf(err); ok {
		observability.IncrementQueries(string(kind))
	}
}

// Answer generates SQL for the question and executes one page.
func (s *Service) Answer(ctx context.Context, question string, page, pageSize int) (Answer, error) {
	sqlText, err := s.GenerateSQL(ctx, question)
	if err != nil {
		recordQueryOutcome(err)
		return Answer{}, err
	}

	result, err := s.executor.RunPage(ctx, sqlText, page, pageSize)
	if err != nil {
		wrapped := newError(KindExecutionFailed, "execute query", err)
		recordQueryOutcome(wrapped)
		return Answer{}, wrapped
	}
	recordQueryOutcome(nil)
	return Answer{SQL: sqlText, Page: result}, nil
}

// AnswerStream generates SQL and opens a streamer over the requested page.
// The caller owns the returned streamer and must close it. Failures after
// the streamer is handed over are the caller's to surface; a mid-stream
// cursor error leaves a truncated document on the wire.
func (s *Service) AnswerStream(ctx context.Context, question string, page, pageSize, chunkSize int) (string, *warehouse.Streamer, error) {
	sqlText, err := s.GenerateSQL(ctx, question)
	if err != nil {
		recordQueryOutcome(err)
		return "", nil, err
	}

	streamer, err := s.executor.StreamPage(ctx, sqlText, page, pageSize, chunkSize)
	if err != nil {
		wrapped := newError(KindExecutionFailed, "execute streaming query", err)
		recordQueryOutcome(wrapped)
		return "", nil, wrapped
	}
	recordQueryOutcome(nil)
	return sqlText, streamer, nil
}
