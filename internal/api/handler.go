package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/exportjob"
	"github.com/askdb/askdb/internal/exportqueue"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/pipeline"
	"github.com/askdb/askdb/internal/storage"
	"github.com/askdb/askdb/internal/warehouse"
)

type ReadinessCheck func(ctx context.Context) error

// QueryPipeline is the generation/validation/execution pipeline the
// handlers call into. Satisfied by *pipeline.Service.
type QueryPipeline interface {
	Answer(ctx context.Context, question string, page, pageSize int) (pipeline.Answer, error)
	AnswerStream(ctx context.Context, question string, page, pageSize, chunkSize int) (string, *warehouse.Streamer, error)
	GenerateSQL(ctx context.Context, question string) (string, error)
}

type JobStore interface {
	Insert(ctx context.Context, jobID, objectKey string, createdAt time.Time) (exportjob.Job, error)
	Get(ctx context.Context, jobID string) (exportjob.Job, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	Pipeline          QueryPipeline
	Jobs              JobStore
	Queue             exportqueue.Queue
	ObjectStore       storage.ObjectStore
	Clock             func() time.Time
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/query", func(w http.ResponseWriter, r *http.Request) {
		handleQuery(cfg, deps, w, r)
	})
	mux.HandleFunc("POST /v1/export/start", func(w http.ResponseWriter, r *http.Request) {
		handleExportStart(cfg, deps, w, r)
	})
	mux.HandleFunc("GET /v1/export/status/{job_id}", func(w http.ResponseWriter, r *http.Request) {
		handleExportStatus(cfg, deps, w, r)
	})

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckWarehouseDSN(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Warehouse.DSN == "" {
			return errors.New("warehouse dsn is not configured")
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}

// writePipelineError maps each pipeline failure kind to its fixed status.
// Returns false for errors that are not pipeline classifications.
func writePipelineError(ctx context.Context, w http.ResponseWriter, err error) bool {
	kind, ok := pipeline.KindOf(err)
	if !ok {
		return false
	}
	switch kind {
	case pipeline.KindNotConfigured:
		writeError(ctx, w, http.StatusServiceUnavailable, "GENERATOR_NOT_CONFIGURED", "sql generation is not configured", false, nil)
	case pipeline.KindGenerationFailed:
		writeError(ctx, w, http.StatusBadGateway, "GENERATION_FAILED", "sql generation failed", true, nil)
	case pipeline.KindRejected:
		writeError(ctx, w, http.StatusBadRequest, "SQL_REJECTED", pipeline.RejectionMessage, false, nil)
	case pipeline.KindExecutionFailed:
		writeError(ctx, w, http.StatusBadGateway, "QUERY_EXECUTION_FAILED", "query execution failed", true, nil)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", true, nil)
	}
	return true
}
