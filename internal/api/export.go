package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/exportjob"
	"github.com/askdb/askdb/internal/exportqueue"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/storage"
)

type exportStartRequest struct {
	Question string `json:"question"`
}

type exportStartResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type exportStatusResponse struct {
	JobID       string     `json:"job_id"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	RowCount    *int64     `json:"row_count,omitempty"`
	Error       string     `json:"error,omitempty"`
	DownloadURL string     `json:"download_url,omitempty"`
}

func handleExportStart(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil || deps.Jobs == nil || deps.Queue == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "EXPORT_NOT_CONFIGURED", "export dependencies are not configured", false, nil)
		return
	}

	var request exportStartRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid export request body", false, map[string]any{"details": err.Error()})
		return
	}
	question := strings.TrimSpace(request.Question)
	if question == "" {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	sqlText, err := deps.Pipeline.GenerateSQL(r.Context(), question)
	if err != nil {
		if !writePipelineError(r.Context(), w, err) {
			writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", true, nil)
		}
		return
	}

	jobID := uuid.NewString()
	objectKey, err := storage.BuildExportKey(cfg.Export.Prefix, jobID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "build export key failed", true, nil)
		return
	}

	// The job row must exist before the message is visible to any worker.
	job, err := deps.Jobs.Insert(r.Context(), jobID, objectKey, deps.Clock().UTC())
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "JOB_STORE_ERROR", "failed to record export job", true, nil)
		return
	}
	if err := deps.Queue.Enqueue(r.Context(), exportqueue.Message{
		JobID:     jobID,
		SQL:       sqlText,
		ObjectKey: objectKey,
	}); err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "QUEUE_ERROR", "failed to enqueue export job", true, map[string]any{"job_id": jobID})
		return
	}

	observability.IncrementExportJobs(string(exportjob.StatusPending))
	writeJSON(w, http.StatusOK, exportStartResponse{
		JobID:  job.JobID,
		Status: string(job.Status),
	})
}

func handleExportStatus(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Jobs == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "EXPORT_NOT_CONFIGURED", "export dependencies are not configured", false, nil)
		return
	}

	jobID := r.PathValue("job_id")
	job, err := deps.Jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, exportjob.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "JOB_NOT_FOUND", "export job was not found", false, map[string]any{"job_id": jobID})
			return
		}
		writeError(r.Context(), w, http.StatusBadGateway, "JOB_STORE_ERROR", "failed to load export job", true, nil)
		return
	}

	response := exportStatusResponse{
		JobID:      job.JobID,
		Status:     string(job.Status),
		CreatedAt:  job.CreatedAt,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
		RowCount:   job.RowCount,
		Error:      job.Error,
	}

	if job.Status == exportjob.StatusSuccess && deps.ObjectStore != nil {
		signed, err := deps.ObjectStore.Presign(r.Context(), job.ObjectKey, cfg.Export.PresignExpiry)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadGateway, "STORAGE_ERROR", "failed to presign download", true, nil)
			return
		}
		response.DownloadURL = signed
	}

	writeJSON(w, http.StatusOK, response)
}
