package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/warehouse"
)

type queryRequest struct {
	Question string `json:"question"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Stream   bool   `json:"stream"`
}

type queryResponse struct {
	SQL        string               `json:"sql"`
	Columns    []string             `json:"columns"`
	Rows       [][]any              `json:"rows"`
	Pagination warehouse.Pagination `json:"pagination"`
}

func handleQuery(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "GENERATOR_NOT_CONFIGURED", "sql generation is not configured", false, nil)
		return
	}

	var request queryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}

	question := strings.TrimSpace(request.Question)
	if question == "" {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	page, pageSize, err := resolvePageBounds(cfg, request.Page, request.PageSize)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "INVALID_PAGINATION", err.Error(), false, nil)
		return
	}

	if request.Stream {
		streamQuery(cfg, deps, w, r, question, page, pageSize)
		return
	}

	answer, err := deps.Pipeline.Answer(r.Context(), question, page, pageSize)
	if err != nil {
		if !writePipelineError(r.Context(), w, err) {
			writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", true, nil)
		}
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		SQL:        answer.SQL,
		Columns:    answer.Page.Columns,
		Rows:       answer.Page.Rows,
		Pagination: answer.Page.Pagination,
	})
}

// streamQuery writes the result as one JSON document in chunks, flushing
// after every fragment. Once the first fragment is on the wire the status
// is committed; a later cursor failure can only truncate the document, so
// it is logged and the connection is left to signal the error.
func streamQuery(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request, question string, page, pageSize int) {
	_, streamer, err := deps.Pipeline.AnswerStream(r.Context(), question, page, pageSize, cfg.Query.StreamChunkSize)
	if err != nil {
		if !writePipelineError(r.Context(), w, err) {
			writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", true, nil)
		}
		return
	}
	defer func() { _ = streamer.Close() }()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	for {
		fragment, err := streamer.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if deps.Logger != nil {
				deps.Logger.ErrorContext(r.Context(), "query stream aborted mid-document", slog.Any("error", err))
			}
			return
		}
		if _, err := w.Write(fragment); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	observability.AddStreamedRows(streamer.RowCount())
}

func resolvePageBounds(cfg config.Config, page, pageSize int) (int, int, error) {
	if page == 0 {
		page = 1
	}
	if page < 1 {
		return 0, 0, errors.New("page must be >= 1")
	}
	if pageSize == 0 {
		pageSize = cfg.Query.DefaultPageSize
	}
	if pageSize < 1 {
		return 0, 0, errors.New("page_size must be >= 1")
	}
	if cfg.Query.MaxPageSize > 0 && pageSize > cfg.Query.MaxPageSize {
		pageSize = cfg.Query.MaxPageSize
	}
	return page, pageSize, nil
}
