package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/glossary"
	"github.com/askdb/askdb/internal/pipeline"
	"github.com/askdb/askdb/internal/warehouse"
)

func testConfig() config.Config {
	var cfg config.Config
	cfg.Service.Name = "askdb-test"
	cfg.Query.DefaultPageSize = 50
	cfg.Query.MaxPageSize = 1000
	cfg.Query.StreamChunkSize = 100
	cfg.Export.Prefix = "exports"
	cfg.Export.PresignExpiry = time.Hour
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeGenerator struct {
	output string
	err    error
}

func (f *fakeGenerator) Generate(_ context.Context, _ string) (string, error) {
	return f.output, f.err
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func expectSchema(mock sqlmock.Sqlmock) {
	rows := sqlmock.NewRows([]string{"table_schema", "table_name", "column_name", "data_type"}).
		AddRow("public", "customers", "id", "integer").
		AddRow("public", "customers", "name", "text")
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.columns")).WillReturnRows(rows)
}

func newPipeline(db *sql.DB, generator *fakeGenerator) *pipeline.Service {
	if generator == nil {
		return pipeline.NewService(nil, warehouse.NewExecutor(db), glossary.NewEnricher(), testLogger())
	}
	return pipeline.NewService(generator, warehouse.NewExecutor(db), glossary.NewEnricher(), testLogger())
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response body %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func TestHealthEndpoint(t *testing.T) {
	handler := NewHandler(testConfig(), Dependencies{Logger: testLogger()})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	payload := decodeBody(t, recorder)
	if payload["status"] != "ok" || payload["service"] != "askdb-test" {
		t.Fatalf("payload = %v", payload)
	}
	if recorder.Header().Get("X-Trace-ID") == "" {
		t.Fatal("expected trace id header")
	}
}

func TestReadyEndpointReportsFailure(t *testing.T) {
	handler := NewHandler(testConfig(), Dependencies{
		Logger: testLogger(),
		Readiness: func(context.Context) error {
			return errors.New("warehouse unreachable")
		},
	})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", recorder.Code)
	}
	payload := decodeBody(t, recorder)
	if payload["error_code"] != "NOT_READY" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestReadyEndpointOK(t *testing.T) {
	cfg := testConfig()
	cfg.Warehouse.DSN = "postgres://localhost/askdb"
	cfg.ObjectStore.Endpoint = "localhost:9000"
	cfg.ObjectStore.Bucket = "askdb-exports"
	handler := NewHandler(cfg, Dependencies{
		Logger:    testLogger(),
		Readiness: CombineReadinessChecks(CheckWarehouseDSN(cfg), CheckObjectStoreConfig(cfg)),
	})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	handler := NewHandler(testConfig(), Dependencies{Logger: testLogger()})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/metrics", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
}
