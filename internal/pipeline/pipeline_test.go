package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/askdb/askdb/internal/warehouse"
)

type fakeGenerator struct {
	output     string
	err        error
	lastPrompt string
	calls      int
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.lastPrompt = prompt
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

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func expectSchema(mock sqlmock.Sqlmock) {
	rows := sqlmock.NewRows([]string{"table_schema", "table_name", "column_name", "data_type"}).
		AddRow("public", "customers", "id", "integer").
		AddRow("public", "customers", "name", "text")
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.columns")).WillReturnRows(rows)
}

func TestAnswerHappyPath(t *testing.T) {
	db, mock := newSQLMock(t)
	generator := &fakeGenerator{output: "<sql>SELECT id, name FROM customers</sql>"}
	service := NewService(generator, warehouse.NewExecutor(db), nil, testLogger())

	expectSchema(mock)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM (SELECT id, name FROM customers) AS sub LIMIT 50 OFFSET 0")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "Ada"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(1) FROM (SELECT id, name FROM customers) AS sub")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))

	answer, err := service.Answer(context.Background(), "who are our customers", 1, 50)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.SQL != "SELECT id, name FROM customers" {
		t.Fatalf("SQL = %q", answer.SQL)
	}
	if len(answer.Page.Rows) != 1 {
		t.Fatalf("row count = %d", len(answer.Page.Rows))
	}
	if !strings.Contains(generator.lastPrompt, "Table public.customers") {
		t.Fatalf("prompt missing schema: %q", generator.lastPrompt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestAnswerRejectsMutatingStatement(t *testing.T) {
	db, mock := newSQLMock(t)
	generator := &fakeGenerator{output: "<sql>DELETE FROM customers</sql>"}
	service := NewService(generator, warehouse.NewExecutor(db), nil, testLogger())

	expectSchema(mock)

	_, err := service.Answer(context.Background(), "delete everyone", 1, 50)
	kind, ok := KindOf(err)
	if !ok || kind != KindRejected {
		t.Fatalf("error = %v, want KindRejected", err)
	}
	if err.Error() != RejectionMessage {
		t.Fatalf("message = %q, want uniform rejection", err.Error())
	}
	// No execution may follow a rejection.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected warehouse calls after rejection: %v", err)
	}
}

func TestAnswerRejectsUntaggedNonSelect(t *testing.T) {
	db, mock := newSQLMock(t)
	generator := &fakeGenerator{output: "I cannot answer that question."}
	service := NewService(generator, warehouse.NewExecutor(db), nil, testLogger())

	expectSchema(mock)

	_, err := service.Answer(context.Background(), "hello", 1, 50)
	if kind, ok := KindOf(err); !ok || kind != KindRejected {
		t.Fatalf("error = %v, want KindRejected", err)
	}
}

func TestAnswerNotConfigured(t *testing.T) {
	db, _ := newSQLMock(t)
	service := NewService(nil, warehouse.NewExecutor(db), nil, testLogger())

	_, err := service.Answer(context.Background(), "anything", 1, 50)
	if kind, ok := KindOf(err); !ok || kind != KindNotConfigured {
		t.Fatalf("error = %v, want KindNotConfigured", err)
	}
}

func TestAnswerGenerationFailure(t *testing.T) {
	db, mock := newSQLMock(t)
	generator := &fakeGenerator{err: errors.New("model unavailable")}
	service := NewService(generator, warehouse.NewExecutor(db), nil, testLogger())

	expectSchema(mock)

	_, err := service.Answer(context.Background(), "anything", 1, 50)
	if kind, ok := KindOf(err); !ok || kind != KindGenerationFailed {
		t.Fatalf("error = %v, want KindGenerationFailed", err)
	}
}

func TestAnswerExecutionFailure(t *testing.T) {
	db, mock := newSQLMock(t)
	generator := &fakeGenerator{output: "<sql>SELECT 1</sql>"}
	service := NewService(generator, warehouse.NewExecutor(db), nil, testLogger())

	expectSchema(mock)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM (SELECT 1) AS sub")).
		WillReturnError(errors.New("relation does not exist"))

	_, err := service.Answer(context.Background(), "anything", 1, 50)
	if kind, ok := KindOf(err); !ok || kind != KindExecutionFailed {
		t.Fatalf("error = %v, want KindExecutionFailed", err)
	}
}

func queriesTotalSum(t *testing.T) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, family := range families {
		if family.GetName() != "askdb_queries_total" {
			continue
		}
		var sum float64
		for _, metric := range family.GetMetric() {
			sum += metric.GetCounter().GetValue()
		}
		return sum
	}
	return 0
}

func TestGenerateSQLAloneLeavesQueryCounterUntouched(t *testing.T) {
	db, mock := newSQLMock(t)
	generator := &fakeGenerator{output: "<sql>SELECT id FROM customers</sql>"}
	service := NewService(generator, warehouse.NewExecutor(db), nil, testLogger())

	expectSchema(mock)

	before := queriesTotalSum(t)
	if _, err := service.GenerateSQL(context.Background(), "export all customers"); err != nil {
		t.Fatalf("GenerateSQL() error = %v", err)
	}
	// Export starts call GenerateSQL directly; they must not show up as
	// query traffic.
	if after := queriesTotalSum(t); after != before {
		t.Fatalf("askdb_queries_total = %v after bare GenerateSQL, want %v", after, before)
	}
}

func TestAnswerCountsExactlyOneQueryOutcome(t *testing.T) {
	db, mock := newSQLMock(t)
	generator := &fakeGenerator{output: "<sql>SELECT id, name FROM customers</sql>"}
	service := NewService(generator, warehouse.NewExecutor(db), nil, testLogger())

	expectSchema(mock)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM (SELECT id, name FROM customers) AS sub LIMIT 50 OFFSET 0")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "Ada"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(1) FROM (SELECT id, name FROM customers) AS sub")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))

	before := queriesTotalSum(t)
	if _, err := service.Answer(context.Background(), "who are our customers", 1, 50); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if after := queriesTotalSum(t); after != before+1 {
		t.Fatalf("askdb_queries_total = %v after Answer, want %v", after, before+1)
	}
}

func TestAnswerStreamHandsOverStreamer(t *testing.T) {
	db, mock := newSQLMock(t)
	generator := &fakeGenerator{output: "<sql>SELECT id, name FROM customers</sql>"}
	service := NewService(generator, warehouse.NewExecutor(db), nil, testLogger())

	expectSchema(mock)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM (SELECT id, name FROM customers) AS sub LIMIT 50 OFFSET 0")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "Ada"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(1) FROM (SELECT id, name FROM customers) AS sub")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))

	sqlText, streamer, err := service.AnswerStream(context.Background(), "who are our customers", 1, 50, 10)
	if err != nil {
		t.Fatalf("AnswerStream() error = %v", err)
	}
	defer func() { _ = streamer.Close() }()
	if sqlText != "SELECT id, name FROM customers" {
		t.Fatalf("SQL = %q", sqlText)
	}
	fragment, err := streamer.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if !strings.Contains(string(fragment), `"columns"`) {
		t.Fatalf("preamble = %q", fragment)
	}
}
