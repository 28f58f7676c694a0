package warehouse

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestSchemaTextGroupsByTable(t *testing.T) {
	db, mock := newSQLMock(t)
	executor := NewExecutor(db)

	rows := sqlmock.NewRows([]string{"table_schema", "table_name", "column_name", "data_type"}).
		AddRow("public", "customers", "id", "integer").
		AddRow("public", "customers", "name", "text").
		AddRow("public", "ticket_sales", "sale_date", "date")
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.columns")).WillReturnRows(rows)

	text, err := executor.SchemaText(context.Background())
	if err != nil {
		t.Fatalf("SchemaText() error = %v", err)
	}

	want := "Table public.customers:\n  - id (integer)\n  - name (text)\n\nTable public.ticket_sales:\n  - sale_date (date)"
	if text != want {
		t.Fatalf("SchemaText() = %q, want %q", text, want)
	}
	assertSQLMock(t, mock)
}

func TestSchemaTextEmptySchema(t *testing.T) {
	db, mock := newSQLMock(t)
	executor := NewExecutor(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.columns")).
		WillReturnRows(sqlmock.NewRows([]string{"table_schema", "table_name", "column_name", "data_type"}))

	text, err := executor.SchemaText(context.Background())
	if err != nil {
		t.Fatalf("SchemaText() error = %v", err)
	}
	if text != "" {
		t.Fatalf("SchemaText() = %q, want empty", text)
	}
	assertSQLMock(t, mock)
}
