package warehouse

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

const customersSQL = "SELECT id, name FROM customers"

func expectCustomersPage(mock sqlmock.Sqlmock, limit, offset int, rows *sqlmock.Rows) {
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT * FROM (SELECT id, name FROM customers) AS sub LIMIT " +
			strconv.Itoa(limit) + " OFFSET " + strconv.Itoa(offset))).
		WillReturnRows(rows)
}

func expectCustomersCount(mock sqlmock.Sqlmock, total int64) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(1) FROM (SELECT id, name FROM customers) AS sub")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(total))
}

func TestRunPageSecondPageOffsets(t *testing.T) {
	db, mock := newSQLMock(t)
	executor := NewExecutor(db)

	pageRows := sqlmock.NewRows([]string{"id", "name"}).
		AddRow(int64(51), "Ada").
		AddRow(int64(52), "Grace")
	expectCustomersPage(mock, 50, 50, pageRows)
	expectCustomersCount(mock, 100)

	page, err := executor.RunPage(context.Background(), customersSQL, 2, 50)
	if err != nil {
		t.Fatalf("RunPage() error = %v", err)
	}
	if len(page.Columns) != 2 || page.Columns[0] != "id" || page.Columns[1] != "name" {
		t.Fatalf("Columns = %v", page.Columns)
	}
	if len(page.Rows) != 2 {
		t.Fatalf("row count = %d", len(page.Rows))
	}
	want := Pagination{Page: 2, PageSize: 50, TotalRows: 100, TotalPages: 2}
	if page.Pagination != want {
		t.Fatalf("Pagination = %+v, want %+v", page.Pagination, want)
	}
	assertSQLMock(t, mock)
}

func TestRunPageNormalizesByteValues(t *testing.T) {
	db, mock := newSQLMock(t)
	executor := NewExecutor(db)

	pageRows := sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), []byte("Ada"))
	expectCustomersPage(mock, 10, 0, pageRows)
	expectCustomersCount(mock, 1)

	page, err := executor.RunPage(context.Background(), customersSQL, 1, 10)
	if err != nil {
		t.Fatalf("RunPage() error = %v", err)
	}
	if got, ok := page.Rows[0][1].(string); !ok || got != "Ada" {
		t.Fatalf("row value = %#v, want string %q", page.Rows[0][1], "Ada")
	}
	assertSQLMock(t, mock)
}

func TestRunPageEmptyResult(t *testing.T) {
	db, mock := newSQLMock(t)
	executor := NewExecutor(db)

	expectCustomersPage(mock, 50, 0, sqlmock.NewRows([]string{"id", "name"}))
	expectCustomersCount(mock, 0)

	page, err := executor.RunPage(context.Background(), customersSQL, 1, 50)
	if err != nil {
		t.Fatalf("RunPage() error = %v", err)
	}
	if len(page.Rows) != 0 {
		t.Fatalf("row count = %d, want 0", len(page.Rows))
	}
	if page.Pagination.TotalPages != 0 {
		t.Fatalf("TotalPages = %d, want 0", page.Pagination.TotalPages)
	}
	assertSQLMock(t, mock)
}

func TestRunPagePropagatesQueryError(t *testing.T) {
	db, mock := newSQLMock(t)
	executor := NewExecutor(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM (SELECT id, name FROM customers) AS sub LIMIT 50 OFFSET 0")).
		WillReturnError(errors.New("relation does not exist"))

	if _, err := executor.RunPage(context.Background(), customersSQL, 1, 50); err == nil {
		t.Fatal("expected execution error")
	}
	assertSQLMock(t, mock)
}

func TestRunPageRejectsInvalidBounds(t *testing.T) {
	db, _ := newSQLMock(t)
	executor := NewExecutor(db)

	if _, err := executor.RunPage(context.Background(), customersSQL, 0, 50); err == nil {
		t.Fatal("expected error for page 0")
	}
	if _, err := executor.RunPage(context.Background(), customersSQL, 1, 0); err == nil {
		t.Fatal("expected error for page size 0")
	}
}

func TestPaginationForCeilDivision(t *testing.T) {
	cases := []struct {
		total int64
		size  int
		want  int64
	}{
		{0, 50, 0},
		{1, 50, 1},
		{50, 50, 1},
		{51, 50, 2},
		{100, 50, 2},
		{101, 50, 3},
	}
	for _, tc := range cases {
		if got := PaginationFor(1, tc.size, tc.total).TotalPages; got != tc.want {
			t.Fatalf("PaginationFor(total=%d, size=%d).TotalPages = %d, want %d", tc.total, tc.size, got, tc.want)
		}
	}
}
