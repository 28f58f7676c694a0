// Package warehouse executes validated read-only SQL against the analytics
// database: offset-addressed pages, incremental streaming, batched export
// cursors and schema introspection.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
)

type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalRows  int64 `json:"total_rows"`
	TotalPages int64 `json:"total_pages"`
}

type Page struct {
	Columns    []string   `json:"columns"`
	Rows       [][]any    `json:"rows"`
	Pagination Pagination `json:"pagination"`
}

// PaginationFor computes page metadata; zero total rows yields zero pages.
func PaginationFor(page, pageSize int, totalRows int64) Pagination {
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalRows:  totalRows,
		TotalPages: (totalRows + int64(pageSize) - 1) / int64(pageSize),
	}
}

type Executor struct {
	db *sql.DB
}

func NewExecutor(db *sql.DB) *Executor {
	return &Executor{db: db}
}

func (e *Executor) HealthCheck(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping warehouse db: %w", err)
	}
	return nil
}

// RunPage executes one bounded page of the statement plus an independent
// COUNT over the same subquery. Column names come from the page query's
// result metadata so aliases and computed columns report correctly.
func (e *Executor) RunPage(ctx context.Context, sqlText string, page, pageSize int) (Page, error) {
	if page < 1 {
		return Page{}, fmt.Errorf("page must be >= 1")
	}
	if pageSize < 1 {
		return Page{}, fmt.Errorf("page size must be >= 1")
	}

	offset := (page - 1) * pageSize
	paginated := fmt.Sprintf("SELECT * FROM (%s) AS sub LIMIT %d OFFSET %d", sqlText, pageSize, offset)

	rows, err := e.db.QueryContext(ctx, paginated)
	if err != nil {
		return Page{}, fmt.Errorf("execute page query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Page{}, fmt.Errorf("read page columns: %w", err)
	}

	result := Page{Columns: columns, Rows: make([][]any, 0, pageSize)}
	for rows.Next() {
		row, err := scanRow(rows, len(columns))
		if err != nil {
			return Page{}, err
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("iterate page rows: %w", err)
	}

	total, err := e.countRows(ctx, sqlText)
	if err != nil {
		return Page{}, err
	}
	result.Pagination = PaginationFor(page, pageSize, total)
	return result, nil
}

func (e *Executor) countRows(ctx context.Context, sqlText string) (int64, error) {
	counted := fmt.Sprintf("SELECT COUNT(1) FROM (%s) AS sub", sqlText)
	var total int64
	if err := e.db.QueryRowContext(ctx, counted).Scan(&total); err != nil {
		return 0, fmt.Errorf("execute count query: %w", err)
	}
	return total, nil
}

func scanRow(rows *sql.Rows, width int) ([]any, error) {
	values := make([]any, width)
	pointers := make([]any, width)
	for i := range values {
		pointers[i] = &values[i]
	}
	if err := rows.Scan(pointers...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}
	for i, value := range values {
		values[i] = normalizeValue(value)
	}
	return values, nil
}

// normalizeValue keeps serialized output in natural text form; drivers hand
// text columns back as []byte, which would otherwise encode as base64.
func normalizeValue(value any) any {
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return value
}
