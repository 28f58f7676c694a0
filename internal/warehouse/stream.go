package warehouse

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
)

type streamState int

const (
	statePreamble streamState = iota
	stateRows
	stateTrailer
	stateDone
)

// Streamer produces the serialized form of one result page as an ordered
// sequence of fragments. Concatenated in order, the fragments form exactly
// the JSON document RunPage would return, with the same top-level shape.
// The producer is pull-based: nothing is fetched ahead of the fragment the
// caller asks for, so transport backpressure throttles the cursor.
//
// A Streamer is single-pass and not restartable. If Next returns an error
// after fragments were already delivered, the document on the wire is
// truncated; the transport, not the body, must signal the failure.
type Streamer struct {
	sqlText    string
	pagination Pagination
	chunkSize  int

	rows     *sql.Rows
	columns  []string
	state    streamState
	firstRow bool
	rowCount int
}

// StreamPage opens the same bounded page query as RunPage and prepares a
// fragment producer over it. The COUNT subquery runs before any fragment is
// produced so pagination metadata is final when the trailer is emitted.
// Callers must Close the streamer on every path.
func (e *Executor) StreamPage(ctx context.Context, sqlText string, page, pageSize, chunkSize int) (*Streamer, error) {
	if page < 1 {
		return nil, fmt.Errorf("page must be >= 1")
	}
	if pageSize < 1 {
		return nil, fmt.Errorf("page size must be >= 1")
	}
	if chunkSize < 1 {
		chunkSize = 100
	}

	offset := (page - 1) * pageSize
	paginated := fmt.Sprintf("SELECT * FROM (%s) AS sub LIMIT %d OFFSET %d", sqlText, pageSize, offset)

	rows, err := e.db.QueryContext(ctx, paginated)
	if err != nil {
		return nil, fmt.Errorf("execute page query: %w", err)
	}

	columns, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("read page columns: %w", err)
	}

	total, err := e.countRows(ctx, sqlText)
	if err != nil {
		_ = rows.Close()
		return nil, err
	}

	return &Streamer{
		sqlText:    sqlText,
		pagination: PaginationFor(page, pageSize, total),
		chunkSize:  chunkSize,
		rows:       rows,
		columns:    columns,
		firstRow:   true,
	}, nil
}

// Next returns the next fragment, or io.EOF after the trailer. On error the
// cursor is released and the streamer is terminal.
func (s *Streamer) Next() ([]byte, error) {
	switch s.state {
	case statePreamble:
		s.state = stateRows
		return s.preamble()
	case stateRows:
		fragment, err := s.rowChunk()
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		if fragment != nil {
			return fragment, nil
		}
		// Cursor exhausted; release it before the trailer goes out.
		if err := s.Close(); err != nil {
			return nil, err
		}
		s.state = stateTrailer
		fallthrough
	case stateTrailer:
		s.state = stateDone
		return s.trailer()
	default:
		return nil, io.EOF
	}
}

// RowCount reports rows emitted so far.
func (s *Streamer) RowCount() int {
	return s.rowCount
}

// Close releases the underlying cursor. Safe to call more than once.
func (s *Streamer) Close() error {
	if s.rows == nil {
		return nil
	}
	rows := s.rows
	s.rows = nil
	if err := rows.Close(); err != nil {
		return fmt.Errorf("close page cursor: %w", err)
	}
	return nil
}

func (s *Streamer) preamble() ([]byte, error) {
	sqlJSON, err := json.Marshal(s.sqlText)
	if err != nil {
		return nil, fmt.Errorf("marshal sql: %w", err)
	}
	columnsJSON, err := json.Marshal(s.columns)
	if err != nil {
		return nil, fmt.Errorf("marshal columns: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(`{"sql": `)
	buf.Write(sqlJSON)
	buf.WriteString(`, "columns": `)
	buf.Write(columnsJSON)
	buf.WriteString(`, "rows": [`)
	return buf.Bytes(), nil
}

// rowChunk serializes up to chunkSize rows; nil means the cursor is done.
func (s *Streamer) rowChunk() ([]byte, error) {
	var buf bytes.Buffer
	emitted := 0
	for emitted < s.chunkSize && s.rows.Next() {
		row, err := scanRow(s.rows, len(s.columns))
		if err != nil {
			return nil, err
		}
		rowJSON, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("marshal row: %w", err)
		}
		if !s.firstRow {
			buf.WriteByte(',')
		}
		buf.Write(rowJSON)
		s.firstRow = false
		emitted++
	}
	if emitted == 0 {
		if err := s.rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate page rows: %w", err)
		}
		return nil, nil
	}
	s.rowCount += emitted
	return buf.Bytes(), nil
}

func (s *Streamer) trailer() ([]byte, error) {
	paginationJSON, err := json.Marshal(s.pagination)
	if err != nil {
		return nil, fmt.Errorf("marshal pagination: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(`], "pagination": `)
	buf.Write(paginationJSON)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
