package warehouse

import (
	"context"
	"fmt"
	"strings"
)

const schemaQuery = `
SELECT table_schema, table_name, column_name, data_type
FROM information_schema.columns
WHERE table_schema = 'public'
ORDER BY table_schema, table_name, ordinal_position`

// SchemaText renders every public table and column as the human-readable
// description fed into the generation prompt.
func (e *Executor) SchemaText(ctx context.Context) (string, error) {
	rows, err := e.db.QueryContext(ctx, schemaQuery)
	if err != nil {
		return "", fmt.Errorf("query schema columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		builder      strings.Builder
		currentTable string
	)
	for rows.Next() {
		var schema, table, column, dataType string
		if err := rows.Scan(&schema, &table, &column, &dataType); err != nil {
			return "", fmt.Errorf("scan schema column: %w", err)
		}
		qualified := schema + "." + table
		if qualified != currentTable {
			currentTable = qualified
			builder.WriteString("\nTable " + qualified + ":\n")
		}
		builder.WriteString("  - " + column + " (" + dataType + ")\n")
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate schema columns: %w", err)
	}
	return strings.TrimSpace(builder.String()), nil
}
