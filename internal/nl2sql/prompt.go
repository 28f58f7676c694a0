package nl2sql

import "fmt"

// SystemPrompt pins the generator to a single tagged read-only statement.
const SystemPrompt = "You generate safe, read-only PostgreSQL. Return ONLY one SELECT between <sql></sql>. " +
	"Use fully-qualified public.<table> names. No DDL/DML/COPY."

// BuildPrompt assembles the user prompt from the warehouse schema text and
// the glossary-enriched question.
func BuildPrompt(schema, enrichedQuestion string) string {
	return fmt.Sprintf(
		"<schema>\n%s\n</schema>\n\nUser question:\n%s\n\nRules: Only a single SELECT. Use public schema tables. Use GROUP BY when totals are asked.\nReturn:\n<sql> ... </sql>\n",
		schema,
		enrichedQuestion,
	)
}
