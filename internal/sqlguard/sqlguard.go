// Package sqlguard extracts generated SQL from model output and enforces
// the read-only execution policy. The keyword blocklist stops obviously
// mutating statements; it is a backstop behind a trusted generator, not a
// defense against adversarial SQL.
package sqlguard

import (
	"regexp"
	"strings"
)

var (
	sqlTagPattern  = regexp.MustCompile(`(?is)<sql>([\s\S]*?)</sql>`)
	mutatingWordRe = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|ALTER|DROP|TRUNCATE|MERGE|CALL|COPY|GRANT|REVOKE)\b`)
)

// ExtractSQL returns the trimmed contents of the first <sql>...</sql> pair.
// Text without a tag pair is returned trimmed and unchanged; callers must
// still validate the result.
func ExtractSQL(text string) string {
	if match := sqlTagPattern.FindStringSubmatch(text); match != nil {
		return strings.TrimSpace(match[1])
	}
	return strings.TrimSpace(text)
}

// IsSelect reports whether the statement starts with SELECT after trimming,
// case-insensitively.
func IsSelect(sqlText string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(sqlText)), "select")
}

// IsSafe reports whether the statement contains no whole-word mutating
// keyword. Substrings inside longer identifiers (updated_at, call_sign) do
// not match.
func IsSafe(sqlText string) bool {
	return !mutatingWordRe.MatchString(sqlText)
}
