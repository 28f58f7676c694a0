// Package exportjob owns the persistent export job record and its status
// lifecycle: PENDING -> IN_PROGRESS -> SUCCESS | FAILED, never backward.
package exportjob

import (
	"errors"
	"time"
	"unicode/utf8"
)

var ErrNotFound = errors.New("export job not found")

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
)

// MaxErrorLength bounds the diagnostic text persisted for a failed job.
const MaxErrorLength = 1500

type Job struct {
	JobID      string
	Status     Status
	ObjectKey  string
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	RowCount   *int64
	Error      string
}

// Terminal reports whether the job reached SUCCESS or FAILED.
func (j Job) Terminal() bool {
	return j.Status == StatusSuccess || j.Status == StatusFailed
}

// TruncateError bounds a diagnostic message for storage. The cut backs up to
// a rune boundary; a byte-level cut through a multi-byte rune would produce
// invalid UTF-8, which Postgres rejects on write.
func TruncateError(message string) string {
	if len(message) <= MaxErrorLength {
		return message
	}
	cut := MaxErrorLength
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}
