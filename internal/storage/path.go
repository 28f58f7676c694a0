package storage

import (
	"fmt"
	"path"
	"regexp"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildExportKey is the single source of truth for where an export job's CSV
// lives. The API records this key on the job row before enqueueing, and the
// worker writes to exactly the recorded key.
func BuildExportKey(prefix, jobID string) (string, error) {
	if err := validatePathComponent(jobID, "job id"); err != nil {
		return "", err
	}
	filename := jobID + ".csv"
	if prefix == "" {
		return filename, nil
	}
	return path.Join(prefix, filename), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
