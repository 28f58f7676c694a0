package nl2sql

import "context"

// Generator turns a fully built prompt into raw model output. The output is
// untrusted text; callers extract and validate the SQL it carries.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
