package pipeline

import "errors"

// Kind classifies a pipeline failure. Each kind maps to exactly one
// user-visible status; callers branch on the kind, never on error text.
type Kind string

const (
	// KindNotConfigured means the SQL generator has no credentials. Fixed
	// by the operator, not by retrying.
	KindNotConfigured Kind = "not_configured"
	// KindGenerationFailed is an upstream model failure, retryable by the
	// caller.
	KindGenerationFailed Kind = "generation_failed"
	// KindRejected means the generated SQL failed safety validation. Not
	// retryable with the same question.
	KindRejected Kind = "rejected"
	// KindExecutionFailed is a warehouse failure, retryable by the caller.
	KindExecutionFailed Kind = "execution_failed"
)

// RejectionMessage is the single uniform message for both validation
// checks. SELECT-policy and keyword failures are deliberately not
// distinguishable from the outside.
const RejectionMessage = "generated SQL is unsafe or invalid"

type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf extracts the classification from an error returned by this
// package. The second return is false for foreign errors.
func KindOf(err error) (Kind, bool) {
	var pipelineErr *Error
	if errors.As(err, &pipelineErr) {
		return pipelineErr.Kind, true
	}
	return "", false
}
