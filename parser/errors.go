package parser

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMissingJobID reports a submit response that neither completed
// immediately nor carried a job id to poll.
var ErrMissingJobID = errors.New("parse service returned no job id")

// JobError reports a terminal failure on the remote side: the service
// marked the job failed or attached an error message to a completed
// one. Job-level failures are never retried.
type JobError struct {
	SourcePath string
	JobID      string
	Message    string
}

func (e *JobError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("parse job %s for %s failed: %s", e.JobID, e.SourcePath, e.Message)
	}
	return fmt.Sprintf("parse job for %s failed: %s", e.SourcePath, e.Message)
}

// TimeoutError reports that a job did not reach a terminal status
// within the configured poll timeout.
type TimeoutError struct {
	JobID   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job %s did not complete within %v", e.JobID, e.Timeout)
}

// ErrorHandling selects how ParseFiles reacts to a failed file.
type ErrorHandling string

const (
	// FailFast aborts the whole batch on the first failure.
	FailFast ErrorHandling = "fail_fast"
	// ContinueOnError records the failure per file and keeps going
	// with the remaining files.
	ContinueOnError ErrorHandling = "continue_on_error"
)

// ParseErrorHandling validates a configuration string against the
// parser's accepted error-handling set. Empty selects FailFast.
func ParseErrorHandling(value string) (ErrorHandling, error) {
	switch ErrorHandling(strings.ToLower(value)) {
	case "":
		return FailFast, nil
	case FailFast:
		return FailFast, nil
	case ContinueOnError:
		return ContinueOnError, nil
	}
	return "", fmt.Errorf("invalid error handling strategy %q (valid options: [%s %s])",
		value, FailFast, ContinueOnError)
}
