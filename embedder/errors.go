package embedder

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownModel reports a model name with no registered profile.
var ErrUnknownModel = errors.New("unknown embedding model")

// ErrorHandling selects what happens after a batch call exhausts its
// retries.
type ErrorHandling string

const (
	// FailFast propagates the failure and aborts the whole Embed call.
	FailFast ErrorHandling = "fail_fast"
	// ZeroVectorFallback substitutes a zero vector of the model
	// dimensionality for every text in the failed sub-call and keeps
	// going.
	ZeroVectorFallback ErrorHandling = "zero_vector_fallback"
)

// ParseErrorHandling validates a configuration string against the
// embedder's accepted error-handling set. Empty selects FailFast.
func ParseErrorHandling(value string) (ErrorHandling, error) {
	switch ErrorHandling(strings.ToLower(value)) {
	case "":
		return FailFast, nil
	case FailFast:
		return FailFast, nil
	case ZeroVectorFallback:
		return ZeroVectorFallback, nil
	}
	return "", fmt.Errorf("invalid error handling strategy %q (valid options: [%s %s])",
		value, FailFast, ZeroVectorFallback)
}
