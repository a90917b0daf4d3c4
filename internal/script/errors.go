package script

import (
	"errors"
	"fmt"
)

// Sentinel errors for typed error checking.
var (
	ErrTimeout             = errors.New("execution timed out")
	ErrValidationRejected  = errors.New("source rejected by static validation")
	ErrSyntax              = errors.New("source failed to parse")
	ErrInvalidRequest      = errors.New("invalid execution request")
	ErrUnsupportedLanguage = errors.New("unsupported guest language")
	ErrInternal            = errors.New("internal evaluator fault")
)

// ExecutionError wraps errors with execution context.
type ExecutionError struct {
	ExecID string
	Op     string // The operation that failed
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.ExecID != "" {
		return fmt.Sprintf("execution %s: %s: %s", e.ExecID, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsTimeout returns true if the error is a deadline expiry.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsValidationRejected returns true if the error is a static-validation rejection.
func IsValidationRejected(err error) bool {
	return errors.Is(err, ErrValidationRejected)
}

// IsInternal returns true if the error originated in the evaluator's own
// orchestration rather than in guest code.
func IsInternal(err error) bool {
	return errors.Is(err, ErrInternal)
}
