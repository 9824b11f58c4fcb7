package reconciliation

import (
	"fmt"

	"github.com/pandawa-stack/ai-bank-recon/pkg/models"
)

// ValidationError reports invalid input: a transaction missing a required
// canonical field, or an out-of-range configuration value. It is returned
// before any matching runs; the engine never partially executes against
// invalid input.
type ValidationError struct {
	Side    models.Side
	ID      string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("invalid %s transaction %q: field %s: %s", e.Side, e.ID, e.Field, e.Message)
	}
	if e.Side != "" {
		return fmt.Sprintf("invalid %s transaction: field %s: %s", e.Side, e.Field, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Message)
	}
	return "invalid input: " + e.Message
}

// InvariantError indicates an engine bug: a transaction consumed twice, or
// a candidate pair referencing an id not present in the input. The run is
// aborted rather than producing a silently wrong result.
type InvariantError struct {
	Message string
}

func (e *InvariantError) Error() string {
	return "reconciliation invariant violated: " + e.Message
}

func invariantf(format string, args ...any) *InvariantError {
	return &InvariantError{Message: fmt.Sprintf(format, args...)}
}

// ErrBatchNotFound is returned when a batch id is unknown to the service.
var ErrBatchNotFound = &Error{Code: "BATCH_NOT_FOUND", Message: "batch not found"}

// ErrBatchNotRunnable is returned when a run is requested for a batch that
// already ran or is running.
var ErrBatchNotRunnable = &Error{Code: "BATCH_NOT_RUNNABLE", Message: "batch is not in a runnable state"}

// Error is a coded service-level error.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
