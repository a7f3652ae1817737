package types

import (
	"errors"
	"fmt"
)

// Error taxonomy for the pipeline. Each sentinel marks one failure class with
// its own recovery policy:
//
//   - ErrExploration: the agent could not reach a terminal state. Fatal for
//     the current invocation; surfaced to the caller, never retried here.
//   - ErrValidation: a freshly generated script failed its trial run.
//     Recovered locally; the exploration's own result is reported instead.
//   - ErrExecution: a previously validated script failed at runtime. Triggers
//     exactly one fallback to exploration.
//   - ErrPersistence: the script library is unavailable. Non-fatal; the
//     library degrades to a no-op cache.
var (
	ErrExploration = errors.New("exploration failed")
	ErrValidation  = errors.New("script validation failed")
	ErrExecution   = errors.New("script execution failed")
	ErrPersistence = errors.New("script library unavailable")
)

// ExplorationError wraps ErrExploration with context about why the agent
// could not finish.
func ExplorationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrExploration, fmt.Sprintf(format, args...))
}

// ValidationError wraps ErrValidation with the trial-run failure detail.
func ValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ExecutionError wraps ErrExecution with the runtime failure detail.
func ExecutionError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrExecution, fmt.Sprintf(format, args...))
}

// PersistenceError wraps ErrPersistence with the storage failure detail.
func PersistenceError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPersistence, fmt.Sprintf(format, args...))
}
