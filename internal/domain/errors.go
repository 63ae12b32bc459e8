package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by repositories when a row addressed by id does not exist.
var ErrNotFound = errors.New("not found")

// ProviderError is returned by the text provider once a call has failed for good.
// Transient reports whether the last failure was of a retryable kind (the retry
// budget was exhausted); terminal failures are returned after a single attempt.
type ProviderError struct {
	Op        string
	Status    int
	Transient bool
	Attempts  int
	Err       error
}

func (e *ProviderError) Error() string {
	kind := "terminal"
	if e.Transient {
		kind = "transient"
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s failed (%s, status %d, %d attempts): %v", e.Op, kind, e.Status, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s failed (%s, %d attempts): %v", e.Op, kind, e.Attempts, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ValidationError marks generated SQL that was rejected before execution.
type ValidationError struct {
	SQL    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("sql rejected: %s", e.Reason)
}

// ExecutionError wraps a datastore rejection of the final statement.
type ExecutionError struct {
	SQL  string
	Hint string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// FatalError aborts a pipeline because the root entity of a stage could not be created.
type FatalError struct {
	Stage string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// StageFailure is one recorded partial failure inside a batch stage.
type StageFailure struct {
	Stage      string `json:"stage"`
	Label      string `json:"label,omitempty"`
	OverviewID int64  `json:"overview_id,omitempty"`
	PassageID  int64  `json:"passage_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Batch      bool   `json:"batch,omitempty"`
	Error      string `json:"error"`
}

// IsTransientProviderError reports whether err carries a ProviderError classified as transient.
func IsTransientProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Transient
}
