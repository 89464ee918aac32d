package engine

import (
	"errors"
	"fmt"
)

// RunError represents a fatal condition detected during a run.
//
// Fatal conditions are distinct from Falsified: a falsified property is
// the engine doing its job and is reported through the Report. A RunError
// means the run itself could not complete meaningfully.
type RunError struct {
	// Code identifies the error category.
	Code RunErrorCode

	// Message is a human-readable description.
	Message string

	// TestID identifies the affected test.
	TestID string

	// Err is the underlying cause, if any.
	Err error
}

// RunErrorCode categorizes run errors.
type RunErrorCode string

const (
	// CodeUnsatisfiable indicates a filter or assumption rejected too many
	// draws. It signals a bad strategy, not a bug in the code under test.
	CodeUnsatisfiable RunErrorCode = "UNSATISFIABLE"

	// CodeFlaky indicates the same sequence produced different outcomes on
	// consecutive replays. Shrinking assumes determinism, so the run
	// aborts rather than report an unreliable example.
	CodeFlaky RunErrorCode = "FLAKY"

	// CodeErrored indicates an error from strategy construction or
	// composite-strategy internals, unrelated to the property under test.
	CodeErrored RunErrorCode = "ERRORED"

	// CodeCancelled indicates the run was aborted at a phase boundary by
	// context cancellation. The report still carries the best failure
	// found before the abort.
	CodeCancelled RunErrorCode = "CANCELLED"
)

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.TestID != "" {
		return fmt.Sprintf("%s: %s (test=%s)", e.Code, e.Message, shortID(e.TestID))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *RunError) Unwrap() error { return e.Err }

// IsUnsatisfiable reports whether err is an Unsatisfiable run error.
func IsUnsatisfiable(err error) bool { return hasCode(err, CodeUnsatisfiable) }

// IsFlaky reports whether err is a Flaky run error.
func IsFlaky(err error) bool { return hasCode(err, CodeFlaky) }

// IsErrored reports whether err is an Errored run error.
func IsErrored(err error) bool { return hasCode(err, CodeErrored) }

// IsCancelled reports whether err is a Cancelled run error.
func IsCancelled(err error) bool { return hasCode(err, CodeCancelled) }

func hasCode(err error, code RunErrorCode) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// shortID abbreviates a hex identity for log and error output.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
