package harness

import (
	"errors"
	"fmt"
)

// RuntimeError is a failure of the harness itself, as opposed to a failing
// test. It maps to exit code 2: a bad params file, an unreachable store or
// suites that failed to register.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// TestFailureError reports a finished run with failed or aborted tests (exit code 1)
type TestFailureError struct {
	RunID  string
	Failed []string
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: run %s failed %d test(s)", e.RunID, len(e.Failed))
}

func NewTestFailureError(runID string, failed []string) *TestFailureError {
	return &TestFailureError{RunID: runID, Failed: failed}
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}
