// Package expect implements the assertion core: the expectation chain, the
// matcher registry and the per-run result records assertions are written to.
package expect

import (
	"errors"
	"fmt"
	"time"
)

// Detail is a label/value pair attached to a failed assertion.
type Detail struct {
	Label string
	Value any
}

// Assertion is a single recorded matcher outcome.
type Assertion struct {
	ID      uint64
	Name    string
	Message string
	Pass    bool
	Info    []Detail
	TS      time.Time
}

// Result aggregates everything recorded during one run of a test.
type Result struct {
	Assertions []*Assertion
	Pass       bool
	Error      error
	Duration   time.Duration
	Aborted    bool
	Steps      []string
	Started    time.Time
}

func newResult() *Result {
	return &Result{Pass: true, Started: time.Now()}
}

// Failed returns the failed assertions in recording order.
func (r *Result) Failed() []*Assertion {
	var failed []*Assertion
	for _, a := range r.Assertions {
		if !a.Pass {
			failed = append(failed, a)
		}
	}
	return failed
}

// TimedOut reports whether the run ended because of its timeout.
func (r *Result) TimedOut() bool {
	return IsTimeout(r.Error)
}

// TimeoutError is recorded on a result when the test body outlived its timeout.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("test took longer than %dms", e.Timeout.Milliseconds())
}

// IsTimeout checks if the error is or wraps a TimeoutError
func IsTimeout(err error) bool {
	var te *TimeoutError
	return err != nil && errors.As(err, &te)
}

// AbortError is recorded on a result when the run was interrupted by a stop request.
type AbortError struct{}

func (e *AbortError) Error() string {
	return "test aborted"
}

// IsAbort checks if the error is or wraps an AbortError
func IsAbort(err error) bool {
	var ae *AbortError
	return err != nil && errors.As(err, &ae)
}

// UsageError reports misuse of the expectation API. It is raised with panic
// so that it aborts the test body, and recovered by the runner.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("usage error: %s", e.Msg)
}

// IsUsageError checks if the error is or wraps a UsageError
func IsUsageError(err error) bool {
	var ue *UsageError
	return err != nil && errors.As(err, &ue)
}

func usagef(format string, args ...any) {
	panic(&UsageError{Msg: fmt.Sprintf(format, args...)})
}

// PanicError wraps a non-error value recovered from a panicking test body.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Recovered converts a recovered panic value into an error.
func Recovered(v any, stack string) error {
	if err, ok := v.(error); ok {
		return err
	}
	return &PanicError{Value: v, Stack: stack}
}
