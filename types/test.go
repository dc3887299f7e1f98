package types

import (
	"context"
	"sync"

	"github.com/ethereum-optimism/infra/op-harness/expect"
)

// TestStatus represents the outcome of the latest run of a test
type TestStatus string

const (
	TestStatusPending TestStatus = "pending"
	TestStatusPass    TestStatus = "pass"
	TestStatusFail    TestStatus = "fail"
	TestStatusSkip    TestStatus = "skip"
	TestStatusError   TestStatus = "error"
	TestStatusAborted TestStatus = "aborted"
)

// TestFunc is the body of a test.
type TestFunc func(ctx context.Context, t *expect.T) error

// Test is a leaf job.
type Test struct {
	Job
	Fn TestFunc

	mu      sync.RWMutex
	results []*expect.Result
	skipped bool
}

// NewTest creates a test below parent.
func NewTest(parent *Suite, name string, fn TestFunc, tags []*Tag) *Test {
	return &Test{Job: NewJob(parent, name, tags), Fn: fn}
}

// CanRun implements Node.
func (t *Test) CanRun() bool {
	return !t.Config.Skip
}

// AddResult appends a sealed result.
func (t *Test) AddResult(r *expect.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.results = append(t.results, r)
}

// Results returns the results of every run, oldest first.
func (t *Test) Results() []*expect.Result {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*expect.Result, len(t.results))
	copy(out, t.results)
	return out
}

// LastResults returns the most recent result, or nil.
func (t *Test) LastResults() *expect.Result {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.results) == 0 {
		return nil
	}
	return t.results[len(t.results)-1]
}

// MarkSkipped records that the scheduler skipped the test.
func (t *Test) MarkSkipped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.skipped = true
}

// ClearResults drops previous runs.
func (t *Test) ClearResults() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.results = nil
	t.skipped = false
}

// Status derives the status from the latest result.
func (t *Test) Status() TestStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.results) == 0 {
		if t.skipped {
			return TestStatusSkip
		}
		return TestStatusPending
	}
	return StatusOf(t.results[len(t.results)-1])
}

// StatusOf classifies a single result.
func StatusOf(r *expect.Result) TestStatus {
	switch {
	case r == nil:
		return TestStatusPending
	case r.Aborted:
		return TestStatusAborted
	case r.Pass:
		return TestStatusPass
	case r.Error != nil:
		return TestStatusError
	default:
		return TestStatusFail
	}
}
