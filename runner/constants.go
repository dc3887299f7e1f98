package runner

import "time"

const (
	// DefaultTestTimeout is the default timeout for individual tests
	DefaultTestTimeout = 5 * time.Second

	// FailedTestsKey is the storage key of the ids of the tests that failed in
	// the previous run.
	FailedTestsKey = "failed-tests"

	// DefaultProgressInterval is how often the console observer logs progress.
	DefaultProgressInterval = 30 * time.Second
)
