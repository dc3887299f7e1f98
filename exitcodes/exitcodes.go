// Package exitcodes defines the exit codes of op-harness.
package exitcodes

// Exit code constants used by op-harness:
//
// * Success (0): every selected test passed, or was skipped
// * TestFailure (1): one or more tests failed or were aborted
// * RuntimeErr (2): the harness itself failed, eg. a bad params file or an unreachable store
const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures
	RuntimeErr  = 2 // Runtime errors
)
