// Package runner schedules and executes a job tree.
//
// The main components are:
//   - Runner: owns the registered suites and tests, the lifecycle hooks and the run state
//   - Decl: builder declaring suites and tests with tags (skip, only, todo, debug, key=value)
//   - Observer: receives status and suite/test events, see NewProgressObserver
//
// A run resolves the filters into a plan, then walks it depth first with an
// explicit cursor per suite. Exactly one test body runs at a time; it races
// its timeout and Stop. Hooks of one channel run concurrently and the channel
// is drained before the walk moves on.
package runner
