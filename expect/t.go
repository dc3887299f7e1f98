package expect

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// T is the handle a test body receives for one run. It owns the run's
// in-flight Result; once sealed, every further expectation is a usage error.
type T struct {
	ctx  context.Context
	name string
	reg  *Registry
	log  log.Logger

	mu       sync.Mutex
	result   *Result
	sealed   bool
	expected int
	cleanups []func()
}

type tKey struct{}

// NewContext returns a copy of ctx carrying t.
func NewContext(ctx context.Context, t *T) context.Context {
	return context.WithValue(ctx, tKey{}, t)
}

// FromContext returns the T bound to ctx, if any.
func FromContext(ctx context.Context) (*T, bool) {
	t, ok := ctx.Value(tKey{}).(*T)
	return t, ok
}

// Context returns the run context. It is cancelled when the run times out or is aborted.
func (t *T) Context() context.Context {
	return t.ctx
}

// Log returns a logger scoped to the test.
func (t *T) Log() log.Logger {
	return t.log
}

// Name returns the full name of the running test.
func (t *T) Name() string {
	return t.name
}

// Result returns the in-flight result.
func (t *T) Result() *Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Sealed reports whether the run is over.
func (t *T) Sealed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sealed
}

// Expect starts an expectation chain on actual.
func (t *T) Expect(actual any) *Chain {
	t.mustBeActive("expect")
	return &Chain{t: t, actual: actual}
}

// Step records a named step. Recorded steps must be verified before the test
// ends, otherwise the run fails.
func (t *T) Step(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		usagef("step %q recorded after test %q finished", name, t.name)
	}
	t.result.Steps = append(t.result.Steps, name)
}

// VerifySteps asserts that the recorded steps equal expected, in order, and
// then clears them. This mutates the recorded list: a second call verifies
// against an empty list.
func (t *T) VerifySteps(expected []string) bool {
	return t.Expect(expected).ToVerifySteps()
}

// Assertions declares how many assertions the run must record.
func (t *T) Assertions(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n < 0 {
		usagef("expected assertion count must be positive, got %d", n)
	}
	t.expected = n
}

// Fail records an explicit failure.
func (t *T) Fail(reason string) {
	t.mustBeActive("fail")
	t.record(&Assertion{Name: "fail", Message: reason, Pass: false, Info: []Detail{stackDetail()}})
}

// Cleanup registers fn to run after the run is sealed. Cleanups run in
// registration order.
func (t *T) Cleanup(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleanups = append(t.cleanups, fn)
}

// Errored records err as the run error. The first error wins.
func (t *T) Errored(err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		return
	}
	if t.result.Error == nil {
		t.result.Error = err
	}
	t.result.Pass = false
}

// Abort marks the run as interrupted.
func (t *T) Abort() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.sealed {
		t.result.Aborted = true
	}
}

// Seal runs the end-of-run checks, applies the todo inversion when asked to,
// and freezes the result. A todo test that timed out is not an expected
// failure: it keeps its failing result and the timeout error.
func (t *T) Seal(duration time.Duration, todo bool) *Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		return t.result
	}
	r := t.result
	if len(r.Steps) > 0 {
		t.appendLocked(&Assertion{
			Name:    "verifySteps",
			Message: "unverified steps",
			Info:    []Detail{{Label: "steps", Value: slices.Clone(r.Steps)}},
		})
	}
	if t.expected >= 0 && len(r.Assertions) != t.expected && !r.Aborted {
		t.appendLocked(&Assertion{
			Name:    "assertions",
			Message: fmt.Sprintf("expected %d assertions, but %d were run", t.expected, len(r.Assertions)),
		})
	}
	if todo && !IsTimeout(r.Error) {
		r.Pass = !r.Pass
		if !r.Pass {
			t.appendLocked(&Assertion{
				Name:    "todo",
				Message: "test is marked as todo but all assertions passed",
			})
		}
	}
	r.Duration = duration
	t.sealed = true
	return r
}

// RunCleanups runs the registered cleanups once. A panicking cleanup is
// logged and does not prevent the following ones.
func (t *T) RunCleanups() {
	t.mu.Lock()
	cleanups := t.cleanups
	t.cleanups = nil
	t.mu.Unlock()

	for _, fn := range cleanups {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					t.log.Error("Cleanup panicked", "error", rec, "stack", string(debug.Stack()))
				}
			}()
			fn()
		}()
	}
}

func (t *T) mustBeActive(what string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		usagef("%s called after test %q finished", what, t.name)
	}
}

func (t *T) record(a *Assertion) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		usagef("assertion %q recorded after test %q finished", a.Name, t.name)
	}
	t.appendLocked(a)
}

// appendLocked must be called with mu held.
func (t *T) appendLocked(a *Assertion) {
	a.ID = t.reg.assertionID()
	if a.TS.IsZero() {
		a.TS = time.Now()
	}
	t.result.Assertions = append(t.result.Assertions, a)
	t.result.Pass = t.result.Pass && a.Pass
}

func (t *T) takeSteps() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	steps := t.result.Steps
	t.result.Steps = nil
	return steps
}
