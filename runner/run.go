package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"time"

	"github.com/emirpasic/gods/stacks/arraystack"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-harness/callbacks"
	"github.com/ethereum-optimism/infra/op-harness/expect"
	"github.com/ethereum-optimism/infra/op-harness/filter"
	"github.com/ethereum-optimism/infra/op-harness/metrics"
	"github.com/ethereum-optimism/infra/op-harness/storage"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// ErrRunning is returned by Start while a run is in progress.
var ErrRunning = errors.New("runner is already running")

// frame is an entered suite on the active stack.
type frame struct {
	suite *types.Suite
	jobs  []types.Node
	ctx   context.Context
	span  trace.Span
}

// outcome is how the race of a test body ended.
type outcome struct {
	err      error
	panicked bool
	value    any
	aborted  bool
}

// Start runs the registered tree and blocks until the walk ends. Registration
// errors and an invalid filter are returned before anything runs.
//
// In debug mode a run that reaches the end of the plan stays open: suite
// teardown and the after-all hooks only fire on Stop.
func (r *Runner) Start(ctx context.Context) (err error) {
	r.mu.Lock()
	if r.status == StatusRunning {
		r.mu.Unlock()
		return ErrRunning
	}
	if len(r.regErrs) > 0 {
		errs := errors.Join(r.regErrs...)
		r.mu.Unlock()
		return fmt.Errorf("registration failed: %w", errs)
	}
	r.status = StatusRunning
	params := r.params
	roots := slices.Clone(r.roots)
	tests := slices.Clone(r.tests)
	r.mu.Unlock()

	previous := r.loadFailed(ctx)
	if r.cfg.RerunFailed {
		if len(previous) > 0 {
			r.log.Info("Rerunning previously failed tests", "count", len(previous))
			params.Tests.Only = append(slices.Clone(params.Tests.Only), previous...)
		} else {
			r.log.Info("No previously failed tests, running everything")
		}
	}

	resolver, err := filter.NewResolver(params, filter.Options{Random: r.cfg.Random, Seed: r.cfg.Seed, Log: r.log})
	if err != nil {
		r.mu.Lock()
		r.status = StatusReady
		r.mu.Unlock()
		return err
	}
	plan := resolver.Resolve(roots)

	for _, n := range roots {
		if s, ok := n.(*types.Suite); ok {
			s.Reset()
		}
	}
	for _, t := range tests {
		t.ClearResults()
	}

	runID := uuid.New().String()
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("run %s", runID))
	run := &runState{
		id:       runID,
		ctx:      ctx,
		span:     span,
		plan:     plan,
		previous: previous,
		started:  time.Now(),
		active:   arraystack.New(),
		abort:    make(chan struct{}),
		walkDone: make(chan struct{}),
		finished: make(chan struct{}),
	}

	r.mu.Lock()
	r.runID = runID
	r.plan = plan
	r.run = run
	r.started = run.started
	debugMode := r.debug
	r.mu.Unlock()

	metrics.RecordRunnerStatus(true)
	r.log.Info("Starting run", "run_id", runID, "tests", len(plan.Tests()), "debug", debugMode)
	r.publish(Event{Type: EventStatusChanged})

	// A panic escaping the walk (NoCatch) still closes the run.
	defer func() {
		if rec := recover(); rec != nil {
			r.finish(ctx, run)
			panic(rec)
		}
	}()

	r.fire(ctx, r.callbacks, callbacks.BeforeAll, r)

	if r.walk(ctx, run) && r.IsDebug() {
		r.log.Info("Debug run reached the end of the plan, waiting for stop", "run_id", runID)
		return nil
	}
	r.finish(ctx, run)
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return nil
}

// Stop aborts the running test, waits for the walk to end and closes the
// run. It must not be called from a hook or from the goroutine running
// Start; use RequestStop there.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	run := r.run
	running := r.status == StatusRunning
	r.mu.Unlock()
	if !running || run == nil {
		return nil
	}

	r.requestStop(run)
	select {
	case <-run.walkDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	r.finish(ctx, run)
	select {
	case <-run.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestStop aborts the running test and ends the walk without waiting.
func (r *Runner) RequestStop() {
	r.mu.Lock()
	run := r.run
	r.mu.Unlock()
	if run != nil {
		r.requestStop(run)
	}
}

// Done is closed once the current run is finished. It returns nil when no
// run was started.
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run == nil {
		return nil
	}
	return r.run.finished
}

func (r *Runner) requestStop(run *runState) {
	run.abortOnce.Do(func() {
		r.log.Info("Stop requested", "run_id", run.id)
		close(run.abort)
	})
}

// walk visits the plan depth first with an explicit cursor per suite. It
// returns true when the plan was exhausted and false when the run was
// stopped.
func (r *Runner) walk(ctx context.Context, run *runState) bool {
	defer close(run.walkDone)

	for {
		if run.stopping(ctx) {
			return false
		}

		jobs, visited, parentCtx := run.plan.Roots, &run.rootVisited, ctx
		var top *frame
		if v, ok := run.active.Peek(); ok {
			top = v.(*frame)
			jobs, visited, parentCtx = top.jobs, &top.suite.Visited, top.ctx
		}

		if *visited >= len(jobs) {
			if top == nil {
				return true
			}
			run.active.Pop()
			r.leaveSuite(top, run)
			continue
		}

		switch job := jobs[*visited].(type) {
		case *types.Suite:
			*visited++
			r.enterSuite(parentCtx, job, run)
		case *types.Test:
			if !job.CanRun() {
				r.skipTest(parentCtx, job, run)
				*visited++
				continue
			}
			failed := r.runTest(parentCtx, job, run)
			job.Visited++
			if job.Visited >= job.Config.Multi {
				*visited++
			}
			if failed {
				run.failures++
				if r.cfg.Bail > 0 && run.failures >= r.cfg.Bail {
					r.log.Warn("Bail limit reached, stopping", "failures", run.failures, "bail", r.cfg.Bail)
					r.requestStop(run)
				}
			}
		}
	}
}

func (r *Runner) enterSuite(ctx context.Context, s *types.Suite, run *runState) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("suite %s", s.Name))
	run.active.Push(&frame{suite: s, jobs: run.plan.Children(s), ctx: ctx, span: span})
	r.log.Debug("Entering suite", "suite", s.FullName)
	r.publish(Event{Type: EventSuiteStarted, Suite: s})

	r.fire(ctx, r.callbacks, callbacks.BeforeSuite, s)
	r.fire(ctx, s.Callbacks(), callbacks.BeforeSuite, s)
}

// leaveSuite fires the after-suite hooks, scoped first. In debug mode they
// are queued until the run is finished.
func (r *Runner) leaveSuite(f *frame, run *runState) {
	ctx := context.WithoutCancel(f.ctx)
	teardown := func() {
		r.fire(ctx, f.suite.Callbacks(), callbacks.AfterSuite, f.suite)
		r.fire(ctx, r.callbacks, callbacks.AfterSuite, f.suite)
	}
	if r.IsDebug() {
		run.deferred = append(run.deferred, teardown)
	} else {
		teardown()
	}
	f.span.End()
	r.log.Debug("Leaving suite", "suite", f.suite.FullName)
	r.publish(Event{Type: EventSuiteEnded, Suite: f.suite})
}

// skipTest fires the skipped-test hooks, innermost suite first, then global.
func (r *Runner) skipTest(ctx context.Context, t *types.Test, run *runState) {
	t.MarkSkipped()
	for s := t.Parent; s != nil; s = s.Parent {
		r.fire(ctx, s.Callbacks(), callbacks.SkippedTest, t)
	}
	r.fire(ctx, r.callbacks, callbacks.SkippedTest, t)
	metrics.RecordTest(run.id, t.FullName, types.TestStatusSkip, 0)
	r.publish(Event{Type: EventTestSkipped, Test: t})
}

// runTest runs one repetition of a test and reports whether it failed.
func (r *Runner) runTest(ctx context.Context, test *types.Test, run *runState) bool {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("test %s", test.Name))
	defer span.End()

	suites := enclosing(test)
	r.fire(ctx, r.callbacks, callbacks.BeforeTest, test)
	for _, s := range suites {
		r.fire(ctx, s.Callbacks(), callbacks.BeforeTest, test)
	}

	bodyCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	t := r.matchers.NewT(bodyCtx, test.FullName, r.log)
	r.setCurrent(test, t)
	r.publish(Event{Type: EventTestStarted, Test: test})

	start := time.Now()
	out := r.race(ctx, test, t, run)
	cancel()
	r.setCurrent(nil, nil)

	res := t.Seal(time.Since(start), test.Config.Todo && !out.aborted)
	test.AddResult(res)
	t.RunCleanups()

	afterCtx := context.WithoutCancel(ctx)
	for i := len(suites) - 1; i >= 0; i-- {
		r.fire(afterCtx, suites[i].Callbacks(), callbacks.AfterTest, test)
	}
	r.fire(afterCtx, r.callbacks, callbacks.AfterTest, test)

	status := types.StatusOf(res)
	metrics.RecordTest(run.id, test.FullName, status, res.Duration)
	for _, a := range res.Assertions {
		metrics.RecordAssertion(a.Name, a.Pass)
	}
	if res.Error != nil {
		span.RecordError(res.Error)
	}
	r.log.Debug("Test finished", "test", test.FullName, "status", status, "duration", res.Duration, "assertions", len(res.Assertions))
	r.publish(Event{Type: EventTestEnded, Test: test, Result: res})

	if r.cfg.NoCatch && out.err != nil {
		if out.panicked {
			panic(out.value)
		}
		panic(out.err)
	}
	return !res.Pass && !res.Aborted
}

// race waits for the test body, its timeout and the abort signal, whichever
// comes first. A body outliving the race keeps its goroutine until it
// returns; its context is cancelled and any further expectation panics.
func (r *Runner) race(ctx context.Context, test *types.Test, t *expect.T, run *runState) outcome {
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{panicked: true, value: rec, err: expect.Recovered(rec, string(debug.Stack()))}
			}
		}()
		done <- outcome{err: test.Fn(t.Context(), t)}
	}()

	var timeout <-chan time.Time
	d := r.timeoutFor(test)
	if d > 0 && !r.IsDebug() {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case out := <-done:
		t.Errored(out.err)
		return out
	case <-timeout:
		r.log.Warn("Test timed out", "test", test.FullName, "timeout", d)
		t.Errored(&expect.TimeoutError{Timeout: d})
		return outcome{}
	case <-run.abort:
		t.Abort()
		t.Errored(&expect.AbortError{})
		return outcome{aborted: true}
	case <-ctx.Done():
		t.Abort()
		t.Errored(fmt.Errorf("%w: %w", &expect.AbortError{}, context.Cause(ctx)))
		return outcome{aborted: true}
	}
}

func (r *Runner) timeoutFor(test *types.Test) time.Duration {
	if test.Config.Timeout > 0 {
		return test.Config.Timeout
	}
	return r.cfg.Timeout
}

// finish closes the suites left open by a stop, flushes the deferred
// teardown, fires after-all and sets the runner back to ready.
func (r *Runner) finish(ctx context.Context, run *runState) {
	run.finishOnce.Do(func() {
		ctx := context.WithoutCancel(ctx)
		for {
			v, ok := run.active.Pop()
			if !ok {
				break
			}
			r.leaveSuite(v.(*frame), run)
		}
		for _, teardown := range run.deferred {
			teardown()
		}
		run.deferred = nil

		r.fire(ctx, r.callbacks, callbacks.AfterAll, r)
		r.saveFailed(ctx, run)

		summary := r.Summary()
		duration := time.Since(run.started)
		metrics.RecordRun(run.id, string(summary.Stats.Status), summary.Stats, duration)
		metrics.RecordRunnerStatus(false)
		run.span.End()
		r.log.Info("Run finished", "run_id", run.id, "status", summary.Stats.Status,
			"total", summary.Stats.Total, "passed", summary.Stats.Passed, "failed", summary.Stats.Failed,
			"skipped", summary.Stats.Skipped, "duration", duration)

		r.mu.Lock()
		r.status = StatusReady
		r.mu.Unlock()
		r.publish(Event{Type: EventStatusChanged})
		close(run.finished)
	})
}

// fire drains one channel of reg. Failures are logged by the registry; they
// are counted and published but never fail the test.
func (r *Runner) fire(ctx context.Context, reg *callbacks.Registry, channel callbacks.Channel, payload any) {
	if err := reg.Call(ctx, channel, payload); err != nil {
		metrics.RecordCallbackError(string(channel))
		r.publish(Event{Type: EventHookFailed, Err: err})
	}
}

func (r *Runner) loadFailed(ctx context.Context) []string {
	if r.cfg.Store == nil {
		return nil
	}
	var ids []string
	if _, err := storage.GetJSON(ctx, r.cfg.Store, FailedTestsKey, &ids); err != nil {
		r.log.Error("Failed to load previously failed tests", "err", err)
		return nil
	}
	return ids
}

// saveFailed stores the ids of the tests that failed. Previously failed
// tests that did not run this time, pruned by the filter or aborted, are kept.
func (r *Runner) saveFailed(ctx context.Context, run *runState) {
	if r.cfg.Store == nil {
		return
	}
	var failed []string
	planned := make(map[string]struct{})
	for _, t := range run.plan.Tests() {
		planned[t.ID] = struct{}{}
		switch t.Status() {
		case types.TestStatusFail, types.TestStatusError:
			failed = append(failed, t.ID)
		case types.TestStatusPending, types.TestStatusAborted:
			if slices.Contains(run.previous, t.ID) {
				failed = append(failed, t.ID)
			}
		}
	}
	for _, id := range run.previous {
		if _, ok := planned[id]; !ok && !slices.Contains(failed, id) {
			failed = append(failed, id)
		}
	}

	var err error
	if len(failed) == 0 {
		err = r.cfg.Store.Remove(ctx, FailedTestsKey)
	} else {
		err = storage.SetJSON(ctx, r.cfg.Store, FailedTestsKey, failed)
	}
	if err != nil {
		r.log.Error("Failed to save failed tests", "err", err)
		metrics.RecordErrorDetails("save_failed_tests", err)
	}
}

func (run *runState) stopping(ctx context.Context) bool {
	select {
	case <-run.abort:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// enclosing returns the suites around t, outermost first.
func enclosing(t *types.Test) []*types.Suite {
	var suites []*types.Suite
	for s := t.Parent; s != nil; s = s.Parent {
		suites = append(suites, s)
	}
	slices.Reverse(suites)
	return suites
}
