package runner

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/emirpasic/gods/stacks/arraystack"
	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-harness/callbacks"
	"github.com/ethereum-optimism/infra/op-harness/expect"
	"github.com/ethereum-optimism/infra/op-harness/filter"
	"github.com/ethereum-optimism/infra/op-harness/storage"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// Status is the runner state.
type Status string

const (
	StatusReady   Status = "ready"
	StatusRunning Status = "running"
)

// Config holds the configuration for a Runner
type Config struct {
	Log log.Logger
	// Matchers is the matcher registry test bodies assert with. A registry
	// with the built-in matchers is created when nil.
	Matchers *expect.Registry
	// Tags interns the tags of every declared job. Created when nil.
	Tags *types.TagRegistry

	Filter filter.Params
	Random bool
	Seed   *uint64

	// Timeout is the default test timeout, overridden by a timeout=N tag.
	// DefaultTestTimeout is used when zero.
	Timeout time.Duration
	// Bail stops the run after that many failed tests. Zero disables it.
	Bail int
	// Debug forces debug mode: no timeouts, and suite teardown is deferred
	// until Stop.
	Debug bool
	// NoCatch re-panics test body panics in the goroutine calling Start.
	NoCatch bool

	// Store persists the ids of failed tests between runs. Optional.
	Store storage.Store
	// RerunFailed restricts the run to the tests that failed last time.
	RerunFailed bool

	Observers []Observer
}

// Runner registers and executes a tree of suites and tests.
type Runner struct {
	log       log.Logger
	cfg       Config
	matchers  *expect.Registry
	tags      *types.TagRegistry
	callbacks *callbacks.Registry
	tracer    trace.Tracer

	mu          sync.Mutex
	status      Status
	params      filter.Params
	roots       []types.Node
	suites      []*types.Suite
	tests       []*types.Test
	regErrs     []error
	registering []*types.Suite
	debug       bool
	observers   []Observer
	current     *expect.T
	currentTest *types.Test
	runID       string
	plan        *filter.Plan
	started     time.Time

	// per run state, only touched by the walk and finish
	run *runState
}

type runState struct {
	id       string
	ctx      context.Context
	span     trace.Span
	plan     *filter.Plan
	previous []string
	started  time.Time

	active      *arraystack.Stack
	rootVisited int
	deferred    []func()
	failures    int

	abort      chan struct{}
	abortOnce  sync.Once
	walkDone   chan struct{}
	finishOnce sync.Once
	finished   chan struct{}
}

// New creates a Runner.
func New(cfg Config) *Runner {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Matchers == nil {
		cfg.Matchers = expect.NewRegistry(expect.WithLogger(cfg.Log))
	}
	if cfg.Tags == nil {
		cfg.Tags = types.NewTagRegistry()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTestTimeout
	}

	return &Runner{
		log:       cfg.Log,
		cfg:       cfg,
		matchers:  cfg.Matchers,
		tags:      cfg.Tags,
		callbacks: callbacks.New(cfg.Log),
		tracer:    otel.Tracer("test runner"),
		status:    StatusReady,
		params:    cfg.Filter,
		debug:     cfg.Debug,
		observers: slices.Clone(cfg.Observers),
	}
}

// Status returns the runner state.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Suites returns every registered suite in declaration order.
func (r *Runner) Suites() []*types.Suite {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.suites)
}

// Tests returns every registered test in declaration order.
func (r *Runner) Tests() []*types.Test {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.tests)
}

// Roots returns the root suites.
func (r *Runner) Roots() []types.Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.roots)
}

// Tags returns every interned tag.
func (r *Runner) Tags() []*types.Tag {
	return r.tags.All()
}

// Matchers returns the matcher registry.
func (r *Runner) Matchers() *expect.Registry {
	return r.matchers
}

// HasFilter reports whether any inclusion or text filter is set.
func (r *Runner) HasFilter() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.params.HasFilter()
}

// Filter returns the filter params of the next run.
func (r *Runner) Filter() filter.Params {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.params
}

// SetFilter replaces the filter params. It fails while a run is in progress.
func (r *Runner) SetFilter(p filter.Params) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == StatusRunning {
		return fmt.Errorf("cannot change the filter while running")
	}
	r.params = p
	return nil
}

// IsDebug reports whether the runner is in debug mode.
func (r *Runner) IsDebug() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.debug
}

// RunID returns the id of the current or latest run.
func (r *Runner) RunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID
}

// Current returns the running test, if any.
func (r *Runner) Current() *types.Test {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentTest
}

// Summary returns the report tree of the current or latest run. Jobs pruned
// by the filter are left out.
func (r *Runner) Summary() *types.TestTree {
	r.mu.Lock()
	roots, plan, runID := slices.Clone(r.roots), r.plan, r.runID
	r.mu.Unlock()

	var include func(types.Node) bool
	if plan != nil {
		include = plan.Includes
	}
	return types.BuildTestTree(roots, runID, include)
}

// AddObserver subscribes o to runner events.
func (r *Runner) AddObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

func (r *Runner) publish(e Event) {
	r.mu.Lock()
	observers := slices.Clone(r.observers)
	e.RunID = r.runID
	e.Status = r.status
	r.mu.Unlock()

	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	for _, o := range observers {
		o.OnEvent(e)
	}
}

// Expect starts an expectation on the running test. It panics with a usage
// error when no test is running.
func (r *Runner) Expect(actual any) *expect.Chain {
	r.mu.Lock()
	t := r.current
	r.mu.Unlock()
	if t == nil {
		panic(&expect.UsageError{Msg: "expect called outside of a test"})
	}
	return t.Expect(actual)
}

// Step records a step on the running test.
func (r *Runner) Step(name string) {
	r.mu.Lock()
	t := r.current
	r.mu.Unlock()
	if t == nil {
		panic(&expect.UsageError{Msg: "step called outside of a test"})
	}
	t.Step(name)
}

func (r *Runner) setCurrent(test *types.Test, t *expect.T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentTest = test
	r.current = t
}
