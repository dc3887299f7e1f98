package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/dom"
	"github.com/ethereum-optimism/infra/op-harness/exitcodes"
	"github.com/ethereum-optimism/infra/op-harness/expect"
	"github.com/ethereum-optimism/infra/op-harness/logging"
	"github.com/ethereum-optimism/infra/op-harness/reporting"
	"github.com/ethereum-optimism/infra/op-harness/runner"
	"github.com/ethereum-optimism/infra/op-harness/service"
	"github.com/ethereum-optimism/infra/op-harness/storage"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

var _ cliapp.Lifecycle = (*Harness)(nil)

// DefineFunc declares the suites and tests of the harness. Matchers of the
// runner query fx.
type DefineFunc func(r *runner.Runner, fx *dom.Fixture) error

// Harness runs a declared test tree once or periodically, reports every run
// and serves the runner state while it is alive.
type Harness struct {
	config  *Config
	version string

	runner    *runner.Runner
	store     storage.Store
	executor  TestExecutor
	scheduler TestScheduler
	reporter  *RunReporter
	progress  *runner.ProgressObserver
	runLogger *logging.RunLogger
	service   *service.Service

	mu     sync.Mutex
	result *types.TestTree

	running atomic.Bool

	shutdownCallback func(error)
}

func New(ctx context.Context, config *Config, version string, define DefineFunc, shutdownCallback func(error)) (*Harness, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if define == nil {
		return nil, errors.New("a suite definition is required")
	}
	if config.Log == nil {
		config.Log = log.New()
		config.Log.Error("No logger provided, using default")
	}
	if shutdownCallback == nil {
		shutdownCallback = func(error) {}
	}

	config.Log.Debug("Creating harness with config",
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"store", config.Store.URL,
		"logDir", config.LogDir)

	store, err := storage.New(ctx, config.Store, config.Log)
	if err != nil {
		return nil, NewRuntimeError(fmt.Errorf("failed to open store: %w", err))
	}

	fixture := dom.NewFixture()
	rcfg := runner.Config{
		Log:      config.Log,
		Matchers: expect.NewRegistry(expect.WithQuerier(fixture), expect.WithLogger(config.Log)),
		Timeout:  config.DefaultTimeout,
		Bail:     config.Bail,
		Random:   config.Random,
		Store:    store,
	}
	if config.Params != nil {
		config.Params.Apply(&rcfg)
	}

	h := &Harness{
		config:           config,
		version:          version,
		store:            store,
		shutdownCallback: shutdownCallback,
	}
	if config.ShowProgress {
		h.progress = runner.NewProgressObserver(config.Log, config.ProgressInterval)
		rcfg.Observers = append(rcfg.Observers, h.progress)
	}

	h.runner = runner.New(rcfg)
	if err := define(h.runner, fixture); err != nil {
		h.closeResources()
		return nil, NewRuntimeError(fmt.Errorf("failed to define suites: %w", err))
	}
	if errs := h.runner.RegistrationErrors(); len(errs) > 0 {
		h.closeResources()
		return nil, NewRuntimeError(fmt.Errorf("failed to register suites: %w", errors.Join(errs...)))
	}
	config.Log.Info("harness.New: declared test tree", "suites", len(h.runner.Suites()), "tests", len(h.runner.Tests()))

	h.reporter = NewRunReporter(config.Log, h.runner,
		NewConsoleResultFormatter(config.Log),
		reporting.NewTextSummarySink(config.LogDir, true),
		reporting.NewJSONSink(config.LogDir),
	)
	h.runner.AddObserver(h.reporter)
	h.runLogger = logging.NewRunLogger(config.LogDir, "op-harness", config.Log)
	h.runner.AddObserver(h.runLogger)

	h.service = service.New(config.Service, h.runner)
	h.executor = NewDefaultTestExecutor(h.runner, config.Log)
	h.scheduler = NewDefaultTestScheduler(config.RunInterval, config.RunOnce, config.Log)
	return h, nil
}

// Runner returns the runner the harness drives.
func (h *Harness) Runner() *runner.Runner {
	return h.runner
}

// Result returns the tree of the latest scheduled run, or nil.
func (h *Harness) Result() *types.TestTree {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

// Start implements the cliapp.Lifecycle interface.
func (h *Harness) Start(ctx context.Context) error {
	// A re-panicking test body (nocatch) ends up here.
	defer func() {
		if r := recover(); r != nil {
			h.config.Log.Error("Runtime error occurred", "error", r, "stack", string(debug.Stack()))
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	h.running.Store(true)
	if h.config.RunOnce {
		h.config.Log.Info("Starting op-harness in run-once mode", "version", h.version)
	} else {
		h.config.Log.Info("Starting op-harness in continuous mode", "version", h.version, "interval", h.config.RunInterval)
	}

	h.service.Start(ctx)

	h.scheduler.RegisterCallback(h.runTests)
	if err := h.scheduler.Start(ctx); err != nil {
		h.config.Log.Error("Runtime error running tests", "error", err)
		if !IsRuntimeError(err) {
			err = NewRuntimeError(err)
		}
		return err
	}

	if !h.config.RunOnce {
		h.config.Log.Debug("op-harness started successfully")
		return nil
	}

	if h.runner.Status() == runner.StatusRunning {
		h.config.Log.Info("Debug run is still open, waiting for interrupt")
		return nil
	}

	result := h.Result()
	h.config.Log.Info("Tests completed, exiting (run-once mode)")
	if result != nil && runFailed(result) {
		h.config.Log.Warn("Run-once test run completed with failures, returning exit code 1")
		return NewTestFailureError(result.RunID, failedIDs(result))
	}

	go h.shutdownCallback(nil)
	return nil
}

// runTests runs all selected tests once. Runs started through the API are
// reported by the RunReporter as well.
func (h *Harness) runTests(ctx context.Context) error {
	tree, err := h.executor.RunTests(ctx)
	if errors.Is(err, runner.ErrRunning) {
		h.config.Log.Warn("Skipping scheduled run, a run is already in progress")
		return nil
	}
	if err != nil {
		return NewRuntimeError(err)
	}

	h.mu.Lock()
	h.result = tree
	h.mu.Unlock()
	return nil
}

// Stop implements the cliapp.Lifecycle interface.
func (h *Harness) Stop(ctx context.Context) error {
	h.config.Log.Info("Stopping op-harness")

	if !h.running.Swap(false) {
		h.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	var errs []error
	if err := h.scheduler.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := h.runner.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop runner: %w", err))
	}
	if err := h.scheduler.WaitForShutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	h.service.Shutdown()
	if err := h.closeResources(); err != nil {
		errs = append(errs, err)
	}

	h.config.Log.Info("op-harness stopped")
	return errors.Join(errs...)
}

// Stopped implements the cliapp.Lifecycle interface.
func (h *Harness) Stopped() bool {
	return !h.running.Load()
}

func (h *Harness) closeResources() error {
	if h.progress != nil {
		h.progress.Stop()
	}
	if h.runLogger != nil {
		h.runLogger.Close()
	}
	if err := h.store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}
