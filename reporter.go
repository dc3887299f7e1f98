package harness

import (
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/metrics"
	"github.com/ethereum-optimism/infra/op-harness/reporting"
	"github.com/ethereum-optimism/infra/op-harness/runner"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// RunReporter hands the report tree of every finished run to its sinks,
// whether the run was started by the scheduler or through the API.
type RunReporter struct {
	logger log.Logger
	runner *runner.Runner
	sinks  []reporting.Sink

	mu   sync.Mutex
	last *types.TestTree
}

var _ runner.Observer = (*RunReporter)(nil)

func NewRunReporter(logger log.Logger, r *runner.Runner, sinks ...reporting.Sink) *RunReporter {
	return &RunReporter{logger: logger, runner: r, sinks: sinks}
}

func (rr *RunReporter) OnEvent(e runner.Event) {
	if e.Type != runner.EventStatusChanged || e.Status != runner.StatusReady || e.RunID == "" {
		return
	}
	tree := rr.runner.Summary()

	rr.mu.Lock()
	rr.last = tree
	rr.mu.Unlock()

	for _, sink := range rr.sinks {
		if err := sink.Complete(tree); err != nil {
			rr.logger.Error("Failed to report run", "run_id", tree.RunID, "sink", sinkName(sink), "error", err)
			metrics.RecordErrorDetails("report", err)
		}
	}
}

// Last returns the tree of the latest reported run, or nil.
func (rr *RunReporter) Last() *types.TestTree {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return rr.last
}

func sinkName(s reporting.Sink) string {
	switch s.(type) {
	case *reporting.TextSummarySink:
		return "text"
	case *reporting.JSONSink:
		return "json"
	case *ConsoleResultFormatter:
		return "console"
	default:
		return "custom"
	}
}
