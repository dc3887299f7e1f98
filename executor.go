package harness

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/runner"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// TestExecutor is responsible for running tests.
type TestExecutor interface {
	RunTests(ctx context.Context) (*types.TestTree, error)
}

// DefaultTestExecutor runs every selected test of a runner.
type DefaultTestExecutor struct {
	runner *runner.Runner
	logger log.Logger
}

func NewDefaultTestExecutor(r *runner.Runner, logger log.Logger) *DefaultTestExecutor {
	return &DefaultTestExecutor{
		runner: r,
		logger: logger,
	}
}

// RunTests starts a run and returns its report tree. In debug mode the run
// is still open when RunTests returns.
func (e *DefaultTestExecutor) RunTests(ctx context.Context) (*types.TestTree, error) {
	e.logger.Info("Running all tests...")
	if err := e.runner.Start(ctx); err != nil {
		e.logger.Error("Error running tests", "error", err)
		return nil, fmt.Errorf("failed to run tests: %w", err)
	}
	tree := e.runner.Summary()
	e.logger.Info("Test run completed", "run_id", tree.RunID, "status", tree.Stats.Status)
	return tree, nil
}

// runFailed reports whether a finished run should fail the process.
func runFailed(tree *types.TestTree) bool {
	switch tree.Stats.Status {
	case types.TestStatusFail, types.TestStatusError, types.TestStatusAborted:
		return true
	}
	return false
}

// failedIDs returns the ids of the failed and aborted tests of tree.
func failedIDs(tree *types.TestTree) []string {
	var ids []string
	for _, n := range tree.TestNodes {
		switch n.Status {
		case types.TestStatusFail, types.TestStatusError, types.TestStatusAborted:
			ids = append(ids, n.ID)
		}
	}
	return ids
}
