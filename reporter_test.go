package harness

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-harness/reporting"
	"github.com/ethereum-optimism/infra/op-harness/runner"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

type sinkFunc func(tree *types.TestTree) error

func (f sinkFunc) Complete(tree *types.TestTree) error { return f(tree) }

func TestRunReporter_WritesEveryRun(t *testing.T) {
	dir := t.TempDir()
	r := newMenuRunner(t, true)

	var seen []string
	rr := NewRunReporter(log.New(), r,
		reporting.NewTextSummarySink(dir, true),
		reporting.NewJSONSink(dir),
		sinkFunc(func(tree *types.TestTree) error {
			seen = append(seen, tree.RunID)
			return nil
		}),
	)
	r.AddObserver(rr)
	assert.Nil(t, rr.Last())

	require.NoError(t, r.Start(context.Background()))
	first := r.RunID()
	require.NoError(t, r.Start(context.Background()))
	second := r.RunID()

	assert.Equal(t, []string{first, second}, seen)
	require.NotNil(t, rr.Last())
	assert.Equal(t, second, rr.Last().RunID)

	summary, err := os.ReadFile(filepath.Join(reporting.RunDir(dir, first), reporting.SummaryFileName))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "has a settings item")
	assert.FileExists(t, filepath.Join(reporting.RunDir(dir, second), reporting.ResultsFileName))
}

func TestRunReporter_IgnoresOtherEvents(t *testing.T) {
	calls := 0
	rr := NewRunReporter(log.New(), newMenuRunner(t, false), sinkFunc(func(*types.TestTree) error {
		calls++
		return nil
	}))

	rr.OnEvent(runner.Event{Type: runner.EventTestEnded, RunID: "x", Status: runner.StatusReady})
	rr.OnEvent(runner.Event{Type: runner.EventStatusChanged, RunID: "x", Status: runner.StatusRunning})
	rr.OnEvent(runner.Event{Type: runner.EventStatusChanged, Status: runner.StatusReady})
	assert.Zero(t, calls)
}

func TestRunReporter_SinkErrorsDontStopOtherSinks(t *testing.T) {
	r := newMenuRunner(t, false)
	calls := 0
	r.AddObserver(NewRunReporter(log.New(), r,
		sinkFunc(func(*types.TestTree) error { return errors.New("disk full") }),
		sinkFunc(func(*types.TestTree) error {
			calls++
			return nil
		}),
	))

	require.NoError(t, r.Start(context.Background()))
	assert.Equal(t, 1, calls)
}
