package harness

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-harness/expect"
	"github.com/ethereum-optimism/infra/op-harness/runner"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

func TestDefaultTestExecutor_RunTests(t *testing.T) {
	executor := NewDefaultTestExecutor(newMenuRunner(t, false), log.New())

	tree, err := executor.RunTests(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, tree.RunID)
	assert.Equal(t, 1, tree.Stats.Total)
	assert.Equal(t, types.TestStatusPass, tree.Stats.Status)
	assert.False(t, runFailed(tree))
	assert.Empty(t, failedIDs(tree))
}

func TestDefaultTestExecutor_RunTests_Failures(t *testing.T) {
	executor := NewDefaultTestExecutor(newMenuRunner(t, true), log.New())

	tree, err := executor.RunTests(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, tree.Stats.Total)
	assert.Equal(t, 1, tree.Stats.Failed)
	assert.True(t, runFailed(tree))
	assert.Equal(t, []string{types.HashID("menu > has a settings item")}, failedIDs(tree))
}

func TestDefaultTestExecutor_RunTests_AlreadyRunning(t *testing.T) {
	r := runner.New(runner.Config{Log: log.New(), Timeout: time.Minute})
	_, err := r.Test("blocks", func(ctx context.Context, _ *expect.T) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	go func() { _ = r.Start(context.Background()) }()
	require.Eventually(t, func() bool { return r.Current() != nil }, 5*time.Second, 10*time.Millisecond)
	defer func() { require.NoError(t, r.Stop(context.Background())) }()

	_, err = NewDefaultTestExecutor(r, log.New()).RunTests(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, runner.ErrRunning)
}

func TestRegistrationErrorsFailTheRun(t *testing.T) {
	r := runner.New(runner.Config{Log: log.New()})
	_, _ = r.With("multi=0").Test("bad tag", func(context.Context, *expect.T) error { return nil })

	_, err := NewDefaultTestExecutor(r, log.New()).RunTests(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registration failed")
}
