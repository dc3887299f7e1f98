package types

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-harness/expect"
)

func buildRunTree(t *testing.T) (*Suite, map[string]*Test) {
	t.Helper()
	reg := expect.NewRegistry()
	root := NewSuite(nil, "root", nil, log.New())
	inner := NewSuite(root, "inner", nil, log.New())

	tests := map[string]*Test{
		"pass":    NewTest(root, "pass", noop, nil),
		"fail":    NewTest(inner, "fail", noop, nil),
		"skip":    NewTest(inner, "skip", noop, nil),
		"error":   NewTest(inner, "error", noop, nil),
		"pending": NewTest(root, "pending", noop, nil),
	}
	require.NoError(t, root.Add(tests["pass"]))
	require.NoError(t, root.Add(inner))
	require.NoError(t, root.Add(tests["pending"]))
	require.NoError(t, inner.Add(tests["fail"]))
	require.NoError(t, inner.Add(tests["skip"]))
	require.NoError(t, inner.Add(tests["error"]))

	pass := reg.NewT(context.Background(), "pass", nil)
	pass.Expect(true).ToBeTruthy()
	tests["pass"].AddResult(pass.Seal(2*time.Millisecond, false))

	fail := reg.NewT(context.Background(), "fail", nil)
	fail.Expect(1).ToBe(2)
	tests["fail"].AddResult(fail.Seal(3*time.Millisecond, false))

	tests["skip"].MarkSkipped()

	errored := reg.NewT(context.Background(), "error", nil)
	errored.Errored(errors.New("boom"))
	tests["error"].AddResult(errored.Seal(5*time.Millisecond, false))
	return root, tests
}

func TestBuildTestTree(t *testing.T) {
	root, tests := buildRunTree(t)
	tree := BuildTestTree([]Node{root}, "run-1", nil)

	assert.Equal(t, "run-1", tree.RunID)
	assert.Equal(t, TestTreeStats{
		Total:    5,
		Passed:   1,
		Failed:   1,
		Skipped:  1,
		Errored:  1,
		Pending:  1,
		PassRate: 20,
		Status:   TestStatusError,
	}, tree.Stats)
	assert.Len(t, tree.TestNodes, 5)
	assert.Len(t, tree.FailedNodes, 2)
	assert.Equal(t, 10*time.Millisecond, tree.Duration)

	inner := tree.FindNode(root.Jobs[1].Base().ID)
	require.NotNil(t, inner)
	assert.Equal(t, NodeTypeSuite, inner.Type)
	assert.Equal(t, TestStatusError, inner.Status)
	assert.Equal(t, 8*time.Millisecond, inner.Duration)
	// Recomputing stats does not accumulate durations twice.
	inner.GetTestStats()
	assert.Equal(t, 8*time.Millisecond, inner.Duration)

	failNode := tree.FindNode(tests["fail"].ID)
	require.NotNil(t, failNode)
	assert.Len(t, failNode.Failed, 1)
	assert.Equal(t, 1, failNode.Runs)
}

func TestBuildTestTreeWithInclude(t *testing.T) {
	root, tests := buildRunTree(t)
	tree := BuildTestTree([]Node{root}, "run-2", func(n Node) bool {
		if test, ok := n.(*Test); ok {
			return test == tests["pass"]
		}
		return true
	})

	assert.Equal(t, 1, tree.Stats.Total)
	// The inner suite has no included children and is pruned.
	assert.Nil(t, tree.FindNode(root.Jobs[1].Base().ID))
}

func TestShowOnlyFailed(t *testing.T) {
	root, tests := buildRunTree(t)
	tree := BuildTestTree([]Node{root}, "run-3", nil)
	tree.ShowOnlyFailed()

	visible := map[string]bool{}
	for _, n := range tree.GetVisibleNodes() {
		visible[n.ID] = true
	}
	assert.True(t, visible["root"])
	assert.True(t, visible[root.ID])
	assert.True(t, visible[tests["fail"].ID])
	assert.True(t, visible[tests["error"].ID])
	assert.False(t, visible[tests["pass"].ID])
	assert.False(t, visible[tests["skip"].ID])

	tree.ShowAll()
	assert.Len(t, tree.GetVisibleNodes(), len(tree.AllNodes)+1)
}
