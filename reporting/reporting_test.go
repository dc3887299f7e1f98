package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-harness/expect"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

func noop(context.Context, *expect.T) error { return nil }

// buildTree returns the tree of a finished run:
//
//	math
//	├── adds (pass, tags ui slow)
//	├── divides (fail)
//	└── nested
//	    ├── parses (error)
//	    └── later (skip)
func buildTree(t *testing.T) *types.TestTree {
	t.Helper()
	reg := expect.NewRegistry()
	tags := types.NewTagRegistry()
	tagged, err := tags.InternAll("ui", "slow")
	require.NoError(t, err)
	skip, err := tags.InternAll(types.TagSkip)
	require.NoError(t, err)

	root := types.NewSuite(nil, "math", nil, log.New())
	nested := types.NewSuite(root, "nested", nil, log.New())
	adds := types.NewTest(root, "adds", noop, tagged)
	divides := types.NewTest(root, "divides", noop, nil)
	parses := types.NewTest(nested, "parses", noop, nil)
	later := types.NewTest(nested, "later", noop, skip)
	require.NoError(t, root.Add(adds))
	require.NoError(t, root.Add(divides))
	require.NoError(t, root.Add(nested))
	require.NoError(t, nested.Add(parses))
	require.NoError(t, nested.Add(later))

	pass := reg.NewT(context.Background(), "adds", nil)
	pass.Expect(2).ToBe(2)
	adds.AddResult(pass.Seal(20*time.Millisecond, false))

	fail := reg.NewT(context.Background(), "divides", nil)
	fail.Expect(1).ToBe(2)
	divides.AddResult(fail.Seal(1500*time.Millisecond, false))

	errored := reg.NewT(context.Background(), "parses", nil)
	errored.Errored(errors.New("unexpected token"))
	parses.AddResult(errored.Seal(5*time.Millisecond, false))

	later.MarkSkipped()
	return types.BuildTestTree([]types.Node{root}, "run-42", nil)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "1.5s", formatDuration(1500*time.Millisecond+300*time.Microsecond))
	assert.Equal(t, "0ms", formatDuration(0))
}

func TestGetStatusString(t *testing.T) {
	for _, status := range []types.TestStatus{
		types.TestStatusPass, types.TestStatusFail, types.TestStatusSkip,
		types.TestStatusError, types.TestStatusAborted, types.TestStatusPending,
	} {
		assert.Equal(t, string(status), getStatusString(status))
	}
	assert.Equal(t, "unknown", getStatusString(types.TestStatus("invalid")))
}

func TestTagBadges(t *testing.T) {
	assert.Equal(t, "[ui] [timeout=10]", tagBadges([]string{"ui", types.TagOnly, "timeout=10"}, false))
	assert.Empty(t, tagBadges([]string{types.TagSkip, types.TagTodo}, false))
}

func TestTreeTextFormatter(t *testing.T) {
	tree := buildTree(t)

	out, err := NewTreeTextFormatter(true, true, true).Format(tree)
	require.NoError(t, err)

	assert.Contains(t, out, "Run ID: run-42")
	assert.Contains(t, out, "Total Tests: 4")
	assert.Contains(t, out, "Status: ERROR")
	assert.Contains(t, out, "⚠ math [4 tests, 1 passed, 2 failed]\n")
	assert.Contains(t, out, "├── ✓ adds (20ms) [ui] [slow]\n")
	assert.Contains(t, out, "├── ✗ divides (1.5s)\n")
	assert.Contains(t, out, "└── ⚠ nested")
	assert.Contains(t, out, "    ├── ⚠ parses (5ms)\n")
	assert.Contains(t, out, "    └── ⊝ later (0ms)\n")
	assert.Contains(t, out, "toBe: ")
	assert.Contains(t, out, "expected: 2")
	assert.Contains(t, out, "received: 1")
	assert.Contains(t, out, "Error: unexpected token")

	assert.Contains(t, out, "Failed Tests:")
	assert.Contains(t, out, "- math > divides ["+types.HashID("math > divides")+"]")
	assert.Contains(t, out, "- math > nested > parses")
}

func TestTreeTextFormatterTestsOnly(t *testing.T) {
	tree := buildTree(t)

	out, err := NewTreeTextFormatter(false, false, false).Format(tree)
	require.NoError(t, err)

	assert.NotContains(t, out, "Run ID")
	assert.NotContains(t, out, "math [")
	assert.Contains(t, out, "\n✓ adds (20ms)")
	assert.NotContains(t, out, "expected: 2")
}

func TestTreeTextFormatterOnlyFailed(t *testing.T) {
	tree := buildTree(t)
	tree.ShowOnlyFailed()

	out, err := NewTreeTextFormatter(true, false, false).Format(tree)
	require.NoError(t, err)

	assert.NotContains(t, out, "adds")
	assert.NotContains(t, out, "later")
	assert.Contains(t, out, "├── ✗ divides")
	assert.Contains(t, out, "    └── ⚠ parses", "parses is the only visible child of nested")
}

func TestTreeTableFormatter(t *testing.T) {
	tree := buildTree(t)

	out, err := NewTreeTableFormatter("Results", true, true, false).Format(tree)
	require.NoError(t, err)

	for _, want := range []string{
		"Results", "TYPE", "TAGS", "SUITE", "TEST", "TOTAL",
		"math", "├── adds", "└── nested", "[ui] [slow]", "ERROR", "SKIP",
		types.HashID("math > nested > parses"),
	} {
		assert.Contains(t, strings.ToUpper(out), strings.ToUpper(want))
	}
}

func TestTreeTableFormatterTestsOnly(t *testing.T) {
	tree := buildTree(t)

	out, err := NewTreeTableFormatter("Results", false, false, false).Format(tree)
	require.NoError(t, err)

	assert.NotContains(t, out, "├──")
	assert.NotContains(t, out, "TAGS")
	assert.Contains(t, out, "divides")
}

func TestTreeJSONFormatter(t *testing.T) {
	tree := buildTree(t)

	out, err := NewTreeJSONFormatter(false).Format(tree)
	require.NoError(t, err)

	var resp TreeJSONResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "run-42", resp.RunID)
	assert.Equal(t, 4, resp.Stats.Total)
	assert.Equal(t, []string{types.HashID("math > divides"), types.HashID("math > nested > parses")}, resp.FailedTests)

	require.NotNil(t, resp.Hierarchy)
	require.Len(t, resp.Hierarchy.Children, 1)
	math := resp.Hierarchy.Children[0]
	assert.Equal(t, types.NodeTypeSuite, math.Type)
	require.Len(t, math.Children, 3)

	adds := math.Children[0]
	assert.Equal(t, []string{"ui", "slow"}, adds.Tags)
	assert.Equal(t, 1, adds.Runs)

	divides := math.Children[1]
	require.Len(t, divides.Failed, 1)
	assert.Equal(t, "toBe", divides.Failed[0].Name)
	assert.Equal(t, "2", divides.Failed[0].Details["expected"])
	assert.Contains(t, divides.Failed[0].Details, "stack")

	parses := math.Children[2].Children[0]
	assert.Equal(t, "unexpected token", parses.Error)
}

func TestSinks(t *testing.T) {
	tree := buildTree(t)
	dir := t.TempDir()

	require.NoError(t, NewTextSummarySink(dir, true).Complete(tree))
	require.NoError(t, NewJSONSink(dir).Complete(tree))

	summary, err := os.ReadFile(filepath.Join(RunDir(dir, "run-42"), SummaryFileName))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "Test Results Summary")
	assert.Contains(t, string(summary), "TOTAL")
	assert.NotContains(t, string(summary), "\x1b[", "color codes are stripped")

	results, err := os.ReadFile(filepath.Join(RunDir(dir, "run-42"), ResultsFileName))
	require.NoError(t, err)
	assert.True(t, json.Valid(results))
}

type bufferWriter struct{ content strings.Builder }

func (b *bufferWriter) Write(content string) error {
	b.content.WriteString(content)
	return nil
}

func TestTableReporter(t *testing.T) {
	buf := &bufferWriter{}
	require.NoError(t, NewTableReporter("Run", true).WithWriter(buf).Complete(buildTree(t)))
	assert.Contains(t, buf.content.String(), "divides")
}

func TestColorEnabled(t *testing.T) {
	assert.False(t, ColorEnabled(&strings.Builder{}))

	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, ColorEnabled(f), "regular files are not terminals")
}
