package reporting

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/ethereum-optimism/infra/op-harness/ui"
)

// TreeTableFormatter formats test trees as ASCII tables using the tree structure
type TreeTableFormatter struct {
	title          string
	showContainers bool
	showTags       bool
	color          bool
}

// NewTreeTableFormatter creates a new tree-based table formatter. Tag badges
// are colored when color is set.
func NewTreeTableFormatter(title string, showContainers, showTags, color bool) *TreeTableFormatter {
	return &TreeTableFormatter{
		title:          title,
		showContainers: showContainers,
		showTags:       showTags,
		color:          color,
	}
}

// Format formats a test tree as an ASCII table
func (f *TreeTableFormatter) Format(tree *types.TestTree) (string, error) {
	var buf bytes.Buffer

	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.SetTitle(f.title)

	headers := table.Row{"TYPE", "ID", "NAME", "DURATION", "TESTS", "PASSED", "FAILED", "SKIPPED", "STATUS"}
	if f.showTags {
		headers = append(headers, "TAGS")
	}
	t.AppendHeader(headers)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "TYPE", AutoMerge: true},
		{Name: "NAME", WidthMax: 120, WidthMaxEnforcer: text.WrapSoft},
		{Name: "DURATION", Align: text.AlignRight},
		{Name: "TESTS", Align: text.AlignRight},
		{Name: "PASSED", Align: text.AlignRight},
		{Name: "FAILED", Align: text.AlignRight},
		{Name: "SKIPPED", Align: text.AlignRight},
	})

	tree.Walk(func(node *types.TestTreeNode) bool {
		if node.Type == types.NodeTypeRoot {
			return true
		}
		if !node.IsVisible {
			return false
		}
		if !f.showContainers && node.Type != types.NodeTypeTest {
			return true
		}
		f.addNodeRow(t, node)
		return true
	})

	switch tree.Stats.Status {
	case types.TestStatusFail, types.TestStatusError:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	case types.TestStatusSkip, types.TestStatusAborted:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	case types.TestStatusPass:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	default:
		t.SetStyle(table.StyleDefault)
	}

	footer := table.Row{
		"TOTAL",
		"",
		"",
		formatDuration(tree.Duration),
		tree.Stats.Total,
		tree.Stats.Passed,
		tree.Stats.Failed + tree.Stats.Errored,
		tree.Stats.Skipped,
		strings.ToUpper(getStatusString(tree.Stats.Status)),
	}
	if f.showTags {
		footer = append(footer, "")
	}
	t.AppendFooter(footer)

	t.Render()
	return buf.String(), nil
}

func (f *TreeTableFormatter) addNodeRow(t table.Writer, node *types.TestTreeNode) {
	name := node.Name
	if f.showContainers {
		name = treePrefix(node, nil) + name
	}
	stats := node.GetTestStats()

	row := table.Row{
		nodeTypeString(node.Type),
		node.ID,
		name,
		formatDuration(node.Duration),
		stats.Total,
		stats.Passed,
		stats.Failed + stats.Errored,
		stats.Skipped,
		strings.ToUpper(getStatusString(node.Status)),
	}
	if f.showTags {
		row = append(row, tagBadges(node.Tags, f.color))
	}
	t.AppendRow(row)
}

func nodeTypeString(t types.TestTreeNodeType) string {
	switch t {
	case types.NodeTypeSuite:
		return "Suite"
	case types.NodeTypeTest:
		return "Test"
	default:
		return "Unknown"
	}
}

// treePrefix generates the tree-style prefix for a node. Only siblings
// accepted by shown count when deciding whether a node is last.
func treePrefix(node *types.TestTreeNode, shown func(*types.TestTreeNode) bool) string {
	if node.Parent == nil || node.Parent.Type == types.NodeTypeRoot {
		return ""
	}

	var parentIsLast []bool
	for current := node.Parent; current.Parent != nil && current.Parent.Type != types.NodeTypeRoot; current = current.Parent {
		parentIsLast = append([]bool{isLastSibling(current, shown)}, parentIsLast...)
	}
	return ui.BuildTreePrefix(node.Depth-1, isLastSibling(node, shown), parentIsLast)
}

func isLastSibling(node *types.TestTreeNode, shown func(*types.TestTreeNode) bool) bool {
	if node.Parent == nil {
		return true
	}
	var last *types.TestTreeNode
	for _, sibling := range node.Parent.Children {
		if sibling.IsVisible && (shown == nil || shown(sibling)) {
			last = sibling
		}
	}
	return last == nil || last == node
}

// TreeTextFormatter formats test trees as plain text using the tree structure
type TreeTextFormatter struct {
	includeContainers bool
	includeStats      bool
	includeDetails    bool
}

// NewTreeTextFormatter creates a new tree-based text formatter
func NewTreeTextFormatter(includeContainers, includeStats, includeDetails bool) *TreeTextFormatter {
	return &TreeTextFormatter{
		includeContainers: includeContainers,
		includeStats:      includeStats,
		includeDetails:    includeDetails,
	}
}

// Format formats a test tree as plain text
func (f *TreeTextFormatter) Format(tree *types.TestTree) (string, error) {
	var buf bytes.Buffer

	buf.WriteString("Test Results Summary\n")
	buf.WriteString(strings.Repeat("=", 50) + "\n\n")

	if f.includeStats {
		fmt.Fprintf(&buf, "Run ID: %s\n", tree.RunID)
		fmt.Fprintf(&buf, "Duration: %s\n", formatDuration(tree.Duration))
		fmt.Fprintf(&buf, "Total Tests: %d\n", tree.Stats.Total)
		fmt.Fprintf(&buf, "Passed: %d\n", tree.Stats.Passed)
		fmt.Fprintf(&buf, "Failed: %d\n", tree.Stats.Failed)
		fmt.Fprintf(&buf, "Errored: %d\n", tree.Stats.Errored)
		fmt.Fprintf(&buf, "Skipped: %d\n", tree.Stats.Skipped)
		if tree.Stats.Aborted > 0 {
			fmt.Fprintf(&buf, "Aborted: %d\n", tree.Stats.Aborted)
		}
		if tree.Stats.Pending > 0 {
			fmt.Fprintf(&buf, "Pending: %d\n", tree.Stats.Pending)
		}
		fmt.Fprintf(&buf, "Pass Rate: %.1f%%\n", tree.Stats.PassRate)
		fmt.Fprintf(&buf, "Status: %s\n\n", strings.ToUpper(getStatusString(tree.Stats.Status)))
	}

	buf.WriteString("Test Hierarchy:\n")
	buf.WriteString(strings.Repeat("-", 30) + "\n")

	tree.Walk(func(node *types.TestTreeNode) bool {
		if node.Type == types.NodeTypeRoot {
			return true
		}
		if !node.IsVisible {
			return false
		}
		if !f.shown(node) {
			return true
		}
		f.writeNodeText(&buf, node)
		return true
	})

	if len(tree.FailedNodes) > 0 {
		buf.WriteString("\nFailed Tests:\n")
		buf.WriteString(strings.Repeat("-", 20) + "\n")
		for _, node := range tree.FailedNodes {
			fmt.Fprintf(&buf, "- %s [%s]", node.FullName, node.ID)
			if node.Error != nil {
				fmt.Fprintf(&buf, " (Error: %s)", node.Error)
			}
			buf.WriteString("\n")
		}
	}

	return buf.String(), nil
}

func (f *TreeTextFormatter) shown(node *types.TestTreeNode) bool {
	return f.includeContainers || node.Type == types.NodeTypeTest
}

func (f *TreeTextFormatter) writeNodeText(buf *bytes.Buffer, node *types.TestTreeNode) {
	prefix := ""
	if f.includeContainers {
		prefix = treePrefix(node, f.shown)
	}
	line := fmt.Sprintf("%s%s %s", prefix, statusChar(node.Status), node.Name)

	switch node.Type {
	case types.NodeTypeTest:
		line += fmt.Sprintf(" (%s)", formatDuration(node.Duration))
		if node.Runs > 1 {
			line += fmt.Sprintf(" x%d", node.Runs)
		}
	case types.NodeTypeSuite:
		if f.includeStats {
			stats := node.GetTestStats()
			line += fmt.Sprintf(" [%d tests, %d passed, %d failed]", stats.Total, stats.Passed, stats.Failed+stats.Errored)
		}
	}
	if badges := tagBadges(node.Tags, false); badges != "" {
		line += " " + badges
	}
	buf.WriteString(line + "\n")

	if !f.includeDetails {
		return
	}
	indent := strings.Repeat(" ", len([]rune(prefix))+2)
	if node.Error != nil {
		fmt.Fprintf(buf, "%sError: %s\n", indent, node.Error)
	}
	for _, a := range node.Failed {
		fmt.Fprintf(buf, "%s%s: %s\n", indent, a.Name, a.Message)
		for _, d := range a.Info {
			value := strings.ReplaceAll(detailText(d), "\n", "\n"+indent+"    ")
			fmt.Fprintf(buf, "%s  %s: %s\n", indent, d.Label, value)
		}
	}
}

// statusChar returns a character representing the test status
func statusChar(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "✓"
	case types.TestStatusFail:
		return "✗"
	case types.TestStatusSkip:
		return "⊝"
	case types.TestStatusError:
		return "⚠"
	case types.TestStatusAborted:
		return "■"
	default:
		return "?"
	}
}
