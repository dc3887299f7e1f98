package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/ethereum-optimism/infra/op-harness/expect"
	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/ethereum-optimism/infra/op-harness/ui"
)

// TreeFormatter renders a report tree.
type TreeFormatter interface {
	Format(tree *types.TestTree) (string, error)
}

// ReportWriter defines the interface for writing reports to various destinations
type ReportWriter interface {
	Write(content string) error
}

// FileWriter writes reports to a file
type FileWriter struct {
	path string
}

func NewFileWriter(path string) *FileWriter {
	return &FileWriter{path: path}
}

func (fw *FileWriter) Write(content string) error {
	return os.WriteFile(fw.path, []byte(content), 0644)
}

// StdoutWriter writes reports to stdout
type StdoutWriter struct{}

func NewStdoutWriter() *StdoutWriter {
	return &StdoutWriter{}
}

func (sw *StdoutWriter) Write(content string) error {
	_, err := fmt.Print(content)
	return err
}

// ColorEnabled reports whether w is a terminal that can take ANSI colors.
func ColorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// tagBadges renders the tags of a node, leaving out the special ones which its
// status already reflects.
func tagBadges(names []string, color bool) string {
	var ordinary []string
	for _, name := range names {
		switch name {
		case types.TagSkip, types.TagOnly, types.TagDebug, types.TagTodo:
			continue
		}
		ordinary = append(ordinary, name)
	}
	return ui.Badges(ordinary, func(name string) string {
		return types.Palette[types.TagColor(name)]
	}, color)
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}

// getStatusString returns a consistent lowercase status string
func getStatusString(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass, types.TestStatusFail, types.TestStatusSkip,
		types.TestStatusError, types.TestStatusAborted, types.TestStatusPending:
		return string(status)
	default:
		return "unknown"
	}
}

// TreeJSONResponse represents the complete JSON response for a test tree
type TreeJSONResponse struct {
	RunID       string              `json:"runId"`
	Timestamp   time.Time           `json:"timestamp"`
	Duration    time.Duration       `json:"duration"`
	Stats       types.TestTreeStats `json:"stats"`
	Hierarchy   *TreeNodeJSON       `json:"hierarchy,omitempty"`
	FailedTests []string            `json:"failedTests"`
}

// TreeNodeJSON represents a tree node in JSON format
type TreeNodeJSON struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	FullName string                 `json:"fullName,omitempty"`
	Type     types.TestTreeNodeType `json:"type"`
	Status   types.TestStatus       `json:"status"`
	Duration time.Duration          `json:"duration"`
	Tags     []string               `json:"tags,omitempty"`
	Runs     int                    `json:"runs,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Failed   []AssertionJSON        `json:"failed,omitempty"`
	Children []TreeNodeJSON         `json:"children,omitempty"`
}

// AssertionJSON is a failed assertion in JSON format.
type AssertionJSON struct {
	Name    string            `json:"name"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// TreeJSONFormatter formats test trees as JSON.
type TreeJSONFormatter struct {
	indent bool
}

func NewTreeJSONFormatter(indent bool) *TreeJSONFormatter {
	return &TreeJSONFormatter{indent: indent}
}

// Response builds the JSON view of a tree.
func (f *TreeJSONFormatter) Response(tree *types.TestTree) *TreeJSONResponse {
	resp := &TreeJSONResponse{
		RunID:       tree.RunID,
		Timestamp:   tree.Timestamp,
		Duration:    tree.Duration,
		Stats:       tree.Stats,
		FailedTests: make([]string, 0, len(tree.FailedNodes)),
	}
	root := nodeJSON(tree.Root)
	resp.Hierarchy = &root
	for _, n := range tree.FailedNodes {
		resp.FailedTests = append(resp.FailedTests, n.ID)
	}
	return resp
}

func (f *TreeJSONFormatter) Format(tree *types.TestTree) (string, error) {
	var (
		data []byte
		err  error
	)
	if f.indent {
		data, err = json.MarshalIndent(f.Response(tree), "", "  ")
	} else {
		data, err = json.Marshal(f.Response(tree))
	}
	if err != nil {
		return "", fmt.Errorf("failed to marshal tree: %w", err)
	}
	return string(data) + "\n", nil
}

func nodeJSON(n *types.TestTreeNode) TreeNodeJSON {
	out := TreeNodeJSON{
		ID:       n.ID,
		Name:     n.Name,
		FullName: n.FullName,
		Type:     n.Type,
		Status:   n.Status,
		Duration: n.Duration,
		Tags:     n.Tags,
		Runs:     n.Runs,
	}
	if n.Error != nil {
		out.Error = n.Error.Error()
	}
	for _, a := range n.Failed {
		out.Failed = append(out.Failed, assertionJSON(a))
	}
	for _, child := range n.Children {
		out.Children = append(out.Children, nodeJSON(child))
	}
	return out
}

func assertionJSON(a *expect.Assertion) AssertionJSON {
	out := AssertionJSON{Name: a.Name, Message: a.Message}
	if len(a.Info) > 0 {
		out.Details = make(map[string]string, len(a.Info))
		for _, d := range a.Info {
			out.Details[d.Label] = detailText(d)
		}
	}
	return out
}

// detailText renders a detail value. Multi-line strings such as diffs and
// stacks are kept verbatim.
func detailText(d expect.Detail) string {
	if s, ok := d.Value.(string); ok && strings.Contains(s, "\n") {
		return s
	}
	return expect.Format(d.Value)
}
