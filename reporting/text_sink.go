package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

const (
	SummaryFileName = "summary.log"
	ResultsFileName = "results.json"
)

// Sink receives the report tree of a finished run.
type Sink interface {
	Complete(tree *types.TestTree) error
}

// RunDir returns the directory the sinks write the files of a run to.
func RunDir(baseDir, runID string) string {
	return filepath.Join(baseDir, "testrun-"+runID)
}

func writeRunFile(baseDir, runID, name, content string) error {
	outputDir := RunDir(baseDir, runID)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}
	path := filepath.Join(outputDir, name)
	if err := NewFileWriter(path).Write(content); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// TextSummarySink writes a plain text summary of every run: the text tree
// followed by the result table, with color codes removed.
type TextSummarySink struct {
	formatter *TreeTextFormatter
	table     *TreeTableFormatter
	baseDir   string
}

func NewTextSummarySink(baseDir string, includeDetails bool) *TextSummarySink {
	return &TextSummarySink{
		formatter: NewTreeTextFormatter(true, true, includeDetails),
		table:     NewTreeTableFormatter("Results", true, true, false),
		baseDir:   baseDir,
	}
}

func (s *TextSummarySink) Complete(tree *types.TestTree) error {
	summary, err := s.formatter.Format(tree)
	if err != nil {
		return fmt.Errorf("failed to format text summary: %w", err)
	}
	table, err := s.table.Format(tree)
	if err != nil {
		return fmt.Errorf("failed to format result table: %w", err)
	}
	return writeRunFile(s.baseDir, tree.RunID, SummaryFileName, stripansi.Strip(summary+"\n"+table))
}

// JSONSink writes the JSON tree of every run.
type JSONSink struct {
	formatter *TreeJSONFormatter
	baseDir   string
}

func NewJSONSink(baseDir string) *JSONSink {
	return &JSONSink{formatter: NewTreeJSONFormatter(true), baseDir: baseDir}
}

func (s *JSONSink) Complete(tree *types.TestTree) error {
	content, err := s.formatter.Format(tree)
	if err != nil {
		return err
	}
	return writeRunFile(s.baseDir, tree.RunID, ResultsFileName, content)
}

// TableReporter prints the result table of a run.
type TableReporter struct {
	formatter *TreeTableFormatter
	writer    ReportWriter
}

// NewTableReporter creates a table reporter writing to stdout.
func NewTableReporter(title string, showContainers bool) *TableReporter {
	return &TableReporter{
		formatter: NewTreeTableFormatter(title, showContainers, true, ColorEnabled(os.Stdout)),
		writer:    NewStdoutWriter(),
	}
}

// WithWriter redirects the table output.
func (tr *TableReporter) WithWriter(w ReportWriter) *TableReporter {
	tr.writer = w
	return tr
}

func (tr *TableReporter) Complete(tree *types.TestTree) error {
	content, err := tr.formatter.Format(tree)
	if err != nil {
		return err
	}
	return tr.writer.Write(content)
}
