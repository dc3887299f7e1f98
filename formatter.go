package harness

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/reporting"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// ConsoleResultFormatter prints the result table of a run, followed by the
// assertions of every failed test.
type ConsoleResultFormatter struct {
	logger  log.Logger
	out     io.Writer
	table   *reporting.TreeTableFormatter
	details *reporting.TreeTextFormatter
}

var _ reporting.Sink = (*ConsoleResultFormatter)(nil)

// NewConsoleResultFormatter creates a formatter writing to stdout.
func NewConsoleResultFormatter(logger log.Logger) *ConsoleResultFormatter {
	return NewConsoleResultFormatterTo(logger, os.Stdout)
}

func NewConsoleResultFormatterTo(logger log.Logger, out io.Writer) *ConsoleResultFormatter {
	return &ConsoleResultFormatter{
		logger:  logger,
		out:     out,
		table:   reporting.NewTreeTableFormatter("Test Results", true, true, reporting.ColorEnabled(out)),
		details: reporting.NewTreeTextFormatter(true, false, true),
	}
}

func (f *ConsoleResultFormatter) Complete(tree *types.TestTree) error {
	f.logger.Info("Printing results...")
	content, err := f.table.Format(tree)
	if err != nil {
		return fmt.Errorf("failed to format result table: %w", err)
	}
	if _, err := io.WriteString(f.out, content); err != nil {
		return err
	}

	if len(tree.FailedNodes) > 0 {
		tree.ShowOnlyFailed()
		details, err := f.details.Format(tree)
		tree.ShowAll()
		if err != nil {
			return fmt.Errorf("failed to format failures: %w", err)
		}
		if _, err := io.WriteString(f.out, "\n"+details); err != nil {
			return err
		}
	}

	_, err = fmt.Fprintln(f.out, resultLine(tree))
	return err
}

// resultLine is the one line verdict printed after the table.
func resultLine(tree *types.TestTree) string {
	s := tree.Stats
	parts := []string{fmt.Sprintf("%d passed", s.Passed)}
	if n := s.Failed + s.Errored; n > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", n))
	}
	if s.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", s.Skipped))
	}
	if s.Aborted > 0 {
		parts = append(parts, fmt.Sprintf("%d aborted", s.Aborted))
	}
	return fmt.Sprintf("%s: %s in %.1fs (run %s)",
		strings.ToUpper(string(s.Status)), strings.Join(parts, ", "), tree.Duration.Seconds(), tree.RunID)
}
