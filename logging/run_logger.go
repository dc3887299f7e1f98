package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/expect"
	"github.com/ethereum-optimism/infra/op-harness/reporting"
	"github.com/ethereum-optimism/infra/op-harness/runner"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

const (
	AllLogsFileName   = "all.log"
	RawEventsFileName = "raw_go_events.log"
	FailedDirName     = "failed"
)

// GoTestEvent is one line of `go test -json` output, as described by the
// test2json package.
type GoTestEvent struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"`
	Package string    `json:"Package"`
	Test    string    `json:"Test,omitempty"`
	Output  string    `json:"Output,omitempty"`
	Elapsed float64   `json:"Elapsed,omitempty"`
}

// RunLogger writes the logs of every run to its run directory: a readable
// log of all events, one file per failed test, and the tests as go test
// events so tools like gotestsum can consume them.
type RunLogger struct {
	baseDir string
	pkg     string
	log     log.Logger

	mu      sync.Mutex
	runID   string
	dir     string
	all     *AsyncFile
	raw     *AsyncFile
	started time.Time
	failed  int
}

var _ runner.Observer = (*RunLogger)(nil)

// NewRunLogger creates a logger writing below baseDir. pkg is the Package of
// the raw events.
func NewRunLogger(baseDir, pkg string, lg log.Logger) *RunLogger {
	if lg == nil {
		lg = log.New()
		lg.Error("No logger provided, using default")
	}
	return &RunLogger{baseDir: baseDir, pkg: pkg, log: lg}
}

func (l *RunLogger) OnEvent(e runner.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Type == runner.EventStatusChanged {
		if e.Status == runner.StatusRunning {
			l.open(e)
		} else {
			l.finish(e)
		}
		return
	}
	if l.all == nil || e.RunID != l.runID {
		return
	}

	switch e.Type {
	case runner.EventSuiteStarted:
		l.writeLine(e.Time, "=== SUITE %s", e.Suite.FullName)
	case runner.EventSuiteEnded:
		l.writeLine(e.Time, "=== END   %s", e.Suite.FullName)
	case runner.EventTestStarted:
		l.writeLine(e.Time, "=== RUN   %s", e.Test.FullName)
		l.writeRaw(GoTestEvent{Time: e.Time, Action: "run", Test: GoTestName(e.Test.FullName)})
	case runner.EventTestSkipped:
		name := GoTestName(e.Test.FullName)
		l.writeLine(e.Time, "--- SKIP: %s", e.Test.FullName)
		l.writeRaw(GoTestEvent{Time: e.Time, Action: "run", Test: name})
		l.writeRaw(GoTestEvent{Time: e.Time, Action: "skip", Test: name})
	case runner.EventTestEnded:
		l.testEnded(e)
	case runner.EventHookFailed:
		l.writeLine(e.Time, "!!! HOOK FAILED: %v", e.Err)
	}
}

func (l *RunLogger) open(e runner.Event) {
	l.closeFiles()

	dir := reporting.RunDir(l.baseDir, e.RunID)
	all, err := NewAsyncFile(filepath.Join(dir, AllLogsFileName), l.log)
	if err != nil {
		l.log.Error("Failed to open run log", "run_id", e.RunID, "err", err)
		return
	}
	raw, err := NewAsyncFile(filepath.Join(dir, RawEventsFileName), l.log)
	if err != nil {
		_ = all.Close()
		l.log.Error("Failed to open raw event log", "run_id", e.RunID, "err", err)
		return
	}
	l.runID, l.dir, l.all, l.raw = e.RunID, dir, all, raw
	l.started, l.failed = e.Time, 0
	l.writeLine(e.Time, "Run %s started", e.RunID)
	l.writeRaw(GoTestEvent{Time: e.Time, Action: "start"})
}

func (l *RunLogger) finish(e runner.Event) {
	if l.all == nil || e.RunID != l.runID {
		return
	}
	elapsed := e.Time.Sub(l.started)
	action := "pass"
	if l.failed > 0 {
		action = "fail"
	}
	l.writeLine(e.Time, "Run %s finished: %d failed in %s", e.RunID, l.failed, elapsed.Round(time.Millisecond))
	l.writeRaw(GoTestEvent{Time: e.Time, Action: action, Elapsed: elapsed.Seconds()})
	l.closeFiles()
}

func (l *RunLogger) testEnded(e runner.Event) {
	res := e.Result
	status := types.StatusOf(res)
	name := GoTestName(e.Test.FullName)

	l.writeLine(e.Time, "--- %s: %s (%.2fs)", strings.ToUpper(string(status)), e.Test.FullName, res.Duration.Seconds())
	var out bytes.Buffer
	writeFailures(&out, res, "    ")
	if out.Len() > 0 {
		l.write(out.Bytes())
		for _, line := range strings.SplitAfter(out.String(), "\n") {
			if line != "" {
				l.writeRaw(GoTestEvent{Time: e.Time, Action: "output", Test: name, Output: line})
			}
		}
	}
	l.writeRaw(GoTestEvent{Time: e.Time, Action: goAction(status), Test: name, Elapsed: res.Duration.Seconds()})

	if goAction(status) != "fail" {
		return
	}
	l.failed++
	if err := l.writeFailedTest(e.Test, res, status); err != nil {
		l.log.Warn("Failed to write failed test log", "test", e.Test.FullName, "err", err)
	}
}

func (l *RunLogger) writeFailedTest(t *types.Test, res *expect.Result, status types.TestStatus) error {
	dir := filepath.Join(l.dir, FailedDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Test:     %s\n", t.FullName)
	fmt.Fprintf(&buf, "ID:       %s\n", t.ID)
	fmt.Fprintf(&buf, "Status:   %s\n", status)
	fmt.Fprintf(&buf, "Duration: %s\n", res.Duration)
	if len(t.TagNames) > 0 {
		fmt.Fprintf(&buf, "Tags:     %s\n", strings.Join(t.TagNames, ", "))
	}
	if len(res.Steps) > 0 {
		fmt.Fprintf(&buf, "Steps:    %s\n", strings.Join(res.Steps, " > "))
	}
	buf.WriteString("\n")
	writeFailures(&buf, res, "")

	path := filepath.Join(dir, safeFilename(t.FullName)+"-"+t.ID+".log")
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// writeFailures writes the run error and every failed assertion with its
// details.
func writeFailures(buf *bytes.Buffer, res *expect.Result, indent string) {
	if res.Error != nil {
		fmt.Fprintf(buf, "%sError: %v\n", indent, res.Error)
	}
	for _, a := range res.Failed() {
		fmt.Fprintf(buf, "%s[%s] %s\n", indent, a.Name, a.Message)
		for _, d := range a.Info {
			value := d.Value
			if s, ok := value.(string); !ok || d.Label != "stack" {
				value = expect.Format(value)
			} else {
				value = strings.ReplaceAll(strings.TrimSpace(s), "\n", "\n"+indent+"      ")
			}
			fmt.Fprintf(buf, "%s  %s: %v\n", indent, d.Label, value)
		}
	}
}

func (l *RunLogger) writeLine(ts time.Time, format string, args ...any) {
	l.write([]byte(ts.Format("15:04:05.000") + " " + fmt.Sprintf(format, args...) + "\n"))
}

func (l *RunLogger) write(data []byte) {
	if err := l.all.Write(data); err != nil {
		l.log.Debug("Dropped run log line", "err", err)
	}
}

func (l *RunLogger) writeRaw(ev GoTestEvent) {
	ev.Package = l.pkg
	data, err := json.Marshal(ev)
	if err != nil {
		l.log.Warn("Failed to encode raw event", "err", err)
		return
	}
	if err := l.raw.Write(append(data, '\n')); err != nil {
		l.log.Debug("Dropped raw event", "err", err)
	}
}

func (l *RunLogger) closeFiles() {
	for _, f := range []*AsyncFile{l.all, l.raw} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil {
			l.log.Warn("Failed to close run log", "err", err)
		}
	}
	l.all, l.raw = nil, nil
}

// Close flushes the files of a run that did not finish.
func (l *RunLogger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeFiles()
}

// GoTestName turns a full job name into a go test name: one path segment per
// level, with spaces replaced.
func GoTestName(fullName string) string {
	parts := strings.Split(fullName, types.NameSeparator)
	for i, p := range parts {
		parts[i] = strings.ReplaceAll(strings.TrimSpace(p), " ", "_")
	}
	return strings.Join(parts, "/")
}

func goAction(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "pass"
	case types.TestStatusSkip:
		return "skip"
	default:
		return "fail"
	}
}

// safeFilename replaces the characters that are problematic in file names.
func safeFilename(s string) string {
	r := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_", " ", "_",
	)
	return r.Replace(s)
}
