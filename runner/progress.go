package runner

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

// ProgressObserver logs suite and test progress, plus a periodic summary of
// the run.
type ProgressObserver struct {
	logger log.Logger
	ticker *time.Ticker
	stopCh chan struct{}
	once   sync.Once
	mu     sync.RWMutex

	runID          string
	suites         []string
	completedTests int
	failedTests    int
	skippedTests   int
	runStartTime   time.Time
	suiteStart     map[*types.Suite]time.Time

	// Track the currently running test
	runningTest      string
	runningTestStart time.Time
}

var _ Observer = (*ProgressObserver)(nil)

// NewProgressObserver creates an observer that reports progress every updateInterval.
func NewProgressObserver(logger log.Logger, updateInterval time.Duration) *ProgressObserver {
	if updateInterval == 0 {
		updateInterval = DefaultProgressInterval
	}

	p := &ProgressObserver{
		logger:     logger,
		ticker:     time.NewTicker(updateInterval),
		stopCh:     make(chan struct{}),
		suiteStart: make(map[*types.Suite]time.Time),
	}

	go p.progressReporter()

	return p
}

func (p *ProgressObserver) OnEvent(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e.Type {
	case EventStatusChanged:
		if e.Status == StatusRunning {
			p.runID = e.RunID
			p.completedTests, p.failedTests, p.skippedTests = 0, 0, 0
			p.runStartTime = e.Time
			p.logger.Info("Run started", "run_id", e.RunID)
		} else {
			p.logger.Info("Run finished", "run_id", e.RunID, "completed", p.completedTests,
				"failed", p.failedTests, "skipped", p.skippedTests, "duration", e.Time.Sub(p.runStartTime).Truncate(time.Millisecond))
		}
	case EventSuiteStarted:
		p.suites = append(p.suites, e.Suite.Name)
		p.suiteStart[e.Suite] = e.Time
		p.logger.Info("Starting suite", "suite", e.Suite.FullName, "jobs", len(e.Suite.Jobs))
	case EventSuiteEnded:
		if len(p.suites) > 0 {
			p.suites = p.suites[:len(p.suites)-1]
		}
		duration := e.Time.Sub(p.suiteStart[e.Suite]).Truncate(time.Millisecond)
		delete(p.suiteStart, e.Suite)
		p.logger.Info("Completed suite", "suite", e.Suite.FullName, "duration", duration)
	case EventTestStarted:
		p.runningTest = e.Test.FullName
		p.runningTestStart = e.Time
		p.logger.Debug("Test started", "test", e.Test.FullName)
	case EventTestEnded:
		p.runningTest = ""
		p.completedTests++
		status := types.StatusOf(e.Result)
		if status == types.TestStatusFail || status == types.TestStatusError {
			p.failedTests++
		}
		p.logger.Debug("Test completed", "test", e.Test.FullName, "status", status, "completed", p.completedTests)
	case EventTestSkipped:
		p.skippedTests++
		p.logger.Debug("Test skipped", "test", e.Test.FullName)
	case EventHookFailed:
		p.logger.Warn("Hook failed", "err", e.Err)
	}
}

// progressReporter runs in a goroutine and periodically reports progress
func (p *ProgressObserver) progressReporter() {
	for {
		select {
		case <-p.ticker.C:
			p.reportProgress()
		case <-p.stopCh:
			return
		}
	}
}

func (p *ProgressObserver) reportProgress() {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.runID == "" {
		return
	}
	logFields := []interface{}{
		"run_id", p.runID,
		"suite", strings.Join(p.suites, types.NameSeparator),
		"completed", p.completedTests,
		"failed", p.failedTests,
		"skipped", p.skippedTests,
	}
	if p.runningTest != "" {
		logFields = append(logFields, "running", formatRunning(p.runningTest, time.Since(p.runningTestStart)))
	}
	if open := p.openSuites(3); open != "" {
		logFields = append(logFields, "longestSuites", open)
	}

	p.logger.Info("Progress update", logFields...)
}

// openSuites lists the suites that have been open the longest.
func (p *ProgressObserver) openSuites(maxShow int) string {
	type openSuite struct {
		name     string
		duration time.Duration
	}
	var open []openSuite
	for s, start := range p.suiteStart {
		open = append(open, openSuite{s.FullName, time.Since(start)})
	}
	sort.Slice(open, func(i, j int) bool { return open[i].duration > open[j].duration })
	var parts []string
	for i, s := range open {
		if i == maxShow {
			parts = append(parts, fmt.Sprintf("(+%d more)", len(open)-maxShow))
			break
		}
		parts = append(parts, formatRunning(s.name, s.duration))
	}
	return strings.Join(parts, ", ")
}

func formatRunning(name string, d time.Duration) string {
	return fmt.Sprintf("%s (%s)", name, d.Truncate(time.Second))
}

// Stop stops the periodic reports.
func (p *ProgressObserver) Stop() {
	p.once.Do(func() {
		p.ticker.Stop()
		close(p.stopCh)
	})
}
