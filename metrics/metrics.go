package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

const (
	MetricsNamespace = "harness"
)

var (
	Debug                bool = true
	validResults              = []types.TestStatus{types.TestStatusPass, types.TestStatusFail, types.TestStatusSkip, types.TestStatusError, types.TestStatusAborted}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	testsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_total",
		Help:      "Count of test runs by result",
	}, []string{
		"run_id",
		"name",
		"result",
	})

	testDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "test_duration_seconds",
		Help:      "Duration of test runs",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{
		"result",
	})

	assertionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "assertions_total",
		Help:      "Count of assertions by matcher and outcome",
	}, []string{
		"matcher",
		"pass",
	})

	callbackErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "callback_errors_total",
		Help:      "Count of failed lifecycle callbacks",
	}, []string{
		"channel",
	})

	runnerRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "runner_running",
		Help:      "1 while a run is in progress",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of runs",
	}, []string{
		"run_id",
		"result",
	})

	runTestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_test_total",
		Help:      "Total number of tests in runs",
	}, []string{
		"run_id",
		"result",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of runs",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordTest(runID string, name string, result types.TestStatus, duration time.Duration) {
	if !isValidResult(result) {
		log.Error("RecordTest - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "tests_total",
			"run_id", runID,
			"test", name,
			"result", result)
	}
	testsTotal.WithLabelValues(runID, name, string(result)).Inc()
	if result != types.TestStatusSkip {
		testDuration.WithLabelValues(string(result)).Observe(duration.Seconds())
	}
}

func RecordAssertion(matcher string, pass bool) {
	assertionsTotal.WithLabelValues(matcher, fmt.Sprintf("%t", pass)).Inc()
}

func RecordCallbackError(channel string) {
	callbackErrorsTotal.WithLabelValues(channel).Inc()
}

func RecordRunnerStatus(running bool) {
	if running {
		runnerRunning.Set(1)
	} else {
		runnerRunning.Set(0)
	}
}

func RecordRun(
	runID string,
	result string,
	stats types.TestTreeStats,
	duration time.Duration,
) {
	runResults.WithLabelValues(runID, result).Set(1)
	runTestTotal.WithLabelValues(runID, "total").Add(float64(stats.Total))
	runTestTotal.WithLabelValues(runID, string(types.TestStatusPass)).Add(float64(stats.Passed))
	runTestTotal.WithLabelValues(runID, string(types.TestStatusFail)).Add(float64(stats.Failed))
	runTestTotal.WithLabelValues(runID, string(types.TestStatusError)).Add(float64(stats.Errored))
	runTestTotal.WithLabelValues(runID, string(types.TestStatusSkip)).Add(float64(stats.Skipped))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func isValidResult(result types.TestStatus) bool {
	return slices.Contains(validResults, result)
}
