package metrics

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name: "simple error",
			err:  errors.New("test error"),
		},
		{
			name: "error with special chars",
			err:  errors.New("test@error#123"),
		},
		{
			name: "error with multiple spaces",
			err:  errors.New("test   error"),
		},
		{
			name: "error with multiple underscores",
			err:  errors.New("test__error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errToLabel(tt.err)
			validLabelRegex := regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
			if !validLabelRegex.MatchString(result) {
				t.Errorf("errLabel() = %v, is not a valid Prometheus label", result)
			}
		})
	}
}

func TestRecordError(t *testing.T) {
	// just test that it doesn't panic
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("RecordError panic'd")
		}
	}()

	RecordError("test_error")
}

func TestRecordErrorDetails(t *testing.T) {
	// Test with nil error
	RecordErrorDetails("test", nil)

	// Test with actual error
	RecordErrorDetails("test", errors.New("sample error"))
}

func TestRecordTest(t *testing.T) {
	before := testutil.ToFloat64(testsTotal.WithLabelValues("run1", "math > addition", "pass"))
	RecordTest("run1", "math > addition", types.TestStatusPass, time.Second)
	RecordTest("run1", "math > addition", types.TestStatusFail, 500*time.Millisecond)
	RecordTest("run1", "math > skipped", types.TestStatusSkip, 0)
	after := testutil.ToFloat64(testsTotal.WithLabelValues("run1", "math > addition", "pass"))
	require.Equal(t, before+1, after)

	// Unknown results are not recorded.
	RecordTest("run1", "math > addition", types.TestStatusPending, 0)
	require.Zero(t, testutil.ToFloat64(testsTotal.WithLabelValues("run1", "math > addition", "pending")))
}

func TestRecordAssertion(t *testing.T) {
	RecordAssertion("toBe", true)
	RecordAssertion("toBe", false)
	require.GreaterOrEqual(t, testutil.ToFloat64(assertionsTotal.WithLabelValues("toBe", "false")), 1.0)
}

func TestRecordRun(t *testing.T) {
	RecordRunnerStatus(true)
	require.Equal(t, 1.0, testutil.ToFloat64(runnerRunning))
	RecordRunnerStatus(false)
	require.Zero(t, testutil.ToFloat64(runnerRunning))

	RecordCallbackError("after-test")
	RecordRun("run2", "fail", types.TestTreeStats{Total: 3, Passed: 1, Failed: 1, Skipped: 1}, time.Second)
	require.Equal(t, 3.0, testutil.ToFloat64(runTestTotal.WithLabelValues("run2", "total")))
	require.Equal(t, 1.0, testutil.ToFloat64(runDuration.WithLabelValues("run2")))
}
