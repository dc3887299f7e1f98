package harness

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTestScheduler_RunOnce(t *testing.T) {
	scheduler := NewDefaultTestScheduler(10*time.Millisecond, true, log.New())

	var calls atomic.Int32
	scheduler.RegisterCallback(func(context.Context) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, scheduler.Start(context.Background()))
	assert.Equal(t, int32(1), calls.Load())

	// No periodic goroutine in run-once mode.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.NoError(t, scheduler.WaitForShutdown(context.Background()))
}

func TestDefaultTestScheduler_Periodic(t *testing.T) {
	scheduler := NewDefaultTestScheduler(10*time.Millisecond, false, log.New())

	callChan := make(chan struct{}, 10)
	scheduler.RegisterCallback(func(context.Context) error {
		select {
		case callChan <- struct{}{}:
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, scheduler.Start(ctx))

	expectedCalls := 4
	for i := 0; i < expectedCalls; i++ {
		select {
		case <-callChan:
		case <-time.After(time.Second):
			t.Fatalf("Timed out waiting for callback execution %d/%d", i+1, expectedCalls)
		}
	}

	require.NoError(t, scheduler.Stop())
	require.NoError(t, scheduler.WaitForShutdown(ctx))
	assert.True(t, scheduler.Stopped())

	// Drain a call that may have raced with Stop, then expect silence.
	select {
	case <-callChan:
	default:
	}
	select {
	case <-callChan:
		t.Fatal("callback ran after the scheduler stopped")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDefaultTestScheduler_ContextCancel(t *testing.T) {
	scheduler := NewDefaultTestScheduler(time.Hour, false, log.New())
	scheduler.RegisterCallback(func(context.Context) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, scheduler.Start(ctx))
	assert.False(t, scheduler.Stopped())

	cancel()
	require.NoError(t, scheduler.WaitForShutdown(context.Background()))
	assert.True(t, scheduler.Stopped())
}

func TestDefaultTestScheduler_CallbackError(t *testing.T) {
	expectedError := errors.New("test callback error")

	for _, runOnce := range []bool{true, false} {
		scheduler := NewDefaultTestScheduler(time.Hour, runOnce, log.New())
		scheduler.RegisterCallback(func(context.Context) error {
			return expectedError
		})

		err := scheduler.Start(context.Background())
		assert.ErrorIs(t, err, expectedError)
		require.NoError(t, scheduler.Stop())
	}
}

func TestDefaultTestScheduler_NoCallback(t *testing.T) {
	scheduler := NewDefaultTestScheduler(time.Second, true, log.New())

	err := scheduler.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "callback must be registered")
}

func TestDefaultTestScheduler_ZeroInterval(t *testing.T) {
	scheduler := NewDefaultTestScheduler(0, false, log.New())
	scheduler.RegisterCallback(func(context.Context) error { return nil })

	err := scheduler.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interval must be positive")
}

func TestDefaultTestScheduler_AlreadyStopped(t *testing.T) {
	scheduler := NewDefaultTestScheduler(time.Second, true, log.New())
	scheduler.RegisterCallback(func(context.Context) error { return nil })

	assert.NoError(t, scheduler.Stop(), "Stop should be idempotent")
	assert.NoError(t, scheduler.Stop(), "Second stop should also succeed")
}
