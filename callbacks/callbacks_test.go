package callbacks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallRunsAllHandlers(t *testing.T) {
	r := New(log.New())
	var calls atomic.Int32
	for range 3 {
		r.Add(BeforeTest, func(ctx context.Context, payload any) error {
			assert.Equal(t, "payload", payload)
			calls.Add(1)
			return nil
		})
	}

	require.NoError(t, r.Call(context.Background(), BeforeTest, "payload"))
	assert.Equal(t, int32(3), calls.Load())

	// Other channels are untouched.
	require.NoError(t, r.Call(context.Background(), AfterTest, nil))
	assert.Equal(t, int32(3), calls.Load())
}

func TestCallRunsHandlersConcurrently(t *testing.T) {
	r := New(log.New())
	var wg sync.WaitGroup
	wg.Add(2)
	for range 2 {
		r.Add(AfterAll, func(ctx context.Context, _ any) error {
			wg.Done()
			// Both handlers must be in flight for either to return.
			wg.Wait()
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- r.Call(context.Background(), AfterAll, nil) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("handlers did not run concurrently")
	}
}

func TestFailingHandlersDoNotStopSiblings(t *testing.T) {
	r := New(log.New())
	boom := errors.New("boom")
	var ran atomic.Bool
	r.Add(BeforeSuite, func(context.Context, any) error { return boom })
	r.Add(BeforeSuite, func(context.Context, any) error { panic("kaput") })
	r.Add(BeforeSuite, func(context.Context, any) error {
		ran.Store(true)
		return nil
	})

	err := r.Call(context.Background(), BeforeSuite, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "kaput")
	assert.True(t, ran.Load())
}

func TestRemoveAndOnce(t *testing.T) {
	r := New(log.New())
	var persistent, once int
	remove := r.Add(AfterTest, func(context.Context, any) error {
		persistent++
		return nil
	})
	r.Once(AfterTest, func(context.Context, any) error {
		once++
		return nil
	})
	assert.Equal(t, 2, r.Len(AfterTest))

	require.NoError(t, r.Call(context.Background(), AfterTest, nil))
	require.NoError(t, r.Call(context.Background(), AfterTest, nil))
	assert.Equal(t, 2, persistent)
	assert.Equal(t, 1, once)

	remove()
	remove()
	require.NoError(t, r.Call(context.Background(), AfterTest, nil))
	assert.Equal(t, 2, persistent)
	assert.Zero(t, r.Len(AfterTest))
}

func TestClear(t *testing.T) {
	r := New(nil)
	r.Add(SkippedTest, func(context.Context, any) error { return nil })
	r.Clear()
	assert.Zero(t, r.Len(SkippedTest))
}
