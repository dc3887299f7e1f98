package harness

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// TestScheduler decides when test runs happen.
type TestScheduler interface {
	Start(ctx context.Context) error
	Stop() error
	RegisterCallback(func(ctx context.Context) error)
	WaitForShutdown(ctx context.Context) error
	Stopped() bool
}

// DefaultTestScheduler runs the callback once on Start and then, unless in
// run-once mode, every interval until stopped.
type DefaultTestScheduler struct {
	interval time.Duration
	runOnce  bool
	logger   log.Logger
	callback func(ctx context.Context) error

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewDefaultTestScheduler(interval time.Duration, runOnce bool, logger log.Logger) *DefaultTestScheduler {
	return &DefaultTestScheduler{
		interval: interval,
		runOnce:  runOnce,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

func (s *DefaultTestScheduler) RegisterCallback(callback func(ctx context.Context) error) {
	s.callback = callback
}

// Start runs the first round synchronously and returns its error.
func (s *DefaultTestScheduler) Start(ctx context.Context) error {
	if s.callback == nil {
		return errors.New("callback must be registered before starting scheduler")
	}
	if !s.runOnce && s.interval <= 0 {
		return errors.New("interval must be positive in continuous mode")
	}

	s.done = make(chan struct{})
	s.running.Store(true)

	if s.runOnce {
		s.logger.Info("Starting scheduler in run-once mode")
		return s.callback(ctx)
	}

	s.logger.Info("Starting scheduler in continuous mode", "interval", s.interval)
	if err := s.callback(ctx); err != nil {
		return err
	}

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

func (s *DefaultTestScheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !s.running.Load() {
				s.logger.Debug("Scheduler stopped, exiting periodic runs")
				return
			}
			s.logger.Info("Running periodic tests")
			if err := s.callback(ctx); err != nil {
				s.logger.Error("Error running periodic tests", "error", err)
			}
			s.logger.Info("Next run scheduled", "interval", s.interval)

		case <-s.done:
			s.logger.Debug("Done signal received, stopping periodic runs")
			return

		case <-ctx.Done():
			s.logger.Debug("Context canceled, stopping periodic runs")
			s.running.Store(false)
			return
		}
	}
}

func (s *DefaultTestScheduler) Stop() error {
	if !s.running.Swap(false) {
		s.logger.Debug("Scheduler already stopped, nothing to do")
		return nil
	}
	close(s.done)
	return nil
}

func (s *DefaultTestScheduler) Stopped() bool {
	return !s.running.Load()
}

// WaitForShutdown blocks until the periodic goroutine has exited.
func (s *DefaultTestScheduler) WaitForShutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Debug("All goroutines terminated successfully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Timed out waiting for goroutines to terminate", "error", ctx.Err())
		return ctx.Err()
	}
}
