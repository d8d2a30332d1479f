// Package scheduler runs named periodic background tasks, such as the
// guest receipt-queue sweep.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn receives a context that is canceled when the scheduler stops.
type TaskFn func(ctx context.Context)

// Scheduler owns a set of named ticker tasks. Tasks run on their own
// goroutines; a panic in one task is logged and does not kill the loop.
type Scheduler struct {
	mu     sync.Mutex
	cancel map[string]context.CancelFunc
	root   context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New creates a Scheduler.
func New(logger *zap.Logger) *Scheduler {
	root, stop := context.WithCancel(context.Background())
	return &Scheduler{
		cancel: make(map[string]context.CancelFunc),
		root:   root,
		stop:   stop,
		logger: logger,
	}
}

// AddTicker runs fn once immediately, then on every interval tick.
// Registering a name again replaces the previous task.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, ok := s.cancel[name]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(s.root)
	s.cancel[name] = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.invoke(ctx, name, fn)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.invoke(ctx, name, fn)
			case <-ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("scheduler task registered",
		zap.String("name", name), zap.Duration("interval", interval))
}

func (s *Scheduler) invoke(ctx context.Context, name string, fn TaskFn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler task panicked",
				zap.String("task", name), zap.Any("recover", r))
		}
	}()
	if ctx.Err() != nil {
		return
	}
	fn(ctx)
}

// Remove cancels one task by name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.cancel[name]; ok {
		cancel()
		delete(s.cancel, name)
	}
}

// Stop cancels every task and waits for running invocations to return.
func (s *Scheduler) Stop() {
	s.stop()
	s.wg.Wait()
}
