package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SchedulerConfig holds configuration for the task scheduler
type SchedulerConfig struct {
	// MaxConcurrent caps how many tasks run the pipeline at the same time
	MaxConcurrent int

	// Retention is how long completed and failed tasks are kept
	Retention time.Duration

	// ReapInterval defines how often old tasks are reaped.
	// If zero, defaults to one hour
	ReapInterval time.Duration
}

// DefaultSchedulerConfig returns a SchedulerConfig with the documented defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxConcurrent: 3,
		Retention:     24 * time.Hour,
		ReapInterval:  time.Hour,
	}
}

// Scheduler admits submitted tasks into the pipeline in FIFO order, never
// running more than MaxConcurrent at once.
//
// The dispatch loop is the only goroutine that pops the queue and changes the
// in-flight count. Workers report back over the finished channel.
type Scheduler struct {
	store    *Store
	runner   Runner
	archiver Archiver
	config   SchedulerConfig
	logger   *slog.Logger

	mu       sync.Mutex
	queue    *Queue
	inFlight int
	started  bool
	stopped  bool

	wake     chan struct{}
	finished chan string
	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	workers  sync.WaitGroup
}

// NewScheduler creates a Scheduler around an explicitly constructed store.
func NewScheduler(store *Store, runner Runner, config SchedulerConfig, logger *slog.Logger) *Scheduler {
	defaults := DefaultSchedulerConfig()
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = defaults.MaxConcurrent
	}
	if config.Retention <= 0 {
		config.Retention = defaults.Retention
	}
	if config.ReapInterval <= 0 {
		config.ReapInterval = defaults.ReapInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		store:    store,
		runner:   runner,
		config:   config,
		logger:   logger,
		queue:    NewQueue(),
		wake:     make(chan struct{}, 1),
		finished: make(chan string, config.MaxConcurrent),
		ctx:      ctx,
		cancel:   cancel,
		loopDone: make(chan struct{}),
	}
}

// SetArchiver registers a sink for tasks that reach a terminal status.
// It must be called before Start.
func (s *Scheduler) SetArchiver(a Archiver) {
	s.archiver = a
}

// Store returns the store the scheduler writes to.
func (s *Scheduler) Store() *Store {
	return s.store
}

// Start launches the dispatch loop. Tasks submitted before Start wait in the queue.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.loop()
	s.trigger()

	s.logger.Info("task scheduler started",
		"max_concurrent", s.config.MaxConcurrent,
		"retention", s.config.Retention.String(),
		"reap_interval", s.config.ReapInterval.String())
}

// Stop stops admitting tasks and waits for running ones to finish or for ctx to expire.
// Running pipelines are not interrupted.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	s.cancel()
	if started {
		<-s.loopDone
	}

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("task scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running tasks: %w", ctx.Err())
	}
}

// Submit creates a pending task, queues it and triggers a drain.
func (s *Scheduler) Submit(params Params) (string, error) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return "", ErrSchedulerStopped
	}

	id, err := s.store.Create(params)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.queue.Push(id)
	depth := s.queue.Len()
	s.mu.Unlock()

	s.logger.Info("task submitted", "task_id", id, "queue_depth", depth)
	s.trigger()
	return id, nil
}

// Delete removes a task that is not processing and drops it from the queue.
func (s *Scheduler) Delete(id string) (bool, error) {
	deleted, err := s.store.Delete(id)
	if err != nil || !deleted {
		return deleted, err
	}

	s.mu.Lock()
	s.queue.Remove(id)
	s.mu.Unlock()
	return true, nil
}

// Stats returns store counts plus queue depth and in-flight count.
func (s *Scheduler) Stats() Stats {
	st := s.store.Stats()

	s.mu.Lock()
	st.QueueDepth = s.queue.Len()
	st.InFlight = s.inFlight
	s.mu.Unlock()

	return st
}

// trigger asks the dispatch loop to drain. Redundant calls coalesce.
func (s *Scheduler) trigger() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// loop owns admission: it drains on wake-ups and worker completions and
// reaps old tasks on a ticker.
func (s *Scheduler) loop() {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.config.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-s.wake:
			s.drain()

		case id := <-s.finished:
			s.mu.Lock()
			s.inFlight--
			s.mu.Unlock()
			s.logger.Debug("worker slot released", "task_id", id)
			s.drain()

		case <-ticker.C:
			if n := s.store.ReapOlderThan(s.config.Retention); n > 0 {
				s.logger.Info("reaped old tasks", "count", n)
			}
		}
	}
}

// drain admits queued tasks while slots are free. Tasks that are no longer
// pending are skipped without using a slot.
func (s *Scheduler) drain() {
	for {
		s.mu.Lock()
		if s.stopped || s.inFlight >= s.config.MaxConcurrent || s.queue.Len() == 0 {
			s.mu.Unlock()
			return
		}
		id, _ := s.queue.Pop()

		h, err := s.store.claim(id)
		if err != nil {
			s.mu.Unlock()
			s.logger.Debug("skipping queued task", "task_id", id, "reason", err.Error())
			continue
		}
		s.inFlight++
		inFlight := s.inFlight
		s.workers.Add(1)
		s.mu.Unlock()

		s.logger.Info("task admitted", "task_id", id, "in_flight", inFlight)
		go s.execute(h)
	}
}

// execute runs the pipeline for one task. The deferred send is the only path
// that frees the slot, so it runs however the pipeline ends.
func (s *Scheduler) execute(h *Handle) {
	start := time.Now()
	logger := s.logger.With("task_id", h.ID())

	defer s.workers.Done()
	defer func() {
		s.finished <- h.ID()
	}()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task panicked", "panic", r)
			s.settle(h, nil, &Failure{Message: fmt.Sprintf("panic: %v", r), Kind: KindInternal}, logger)
		}
	}()

	logger.Info("processing task")

	result, err := s.runner.Run(context.Background(), h.Params(), h.Progress)
	if err != nil {
		var failure *Failure
		if !errors.As(err, &failure) {
			failure = &Failure{Message: err.Error(), Kind: KindInternal}
		}
		logger.Error("task failed",
			"error", err,
			"failed_at_step", failure.Step,
			"duration_ms", time.Since(start).Milliseconds())
		s.settle(h, nil, failure, logger)
		return
	}

	logger.Info("task completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"output_path", result.OutputPath)
	s.settle(h, result, nil, logger)
}

// settle records the outcome through the handle and forwards it to the archiver.
func (s *Scheduler) settle(h *Handle, result *Result, failure *Failure, logger *slog.Logger) {
	var err error
	if failure != nil {
		err = h.Fail(failure)
	} else {
		err = h.Complete(result)
	}
	if err != nil {
		logger.Error("failed to record task outcome", "error", err)
		return
	}

	if s.archiver == nil {
		return
	}
	t, err := s.store.Get(h.ID())
	if err != nil {
		return
	}
	if err := s.archiver.Archive(context.Background(), t); err != nil {
		logger.Warn("failed to archive task", "error", err)
	}
}
