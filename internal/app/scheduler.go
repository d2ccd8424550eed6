package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// JobRunner выполняет все готовые задачи за один проход
type JobRunner interface {
	RunOnce(ctx context.Context) (int, error)
}

// Scheduler периодически запускает обработку отложенных задач
type Scheduler struct {
	runner   JobRunner
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	done     chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewScheduler создаёт новый планировщик
func NewScheduler(runner JobRunner, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start запускает фоновый цикл. Повторный Start и Start после Stop ничего не делают
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.logger.Info("Starting background scheduler", zap.Duration("interval", s.interval))

	go s.runJobsTask(ctx)
}

// Stop останавливает цикл и ждёт завершения текущего прохода
func (s *Scheduler) Stop() {
	s.mu.Lock()
	started := s.started
	if !s.stopped {
		s.stopped = true
		s.logger.Info("Stopping background scheduler")
		close(s.stopChan)
	}
	s.mu.Unlock()

	if started {
		<-s.done
	}
}

func (s *Scheduler) runJobsTask(ctx context.Context) {
	defer close(s.done)

	// Первый проход сразу при старте
	s.runJobs(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runJobs(ctx)
		case <-s.stopChan:
			s.logger.Info("Job task stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Job task stopped by context")
			return
		}
	}
}

func (s *Scheduler) runJobs(ctx context.Context) {
	processed, err := s.runner.RunOnce(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("Failed to run jobs", zap.Error(err))
		return
	}
	if processed > 0 {
		s.logger.Info("Jobs processed", zap.Int("count", processed))
	}
}
