package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/concierge/internal/model"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// HandlerFunc обработчик задачи. Ошибка ведёт к повтору с задержкой.
type HandlerFunc func(ctx context.Context, job *model.Job, payload Payload) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent помечает ошибку как неповторяемую
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

const (
	maxBackoff = time.Hour

	// DefaultLease сколько задача может быть в running без обновления,
	// прежде чем её вернут в очередь
	DefaultLease = 10 * time.Minute

	bookkeepingTimeout = 10 * time.Second
)

// Backoff задержка перед повтором после attempt неудачных попыток:
// base, 2*base, 4*base, ... не больше часа
func Backoff(base time.Duration, attempt int) time.Duration {
	b := retry.WithCappedDuration(maxBackoff, retry.NewExponential(base))

	var delay time.Duration
	for i := 0; i < attempt; i++ {
		delay, _ = b.Next()
	}
	return delay
}

// Worker выполняет готовые задачи
type Worker struct {
	store       Store
	handlers    map[string]HandlerFunc
	concurrency int
	lease       time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

func NewWorker(store Store, concurrency int, logger *zap.Logger) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		store:       store,
		handlers:    make(map[string]HandlerFunc),
		concurrency: concurrency,
		lease:       DefaultLease,
		logger:      logger,
		now:         time.Now,
	}
}

// Handle регистрирует обработчик для задач с именем name
func (w *Worker) Handle(name string, handler HandlerFunc) {
	w.handlers[name] = handler
}

// RunOnce возвращает в очередь зависшие задачи, затем выбирает и выполняет
// все готовые, возвращает количество выполненных
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	reaped, err := w.store.Reap(ctx, w.now().Add(-w.lease), w.now())
	if err != nil {
		return 0, err
	}
	if reaped > 0 {
		w.logger.Warn("Requeued jobs with expired lease", zap.Int("count", reaped))
	}

	jobs := make(chan *model.Job)
	processed := make([]int, w.concurrency)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for {
			job, err := w.store.Claim(gctx, w.now())
			if err != nil {
				return err
			}
			if job == nil {
				return nil
			}
			select {
			case jobs <- job:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			for job := range jobs {
				w.process(gctx, job)
				processed[i]++
			}
			return nil
		})
	}

	err = g.Wait()

	total := 0
	for _, n := range processed {
		total += n
	}
	return total, err
}

func (w *Worker) process(ctx context.Context, job *model.Job) {
	logger := w.logger.With(
		zap.String("job_id", job.ID.String()),
		zap.String("job", job.Name),
		zap.String("custom_date_id", job.CustomDateID.String()),
		zap.Int("attempt", job.Attempts),
	)

	err := w.run(ctx, job)

	// Статус пишется и после отмены ctx, иначе задача останется в running
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	if err == nil {
		if err := w.store.Complete(ctx, job.ID); err != nil {
			logger.Error("Failed to complete job", zap.Error(err))
			return
		}
		logger.Info("Job completed")
		return
	}

	var permanent *permanentError
	if errors.As(err, &permanent) || job.Attempts >= job.MaxAttempts {
		logger.Error("Job failed", zap.Error(err))
		if err := w.store.Fail(ctx, job.ID, err.Error()); err != nil {
			logger.Error("Failed to mark job failed", zap.Error(err))
		}
		return
	}

	delay := Backoff(time.Duration(job.BackoffBaseMS)*time.Millisecond, job.Attempts)
	logger.Warn("Job failed, will retry", zap.Error(err), zap.Duration("retry_in", delay))
	if err := w.store.Retry(ctx, job.ID, w.now().Add(delay), err.Error()); err != nil {
		logger.Error("Failed to reschedule job", zap.Error(err))
	}
}

func (w *Worker) run(ctx context.Context, job *model.Job) (err error) {
	handler, ok := w.handlers[job.Name]
	if !ok {
		return Permanent(fmt.Errorf("no handler for job %q", job.Name))
	}

	payload, err := DecodePayload(job)
	if err != nil {
		return Permanent(err)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	return handler(ctx, job, payload)
}
