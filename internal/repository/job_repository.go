package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/concierge/internal/model"
	"github.com/Freeeeeet/concierge/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `
	id, name, custom_date_id, dedupe_key, payload, status, attempts, max_attempts,
	backoff_base_ms, run_at, last_error, created_at, updated_at`

// JobRepository таблица отложенных задач
type JobRepository struct {
	*base.Repository
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{Repository: base.NewRepository(pool)}
}

func scanJob(row rowScanner) (*model.Job, error) {
	var job model.Job
	err := row.Scan(
		&job.ID,
		&job.Name,
		&job.CustomDateID,
		&job.DedupeKey,
		&job.Payload,
		&job.Status,
		&job.Attempts,
		&job.MaxAttempts,
		&job.BackoffBaseMS,
		&job.RunAt,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Insert ставит задачу в очередь. Если задача с тем же dedupe_key уже ждёт
// или выполняется, возвращается она, а новая не создаётся.
func (r *JobRepository) Insert(ctx context.Context, job *model.Job) (*model.Job, error) {
	query := `
		INSERT INTO jobs (name, custom_date_id, dedupe_key, payload, status, max_attempts, backoff_base_ms, run_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (dedupe_key) WHERE status IN ('pending', 'running') DO NOTHING
		RETURNING ` + jobColumns

	inserted, err := scanJob(r.DB().QueryRow(
		ctx, query,
		job.Name,
		job.CustomDateID,
		job.DedupeKey,
		job.Payload,
		model.JobStatusPending,
		job.MaxAttempts,
		job.BackoffBaseMS,
		job.RunAt,
	))
	if err == nil {
		return inserted, nil
	}
	if !base.IsNotFound(err) {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	existing, err := scanJob(r.DB().QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE dedupe_key = $1 AND status IN ('pending', 'running')
	`, job.DedupeKey))
	if err != nil {
		return nil, fmt.Errorf("get duplicate job: %w", err)
	}
	return existing, nil
}

// FindPending ищет ожидающую задачу по имени и custom date
func (r *JobRepository) FindPending(ctx context.Context, name string, customDateID uuid.UUID) (*model.Job, error) {
	job, err := scanJob(r.DB().QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE name = $1 AND custom_date_id = $2 AND status = $3
		ORDER BY run_at
		LIMIT 1
	`, name, customDateID, model.JobStatusPending))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find pending job: %w", err)
	}
	return job, nil
}

// Cancel отменяет задачу, если её ещё не забрал воркер.
// Возвращает false, если задача уже не в статусе pending.
func (r *JobRepository) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	affected, err := r.ExecAffected(ctx, `
		UPDATE jobs
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, model.JobStatusCancelled, id, model.JobStatusPending)
	if err != nil {
		return false, fmt.Errorf("cancel job: %w", err)
	}
	return affected > 0, nil
}

// Claim забирает одну готовую к выполнению задачу
func (r *JobRepository) Claim(ctx context.Context, now time.Time) (*model.Job, error) {
	job, err := scanJob(r.DB().QueryRow(ctx, `
		UPDATE jobs
		SET status = $1, attempts = attempts + 1, updated_at = now()
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = $2 AND run_at <= $3
			ORDER BY run_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+jobColumns,
		model.JobStatusRunning, model.JobStatusPending, now))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// Complete помечает задачу выполненной
func (r *JobRepository) Complete(ctx context.Context, id uuid.UUID) error {
	_, err := r.ExecAffected(ctx, `
		UPDATE jobs SET status = $1, last_error = '', updated_at = now() WHERE id = $2
	`, model.JobStatusDone, id)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Retry возвращает задачу в очередь на время runAt
func (r *JobRepository) Retry(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error {
	_, err := r.ExecAffected(ctx, `
		UPDATE jobs SET status = $1, run_at = $2, last_error = $3, updated_at = now() WHERE id = $4
	`, model.JobStatusPending, runAt, lastError, id)
	if err != nil {
		return fmt.Errorf("retry job: %w", err)
	}
	return nil
}

// Fail помечает задачу окончательно проваленной
func (r *JobRepository) Fail(ctx context.Context, id uuid.UUID, lastError string) error {
	_, err := r.ExecAffected(ctx, `
		UPDATE jobs SET status = $1, last_error = $2, updated_at = now() WHERE id = $3
	`, model.JobStatusFailed, lastError, id)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// Reap возвращает в очередь задачи, воркер которых пропал (lease истёк)
func (r *JobRepository) Reap(ctx context.Context, staleBefore, now time.Time) (int, error) {
	affected, err := r.ExecAffected(ctx, `
		UPDATE jobs
		SET status = CASE WHEN attempts >= max_attempts THEN $1 ELSE $2 END,
			run_at = $3,
			last_error = 'lease expired',
			updated_at = now()
		WHERE status = $4 AND updated_at < $5
	`, model.JobStatusFailed, model.JobStatusPending, now, model.JobStatusRunning, staleBefore)
	if err != nil {
		return 0, fmt.Errorf("reap jobs: %w", err)
	}
	return int(affected), nil
}
