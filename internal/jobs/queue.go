// Package jobs реализует отложенные задачи поверх таблицы jobs:
// постановку с задержкой, поиск ожидающей задачи, отмену и воркер
// с экспоненциальными повторами.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/concierge/internal/model"
	"github.com/google/uuid"
)

// Имена задач
const (
	CheckAcceptance = "check_acceptance"
	PayTastemaker   = "pay_tastemaker"
	SendItinerary   = "send_itinerary"
)

// ErrNotPending задачу уже забрал воркер или она завершена
var ErrNotPending = errors.New("job is no longer pending")

// Store хранилище задач; реализуется repository.JobRepository
type Store interface {
	Insert(ctx context.Context, job *model.Job) (*model.Job, error)
	FindPending(ctx context.Context, name string, customDateID uuid.UUID) (*model.Job, error)
	Cancel(ctx context.Context, id uuid.UUID) (bool, error)
	Claim(ctx context.Context, now time.Time) (*model.Job, error)
	Complete(ctx context.Context, id uuid.UUID) error
	Retry(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error
	Fail(ctx context.Context, id uuid.UUID, lastError string) error
	// Reap возвращает в pending задачи, которые в running с момента раньше
	// staleBefore; исчерпавшие попытки помечаются failed
	Reap(ctx context.Context, staleBefore, now time.Time) (int, error)
}

// Payload данные задачи, сериализуются в jsonb
type Payload struct {
	CustomDateID   uuid.UUID  `json:"customDateId"`
	SuggestionID   *uuid.UUID `json:"suggestionId,omitempty"`
	RecipientName  string     `json:"recipientName,omitempty"`
	RecipientEmail string     `json:"recipientEmail,omitempty"`
	TimeZone       string     `json:"timeZone,omitempty"`
	GuestName      string     `json:"guestName,omitempty"`
	GuestEmail     string     `json:"guestEmail,omitempty"`
	Guest          bool       `json:"guest,omitempty"` // письмо адресовано гостю, а не заказчику
}

// Options параметры постановки задачи
type Options struct {
	Delay       time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	// DedupeKey по умолчанию "<name>:<customDateId>"
	DedupeKey string
}

// Queue постановка и отмена задач
type Queue struct {
	store Store
	now   func() time.Time
}

func NewQueue(store Store) *Queue {
	return &Queue{store: store, now: time.Now}
}

// Enqueue ставит задачу name с задержкой opts.Delay
func (q *Queue) Enqueue(ctx context.Context, name string, payload Payload, opts Options) (*model.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}

	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.DedupeKey == "" {
		opts.DedupeKey = name + ":" + payload.CustomDateID.String()
	}

	job := &model.Job{
		Name:          name,
		CustomDateID:  payload.CustomDateID,
		DedupeKey:     opts.DedupeKey,
		Payload:       data,
		MaxAttempts:   opts.MaxAttempts,
		BackoffBaseMS: opts.BackoffBase.Milliseconds(),
		RunAt:         q.now().Add(opts.Delay),
	}

	inserted, err := q.store.Insert(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", name, err)
	}
	return inserted, nil
}

// FindPending ожидающая задача name для custom date или nil
func (q *Queue) FindPending(ctx context.Context, name string, customDateID uuid.UUID) (*model.Job, error) {
	return q.store.FindPending(ctx, name, customDateID)
}

// Cancel снимает задачу. Если воркер успел её забрать, возвращает ErrNotPending.
func (q *Queue) Cancel(ctx context.Context, job *model.Job) error {
	if job == nil {
		return nil
	}

	cancelled, err := q.store.Cancel(ctx, job.ID)
	if err != nil {
		return err
	}
	if !cancelled {
		return ErrNotPending
	}
	return nil
}

// DecodePayload разбирает payload задачи
func DecodePayload(job *model.Job) (Payload, error) {
	var payload Payload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return Payload{}, fmt.Errorf("decode job payload: %w", err)
	}
	return payload, nil
}
