package service

import (
	"context"
	"errors"
	"sort"

	"github.com/Freeeeeet/concierge/internal/jobs"
	"github.com/Freeeeeet/concierge/internal/model"
	"github.com/Freeeeeet/concierge/internal/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Уведомления и задачи отправляются после записи в базу. Их ошибки
// только логируются и не откатывают изменение состояния.

func (s *CustomDateService) enqueue(ctx context.Context, name string, payload jobs.Payload, opts jobs.Options) {
	if _, err := s.scheduler.Enqueue(ctx, name, payload, opts); err != nil {
		s.logger.Error("Failed to enqueue job",
			zap.String("job", name),
			zap.String("custom_date_id", payload.CustomDateID.String()),
			zap.Error(err),
		)
	}
}

// cancelJob снимает ожидающую задачу. Если воркер уже забрал её, ничего не делаем.
func (s *CustomDateService) cancelJob(ctx context.Context, name string, customDateID uuid.UUID) {
	job, err := s.scheduler.FindPending(ctx, name, customDateID)
	if err == nil {
		err = s.scheduler.Cancel(ctx, job)
	}
	if err != nil && !errors.Is(err, jobs.ErrNotPending) {
		s.logger.Warn("Failed to cancel job",
			zap.String("job", name),
			zap.String("custom_date_id", customDateID.String()),
			zap.Error(err),
		)
	}
}

func (s *CustomDateService) sendEmail(ctx context.Context, to string, template string, data notify.MailData) {
	s.sendEmailWith(ctx, notify.Email{To: []string{to}, Template: template, Data: data})
}

func (s *CustomDateService) sendEmailWith(ctx context.Context, email notify.Email) {
	if err := s.notifier.SendEmail(ctx, email); err != nil {
		s.logger.Warn("Failed to send email",
			zap.String("template", email.Template),
			zap.Error(err),
		)
	}
}

func (s *CustomDateService) publish(ctx context.Context, topic, eventType string, date *model.CustomDate) {
	var tastemakerUserID uuid.UUID
	if date.Tastemaker != nil {
		tastemakerUserID = date.Tastemaker.UserID
	}

	event := notify.NewEvent(eventType, date, tastemakerUserID, s.now())
	if err := s.notifier.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("event", eventType),
			zap.String("custom_date_id", date.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *CustomDateService) directMessage(ctx context.Context, user *model.User, text string) {
	if err := s.notifier.DirectMessage(ctx, user, text); err != nil {
		s.logger.Warn("Failed to send direct message", zap.Error(err))
	}
}

// mailData общие поля письма для получателя recipient
func (s *CustomDateService) mailData(date *model.CustomDate, recipient *model.User) notify.MailData {
	data := notify.MailData{
		CustomDateID: date.ID.String(),
		BeginsAt:     date.BeginsAt,
		NumStops:     date.NumStops,
		Cost:         date.Cost,
		Status:       string(date.Status),
		URL:          s.opts.AppURL + "/custom-dates/" + date.ID.String(),
	}
	if recipient != nil {
		data.RecipientName = recipient.FullName()
	}
	if date.Requestor != nil {
		data.RequestorName = date.Requestor.FullName()
	}
	if date.Tastemaker != nil && date.Tastemaker.User != nil {
		data.TastemakerName = date.Tastemaker.User.FullName()
	}
	return data
}

func sortByLastMessage(dates []*model.CustomDate) {
	sort.SliceStable(dates, func(i, j int) bool {
		return dates[i].LastMessageSentAt.After(dates[j].LastMessageSentAt)
	})
}
