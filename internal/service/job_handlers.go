package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/concierge/internal/itinerary"
	"github.com/Freeeeeet/concierge/internal/jobs"
	"github.com/Freeeeeet/concierge/internal/model"
	"github.com/Freeeeeet/concierge/internal/notify"
	"github.com/Freeeeeet/concierge/internal/payout"
	"go.uber.org/zap"
)

// JobRegistry куда регистрируются обработчики; реализуется jobs.Worker
type JobRegistry interface {
	Handle(name string, h jobs.HandlerFunc)
}

// RegisterJobs подключает обработчики отложенных задач
func (s *CustomDateService) RegisterJobs(r JobRegistry) {
	r.Handle(jobs.CheckAcceptance, s.handleCheckAcceptance)
	r.Handle(jobs.PayTastemaker, s.handlePayTastemaker)
	r.Handle(jobs.SendItinerary, s.handleSendItinerary)
}

// handleCheckAcceptance истекает запрос, на который tastemaker не ответил за сутки
func (s *CustomDateService) handleCheckAcceptance(ctx context.Context, _ *model.Job, payload jobs.Payload) error {
	date, err := s.loadCustomDate(ctx, s.store, payload.CustomDateID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !date.IsRequested() {
		return nil
	}

	now := s.now()
	date.Status = model.CustomDateStatusExpired
	date.Completed = true
	date.RespondedAt = &now
	if err := s.store.UpdateCustomDate(ctx, date); err != nil {
		return err
	}

	s.logger.Info("Custom date expired", zap.String("custom_date_id", date.ID.String()))

	s.publish(ctx, notify.TopicStatus, notify.EventExpired, date)
	s.sendEmail(ctx, date.Requestor.Email, notify.TemplateExpired, s.mailData(date, date.Requestor))
	return nil
}

// handlePayTastemaker выплачивает tastemaker, если не было запроса на возврат
func (s *CustomDateService) handlePayTastemaker(ctx context.Context, _ *model.Job, payload jobs.Payload) error {
	date, err := s.loadCustomDate(ctx, s.store, payload.CustomDateID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if !date.IsAccepted() || date.TastemakerPaidAt != nil {
		return nil
	}

	refund, err := s.store.GetRefundByCustomDateID(ctx, date.ID)
	if err != nil {
		return err
	}
	if refund != nil {
		s.logger.Info("Payout skipped, refund requested",
			zap.String("custom_date_id", date.ID.String()),
			zap.String("refund_status", string(refund.Status)),
		)
		return nil
	}

	if _, err := s.payouts.Pay(ctx, date, date.Tastemaker); err != nil {
		if errors.Is(err, payout.ErrNoConnectedAccount) {
			return jobs.Permanent(err)
		}
		return err
	}

	now := s.now()
	date.TastemakerPaidAt = &now
	if err := s.store.UpdateCustomDate(ctx, date); err != nil {
		return fmt.Errorf("record payout: %w", err)
	}
	return nil
}

// handleSendItinerary отправляет календарь принятого маршрута одному получателю
func (s *CustomDateService) handleSendItinerary(ctx context.Context, _ *model.Job, payload jobs.Payload) error {
	if payload.SuggestionID == nil || payload.RecipientEmail == "" {
		return jobs.Permanent(errors.New("itinerary job without suggestion or recipient"))
	}

	loc, err := time.LoadLocation(payload.TimeZone)
	if err != nil {
		return jobs.Permanent(fmt.Errorf("load time zone: %w", err))
	}

	date, err := s.loadCustomDate(ctx, s.store, payload.CustomDateID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return jobs.Permanent(err)
		}
		return err
	}

	suggestion, err := s.store.GetSuggestionByID(ctx, *payload.SuggestionID)
	if err != nil {
		return err
	}
	if suggestion == nil {
		return jobs.Permanent(fmt.Errorf("suggestion %s not found", *payload.SuggestionID))
	}

	req := itinerary.Request{
		Start:     date.BeginsAt.In(loc),
		Stops:     itinerary.FromSuggestion(suggestion),
		Organizer: itinerary.Person{Name: date.Requestor.FullName(), Email: date.Requestor.Email},
	}
	if payload.GuestEmail != "" {
		req.Guest = &itinerary.Person{Name: payload.GuestName, Email: payload.GuestEmail}
	}

	calendar, err := itinerary.Generate(req)
	if err != nil {
		return jobs.Permanent(err)
	}

	data := s.mailData(date, nil)
	data.RecipientName = payload.RecipientName
	data.BeginsAt = date.BeginsAt.In(loc)

	err = s.notifier.SendEmail(ctx, notify.Email{
		To:       []string{payload.RecipientEmail},
		Template: notify.TemplateItinerary,
		Data:     data,
		Attachments: []notify.Attachment{{
			Filename:    itineraryFilename,
			ContentType: "text/calendar",
			Content:     []byte(calendar),
		}},
	})
	if err != nil {
		return err
	}

	s.logger.Info("Itinerary sent",
		zap.String("custom_date_id", date.ID.String()),
		zap.Bool("guest", payload.Guest),
	)
	return nil
}
