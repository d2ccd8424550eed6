package service

import (
	"context"

	"github.com/Freeeeeet/concierge/internal/analytics"
	"github.com/Freeeeeet/concierge/internal/auth"
	"github.com/Freeeeeet/concierge/internal/jobs"
	"github.com/Freeeeeet/concierge/internal/model"
	"github.com/Freeeeeet/concierge/internal/notify"
	"github.com/Freeeeeet/concierge/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestRefundOnCustomDate заказчик просит вернуть деньги до принятия маршрута.
// Запланированная выплата tastemaker снимается.
func (s *CustomDateService) RequestRefundOnCustomDate(ctx context.Context, viewer *auth.Identity, customDateID uuid.UUID, input RefundRequestInput) (*model.CustomDateRefund, error) {
	if err := requireLogin(viewer); err != nil {
		return nil, err
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var (
		date   *model.CustomDate
		refund *model.CustomDateRefund
	)

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		date, err = s.loadCustomDate(ctx, tx, customDateID)
		if err != nil {
			return err
		}
		if !isRequestor(viewer, date) {
			return ErrNotAllowed
		}
		if !date.IsAccepted() {
			return conflict("cannot request refund on non-accepted date")
		}

		existing, err := tx.GetRefundByCustomDateID(ctx, date.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return conflict("a refund has already been requested")
		}

		latest, err := tx.GetLatestSuggestion(ctx, date.ID)
		if err != nil {
			return err
		}
		if latest == nil || latest.Status == model.SuggestionStatusAccepted {
			return conflict("cannot request refund on this custom date")
		}
		if date.TastemakerPaidAt != nil {
			return conflict("tastemaker has already been paid")
		}
		if date.RespondedAt == nil || s.now().Sub(*date.RespondedAt) >= refundWindow {
			return conflict("refund window has closed")
		}

		refund = &model.CustomDateRefund{
			CustomDateID: date.ID,
			Reason:       input.Reason,
			Status:       model.RefundStatusRequested,
		}
		return tx.CreateRefund(ctx, refund)
	})
	if err != nil {
		return nil, s.internal(viewer, "request refund", err)
	}

	s.logger.Info("Custom date refund requested",
		zap.String("custom_date_id", date.ID.String()),
		zap.String("refund_id", refund.ID.String()),
	)

	// событие идёт в канал ревизий, чтобы клиенты убрали свидание из активных
	s.publish(ctx, notify.TopicSuggestion, notify.EventRefundRequested, date)
	s.cancelJob(ctx, jobs.PayTastemaker, date.ID)

	data := s.mailData(date, nil)
	data.RecipientName = "Concierge team"
	data.Reason = refund.Reason
	if admins := s.adminEmails(ctx); len(admins) > 0 {
		s.sendEmailWith(ctx, notify.Email{To: admins, Template: notify.TemplateRefundRequested, Data: data})
	}
	data.RecipientName = date.Tastemaker.User.FullName()
	s.sendEmail(ctx, date.Tastemaker.User.Email, notify.TemplateRefundRequested, data)

	s.tracker.Track(viewer.UserID.String(), analytics.EventRefundRequested, map[string]any{
		"customDateId": date.ID.String(),
	})

	return refund, nil
}

// adminEmails адрес из настроек и все администраторы
func (s *CustomDateService) adminEmails(ctx context.Context) []string {
	var emails []string
	seen := make(map[string]bool)
	add := func(email string) {
		if email != "" && !seen[email] {
			seen[email] = true
			emails = append(emails, email)
		}
	}

	add(s.opts.AdminEmail)

	admins, err := s.store.ListAdmins(ctx)
	if err != nil {
		s.logger.Warn("Failed to list admins", zap.Error(err))
	}
	for _, admin := range admins {
		add(admin.Email)
	}

	return emails
}

// RespondToRequestedRefund администратор одобряет или отклоняет возврат.
// В обоих случаях custom date завершается.
func (s *CustomDateService) RespondToRequestedRefund(ctx context.Context, viewer *auth.Identity, refundID uuid.UUID, input RefundResponseInput) (*model.CustomDateRefund, error) {
	if err := requireLogin(viewer); err != nil {
		return nil, err
	}
	if !viewer.IsAdmin() {
		return nil, ErrNotAllowed
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var (
		date   *model.CustomDate
		refund *model.CustomDateRefund
	)

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		refund, err = tx.GetRefundByID(ctx, refundID)
		if err != nil {
			return err
		}
		if refund == nil {
			return notFound("refund not found")
		}
		if refund.Status != model.RefundStatusRequested {
			return conflict("refund has already been resolved")
		}

		refund.Status = model.RefundStatusDenied
		if input.Accepted {
			refund.Status = model.RefundStatusRefunded
		}
		if err := tx.UpdateRefundStatus(ctx, refund.ID, refund.Status); err != nil {
			return err
		}

		date, err = s.loadCustomDate(ctx, tx, refund.CustomDateID)
		if err != nil {
			return err
		}
		date.Completed = true
		return tx.UpdateCustomDate(ctx, date)
	})
	if err != nil {
		return nil, s.internal(viewer, "respond to refund", err)
	}

	// TODO: on deny, collect the refunded amount or pay the tastemaker; for now the date is only closed.
	s.logger.Info("Custom date refund resolved",
		zap.String("custom_date_id", date.ID.String()),
		zap.String("refund_id", refund.ID.String()),
		zap.String("status", string(refund.Status)),
	)

	for _, recipient := range []*model.User{date.Requestor, date.Tastemaker.User} {
		data := s.mailData(date, recipient)
		data.Accepted = input.Accepted
		data.Reason = input.Reason
		s.sendEmail(ctx, recipient.Email, notify.TemplateRefundResolved, data)
	}

	s.tracker.Track(viewer.UserID.String(), analytics.EventRefundResolved, map[string]any{
		"customDateId": date.ID.String(),
		"status":       string(refund.Status),
	})

	return refund, nil
}

// ListRequestedRefunds очередь возвратов для администратора
func (s *CustomDateService) ListRequestedRefunds(ctx context.Context, viewer *auth.Identity) ([]*model.CustomDateRefund, error) {
	if err := requireLogin(viewer); err != nil {
		return nil, err
	}
	if !viewer.IsAdmin() {
		return nil, ErrNotAllowed
	}

	refunds, err := s.store.ListRefundsByStatus(ctx, model.RefundStatusRequested)
	if err != nil {
		return nil, s.internal(viewer, "list refunds", err)
	}
	return refunds, nil
}

// PaymentMethodRemovable способ оплаты нельзя удалить, пока есть
// принятые и не завершённые custom dates
func (s *CustomDateService) PaymentMethodRemovable(ctx context.Context, viewer *auth.Identity) (bool, error) {
	if err := requireLogin(viewer); err != nil {
		return false, err
	}

	unsettled, err := s.store.HasUnsettledCustomDates(ctx, viewer.UserID)
	if err != nil {
		return false, s.internal(viewer, "check payment method", err)
	}
	return !unsettled, nil
}
