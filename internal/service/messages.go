package service

import (
	"context"

	"github.com/Freeeeeet/concierge/internal/analytics"
	"github.com/Freeeeeet/concierge/internal/auth"
	"github.com/Freeeeeet/concierge/internal/model"
	"github.com/Freeeeeet/concierge/internal/notify"
	"github.com/Freeeeeet/concierge/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SendCustomDateMessage сообщение между заказчиком и tastemaker
func (s *CustomDateService) SendCustomDateMessage(ctx context.Context, viewer *auth.Identity, customDateID uuid.UUID, input MessageInput) (*model.CustomDateMessage, error) {
	if err := requireLogin(viewer); err != nil {
		return nil, err
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var (
		date    *model.CustomDate
		message *model.CustomDateMessage
	)

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		date, err = s.loadCustomDate(ctx, tx, customDateID)
		if err != nil {
			return err
		}
		if !isRequestor(viewer, date) && !isTastemaker(viewer, date) {
			return ErrNotAllowed
		}

		message = &model.CustomDateMessage{
			CustomDateID: date.ID,
			SenderID:     viewer.UserID,
			Text:         input.Text,
		}
		if err := tx.CreateMessage(ctx, message); err != nil {
			return err
		}

		date.LastMessageSentAt = s.now()
		return tx.UpdateCustomDate(ctx, date)
	})
	if err != nil {
		return nil, s.internal(viewer, "send message", err)
	}

	s.logger.Info("Custom date message sent",
		zap.String("custom_date_id", date.ID.String()),
		zap.String("sender_id", viewer.UserID.String()),
	)

	recipient := date.Tastemaker.User
	if isTastemaker(viewer, date) {
		recipient = date.Requestor
	}
	data := s.mailData(date, recipient)
	data.Message = message.Text
	s.sendEmail(ctx, recipient.Email, notify.TemplateNewMessage, data)
	s.publish(ctx, notify.TopicMessage, notify.EventNewMessage, date)
	s.tracker.Track(viewer.UserID.String(), analytics.EventCustomDateMessageSent, map[string]any{
		"customDateId": date.ID.String(),
	})

	return message, nil
}

// ListCustomDateMessages переписка от старых к новым
func (s *CustomDateService) ListCustomDateMessages(ctx context.Context, viewer *auth.Identity, customDateID uuid.UUID) ([]*model.CustomDateMessage, error) {
	if err := requireLogin(viewer); err != nil {
		return nil, err
	}

	date, err := s.loadCustomDate(ctx, s.store, customDateID)
	if err != nil {
		return nil, s.internal(viewer, "list messages", err)
	}
	if !isRequestor(viewer, date) && !isTastemaker(viewer, date) && !viewer.IsAdmin() {
		return nil, ErrNotAllowed
	}

	messages, err := s.store.ListMessages(ctx, date.ID)
	if err != nil {
		return nil, s.internal(viewer, "list messages", err)
	}
	return messages, nil
}
