// Package notify доставляет уведомления участникам custom date:
// письма, события реального времени и личные сообщения в Telegram.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/concierge/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Каналы реального времени
const (
	TopicNewCustomDate = "custom_date.new"
	TopicStatus        = "custom_date.status"
	TopicSuggestion    = "custom_date.suggestion"
	TopicMessage       = "custom_date.message"
)

// Типы событий
const (
	EventNewCustomDate      = "NewCustomDate"
	EventAccepted           = "Accepted"
	EventDeclined           = "Declined"
	EventExpired            = "Expired"
	EventCancelled          = "Cancelled"
	EventNewSuggestion      = "NewSuggestion"
	EventChangesRequested   = "ChangesRequested"
	EventSuggestionAccepted = "SuggestionAccepted"
	EventRefundRequested    = "RefundRequested"
	EventNewMessage         = "NewMessage"
)

// Event событие для подписчиков. Получают его только заказчик и tastemaker.
type Event struct {
	Type             string    `json:"type"`
	CustomDateID     uuid.UUID `json:"customDateId"`
	RequestorID      uuid.UUID `json:"requestorId"`
	TastemakerUserID uuid.UUID `json:"tastemakerUserId"`
	At               time.Time `json:"at"`
}

// VisibleTo проверяет, может ли пользователь получить событие
func (e Event) VisibleTo(userID uuid.UUID) bool {
	return userID != uuid.Nil && (e.RequestorID == userID || e.TastemakerUserID == userID)
}

// NewEvent событие по custom date
func NewEvent(eventType string, date *model.CustomDate, tastemakerUserID uuid.UUID, at time.Time) Event {
	return Event{
		Type:             eventType,
		CustomDateID:     date.ID,
		RequestorID:      date.RequestorID,
		TastemakerUserID: tastemakerUserID,
		At:               at,
	}
}

type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Email письмо по шаблону
type Email struct {
	To          []string
	Template    string
	Data        MailData
	Attachments []Attachment
}

// Mailer отправка готового письма
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Publisher публикация событий реального времени
type Publisher interface {
	Publish(ctx context.Context, topic string, event Event) error
}

// Messenger личные сообщения в чат
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Dispatcher собирает все каналы доставки вместе
type Dispatcher struct {
	mailer    Mailer
	publisher Publisher
	messenger Messenger
	templates *Templates
	from      string
	logger    *zap.Logger
}

func NewDispatcher(
	mailer Mailer,
	publisher Publisher,
	messenger Messenger,
	templates *Templates,
	from string,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		mailer:    mailer,
		publisher: publisher,
		messenger: messenger,
		templates: templates,
		from:      from,
		logger:    logger,
	}
}

// SendEmail рендерит шаблон и отправляет письмо
func (d *Dispatcher) SendEmail(ctx context.Context, email Email) error {
	if len(email.To) == 0 {
		return fmt.Errorf("email %s has no recipients", email.Template)
	}

	subject, html, err := d.templates.Render(email.Template, email.Data)
	if err != nil {
		return err
	}

	msg := Message{
		From:        d.from,
		To:          email.To,
		Subject:     subject,
		HTML:        html,
		Attachments: email.Attachments,
	}

	if err := d.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s email: %w", email.Template, err)
	}

	d.logger.Debug("Email sent",
		zap.String("template", email.Template),
		zap.Strings("to", email.To),
	)
	return nil
}

// Publish отправляет событие в канал topic
func (d *Dispatcher) Publish(ctx context.Context, topic string, event Event) error {
	if d.publisher == nil {
		return nil
	}
	if err := d.publisher.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// DirectMessage пишет пользователю в Telegram, если он привязал чат
func (d *Dispatcher) DirectMessage(ctx context.Context, user *model.User, text string) error {
	if d.messenger == nil || user == nil || user.TelegramChatID == nil {
		return nil
	}
	if err := d.messenger.Send(ctx, *user.TelegramChatID, text); err != nil {
		return fmt.Errorf("telegram message: %w", err)
	}
	return nil
}
