package notify

import (
	"context"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// Message готовое к отправке письмо
type Message struct {
	From        string
	To          []string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// ResendMailer отправка через Resend API
type ResendMailer struct {
	client *resend.Client
}

func NewResendMailer(apiKey string) *ResendMailer {
	return &ResendMailer{client: resend.NewClient(apiKey)}
}

func (m *ResendMailer) Send(ctx context.Context, msg Message) error {
	params := &resend.SendEmailRequest{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
	}

	for _, a := range msg.Attachments {
		params.Attachments = append(params.Attachments, &resend.Attachment{
			Filename: a.Filename,
			Content:  a.Content,
		})
	}

	_, err := m.client.Emails.SendWithContext(ctx, params)
	return err
}

// LogMailer пишет письма в лог вместо отправки (когда RESEND_API_KEY не задан)
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("Email (not sent)",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("attachments", len(msg.Attachments)),
	)
	return nil
}
