package notify

import (
	"context"

	"github.com/go-telegram/bot"
)

// TelegramMessenger личные сообщения через Telegram-бота
type TelegramMessenger struct {
	bot *bot.Bot
}

func NewTelegramMessenger(token string) (*TelegramMessenger, error) {
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, err
	}
	return &TelegramMessenger{bot: b}, nil
}

func (m *TelegramMessenger) Send(ctx context.Context, chatID int64, text string) error {
	_, err := m.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	return err
}
