package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/concierge/internal/model"
	"github.com/Freeeeeet/concierge/internal/repository/base"
	"github.com/google/uuid"
)

type MessageRepository struct {
	db base.DBTX
}

func NewMessageRepository(db base.DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

// CreateMessage добавляет сообщение в переписку (только вставка)
func (r *MessageRepository) CreateMessage(ctx context.Context, m *model.CustomDateMessage) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO custom_date_messages (custom_date_id, sender_id, text)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, m.CustomDateID, m.SenderID, m.Text).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// ListMessages переписка по custom date в хронологическом порядке
func (r *MessageRepository) ListMessages(ctx context.Context, customDateID uuid.UUID) ([]*model.CustomDateMessage, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, custom_date_id, sender_id, text, created_at
		FROM custom_date_messages
		WHERE custom_date_id = $1
		ORDER BY created_at ASC
	`, customDateID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []*model.CustomDateMessage
	for rows.Next() {
		var m model.CustomDateMessage
		if err := rows.Scan(&m.ID, &m.CustomDateID, &m.SenderID, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &m)
	}

	return messages, rows.Err()
}
