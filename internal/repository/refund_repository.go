package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/concierge/internal/model"
	"github.com/Freeeeeet/concierge/internal/repository/base"
	"github.com/google/uuid"
)

type RefundRepository struct {
	db base.DBTX
}

func NewRefundRepository(db base.DBTX) *RefundRepository {
	return &RefundRepository{db: db}
}

func scanRefund(row rowScanner) (*model.CustomDateRefund, error) {
	var refund model.CustomDateRefund
	err := row.Scan(
		&refund.ID,
		&refund.CustomDateID,
		&refund.Reason,
		&refund.Status,
		&refund.CreatedAt,
		&refund.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

// CreateRefund создаёт запрос на возврат. Второй возврат на ту же дату
// отклоняет уникальный индекс по custom_date_id.
func (r *RefundRepository) CreateRefund(ctx context.Context, refund *model.CustomDateRefund) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO custom_date_refunds (custom_date_id, reason, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`, refund.CustomDateID, refund.Reason, refund.Status).Scan(&refund.ID, &refund.CreatedAt, &refund.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create refund: %w", err)
	}
	return nil
}

// GetRefundByID получает возврат по ID
func (r *RefundRepository) GetRefundByID(ctx context.Context, id uuid.UUID) (*model.CustomDateRefund, error) {
	refund, err := scanRefund(r.db.QueryRow(ctx, `
		SELECT id, custom_date_id, reason, status, created_at, updated_at
		FROM custom_date_refunds
		WHERE id = $1
	`, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get refund by id: %w", err)
	}
	return refund, nil
}

// GetRefundByCustomDateID получает возврат по custom date
func (r *RefundRepository) GetRefundByCustomDateID(ctx context.Context, customDateID uuid.UUID) (*model.CustomDateRefund, error) {
	refund, err := scanRefund(r.db.QueryRow(ctx, `
		SELECT id, custom_date_id, reason, status, created_at, updated_at
		FROM custom_date_refunds
		WHERE custom_date_id = $1
	`, customDateID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get refund by custom date: %w", err)
	}
	return refund, nil
}

// UpdateRefundStatus обновляет статус возврата
func (r *RefundRepository) UpdateRefundStatus(ctx context.Context, id uuid.UUID, status model.RefundStatus) error {
	result, err := r.db.Exec(ctx, `
		UPDATE custom_date_refunds
		SET status = $1, updated_at = now()
		WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("update refund status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("refund not found")
	}

	return nil
}

// ListRefundsByStatus очередь возвратов для администратора, старые первыми
func (r *RefundRepository) ListRefundsByStatus(ctx context.Context, status model.RefundStatus) ([]*model.CustomDateRefund, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, custom_date_id, reason, status, created_at, updated_at
		FROM custom_date_refunds
		WHERE status = $1
		ORDER BY created_at ASC
	`, status)
	if err != nil {
		return nil, fmt.Errorf("list refunds by status: %w", err)
	}
	defer rows.Close()

	var refunds []*model.CustomDateRefund
	for rows.Next() {
		refund, err := scanRefund(rows)
		if err != nil {
			return nil, fmt.Errorf("scan refund: %w", err)
		}
		refunds = append(refunds, refund)
	}

	return refunds, rows.Err()
}
