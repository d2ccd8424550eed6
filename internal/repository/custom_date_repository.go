package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/concierge/internal/model"
	"github.com/Freeeeeet/concierge/internal/repository/base"
	"github.com/google/uuid"
)

const customDateColumns = `
	id, requestor_id, tastemaker_id, begins_at, num_stops, price_per_stop, price_range_min, price_range_max,
	cost, notes, status, responded_at, last_message_sent_at, completed, tastemaker_paid_at,
	created_at, updated_at`

type CustomDateRepository struct {
	db base.DBTX
}

func NewCustomDateRepository(db base.DBTX) *CustomDateRepository {
	return &CustomDateRepository{db: db}
}

func scanCustomDate(row rowScanner) (*model.CustomDate, error) {
	var d model.CustomDate
	err := row.Scan(
		&d.ID,
		&d.RequestorID,
		&d.TastemakerID,
		&d.BeginsAt,
		&d.NumStops,
		&d.PricePerStop,
		&d.PriceRangeMin,
		&d.PriceRangeMax,
		&d.Cost,
		&d.Notes,
		&d.Status,
		&d.RespondedAt,
		&d.LastMessageSentAt,
		&d.Completed,
		&d.TastemakerPaidAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateCustomDate создаёт запрос вместе со связями на города и теги
func (r *CustomDateRepository) CreateCustomDate(ctx context.Context, d *model.CustomDate) error {
	query := `
		INSERT INTO custom_dates (
			requestor_id, tastemaker_id, begins_at, num_stops, price_per_stop, price_range_min,
			price_range_max, cost, notes, status, last_message_sent_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		RETURNING id, last_message_sent_at, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		d.RequestorID,
		d.TastemakerID,
		d.BeginsAt,
		d.NumStops,
		d.PricePerStop,
		d.PriceRangeMin,
		d.PriceRangeMax,
		d.Cost,
		d.Notes,
		d.Status,
	).Scan(&d.ID, &d.LastMessageSentAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create custom date: %w", err)
	}

	for _, cityID := range d.CityIDs {
		_, err := r.db.Exec(ctx,
			`INSERT INTO custom_date_cities (custom_date_id, city_id) VALUES ($1, $2)`,
			d.ID, cityID)
		if err != nil {
			return fmt.Errorf("link custom date city: %w", err)
		}
	}

	for _, tagID := range d.TagIDs {
		_, err := r.db.Exec(ctx,
			`INSERT INTO custom_date_tags (custom_date_id, tag_id) VALUES ($1, $2)`,
			d.ID, tagID)
		if err != nil {
			return fmt.Errorf("link custom date tag: %w", err)
		}
	}

	return nil
}

// GetCustomDateByID получает запрос по ID вместе с городами и тегами
func (r *CustomDateRepository) GetCustomDateByID(ctx context.Context, id uuid.UUID) (*model.CustomDate, error) {
	query := `SELECT ` + customDateColumns + ` FROM custom_dates WHERE id = $1`

	d, err := scanCustomDate(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get custom date by id: %w", err)
	}

	d.CityIDs, err = r.linkedIDs(ctx, `SELECT city_id FROM custom_date_cities WHERE custom_date_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get custom date cities: %w", err)
	}

	d.TagIDs, err = r.linkedIDs(ctx, `SELECT tag_id FROM custom_date_tags WHERE custom_date_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get custom date tags: %w", err)
	}

	return d, nil
}

func (r *CustomDateRepository) linkedIDs(ctx context.Context, query string, id uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var linked uuid.UUID
		if err := rows.Scan(&linked); err != nil {
			return nil, err
		}
		ids = append(ids, linked)
	}
	return ids, rows.Err()
}

// UpdateCustomDate сохраняет изменяемые поля состояния
func (r *CustomDateRepository) UpdateCustomDate(ctx context.Context, d *model.CustomDate) error {
	query := `
		UPDATE custom_dates
		SET status = $1,
		    responded_at = $2,
		    last_message_sent_at = $3,
		    completed = $4,
		    tastemaker_paid_at = $5,
		    updated_at = now()
		WHERE id = $6
		RETURNING updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		d.Status,
		d.RespondedAt,
		d.LastMessageSentAt,
		d.Completed,
		d.TastemakerPaidAt,
		d.ID,
	).Scan(&d.UpdatedAt)
	if err != nil {
		if base.IsNotFound(err) {
			return fmt.Errorf("custom date not found")
		}
		return fmt.Errorf("update custom date: %w", err)
	}

	return nil
}

func (r *CustomDateRepository) listCustomDates(ctx context.Context, query string, arg any) ([]*model.CustomDate, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []*model.CustomDate
	for rows.Next() {
		d, err := scanCustomDate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan custom date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// ListCustomDatesByRequestor входящие заказчика, свежие сверху
func (r *CustomDateRepository) ListCustomDatesByRequestor(ctx context.Context, requestorID uuid.UUID) ([]*model.CustomDate, error) {
	query := `SELECT ` + customDateColumns + `
		FROM custom_dates
		WHERE requestor_id = $1
		ORDER BY last_message_sent_at DESC`

	dates, err := r.listCustomDates(ctx, query, requestorID)
	if err != nil {
		return nil, fmt.Errorf("list custom dates by requestor: %w", err)
	}
	return dates, nil
}

// ListCustomDatesByTastemaker входящие tastemaker, свежие сверху
func (r *CustomDateRepository) ListCustomDatesByTastemaker(ctx context.Context, tastemakerID uuid.UUID) ([]*model.CustomDate, error) {
	query := `SELECT ` + customDateColumns + `
		FROM custom_dates
		WHERE tastemaker_id = $1
		ORDER BY last_message_sent_at DESC`

	dates, err := r.listCustomDates(ctx, query, tastemakerID)
	if err != nil {
		return nil, fmt.Errorf("list custom dates by tastemaker: %w", err)
	}
	return dates, nil
}

// HasUnsettledCustomDates есть ли у заказчика принятые, но не завершённые запросы
func (r *CustomDateRepository) HasUnsettledCustomDates(ctx context.Context, requestorID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM custom_dates
			WHERE requestor_id = $1 AND status = $2 AND NOT completed
		)
	`, requestorID, model.CustomDateStatusAccepted).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check unsettled custom dates: %w", err)
	}
	return exists, nil
}
