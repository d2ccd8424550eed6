package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/concierge/internal/model"
	"github.com/Freeeeeet/concierge/internal/repository/base"
	"github.com/google/uuid"
)

type SuggestionRepository struct {
	db base.DBTX
}

func NewSuggestionRepository(db base.DBTX) *SuggestionRepository {
	return &SuggestionRepository{db: db}
}

// CreateSuggestion создаёт ревизию вместе с остановками.
// Уникальность (custom_date_id, revision_number) обеспечивает индекс.
func (r *SuggestionRepository) CreateSuggestion(ctx context.Context, s *model.CustomDateSuggestion) error {
	query := `
		INSERT INTO custom_date_suggestions (custom_date_id, revision_number, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query, s.CustomDateID, s.RevisionNumber, s.Status).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create suggestion: %w", err)
	}

	for _, stop := range s.Stops {
		stop.SuggestionID = s.ID
		err := r.db.QueryRow(ctx, `
			INSERT INTO custom_date_suggestion_stops (suggestion_id, "order", content, location_id)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, s.ID, stop.Order, stop.Content, stop.LocationID).Scan(&stop.ID)
		if err != nil {
			return fmt.Errorf("create suggestion stop: %w", err)
		}
	}

	return nil
}

func (r *SuggestionRepository) getSuggestion(ctx context.Context, where string, arg any) (*model.CustomDateSuggestion, error) {
	query := `
		SELECT id, custom_date_id, revision_number, status, created_at, updated_at
		FROM custom_date_suggestions
		` + where

	var s model.CustomDateSuggestion
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&s.ID,
		&s.CustomDateID,
		&s.RevisionNumber,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get suggestion: %w", err)
	}

	s.Stops, err = r.getStops(ctx, s.ID)
	if err != nil {
		return nil, err
	}

	return &s, nil
}

// getStops загружает остановки с локациями и запрошенными изменениями
func (r *SuggestionRepository) getStops(ctx context.Context, suggestionID uuid.UUID) ([]*model.SuggestionStop, error) {
	rows, err := r.db.Query(ctx, `
		SELECT st.id, st.suggestion_id, st."order", st.content, st.location_id,
		       l.name, l.street, l.city, l.state_initials, l.postal_code,
		       rc.id, rc.change_requested, rc.comment, rc.created_at
		FROM custom_date_suggestion_stops st
		JOIN locations l ON l.id = st.location_id
		LEFT JOIN custom_date_suggestion_stop_requested_changes rc ON rc.stop_id = st.id
		WHERE st.suggestion_id = $1
		ORDER BY st."order"
	`, suggestionID)
	if err != nil {
		return nil, fmt.Errorf("get suggestion stops: %w", err)
	}
	defer rows.Close()

	var stops []*model.SuggestionStop
	for rows.Next() {
		var (
			stop     model.SuggestionStop
			loc      model.Location
			changeID *uuid.UUID
			change   model.StopRequestedChange
			flag     *bool
			comment  *string
			at       *time.Time
		)
		err := rows.Scan(
			&stop.ID, &stop.SuggestionID, &stop.Order, &stop.Content, &stop.LocationID,
			&loc.Name, &loc.Street, &loc.City, &loc.StateInitials, &loc.PostalCode,
			&changeID, &flag, &comment, &at,
		)
		if err != nil {
			return nil, fmt.Errorf("scan suggestion stop: %w", err)
		}

		loc.ID = stop.LocationID
		stop.Location = &loc

		if changeID != nil {
			change.ID = *changeID
			change.StopID = stop.ID
			if flag != nil {
				change.ChangeRequested = *flag
			}
			if comment != nil {
				change.Comment = *comment
			}
			if at != nil {
				change.CreatedAt = *at
			}
			stop.RequestedChange = &change
		}

		stops = append(stops, &stop)
	}

	return stops, rows.Err()
}

// GetSuggestionByID получает ревизию по ID
func (r *SuggestionRepository) GetSuggestionByID(ctx context.Context, id uuid.UUID) (*model.CustomDateSuggestion, error) {
	return r.getSuggestion(ctx, `WHERE id = $1`, id)
}

// GetLatestSuggestion текущая ревизия: с максимальным revision_number
func (r *SuggestionRepository) GetLatestSuggestion(ctx context.Context, customDateID uuid.UUID) (*model.CustomDateSuggestion, error) {
	return r.getSuggestion(ctx, `WHERE custom_date_id = $1 ORDER BY revision_number DESC LIMIT 1`, customDateID)
}

// CountSuggestions количество ревизий у custom date
func (r *SuggestionRepository) CountSuggestions(ctx context.Context, customDateID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM custom_date_suggestions WHERE custom_date_id = $1`,
		customDateID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count suggestions: %w", err)
	}
	return count, nil
}

// UpdateSuggestionStatus обновляет статус ревизии
func (r *SuggestionRepository) UpdateSuggestionStatus(ctx context.Context, id uuid.UUID, status model.SuggestionStatus) error {
	result, err := r.db.Exec(ctx, `
		UPDATE custom_date_suggestions
		SET status = $1, updated_at = now()
		WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("update suggestion status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("suggestion not found")
	}

	return nil
}

// CreateStopRequestedChange записывает запрос изменения остановки
func (r *SuggestionRepository) CreateStopRequestedChange(ctx context.Context, c *model.StopRequestedChange) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO custom_date_suggestion_stop_requested_changes (stop_id, change_requested, comment)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, c.StopID, c.ChangeRequested, c.Comment).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create stop requested change: %w", err)
	}
	return nil
}
