package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/concierge/internal/model"
	"github.com/Freeeeeet/concierge/internal/repository/base"
	"github.com/google/uuid"
)

// CatalogRepository справочники: города, теги, локации
type CatalogRepository struct {
	db base.DBTX
}

func NewCatalogRepository(db base.DBTX) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// GetCitiesByIDs возвращает найденные города; отсутствующих ID в карте нет
func (r *CatalogRepository) GetCitiesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.City, error) {
	result := make(map[uuid.UUID]*model.City, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, name, state_initials
		FROM cities
		WHERE id = ANY($1::uuid[])
	`, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("get cities by ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var city model.City
		if err := rows.Scan(&city.ID, &city.Name, &city.StateInitials); err != nil {
			return nil, fmt.Errorf("scan city: %w", err)
		}
		result[city.ID] = &city
	}

	return result, rows.Err()
}

// GetTagsByIDs возвращает найденные теги
func (r *CatalogRepository) GetTagsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Tag, error) {
	result := make(map[uuid.UUID]*model.Tag, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, name
		FROM tags
		WHERE id = ANY($1::uuid[])
	`, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("get tags by ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tag model.Tag
		if err := rows.Scan(&tag.ID, &tag.Name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		result[tag.ID] = &tag
	}

	return result, rows.Err()
}

// GetLocationsByIDs возвращает найденные локации
func (r *CatalogRepository) GetLocationsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Location, error) {
	result := make(map[uuid.UUID]*model.Location, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, name, street, city, state_initials, postal_code
		FROM locations
		WHERE id = ANY($1::uuid[])
	`, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("get locations by ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var loc model.Location
		err := rows.Scan(&loc.ID, &loc.Name, &loc.Street, &loc.City, &loc.StateInitials, &loc.PostalCode)
		if err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		result[loc.ID] = &loc
	}

	return result, rows.Err()
}
