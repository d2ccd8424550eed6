package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/concierge/internal/auth"
	"github.com/Freeeeeet/concierge/internal/itinerary"
	"github.com/google/uuid"
)

// GenerateItinerary календарь по произвольным остановкам. Организатор
// берётся из текущего пользователя, для анонимного запроса из input.Organizer.
func (s *CustomDateService) GenerateItinerary(ctx context.Context, viewer *auth.Identity, input ItineraryInput) (string, error) {
	if err := validateInput(input); err != nil {
		return "", err
	}

	var organizer itinerary.Person
	switch {
	case viewer != nil:
		user, err := s.store.GetUserByID(ctx, viewer.UserID)
		if err != nil {
			return "", s.internal(viewer, "generate itinerary", err)
		}
		if user == nil {
			return "", ErrNotLoggedIn
		}
		organizer = itinerary.Person{Name: user.FullName(), Email: user.Email}
	case input.Organizer != nil:
		organizer = itinerary.Person{Name: input.Organizer.Name, Email: input.Organizer.Email}
	default:
		return "", invalid(fieldError("organizer", "Is required"))
	}

	ids := make([]uuid.UUID, 0, len(input.Stops))
	for _, stop := range input.Stops {
		ids = append(ids, stop.Location.ID)
	}
	locations, err := s.store.GetLocationsByIDs(ctx, ids)
	if err != nil {
		return "", s.internal(viewer, "generate itinerary", err)
	}

	var fields []FieldError
	stops := make([]itinerary.Stop, 0, len(input.Stops))
	for i, in := range input.Stops {
		location := locations[in.Location.ID]
		if location == nil {
			fields = append(fields, fieldError(fmt.Sprintf("stops.%d.location.id", i), "Location not found"))
			continue
		}
		stops = append(stops, itinerary.Stop{Title: in.Title, Content: in.Content, Location: location})
	}
	if len(fields) > 0 {
		return "", invalid(fields...)
	}

	req := itinerary.Request{Start: input.Start, Stops: stops, Organizer: organizer}
	if input.Guest != nil {
		req.Guest = &itinerary.Person{Name: input.Guest.Name, Email: input.Guest.Email}
	}

	calendar, err := itinerary.Generate(req)
	if err != nil {
		return "", s.internal(viewer, "generate itinerary", err)
	}
	return calendar, nil
}
