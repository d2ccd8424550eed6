package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/concierge/internal/analytics"
	"github.com/Freeeeeet/concierge/internal/auth"
	"github.com/Freeeeeet/concierge/internal/jobs"
	"github.com/Freeeeeet/concierge/internal/model"
	"github.com/Freeeeeet/concierge/internal/notify"
	"github.com/Freeeeeet/concierge/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// buildStops проверяет локации и собирает остановки ревизии
func buildStops(ctx context.Context, store repository.Store, input []StopInput) ([]*model.SuggestionStop, []FieldError, error) {
	ids := make([]uuid.UUID, 0, len(input))
	for _, stop := range input {
		ids = append(ids, stop.Location.ID)
	}

	locations, err := store.GetLocationsByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	var fields []FieldError
	stops := make([]*model.SuggestionStop, 0, len(input))
	for i, in := range input {
		location := locations[in.Location.ID]
		if location == nil {
			fields = append(fields, fieldError(fmt.Sprintf("stops.%d.location.id", i), "Location not found"))
			continue
		}
		stops = append(stops, &model.SuggestionStop{
			Order:      i,
			Content:    in.Content,
			LocationID: location.ID,
			Location:   location,
		})
	}

	return stops, fields, nil
}

// SuggestCustomDate tastemaker отправляет первую ревизию маршрута
func (s *CustomDateService) SuggestCustomDate(ctx context.Context, viewer *auth.Identity, customDateID uuid.UUID, input StopsInput) (*model.CustomDateSuggestion, error) {
	if err := requireLogin(viewer); err != nil {
		return nil, err
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var (
		date       *model.CustomDate
		suggestion *model.CustomDateSuggestion
	)

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		date, err = s.loadCustomDate(ctx, tx, customDateID)
		if err != nil {
			return err
		}
		if !isTastemaker(viewer, date) {
			return ErrNotAllowed
		}
		if !date.IsAccepted() {
			return conflict("custom date must be accepted before suggesting an itinerary")
		}

		latest, err := tx.GetLatestSuggestion(ctx, date.ID)
		if err != nil {
			return err
		}
		if latest != nil {
			return conflict("an itinerary has already been suggested")
		}

		stops, fields, err := buildStops(ctx, tx, input.Stops)
		if err != nil {
			return err
		}
		if len(fields) > 0 {
			return invalid(fields...)
		}

		date.LastMessageSentAt = s.now()
		if err := tx.UpdateCustomDate(ctx, date); err != nil {
			return err
		}

		suggestion = &model.CustomDateSuggestion{
			CustomDateID:   date.ID,
			RevisionNumber: 0,
			Status:         model.SuggestionStatusSuggested,
			Stops:          stops,
		}
		return tx.CreateSuggestion(ctx, suggestion)
	})
	if err != nil {
		return nil, s.internal(viewer, "suggest custom date", err)
	}

	s.logger.Info("Custom date suggested",
		zap.String("custom_date_id", date.ID.String()),
		zap.String("suggestion_id", suggestion.ID.String()),
		zap.Int("stops", len(suggestion.Stops)),
	)

	s.sendEmail(ctx, date.Requestor.Email, notify.TemplateNewSuggestion, s.mailData(date, date.Requestor))
	s.publish(ctx, notify.TopicSuggestion, notify.EventNewSuggestion, date)
	s.tracker.Track(viewer.UserID.String(), analytics.EventSuggestionSent, map[string]any{
		"customDateId": date.ID.String(),
		"revision":     suggestion.RevisionNumber,
	})

	return suggestion, nil
}

// MakeChangesOnSuggestion tastemaker отправляет новую ревизию после запроса правок.
// Остановки, к которым запросили правки, должны сменить локацию.
func (s *CustomDateService) MakeChangesOnSuggestion(ctx context.Context, viewer *auth.Identity, customDateID uuid.UUID, input StopsInput) (*model.CustomDateSuggestion, error) {
	if err := requireLogin(viewer); err != nil {
		return nil, err
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var (
		date       *model.CustomDate
		suggestion *model.CustomDateSuggestion
	)

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		date, err = s.loadCustomDate(ctx, tx, customDateID)
		if err != nil {
			return err
		}
		if !isTastemaker(viewer, date) {
			return ErrNotAllowed
		}

		latest, err := tx.GetLatestSuggestion(ctx, date.ID)
		if err != nil {
			return err
		}
		if latest == nil || latest.Status != model.SuggestionStatusChangesRequested {
			return conflict("cannot make changes on this suggestion")
		}

		stops, fields, err := buildStops(ctx, tx, input.Stops)
		if err != nil {
			return err
		}
		for i, in := range input.Stops {
			prior := latest.StopByOrder(i)
			if prior == nil || prior.RequestedChange == nil || !prior.RequestedChange.ChangeRequested {
				continue
			}
			if prior.LocationID == in.Location.ID {
				fields = append(fields, fieldError(fmt.Sprintf("stops.%d.location.id", i), "Must change location"))
			}
		}
		if len(fields) > 0 {
			return invalid(fields...)
		}

		date.LastMessageSentAt = s.now()
		if err := tx.UpdateCustomDate(ctx, date); err != nil {
			return err
		}

		suggestion = &model.CustomDateSuggestion{
			CustomDateID:   date.ID,
			RevisionNumber: latest.RevisionNumber + 1,
			Status:         model.SuggestionStatusSuggested,
			Stops:          stops,
		}
		return tx.CreateSuggestion(ctx, suggestion)
	})
	if err != nil {
		return nil, s.internal(viewer, "make changes on suggestion", err)
	}

	s.logger.Info("Custom date suggestion revised",
		zap.String("custom_date_id", date.ID.String()),
		zap.String("suggestion_id", suggestion.ID.String()),
		zap.Int("revision", suggestion.RevisionNumber),
	)

	data := s.mailData(date, date.Requestor)
	data.Status = "revised"
	s.sendEmail(ctx, date.Requestor.Email, notify.TemplateNewSuggestion, data)
	s.publish(ctx, notify.TopicSuggestion, notify.EventNewSuggestion, date)
	s.tracker.Track(viewer.UserID.String(), analytics.EventSuggestionSent, map[string]any{
		"customDateId": date.ID.String(),
		"revision":     suggestion.RevisionNumber,
	})

	return suggestion, nil
}

// RequestChangesOnCustomDateSuggestion заказчик отмечает остановки, которые нужно заменить
func (s *CustomDateService) RequestChangesOnCustomDateSuggestion(ctx context.Context, viewer *auth.Identity, suggestionID uuid.UUID, input RequestChangesInput) (*model.CustomDateSuggestion, error) {
	if err := requireLogin(viewer); err != nil {
		return nil, err
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var (
		date       *model.CustomDate
		suggestion *model.CustomDateSuggestion
	)

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		suggestion, err = tx.GetSuggestionByID(ctx, suggestionID)
		if err != nil {
			return err
		}
		if suggestion == nil {
			return notFound("suggestion not found")
		}

		date, err = s.loadCustomDate(ctx, tx, suggestion.CustomDateID)
		if err != nil {
			return err
		}
		if !isRequestor(viewer, date) {
			return ErrNotAllowed
		}

		latest, err := tx.GetLatestSuggestion(ctx, date.ID)
		if err != nil {
			return err
		}
		if latest == nil || latest.ID != suggestion.ID || suggestion.Status != model.SuggestionStatusSuggested {
			return conflict("cannot request changes on this suggestion")
		}

		var fields []FieldError
		seen := make(map[uuid.UUID]bool, len(input.Stops))
		for i, in := range input.Stops {
			if !in.ChangeRequested {
				continue
			}
			path := fmt.Sprintf("stops.%d.stopId", i)
			switch {
			case suggestion.StopByID(in.StopID) == nil:
				fields = append(fields, fieldError(path, "Stop not found"))
			case seen[in.StopID]:
				fields = append(fields, fieldError(path, "Duplicate stop"))
			}
			seen[in.StopID] = true
		}
		if len(fields) > 0 {
			return invalid(fields...)
		}

		if err := tx.UpdateSuggestionStatus(ctx, suggestion.ID, model.SuggestionStatusChangesRequested); err != nil {
			return err
		}
		suggestion.Status = model.SuggestionStatusChangesRequested

		date.LastMessageSentAt = s.now()
		if err := tx.UpdateCustomDate(ctx, date); err != nil {
			return err
		}

		for _, in := range input.Stops {
			if !in.ChangeRequested {
				continue
			}
			stop := suggestion.StopByID(in.StopID)
			change := &model.StopRequestedChange{
				StopID:          stop.ID,
				ChangeRequested: true,
				Comment:         in.Comment,
			}
			if err := tx.CreateStopRequestedChange(ctx, change); err != nil {
				return err
			}
			stop.RequestedChange = change
		}
		return nil
	})
	if err != nil {
		return nil, s.internal(viewer, "request changes on suggestion", err)
	}

	s.logger.Info("Custom date changes requested",
		zap.String("custom_date_id", date.ID.String()),
		zap.String("suggestion_id", suggestion.ID.String()),
	)

	s.sendEmail(ctx, date.Tastemaker.User.Email, notify.TemplateChangesRequested, s.mailData(date, date.Tastemaker.User))
	s.publish(ctx, notify.TopicSuggestion, notify.EventChangesRequested, date)
	s.tracker.Track(viewer.UserID.String(), analytics.EventChangesRequested, map[string]any{
		"customDateId": date.ID.String(),
		"suggestionId": suggestion.ID.String(),
	})

	return suggestion, nil
}

// AcceptCustomDateSuggestion заказчик принимает текущую ревизию. Custom date
// завершается, выплата tastemaker ставится без задержки, маршрут уходит
// календарём заказчику и гостю.
func (s *CustomDateService) AcceptCustomDateSuggestion(ctx context.Context, viewer *auth.Identity, customDateID uuid.UUID, input AcceptSuggestionInput) (*model.CustomDateSuggestion, error) {
	if err := requireLogin(viewer); err != nil {
		return nil, err
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var (
		date       *model.CustomDate
		suggestion *model.CustomDateSuggestion
	)

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		date, err = s.loadCustomDate(ctx, tx, customDateID)
		if err != nil {
			return err
		}
		if !isRequestor(viewer, date) {
			return ErrNotAllowed
		}

		suggestion, err = tx.GetLatestSuggestion(ctx, date.ID)
		if err != nil {
			return err
		}
		if suggestion == nil {
			return conflict("there is no suggestion to accept")
		}
		if suggestion.Status == model.SuggestionStatusAccepted {
			return conflict("suggestion has already been accepted")
		}

		refund, err := tx.GetRefundByCustomDateID(ctx, date.ID)
		if err != nil {
			return err
		}
		if refund != nil {
			return conflict("a refund has been requested for this custom date")
		}

		if err := tx.UpdateSuggestionStatus(ctx, suggestion.ID, model.SuggestionStatusAccepted); err != nil {
			return err
		}
		suggestion.Status = model.SuggestionStatusAccepted

		date.Completed = true
		date.LastMessageSentAt = s.now()
		return tx.UpdateCustomDate(ctx, date)
	})
	if err != nil {
		return nil, s.internal(viewer, "accept suggestion", err)
	}

	s.logger.Info("Custom date suggestion accepted",
		zap.String("custom_date_id", date.ID.String()),
		zap.String("suggestion_id", suggestion.ID.String()),
	)

	s.cancelJob(ctx, jobs.PayTastemaker, date.ID)
	s.enqueue(ctx, jobs.PayTastemaker, jobs.Payload{CustomDateID: date.ID}, jobs.Options{
		MaxAttempts: jobMaxAttempts,
		BackoffBase: jobBackoffBase,
	})

	s.enqueueItineraries(ctx, date, suggestion, input)

	s.sendEmail(ctx, date.Tastemaker.User.Email, notify.TemplateSuggestionAccepted, s.mailData(date, date.Tastemaker.User))
	s.directMessage(ctx, date.Tastemaker.User, fmt.Sprintf("%s accepted your itinerary", date.Requestor.FullName()))
	s.publish(ctx, notify.TopicSuggestion, notify.EventSuggestionAccepted, date)
	s.tracker.Track(viewer.UserID.String(), analytics.EventSuggestionAccepted, map[string]any{
		"customDateId": date.ID.String(),
		"revision":     suggestion.RevisionNumber,
		"withGuest":    input.Guest != nil,
	})

	return suggestion, nil
}

// enqueueItineraries по письму с календарём заказчику и гостю
func (s *CustomDateService) enqueueItineraries(ctx context.Context, date *model.CustomDate, suggestion *model.CustomDateSuggestion, input AcceptSuggestionInput) {
	suggestionID := suggestion.ID
	payload := jobs.Payload{
		CustomDateID:   date.ID,
		SuggestionID:   &suggestionID,
		RecipientName:  date.Requestor.FullName(),
		RecipientEmail: date.Requestor.Email,
		TimeZone:       input.TimeZone,
	}
	if input.Guest != nil {
		payload.GuestName = input.Guest.Name
		payload.GuestEmail = input.Guest.Email
	}

	key := jobs.SendItinerary + ":" + date.ID.String()

	s.enqueue(ctx, jobs.SendItinerary, payload, jobs.Options{
		MaxAttempts: jobMaxAttempts,
		BackoffBase: itineraryBackoff,
		DedupeKey:   key + ":viewer",
	})

	if input.Guest == nil {
		return
	}

	guest := payload
	guest.RecipientName = input.Guest.Name
	guest.RecipientEmail = input.Guest.Email
	guest.Guest = true

	s.enqueue(ctx, jobs.SendItinerary, guest, jobs.Options{
		MaxAttempts: guestMaxAttempts,
		BackoffBase: itineraryBackoff,
		DedupeKey:   key + ":guest",
	})
}
