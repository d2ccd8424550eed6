package model

import (
	"time"

	"github.com/google/uuid"
)

type SuggestionStatus string

const (
	SuggestionStatusSuggested        SuggestionStatus = "suggested"
	SuggestionStatusChangesRequested SuggestionStatus = "changes requested"
	SuggestionStatusAccepted         SuggestionStatus = "accepted"
)

type CustomDateSuggestion struct {
	ID             uuid.UUID         `json:"id"`
	CustomDateID   uuid.UUID         `json:"customDateId"`
	RevisionNumber int               `json:"revisionNumber"`
	Status         SuggestionStatus  `json:"status"`
	Stops          []*SuggestionStop `json:"stops"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// StopByOrder ищет остановку с заданным порядковым номером
func (s *CustomDateSuggestion) StopByOrder(order int) *SuggestionStop {
	for _, stop := range s.Stops {
		if stop.Order == order {
			return stop
		}
	}
	return nil
}

func (s *CustomDateSuggestion) StopByID(id uuid.UUID) *SuggestionStop {
	for _, stop := range s.Stops {
		if stop.ID == id {
			return stop
		}
	}
	return nil
}

type SuggestionStop struct {
	ID           uuid.UUID `json:"id"`
	SuggestionID uuid.UUID `json:"suggestionId"`
	Order        int       `json:"order"`
	Content      string    `json:"content"`
	LocationID   uuid.UUID `json:"locationId"`

	Location        *Location            `json:"location,omitempty"`
	RequestedChange *StopRequestedChange `json:"requestedChange,omitempty"`
}

// StopRequestedChange комментарий заказчика к конкретной остановке
type StopRequestedChange struct {
	ID              uuid.UUID `json:"id"`
	StopID          uuid.UUID `json:"stopId"`
	ChangeRequested bool      `json:"changeRequested"`
	Comment         string    `json:"comment"`
	CreatedAt       time.Time `json:"createdAt"`
}
