package service

import (
	"time"

	"github.com/google/uuid"
)

type RequestCustomDateInput struct {
	TastemakerUsername string      `json:"tastemakerUsername" validate:"required"`
	BeginsAt           time.Time   `json:"beginsAt" validate:"required"`
	NumStops           int         `json:"numStops" validate:"min=1"`
	PriceRangeMin      *int64      `json:"priceRangeMin" validate:"omitempty,min=0"`
	PriceRangeMax      *int64      `json:"priceRangeMax" validate:"omitempty,min=0"`
	Notes              string      `json:"notes" validate:"max=500"`
	Cities             []uuid.UUID `json:"cities"`
	Tags               []uuid.UUID `json:"tags"`
}

type LocationInput struct {
	ID uuid.UUID `json:"id" validate:"required"`
}

// StopInput остановка маршрута; порядок задаётся позицией в списке
type StopInput struct {
	Content  string        `json:"content" validate:"required,max=2000"`
	Location LocationInput `json:"location"`
}

type StopsInput struct {
	Stops []StopInput `json:"stops" validate:"required,min=1,dive"`
}

type StopChangeInput struct {
	StopID          uuid.UUID `json:"stopId"`
	ChangeRequested bool      `json:"changeRequested"`
	Comment         string    `json:"comment" validate:"max=1000"`
}

type RequestChangesInput struct {
	Stops []StopChangeInput `json:"stops" validate:"required,min=1,dive"`
}

type PersonInput struct {
	Name  string `json:"name" validate:"max=200"`
	Email string `json:"email" validate:"required,email"`
}

type AcceptSuggestionInput struct {
	TimeZone string       `json:"timeZone" validate:"required,timezone"`
	Guest    *PersonInput `json:"guest" validate:"omitempty"`
}

type RefundRequestInput struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

type RefundResponseInput struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason" validate:"max=1000"`
}

type MessageInput struct {
	Text string `json:"text" validate:"required,max=2000"`
}

type ItineraryStopInput struct {
	Title    string        `json:"title" validate:"max=200"`
	Content  string        `json:"content" validate:"max=2000"`
	Location LocationInput `json:"location"`
}

// ItineraryInput Organizer обязателен только для анонимного запроса
type ItineraryInput struct {
	Start     time.Time            `json:"start" validate:"required"`
	Stops     []ItineraryStopInput `json:"stops" validate:"required,min=1,dive"`
	Organizer *PersonInput         `json:"organizer" validate:"omitempty"`
	Guest     *PersonInput         `json:"guest" validate:"omitempty"`
}
