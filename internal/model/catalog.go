package model

import (
	"fmt"

	"github.com/google/uuid"
)

type City struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	StateInitials string    `json:"stateInitials"`
}

type Tag struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type Location struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Street        string    `json:"street"`
	City          string    `json:"city"`
	StateInitials string    `json:"stateInitials"`
	PostalCode    string    `json:"postalCode"`
}

// Address форматирует адрес для календаря: "{street}, {city}, {state}, {zip}"
func (l *Location) Address() string {
	return fmt.Sprintf("%s, %s, %s, %s", l.Street, l.City, l.StateInitials, l.PostalCode)
}
