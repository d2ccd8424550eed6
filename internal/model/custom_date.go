package model

import (
	"time"

	"github.com/google/uuid"
)

type CustomDateStatus string

const (
	CustomDateStatusRequested CustomDateStatus = "requested" // Ожидает ответа tastemaker
	CustomDateStatusAccepted  CustomDateStatus = "accepted"  // Принято
	CustomDateStatusDeclined  CustomDateStatus = "declined"  // Отклонено tastemaker
	CustomDateStatusExpired   CustomDateStatus = "expired"   // Истекло 24 часа без ответа
	CustomDateStatusCancelled CustomDateStatus = "cancelled" // Отменено заказчиком
)

// ParseCustomDateStatus возвращает false для неизвестных значений
func ParseCustomDateStatus(s string) (CustomDateStatus, bool) {
	switch st := CustomDateStatus(s); st {
	case CustomDateStatusRequested, CustomDateStatusAccepted, CustomDateStatusDeclined,
		CustomDateStatusExpired, CustomDateStatusCancelled:
		return st, true
	}
	return "", false
}

type CustomDate struct {
	ID                uuid.UUID        `json:"id"`
	RequestorID       uuid.UUID        `json:"requestorId"`
	TastemakerID      uuid.UUID        `json:"tastemakerId"`
	BeginsAt          time.Time        `json:"beginsAt"`
	NumStops          int              `json:"numStops"`
	PriceRangeMin     *int64           `json:"priceRangeMin,omitempty"`
	PriceRangeMax     *int64           `json:"priceRangeMax,omitempty"`
	PricePerStop      int64            `json:"pricePerStop"` // цена tastemaker на момент запроса, в центах
	Cost              int64            `json:"cost"`         // в центах
	Notes             string           `json:"notes"`
	Status            CustomDateStatus `json:"status"`
	RespondedAt       *time.Time       `json:"respondedAt,omitempty"`
	LastMessageSentAt time.Time        `json:"lastMessageSentAt"`
	Completed         bool             `json:"completed"`
	TastemakerPaidAt  *time.Time       `json:"-"`
	CityIDs           []uuid.UUID      `json:"cityIds"`
	TagIDs            []uuid.UUID      `json:"tagIds"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`

	// Заполняются сервисом, не из таблицы custom_dates
	Requestor  *User       `json:"requestor,omitempty"`
	Tastemaker *Tastemaker `json:"tastemaker,omitempty"`
}

func (d *CustomDate) IsRequested() bool {
	return d.Status == CustomDateStatusRequested
}

func (d *CustomDate) IsAccepted() bool {
	return d.Status == CustomDateStatusAccepted
}
