package model

import (
	"time"

	"github.com/google/uuid"
)

type RefundStatus string

const (
	RefundStatusRequested RefundStatus = "requested"
	RefundStatusRefunded  RefundStatus = "refunded"
	RefundStatusDenied    RefundStatus = "denied"
)

type CustomDateRefund struct {
	ID           uuid.UUID    `json:"id"`
	CustomDateID uuid.UUID    `json:"customDateId"`
	Reason       string       `json:"reason"`
	Status       RefundStatus `json:"status"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

type CustomDateMessage struct {
	ID           uuid.UUID `json:"id"`
	CustomDateID uuid.UUID `json:"customDateId"`
	SenderID     uuid.UUID `json:"senderId"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"createdAt"`
}
